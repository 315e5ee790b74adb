package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"calculator-service/internal/spot"
	"calculator-service/pkg/logging"
)

// PriceHandler serves the spot price endpoints: day price breakdowns and the
// battery charging plan.
type PriceHandler struct {
	Spot *spot.Service

	// now is injectable for tests.
	now func() time.Time
}

func NewPriceHandler(s *spot.Service) *PriceHandler {
	return &PriceHandler{Spot: s, now: time.Now}
}

// DayPrice handles GET /price/day and GET /price/day/{date}. Without a date
// it prices today. Tariff parameters default to the D57d tariff and can be
// overridden per query parameter.
func (h *PriceHandler) DayPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	date := h.now()
	if raw := chi.URLParam(r, "date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "parse", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	tariff, err := tariffFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse", err.Error())
		return
	}

	hour := spot.CurrentHourKey(h.now())
	if raw := r.URL.Query().Get("hour"); raw != "" {
		hour = spot.NormalizeHourKey(raw)
	}

	dp, err := h.Spot.DayPrice(ctx, date, hour, tariff, boolQuery(r, "no_cache"))
	if err != nil {
		h.respondError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dp)
}

// BatteryCharging handles GET /battery/charging: today's charging and
// discharging plan.
func (h *PriceHandler) BatteryCharging(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	tariff, err := tariffFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse", err.Error())
		return
	}

	info, err := h.Spot.BatteryChargingInfo(ctx, tariff, boolQuery(r, "no_cache"))
	if err != nil {
		h.respondError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *PriceHandler) respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if errors.Is(err, spot.ErrPriceNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "prices not published for the requested date")
		return
	}
	logger.Error("spot price request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

// tariffFromQuery starts from the default tariff and overrides any field
// present in the query string.
func tariffFromQuery(r *http.Request) (spot.Tariff, error) {
	t := spot.DefaultTariff()

	if csv := r.URL.Query().Get("low_tariff_hours"); csv != "" {
		t.LowTariffHours = spot.ExpandLowTariffHours(csv)
	}

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"monthly_fees", &t.MonthlyFees},
		{"daily_fees", &t.DailyFees},
		{"kwh_fees_low", &t.KWHFeesLow},
		{"kwh_fees_high", &t.KWHFeesHigh},
		{"sell_fees", &t.SellFees},
		{"battery_kwh_price", &t.BatteryKWHPrice},
		{"average_hours_threshold", &t.AverageHoursThreshold},
	} {
		if err := floatQuery(r, f.name, f.dst); err != nil {
			return spot.Tariff{}, err
		}
	}

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"num_cheapest_hours", &t.NumCheapestHours},
		{"num_most_expensive_hours", &t.NumMostExpensiveHours},
		{"average_hours", &t.AverageHours},
	} {
		if err := intQuery(r, f.name, f.dst); err != nil {
			return spot.Tariff{}, err
		}
	}

	return t, nil
}

func floatQuery(r *http.Request, name string, dst *float64) error {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errors.New(name + " must be a number")
	}
	*dst = v
	return nil
}

func intQuery(r *http.Request, name string, dst *int) error {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return errors.New(name + " must be an integer")
	}
	*dst = v
	return nil
}

func boolQuery(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
