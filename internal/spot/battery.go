package spot

import (
	"context"
	"errors"
	"sort"
)

// BatteryChargingInfo is the charging/discharging plan for today. The plan
// takes the four cheapest hours of the day, checks whether the spread to the
// expensive hours covers the battery's per-kWh cost, and avoids charging
// late in the evening when tomorrow morning will be cheaper.
type BatteryChargingInfo struct {
	// Diff is the spread between the most expensive charging-window hour
	// and the top of the price range considered.
	Diff              float64  `json:"diff"`
	IsViable          bool     `json:"is_viable"`
	ChargingHours     []string `json:"charging_hours"`
	IsChargingHour    bool     `json:"is_charging_hour"`
	DischargingHours  []string `json:"discharging_hours"`
	IsDischargingHour bool     `json:"is_discharging_hour"`
	TotalPrice        Price    `json:"total_price"`
}

const batteryWindow = 4

// BatteryChargingInfo computes today's plan.
func (s *Service) BatteryChargingInfo(ctx context.Context, t Tariff, noCache bool) (BatteryChargingInfo, error) {
	now := s.now()
	today := now
	tomorrow := now.AddDate(0, 0, 1)
	hour := CurrentHourKey(now)

	sp, err := s.fetchSpotPrices(ctx, today, t, noCache)
	if err != nil {
		return BatteryChargingInfo{}, err
	}
	if len(sp.totalSorted) == 0 {
		return BatteryChargingInfo{}, ErrPriceNotFound
	}

	window := batteryWindow
	if window > len(sp.totalSorted) {
		window = len(sp.totalSorted)
	}

	// Most expensive hour inside the charging window, and the top of the
	// 20 cheapest hours as the upper reference.
	maxCheapestHour := sp.totalSorted[window-1].value

	rangeTop := 20
	if rangeTop > len(sp.totalSorted) {
		rangeTop = len(sp.totalSorted)
	}
	maxConsideredHour := sp.totalSorted[rangeTop-1].value

	diff := maxConsideredHour - maxCheapestHour

	charging := make(map[string]bool, window)
	for _, hp := range sp.totalSorted[:window] {
		charging[hp.hour] = true
	}
	// Extend the window with hours priced within 10% of its most expensive
	// hour.
	for _, hp := range sp.totalSorted {
		if hp.value <= maxCheapestHour*1.1 {
			charging[hp.hour] = true
		}
	}

	var discharging []string
	for _, hp := range sp.totalSorted {
		if hp.value > maxCheapestHour+t.BatteryKWHPrice {
			discharging = append(discharging, hp.hour)
		}
	}

	// Skip evening charging when tomorrow morning is cheaper: compare the
	// last four hours of today against the first four of tomorrow and drop
	// hours 20-23 from the plan if today's evening loses. Tomorrow's prices
	// are frequently not published yet; that is not an error.
	if spTomorrow, err := s.fetchSpotPrices(ctx, tomorrow, t, noCache); err == nil {
		if eveningAverage(sp) > morningAverage(spTomorrow) {
			for h := range charging {
				if order := hourKeyOrder(h); order >= 20*60 {
					delete(charging, h)
				}
			}
		}
	} else if !errors.Is(err, ErrPriceNotFound) {
		return BatteryChargingInfo{}, err
	}

	chargingHours := make([]string, 0, len(charging))
	for h := range charging {
		chargingHours = append(chargingHours, h)
	}
	sort.Slice(chargingHours, func(i, j int) bool {
		return hourKeyOrder(chargingHours[i]) < hourKeyOrder(chargingHours[j])
	})
	sort.Slice(discharging, func(i, j int) bool {
		return hourKeyOrder(discharging[i]) < hourKeyOrder(discharging[j])
	})

	isViable := len(discharging) > 0

	return BatteryChargingInfo{
		Diff:              diff,
		IsViable:          isViable,
		ChargingHours:     chargingHours,
		IsChargingHour:    isViable && charging[hour],
		DischargingHours:  discharging,
		IsDischargingHour: isViable && contains(discharging, hour),
		TotalPrice:        price(sp.total, hour, true),
	}, nil
}

// eveningAverage is the mean total price of today's last four chronological
// hours.
func eveningAverage(sp spotPrices) float64 {
	return tailAverage(sp, true)
}

// morningAverage is the mean total price of the day's first four
// chronological hours.
func morningAverage(sp spotPrices) float64 {
	return tailAverage(sp, false)
}

func tailAverage(sp spotPrices, fromEnd bool) float64 {
	keys := make([]string, 0, len(sp.total))
	for k := range sp.total {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return hourKeyOrder(keys[i]) < hourKeyOrder(keys[j])
	})

	n := 4
	if n > len(keys) {
		n = len(keys)
	}
	if n == 0 {
		return 0
	}

	var sum float64
	if fromEnd {
		for _, k := range keys[len(keys)-n:] {
			sum += sp.total[k]
		}
	} else {
		for _, k := range keys[:n] {
			sum += sp.total[k]
		}
	}
	return sum / float64(n)
}

func contains(hours []string, hour string) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
