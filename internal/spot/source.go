// Package spot restores the energy spot price domain of the service: it
// fetches OTE day-market prices and the CNB EUR/CZK rate, caches them per
// date through the cache store, and derives day prices, cheapest-hour sets
// and a battery charging plan.
package spot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"calculator-service/internal/metrics"
)

// ErrPriceNotFound means the market has not published prices for the
// requested date (yet). Maps to HTTP 404.
var ErrPriceNotFound = errors.New("prices not found")

const dateLayout = "2006-01-02"

// Source delivers raw market data for one date. EnergyPrices keys are
// "H:MM" with MM in {00,15,30,45} for 15-minute days and "H:00" for hourly
// days.
type Source interface {
	EnergyPrices(ctx context.Context, date time.Time) (map[string]float64, error)
	EURCZKRate(ctx context.Context, date time.Time) (float64, error)
}

type SourceConfig struct {
	EnergyBaseURL   string
	CurrencyBaseURL string

	UpstreamTimeout time.Duration // per-request timeout (default: 30s)
	MaxRetries      int           // retry attempts (default: 2)
	BaseBackoff     time.Duration // initial backoff (default: 100ms)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// WithDefaults returns a copy of SourceConfig with sane defaults applied.
func (c *SourceConfig) WithDefaults() SourceConfig {
	cfg := *c

	cfg.EnergyBaseURL = strings.TrimRight(cfg.EnergyBaseURL, "/")
	cfg.CurrencyBaseURL = strings.TrimRight(cfg.CurrencyBaseURL, "/")
	if cfg.EnergyBaseURL == "" {
		cfg.EnergyBaseURL = "https://www.ote-cr.cz"
	}
	if cfg.CurrencyBaseURL == "" {
		cfg.CurrencyBaseURL = "https://www.cnb.cz"
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	return cfg
}

type httpSource struct {
	cfg        SourceConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPSource creates the production source over the OTE and CNB public
// endpoints.
func NewHTTPSource(cfg SourceConfig, logger *zap.Logger) Source {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.UpstreamTimeout}
	}

	return &httpSource{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("spotsource"),
	}
}

// oteChart is the shape of the OTE day-market chart-data response.
type oteChart struct {
	Data struct {
		DataLine []struct {
			Point []otePoint `json:"point"`
		} `json:"dataLine"`
	} `json:"data"`
}

type otePoint struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

func (s *httpSource) EnergyPrices(ctx context.Context, date time.Time) (map[string]float64, error) {
	url := fmt.Sprintf("%s/cs/kratkodobe-trhy/elektrina/denni-trh/@@chart-data?report_date=%s",
		s.cfg.EnergyBaseURL, date.Format(dateLayout))

	body, err := s.getWithRetry(ctx, url)
	if err != nil {
		metrics.PriceFetchesTotal.WithLabelValues("ote", "error").Inc()
		return nil, err
	}

	var chart oteChart
	if err := json.Unmarshal(body, &chart); err != nil {
		metrics.PriceFetchesTotal.WithLabelValues("ote", "error").Inc()
		return nil, fmt.Errorf("decode ote chart: %w", err)
	}

	// The price line is the second data line; fewer lines means the market
	// has not published the day yet.
	if len(chart.Data.DataLine) < 2 {
		metrics.PriceFetchesTotal.WithLabelValues("ote", "not_found").Inc()
		return nil, ErrPriceNotFound
	}
	points := chart.Data.DataLine[1].Point

	hours, err := pointsToHours(points)
	if err != nil {
		metrics.PriceFetchesTotal.WithLabelValues("ote", "not_found").Inc()
		return nil, err
	}

	metrics.PriceFetchesTotal.WithLabelValues("ote", "ok").Inc()
	return hours, nil
}

// pointsToHours maps chart points to "H:MM" keys. 24 points is an hourly
// day, otherwise points come in 15-minute quarters; a 100-point day is the
// autumn DST change and drops the duplicated quarters.
func pointsToHours(points []otePoint) (map[string]float64, error) {
	if len(points) == 0 {
		return nil, ErrPriceNotFound
	}

	hours := make(map[string]float64, len(points))

	if len(points) == 24 {
		for _, p := range points {
			x, err := strconv.Atoi(p.X)
			if err != nil {
				return nil, ErrPriceNotFound
			}
			hours[fmt.Sprintf("%d:00", x-1)] = p.Y
		}
		return hours, nil
	}

	if len(points) == 100 {
		points = append(points[0:8:8], points[12:100]...)
	}

	quarters := [4]string{"00", "15", "30", "45"}
	for i, p := range points {
		hour := i / 4
		if hour > 23 {
			return nil, ErrPriceNotFound
		}
		hours[fmt.Sprintf("%d:%s", hour, quarters[i%4])] = p.Y
	}
	return hours, nil
}

func (s *httpSource) EURCZKRate(ctx context.Context, date time.Time) (float64, error) {
	url := fmt.Sprintf("%s/cs/financni-trhy/devizovy-trh/kurzy-devizoveho-trhu/kurzy-devizoveho-trhu/denni_kurz.txt?date=%02d.%02d.%d",
		s.cfg.CurrencyBaseURL, date.Day(), int(date.Month()), date.Year())

	body, err := s.getWithRetry(ctx, url)
	if err != nil {
		metrics.PriceFetchesTotal.WithLabelValues("cnb", "error").Inc()
		return 0, err
	}

	// Daily sheet rows: country|currency|amount|code|rate, rate uses a
	// decimal comma.
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		row := strings.Split(line, "|")
		if len(row) < 5 || row[3] != "EUR" {
			continue
		}
		rate, err := strconv.ParseFloat(strings.Replace(row[4], ",", ".", 1), 64)
		if err != nil {
			break
		}
		metrics.PriceFetchesTotal.WithLabelValues("cnb", "ok").Inc()
		return rate, nil
	}

	metrics.PriceFetchesTotal.WithLabelValues("cnb", "error").Inc()
	return 0, fmt.Errorf("EUR rate not found in daily sheet for %s", date.Format(dateLayout))
}

// getWithRetry wraps a GET with retry on transient failures: network errors,
// 408/429 and 5xx. Exponential backoff with full jitter; context errors are
// never retried.
func (s *httpSource) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	maxAttempts := s.cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := s.httpClient.Do(req)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
		case !shouldRetryStatus(resp.StatusCode):
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("upstream status %d for %s", resp.StatusCode, url)
			}
			return io.ReadAll(resp.Body)
		default:
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			resp.Body.Close()
		}

		if attempt == maxAttempts-1 {
			break
		}

		backoff := computeBackoff(s.cfg.BaseBackoff, attempt)
		s.logger.Debug("backing off before retry",
			zap.String("url", url),
			zap.Duration("backoff", backoff),
			zap.Int("next_attempt", attempt+2),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown upstream error")
	}
	return nil, fmt.Errorf("spot source: max retries (%d) exceeded: %w", maxAttempts, lastErr)
}

func shouldRetryStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status == http.StatusRequestTimeout:
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		return false
	}
}

// computeBackoff calculates exponential backoff with full jitter, capped so
// retries never outlive the request budget.
func computeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	const maxExponent = 10
	if attempt > maxExponent {
		attempt = maxExponent
	}

	maxBackoff := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	const maxAllowed = 30 * time.Second
	if maxBackoff > maxAllowed {
		maxBackoff = maxAllowed
	}

	return time.Duration(rand.Float64() * float64(maxBackoff))
}
