package spot

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"calculator-service/internal/cache"
	"calculator-service/pkg/logging"
)

const (
	energyKeyPrefix = "spot:hours:"
	rateKeyPrefix   = "spot:eurczk:"
)

// Service is the cached view of the spot price domain. Published price days
// are immutable facts, so committed entries carry no TTL; fetches for one
// date are deduplicated with singleflight, the same guarantee the
// coordinator gives calculations.
type Service struct {
	source Source
	store  cache.Store
	sf     singleflight.Group

	// now is injectable for tests; "is today" drives the Now fields.
	now func() time.Time
}

func NewService(source Source, store cache.Store) *Service {
	return &Service{
		source: source,
		store:  store,
		now:    time.Now,
	}
}

// EnergyPrices returns the per-hour market prices for date, cached per date.
// Incomplete days (neither 24 nor 96 points) are served but not committed,
// so the next request refetches. noCache bypasses the read and refreshes the
// entry.
func (s *Service) EnergyPrices(ctx context.Context, date time.Time, noCache bool) (map[string]float64, error) {
	key := energyKeyPrefix + date.Format(dateLayout)

	if !noCache {
		var hours map[string]float64
		if s.lookup(ctx, key, &hours) {
			return hours, nil
		}
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		hours, err := s.source.EnergyPrices(ctx, date)
		if err != nil {
			return nil, err
		}
		if len(hours) == 24 || len(hours) == 96 {
			s.commit(ctx, key, hours)
		}
		return hours, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]float64), nil
}

// EURCZKRate returns the CNB EUR/CZK rate for date, cached per date.
func (s *Service) EURCZKRate(ctx context.Context, date time.Time, noCache bool) (float64, error) {
	key := rateKeyPrefix + date.Format(dateLayout)

	if !noCache {
		var rate float64
		if s.lookup(ctx, key, &rate) {
			return rate, nil
		}
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		rate, err := s.source.EURCZKRate(ctx, date)
		if err != nil {
			return nil, err
		}
		s.commit(ctx, key, rate)
		return rate, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// lookup reads a payload entry. Spot data is refetchable, so storage errors
// degrade to a miss here instead of failing the request.
func (s *Service) lookup(ctx context.Context, key string, out any) bool {
	entry, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok || entry.Payload == nil {
		return false
	}
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		logging.L(ctx).Warn("spot cache payload unreadable",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *Service) commit(ctx context.Context, key string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logging.L(ctx).Warn("spot cache payload marshal failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	entry := cache.Entry{
		Fingerprint: key,
		Payload:     raw,
		CreatedAt:   s.now().UTC(),
	}
	// Put errors are logged by the store decorator; the fetched data is
	// still returned to the caller.
	_ = s.store.Put(context.WithoutCancel(ctx), key, entry)
}
