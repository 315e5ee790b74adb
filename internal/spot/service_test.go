package spot

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calculator-service/internal/cache"
)

// fakeSource serves canned data and counts fetches.
type fakeSource struct {
	hours       map[string]float64
	hoursByDate map[string]map[string]float64
	rate        float64
	energyErr   error
	rateErr     error
	energyCalls atomic.Int64
	rateCalls   atomic.Int64
}

func (f *fakeSource) EnergyPrices(_ context.Context, date time.Time) (map[string]float64, error) {
	f.energyCalls.Add(1)
	if f.energyErr != nil {
		return nil, f.energyErr
	}
	if f.hoursByDate != nil {
		if hours, ok := f.hoursByDate[date.Format(dateLayout)]; ok {
			return hours, nil
		}
		return nil, ErrPriceNotFound
	}
	return f.hours, nil
}

func (f *fakeSource) EURCZKRate(_ context.Context, _ time.Time) (float64, error) {
	f.rateCalls.Add(1)
	if f.rateErr != nil {
		return 0, f.rateErr
	}
	return f.rate, nil
}

// flatDay builds a full 24-hour day at a fixed EUR/MWh value.
func flatDay(value float64) map[string]float64 {
	hours := make(map[string]float64, 24)
	for h := 0; h < 24; h++ {
		hours[fmt.Sprintf("%d:00", h)] = value
	}
	return hours
}

func newTestService(t *testing.T, src Source) *Service {
	t.Helper()
	store := cache.NewMemoryStore(0, time.Minute)
	t.Cleanup(func() { store.Close() })
	return NewService(src, store)
}

func TestEnergyPricesCachedPerDate(t *testing.T) {
	src := &fakeSource{hours: flatDay(100), rate: 25}
	s := newTestService(t, src)
	ctx := context.Background()
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	first, err := s.EnergyPrices(ctx, date, false)
	require.NoError(t, err)
	assert.Len(t, first, 24)

	second, err := s.EnergyPrices(ctx, date, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), src.energyCalls.Load(), "second read must come from cache")
}

func TestEnergyPricesNoCacheRefetches(t *testing.T) {
	src := &fakeSource{hours: flatDay(100), rate: 25}
	s := newTestService(t, src)
	ctx := context.Background()
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := s.EnergyPrices(ctx, date, false)
	require.NoError(t, err)
	_, err = s.EnergyPrices(ctx, date, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.energyCalls.Load())
}

func TestEnergyPricesIncompleteDayNotCached(t *testing.T) {
	src := &fakeSource{hours: map[string]float64{"0:00": 10, "1:00": 12}, rate: 25}
	s := newTestService(t, src)
	ctx := context.Background()
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := s.EnergyPrices(ctx, date, false)
	require.NoError(t, err)
	_, err = s.EnergyPrices(ctx, date, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.energyCalls.Load(), "partial day must be refetched")
}

func TestEURCZKRateCached(t *testing.T) {
	src := &fakeSource{hours: flatDay(100), rate: 24.5}
	s := newTestService(t, src)
	ctx := context.Background()
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	rate, err := s.EURCZKRate(ctx, date, false)
	require.NoError(t, err)
	assert.Equal(t, 24.5, rate)

	_, err = s.EURCZKRate(ctx, date, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.rateCalls.Load())
}

func TestDayPriceComputation(t *testing.T) {
	// One expensive hour, one cheap hour, the rest in between.
	hours := flatDay(100)
	hours["8:00"] = 400
	hours["3:00"] = 10

	src := &fakeSource{hours: hours, rate: 25}
	s := newTestService(t, src)
	// Pin "today" so Now fields are exercised deterministically.
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 8, 5, 0, 0, time.UTC) }

	tariff := DefaultTariff()
	dp, err := s.DayPrice(context.Background(), date, "8:00", tariff, false)
	require.NoError(t, err)

	// spot = value * ratio / 1000
	assert.InDelta(t, 400*25.0/1000, dp.Spot.Hours["8:00"], 1e-9)
	// 8:00 is a high-tariff hour in the default tariff.
	assert.InDelta(t, (400*25.0/1000+tariff.KWHFeesHigh)*VAT, dp.Total.Hours["8:00"], 1e-9)
	// 3:00 is low tariff.
	assert.InDelta(t, (10*25.0/1000+tariff.KWHFeesLow)*VAT, dp.Total.Hours["3:00"], 1e-9)
	assert.InDelta(t, 400*25.0/1000-tariff.SellFees, dp.Sell.Hours["8:00"], 1e-9)

	// Cheapest hour is 3:00, most expensive is 8:00.
	require.NotEmpty(t, dp.CheapestHours.Hours)
	assert.Equal(t, "3:00", dp.CheapestHours.Hours[0])
	require.NotEmpty(t, dp.MostExpensiveHours.Hours)
	assert.Equal(t, "8:00", dp.MostExpensiveHours.Hours[0])

	// Now fields are set for today and reflect the requested hour.
	require.NotNil(t, dp.Total.Now)
	assert.InDelta(t, dp.Total.Hours["8:00"], *dp.Total.Now, 1e-9)
	require.NotNil(t, dp.MostExpensiveHours.IsTheMostExpensive)
	assert.True(t, *dp.MostExpensiveHours.IsTheMostExpensive)

	// Monthly fees include daily fees and VAT.
	days := 31.0 // January
	assert.InDelta(t, (tariff.MonthlyFees+tariff.DailyFees*days)*VAT, dp.MonthlyFees, 1e-9)
}

func TestDayPriceNotTodayHasNoNow(t *testing.T) {
	src := &fakeSource{hours: flatDay(100), rate: 25}
	s := newTestService(t, src)
	s.now = func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) }

	dp, err := s.DayPrice(context.Background(), time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "12:00", DefaultTariff(), false)
	require.NoError(t, err)
	assert.Nil(t, dp.Total.Now)
	assert.Nil(t, dp.CheapestHours.IsCheapest)
}

func TestDayPricePropagatesNotFound(t *testing.T) {
	src := &fakeSource{energyErr: ErrPriceNotFound}
	s := newTestService(t, src)

	_, err := s.DayPrice(context.Background(), time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "0:00", DefaultTariff(), false)
	require.ErrorIs(t, err, ErrPriceNotFound)
}

func TestBatteryChargingInfo(t *testing.T) {
	// Cheap night (1 CZK-equivalent), expensive day: a viable spread.
	today := "2026-01-02"
	tomorrow := "2026-01-03"
	hours := flatDay(300)
	hours["1:00"] = 10
	hours["2:00"] = 11
	hours["3:00"] = 12
	hours["4:00"] = 13

	src := &fakeSource{
		hoursByDate: map[string]map[string]float64{
			today:    hours,
			tomorrow: flatDay(300),
		},
		rate: 25,
	}
	s := newTestService(t, src)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 2, 10, 0, 0, time.UTC) }

	info, err := s.BatteryChargingInfo(context.Background(), DefaultTariff(), false)
	require.NoError(t, err)

	assert.True(t, info.IsViable)
	assert.Contains(t, info.ChargingHours, "1:00")
	assert.Contains(t, info.ChargingHours, "4:00")
	assert.True(t, info.IsChargingHour, "2:10 falls into the cheap window")
	assert.NotContains(t, info.DischargingHours, "1:00")
	assert.NotEmpty(t, info.DischargingHours)
	assert.False(t, info.IsDischargingHour)
	assert.Greater(t, info.Diff, 0.0)

	// Charging hours are chronological and unique.
	seen := map[string]bool{}
	last := -1
	for _, h := range info.ChargingHours {
		require.False(t, seen[h], "duplicate charging hour %s", h)
		seen[h] = true
		require.Greater(t, hourKeyOrder(h), last)
		last = hourKeyOrder(h)
	}
}

func TestBatteryChargingInfoFlatDayNotViable(t *testing.T) {
	src := &fakeSource{
		hoursByDate: map[string]map[string]float64{
			"2026-01-02": flatDay(100),
		},
		rate: 25,
	}
	s := newTestService(t, src)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC) }

	info, err := s.BatteryChargingInfo(context.Background(), DefaultTariff(), false)
	require.NoError(t, err)
	assert.False(t, info.IsViable)
	assert.False(t, info.IsChargingHour)
	assert.Empty(t, info.DischargingHours)
}

func TestBatteryTomorrowMissingIsNotAnError(t *testing.T) {
	hours := flatDay(300)
	hours["22:00"] = 10
	src := &fakeSource{
		hoursByDate: map[string]map[string]float64{
			"2026-01-02": hours,
		},
		rate: 25,
	}
	s := newTestService(t, src)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC) }

	_, err := s.BatteryChargingInfo(context.Background(), DefaultTariff(), false)
	require.NoError(t, err)
}
