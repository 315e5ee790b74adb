package spot

import (
	"context"
	"sort"
	"time"
)

// VAT multiplier applied to buy prices.
const VAT = 1.21

// Tariff bundles the fee parameters of a day price calculation. Defaults
// match the D57d / BezDodavatele tariff.
type Tariff struct {
	MonthlyFees           float64
	DailyFees             float64
	KWHFeesLow            float64
	KWHFeesHigh           float64
	SellFees              float64
	LowTariffHours        []string // expanded "H:MM" keys, see ExpandLowTariffHours
	BatteryKWHPrice       float64
	NumCheapestHours      int
	NumMostExpensiveHours int
	AverageHours          int
	AverageHoursThreshold float64
}

// DefaultLowTariffCSV is the D57d/ČEZ low tariff hour list.
const DefaultLowTariffCSV = "0,1,2,3,4,5,6,7,9,10,11,13,14,16,17,18,20,21,22,23"

func DefaultTariff() Tariff {
	return Tariff{
		MonthlyFees:           610.84,
		DailyFees:             4.18,
		KWHFeesLow:            1.35022,
		KWHFeesHigh:           1.86567,
		SellFees:              0.45,
		LowTariffHours:        ExpandLowTariffHours(DefaultLowTariffCSV),
		BatteryKWHPrice:       2.5,
		NumCheapestHours:      8,
		NumMostExpensiveHours: 8,
		AverageHours:          4,
		AverageHoursThreshold: 1.25,
	}
}

// Price is a per-hour price table in CZK/kWh. Now is only set when the
// requested date is today.
type Price struct {
	Hours map[string]float64 `json:"hours"`
	Now   *float64           `json:"now"`
}

type CheapestHours struct {
	Hours      []string `json:"hours"`
	IsCheapest *bool    `json:"is_cheapest"`
}

type MostExpensiveHours struct {
	Hours              []string `json:"hours"`
	IsTheMostExpensive *bool    `json:"is_the_most_expensive"`
}

// DayPrice is the full per-day breakdown. All prices except spot and sell
// include VAT.
type DayPrice struct {
	MonthlyFees                 float64            `json:"monthly_fees"`
	MonthlyFeesHour             float64            `json:"monthly_fees_hour"`
	KWHFeesLow                  float64            `json:"kwh_fees_low"`
	KWHFeesHigh                 float64            `json:"kwh_fees_high"`
	SellFees                    float64            `json:"sell_fees"`
	LowTariffHours              []string           `json:"low_tariff_hours"`
	Hour                        string             `json:"hour"`
	VAT                         float64            `json:"vat"`
	Spot                        Price              `json:"spot"`
	Total                       Price              `json:"total"`
	Sell                        Price              `json:"sell"`
	CheapestHours               CheapestHours      `json:"cheapest_hours"`
	MostExpensiveHours          MostExpensiveHours `json:"most_expensive_hours"`
	CheapestHoursByAverage      CheapestHours      `json:"cheapest_hours_by_average"`
	MostExpensiveHoursByAverage MostExpensiveHours `json:"most_expensive_hours_by_average"`
}

type hourPrice struct {
	hour  string
	value float64
}

// spotPrices is a computed day: raw spot, total with fees and VAT, sell
// price, and the total table sorted cheapest-first.
type spotPrices struct {
	spot        map[string]float64
	total       map[string]float64
	sell        map[string]float64
	totalSorted []hourPrice
}

// computeSpotPrices converts raw EUR/MWh market values into CZK/kWh tables.
// Fees depend on whether the hour is in the low tariff set.
func computeSpotPrices(hours map[string]float64, ratio float64, t Tariff) spotPrices {
	lowTariff := make(map[string]bool, len(t.LowTariffHours))
	for _, h := range t.LowTariffHours {
		lowTariff[h] = true
	}

	sp := spotPrices{
		spot:  make(map[string]float64, len(hours)),
		total: make(map[string]float64, len(hours)),
		sell:  make(map[string]float64, len(hours)),
	}

	for key, value := range hours {
		fees := t.KWHFeesHigh
		if lowTariff[key] {
			fees = t.KWHFeesLow
		}
		spot := value * ratio / 1000
		sp.spot[key] = spot
		sp.total[key] = (spot + fees) * VAT
		sp.sell[key] = spot - t.SellFees
	}

	sp.totalSorted = make([]hourPrice, 0, len(sp.total))
	for k, v := range sp.total {
		sp.totalSorted = append(sp.totalSorted, hourPrice{hour: k, value: v})
	}
	sort.Slice(sp.totalSorted, func(i, j int) bool {
		if sp.totalSorted[i].value != sp.totalSorted[j].value {
			return sp.totalSorted[i].value < sp.totalSorted[j].value
		}
		return hourKeyOrder(sp.totalSorted[i].hour) < hourKeyOrder(sp.totalSorted[j].hour)
	})

	return sp
}

func (sp spotPrices) cheapest(n int) []string {
	if n > len(sp.totalSorted) {
		n = len(sp.totalSorted)
	}
	hours := make([]string, 0, n)
	for _, hp := range sp.totalSorted[:n] {
		hours = append(hours, hp.hour)
	}
	return hours
}

func (sp spotPrices) mostExpensive(n int) []string {
	if n > len(sp.totalSorted) {
		n = len(sp.totalSorted)
	}
	hours := make([]string, 0, n)
	for i := len(sp.totalSorted) - 1; i >= len(sp.totalSorted)-n; i-- {
		hours = append(hours, sp.totalSorted[i].hour)
	}
	return hours
}

func (s *Service) fetchSpotPrices(ctx context.Context, date time.Time, t Tariff, noCache bool) (spotPrices, error) {
	hours, err := s.EnergyPrices(ctx, date, noCache)
	if err != nil {
		return spotPrices{}, err
	}
	ratio, err := s.EURCZKRate(ctx, date, noCache)
	if err != nil {
		return spotPrices{}, err
	}
	return computeSpotPrices(hours, ratio, t), nil
}

// DayPrice assembles the full day breakdown for date. hour must already be a
// normalized "H:MM" quarter key; it only matters when date is today.
func (s *Service) DayPrice(ctx context.Context, date time.Time, hour string, t Tariff, noCache bool) (DayPrice, error) {
	sp, err := s.fetchSpotPrices(ctx, date, t, noCache)
	if err != nil {
		return DayPrice{}, err
	}

	isToday := sameDay(s.now(), date)

	monthlyFees := t.MonthlyFees + t.DailyFees*float64(daysInMonth(date.Year(), date.Month()))
	monthlyFeesHour := monthlyFees / float64(daysInMonth(date.Year(), date.Month())) / 24

	cheapest := sp.cheapest(t.NumCheapestHours)
	mostExpensive := sp.mostExpensive(t.NumMostExpensiveHours)

	// By-average variant: every hour cheaper than the average of the N
	// cheapest hours times the threshold counts as cheap, the rest as
	// expensive.
	avgHours := t.AverageHours
	if avgHours <= 0 {
		avgHours = 1
	}
	if avgHours > len(sp.totalSorted) {
		avgHours = len(sp.totalSorted)
	}
	var sum float64
	for _, hp := range sp.totalSorted[:avgHours] {
		sum += hp.value
	}
	average := 0.0
	if avgHours > 0 {
		average = sum / float64(avgHours)
	}

	var cheapByAverage, expensiveByAverage []string
	for _, hp := range sp.totalSorted {
		if hp.value < average*t.AverageHoursThreshold {
			cheapByAverage = append(cheapByAverage, hp.hour)
		} else {
			expensiveByAverage = append(expensiveByAverage, hp.hour)
		}
	}

	return DayPrice{
		MonthlyFees:     monthlyFees * VAT,
		MonthlyFeesHour: monthlyFeesHour * VAT,
		KWHFeesLow:      t.KWHFeesLow * VAT,
		KWHFeesHigh:     t.KWHFeesHigh * VAT,
		SellFees:        t.SellFees,
		LowTariffHours:  t.LowTariffHours,
		Hour:            hour,
		VAT:             VAT,
		Spot:            price(sp.spot, hour, isToday),
		Total:           price(sp.total, hour, isToday),
		Sell:            price(sp.sell, hour, isToday),
		CheapestHours: CheapestHours{
			Hours:      cheapest,
			IsCheapest: membership(cheapest, hour, isToday),
		},
		MostExpensiveHours: MostExpensiveHours{
			Hours:              mostExpensive,
			IsTheMostExpensive: membership(mostExpensive, hour, isToday),
		},
		CheapestHoursByAverage: CheapestHours{
			Hours:      cheapByAverage,
			IsCheapest: membership(cheapByAverage, hour, isToday),
		},
		MostExpensiveHoursByAverage: MostExpensiveHours{
			Hours:              expensiveByAverage,
			IsTheMostExpensive: membership(expensiveByAverage, hour, isToday),
		},
	}, nil
}

func price(hours map[string]float64, hour string, isToday bool) Price {
	p := Price{Hours: hours}
	if isToday {
		if v, ok := hours[hour]; ok {
			p.Now = &v
		}
	}
	return p
}

func membership(hours []string, hour string, isToday bool) *bool {
	if !isToday {
		return nil
	}
	found := false
	for _, h := range hours {
		if h == hour {
			found = true
			break
		}
	}
	return &found
}
