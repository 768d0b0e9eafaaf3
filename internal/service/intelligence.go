package service

import (
	"math"
	"sort"
	"time"

	"tradie-marketplace/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	baseOpportunity   = 80
	opportunityPerBid = 8
	maxSpreadBonus    = 10
	baseWinRate       = 0.8
	winRateDecay      = 0.3
	maxSpreadWinBonus = 0.1
	trendThreshold    = 0.05
)

var (
	recommendMinFactor     = decimal.RequireFromString("0.9")
	recommendMaxFactor     = decimal.RequireFromString("1.1")
	recommendOptimalFactor = decimal.RequireFromString("0.95")
)

// Aggregate derives a request's market intelligence from its quote set.
// Expired quotes are ignored. The result depends only on its inputs.
func Aggregate(requestID uuid.UUID, quotes []*domain.Quote, now time.Time) *domain.RequestIntelligence {
	live := make([]*domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Status != domain.QuoteStatusExpired {
			live = append(live, q)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].ID.String() < live[j].ID.String()
		}
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})

	n := len(live)
	competition := competitionFor(n)
	intel := &domain.RequestIntelligence{
		RequestID:           requestID,
		TotalQuotes:         n,
		CompetitionLevel:    competition,
		CompetitivePosition: positionFor(competition),
		MarketTrends: domain.MarketTrends{
			PriceDirection: domain.PriceStable,
			DemandLevel:    competition,
		},
		UpdatedAt: now,
	}
	if n == 0 {
		intel.OpportunityScore = baseOpportunity
		intel.WinProbability = baseWinRate
		return intel
	}

	amounts := make([]int64, n)
	materials := make([]int64, n)
	labour := make([]int64, n)
	days := make([]int, n)
	last := live[0].CreatedAt
	for i, q := range live {
		amounts[i] = q.Amount
		materials[i] = q.Breakdown.Materials
		labour[i] = q.Breakdown.Labour
		days[i] = q.TimelineDays()
		if q.CreatedAt.After(last) {
			last = q.CreatedAt
		}
	}

	intel.PriceRange = moneyStats(amounts)
	intel.Breakdown = domain.BreakdownStats{
		Materials: moneyStats(materials),
		Labour:    moneyStats(labour),
	}
	intel.TimelineRange = timelineStats(days)
	intel.LastQuoteAt = &last

	avg := mean(amounts)
	intel.RecommendedPriceRange = domain.PriceRecommendation{
		Min:     roundMinor(avg.Mul(recommendMinFactor)),
		Max:     roundMinor(avg.Mul(recommendMaxFactor)),
		Optimal: roundMinor(avg.Mul(recommendOptimalFactor)),
	}

	spread := 0.0
	if avg.IsPositive() {
		spread, _ = decimal.NewFromInt(intel.PriceRange.Max - intel.PriceRange.Min).Div(avg).Float64()
	}
	daysSinceLast := now.Sub(last).Hours() / 24

	intel.OpportunityScore = opportunityScore(n, spread, daysSinceLast)
	intel.WinProbability = winProbability(n, spread)
	intel.MarketTrends.PriceDirection = priceDirection(amounts)

	return intel
}

func competitionFor(n int) domain.CompetitionLevel {
	switch {
	case n < 3:
		return domain.CompetitionLow
	case n < 7:
		return domain.CompetitionMedium
	default:
		return domain.CompetitionHigh
	}
}

func positionFor(level domain.CompetitionLevel) domain.CompetitivePosition {
	switch level {
	case domain.CompetitionLow:
		return domain.PositionStrong
	case domain.CompetitionMedium:
		return domain.PositionModerate
	default:
		return domain.PositionWeak
	}
}

func opportunityScore(n int, spread, daysSinceLast float64) int {
	recency := 0.0
	switch {
	case daysSinceLast < 1:
		recency = -5
	case daysSinceLast > 7:
		recency = 5
	}
	score := float64(baseOpportunity-opportunityPerBid*n) + math.Min(maxSpreadBonus, 20*spread) + recency
	return int(clamp(0, 100, math.Round(score)))
}

func winProbability(n int, spread float64) float64 {
	p := baseWinRate/(1+winRateDecay*float64(n)) + math.Min(maxSpreadWinBonus, 0.1*spread)
	p, _ = decimal.NewFromFloat(clamp(0.05, 0.95, p)).Round(2).Float64()
	return p
}

// priceDirection compares the newer half of the bids with the older half.
// amounts must be in creation order.
func priceDirection(amounts []int64) domain.PriceDirection {
	n := len(amounts)
	if n < 2 {
		return domain.PriceStable
	}
	half := n / 2
	older := mean(amounts[:half])
	newer := mean(amounts[n-half:])
	if older.IsZero() {
		return domain.PriceStable
	}
	change, _ := newer.Sub(older).Div(older).Float64()
	switch {
	case change > trendThreshold:
		return domain.PriceIncreasing
	case change < -trendThreshold:
		return domain.PriceDecreasing
	default:
		return domain.PriceStable
	}
}

func moneyStats(values []int64) domain.MoneyStats {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return domain.MoneyStats{Min: lo, Max: hi, Average: roundMinor(mean(values))}
}

func timelineStats(days []int) domain.TimelineStats {
	lo, hi, sum := days[0], days[0], 0
	for _, d := range days {
		lo = min(lo, d)
		hi = max(hi, d)
		sum += d
	}
	avg, _ := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(days)))).Round(1).Float64()
	return domain.TimelineStats{MinDays: lo, MaxDays: hi, AverageDays: avg}
}

func mean(values []int64) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromInt(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// roundMinor rounds half-up to a whole minor unit.
func roundMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
