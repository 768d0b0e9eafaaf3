package domain

import (
	"time"

	"github.com/google/uuid"
)

// CompetitionLevel buckets the number of live quotes on a request.
type CompetitionLevel string

const (
	CompetitionLow    CompetitionLevel = "low"
	CompetitionMedium CompetitionLevel = "medium"
	CompetitionHigh   CompetitionLevel = "high"
)

// CompetitivePosition is a prospective bidder's standing.
type CompetitivePosition string

const (
	PositionStrong   CompetitivePosition = "strong"
	PositionModerate CompetitivePosition = "moderate"
	PositionWeak     CompetitivePosition = "weak"
)

// PriceDirection is the movement of newer quotes relative to older ones.
type PriceDirection string

const (
	PriceIncreasing PriceDirection = "increasing"
	PriceStable     PriceDirection = "stable"
	PriceDecreasing PriceDirection = "decreasing"
)

// MoneyStats summarises a set of amounts in minor units.
type MoneyStats struct {
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Average int64 `json:"average"`
}

// TimelineStats summarises quoted job lengths in days.
type TimelineStats struct {
	MinDays     int     `json:"min_days"`
	MaxDays     int     `json:"max_days"`
	AverageDays float64 `json:"average_days"`
}

// BreakdownStats summarises the materials/labour split across quotes.
type BreakdownStats struct {
	Materials MoneyStats `json:"materials"`
	Labour    MoneyStats `json:"labour"`
}

// PriceRecommendation is the suggested bid window around the market average.
type PriceRecommendation struct {
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Optimal int64 `json:"optimal"`
}

type MarketTrends struct {
	PriceDirection PriceDirection   `json:"price_direction"`
	DemandLevel    CompetitionLevel `json:"demand_level"`
}

// RequestIntelligence is derived from a request's quote set and rebuilt
// wholesale on every quote mutation.
type RequestIntelligence struct {
	RequestID             uuid.UUID           `json:"request_id"`
	TotalQuotes           int                 `json:"total_quotes"`
	PriceRange            MoneyStats          `json:"price_range"`
	TimelineRange         TimelineStats       `json:"timeline_range"`
	Breakdown             BreakdownStats      `json:"breakdown"`
	CompetitionLevel      CompetitionLevel    `json:"competition_level"`
	OpportunityScore      int                 `json:"opportunity_score"`
	CompetitivePosition   CompetitivePosition `json:"competitive_position"`
	RecommendedPriceRange PriceRecommendation `json:"recommended_price_range"`
	WinProbability        float64             `json:"win_probability"`
	MarketTrends          MarketTrends        `json:"market_trends"`
	LastQuoteAt           *time.Time          `json:"last_quote_at,omitempty"`
	UpdatedAt             time.Time           `json:"updated_at"`
}
