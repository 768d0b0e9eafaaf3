package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// ValidRating reports whether r is inside the accepted rating scale.
func ValidRating(r float64) bool {
	return r >= MinRating && r <= MaxRating
}

// TradieProfile holds the rating-relevant fields of a tradie.
type TradieProfile struct {
	TradieID  uuid.UUID `json:"tradie_id"`
	Rating    float64   `json:"rating"`
	TotalJobs int       `json:"total_jobs"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyRating folds one completed job into the running average.
func (p *TradieProfile) ApplyRating(rating float64, now time.Time) {
	p.Rating = (p.Rating*float64(p.TotalJobs) + rating) / float64(p.TotalJobs+1)
	p.TotalJobs++
	p.UpdatedAt = now
}
