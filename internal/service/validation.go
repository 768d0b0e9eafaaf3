package service

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/apperror"

	"github.com/shopspring/decimal"
)

const (
	maxTradeTypeLen   = 64
	maxDescriptionLen = 2000
	maxNotesLen       = 1000
)

var postcodePattern = regexp.MustCompile(`^\d{4}$`)

func validateRequestInput(in ports.CreateRequestInput) error {
	tradeType := strings.TrimSpace(in.TradeType)
	switch {
	case tradeType == "":
		return apperror.ErrInvalidArgument("Trade type is required")
	case utf8.RuneCountInString(tradeType) > maxTradeTypeLen:
		return apperror.ErrInvalidArgument("Trade type is too long")
	case strings.TrimSpace(in.Description) == "":
		return apperror.ErrInvalidArgument("Description is required")
	case utf8.RuneCountInString(in.Description) > maxDescriptionLen:
		return apperror.ErrInvalidArgument("Description is too long")
	case !postcodePattern.MatchString(in.Postcode):
		return apperror.ErrInvalidArgument("Postcode must be 4 digits")
	case !in.Urgency.IsValid():
		return apperror.ErrInvalidArgument("Urgency must be one of low, medium, high, urgent")
	}
	return nil
}

func validateQuoteInput(in ports.SubmitQuoteInput) error {
	switch {
	case in.Amount <= 0:
		return apperror.ErrInvalidAmount()
	case in.Materials < 0 || in.Labour < 0:
		return apperror.ErrInvalidArgument("Breakdown amounts cannot be negative")
	case in.Materials > in.Amount || in.Labour > in.Amount:
		return apperror.ErrInvalidArgument("Breakdown amounts cannot exceed the quoted amount")
	case in.EstimatedStartDate.IsZero() || in.EstimatedCompletionDate.IsZero():
		return apperror.ErrInvalidArgument("Estimated start and completion dates are required")
	case in.EstimatedCompletionDate.Before(in.EstimatedStartDate):
		return apperror.ErrInvalidArgument("Estimated completion date must not be before the start date")
	case utf8.RuneCountInString(in.Notes) > maxNotesLen:
		return apperror.ErrInvalidArgument("Notes are too long")
	}
	return nil
}

// formatMoney renders minor units as dollars, e.g. 45000 -> "$450.00".
func formatMoney(minor int64) string {
	return "$" + decimal.New(minor, -2).StringFixed(2)
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
