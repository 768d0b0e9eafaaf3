package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code, appErr.Message)
}

func TestLifecycle_CreateRequestValidation(t *testing.T) {
	m := newMarketplace(t)
	valid := ports.CreateRequestInput{
		TradeType:   "electrical",
		Description: "Install two downlights",
		Postcode:    "3000",
		Urgency:     domain.UrgencyHigh,
	}

	tests := []struct {
		name   string
		mutate func(in *ports.CreateRequestInput)
	}{
		{"missing trade type", func(in *ports.CreateRequestInput) { in.TradeType = "  " }},
		{"missing description", func(in *ports.CreateRequestInput) { in.Description = "" }},
		{"short postcode", func(in *ports.CreateRequestInput) { in.Postcode = "300" }},
		{"alpha postcode", func(in *ports.CreateRequestInput) { in.Postcode = "30a0" }},
		{"unknown urgency", func(in *ports.CreateRequestInput) { in.Urgency = "asap" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := m.lifecycle.CreateRequest(context.Background(), uuid.New(), in)
			assertCode(t, err, "REQ_002")
		})
	}

	req, err := m.lifecycle.CreateRequest(context.Background(), uuid.New(), valid)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusOpen, req.Status)
}

func TestLifecycle_GetRequestVisibility(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)

	got, err := m.lifecycle.GetRequest(ctx, ports.Caller{UserID: customer, Role: domain.RoleCustomer}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	_, err = m.lifecycle.GetRequest(ctx, ports.Caller{UserID: uuid.New(), Role: domain.RoleTradie}, req.ID)
	assert.NoError(t, err)

	_, err = m.lifecycle.GetRequest(ctx, ports.Caller{UserID: uuid.New(), Role: domain.RoleCustomer}, req.ID)
	assertCode(t, err, "AUTH_002")

	_, err = m.lifecycle.GetRequest(ctx, ports.Caller{UserID: customer, Role: domain.RoleCustomer}, uuid.New())
	assertCode(t, err, "REQ_001")
}

func TestLifecycle_UnlockDebitsOnce(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	req := m.postRequest(t, uuid.New())
	tradie := uuid.New()
	m.fund(t, tradie, 100)

	unlock, err := m.lifecycle.Unlock(ctx, tradie, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnlockStatusCompleted, unlock.Status)
	assert.Equal(t, int64(50), unlock.Amount)

	_, err = m.lifecycle.Unlock(ctx, tradie, req.ID)
	assertCode(t, err, "MKT_001")

	wallet, err := m.wallet.GetWallet(ctx, tradie)
	require.NoError(t, err)
	assert.Equal(t, int64(50), wallet.Balance)

	entry, err := m.ledger.GetByID(ctx, unlock.WalletTransactionID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(-50), entry.Amount)
	assert.Equal(t, domain.TransactionKindUnlock, entry.Kind)
}

func TestLifecycle_ConcurrentUnlocksOfSameRequest(t *testing.T) {
	m := newMarketplace(t)
	req := m.postRequest(t, uuid.New())
	tradie := uuid.New()
	m.fund(t, tradie, 1000)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.lifecycle.Unlock(context.Background(), tradie, req.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperror.IsKind(err, apperror.KindAlreadyUnlocked), err)
	}
	assert.Equal(t, 1, succeeded)

	wallet, err := m.wallet.GetWallet(context.Background(), tradie)
	require.NoError(t, err)
	assert.Equal(t, int64(950), wallet.Balance)
}

func TestLifecycle_UnlockGuards(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)

	t.Run("own request", func(t *testing.T) {
		m.fund(t, customer, 100)
		_, err := m.lifecycle.Unlock(ctx, customer, req.ID)
		assertCode(t, err, "AUTH_002")
	})

	t.Run("insufficient funds records nothing", func(t *testing.T) {
		tradie := uuid.New()
		m.fund(t, tradie, 30)

		_, err := m.lifecycle.Unlock(ctx, tradie, req.ID)
		assertCode(t, err, "WAL_001")

		_, err = m.lifecycle.SubmitQuote(ctx, tradie, req.ID, quoteInput(10000))
		assertCode(t, err, "MKT_002")
	})

	t.Run("no wallet", func(t *testing.T) {
		_, err := m.lifecycle.Unlock(ctx, uuid.New(), req.ID)
		assertCode(t, err, "WAL_003")
	})

	t.Run("missing request", func(t *testing.T) {
		_, err := m.lifecycle.Unlock(ctx, uuid.New(), uuid.New())
		assertCode(t, err, "REQ_001")
	})

	t.Run("cancelled request", func(t *testing.T) {
		closed := m.postRequest(t, customer)
		_, err := m.lifecycle.CancelRequest(ctx, customer, closed.ID)
		require.NoError(t, err)

		tradie := uuid.New()
		m.fund(t, tradie, 100)
		_, err = m.lifecycle.Unlock(ctx, tradie, closed.ID)
		assertCode(t, err, "REQ_004")
	})
}

func TestLifecycle_SubmitQuote(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)
	tradie := uuid.New()
	m.fund(t, tradie, 100)

	_, err := m.lifecycle.SubmitQuote(ctx, tradie, req.ID, quoteInput(40000))
	assertCode(t, err, "MKT_002")

	quote := m.unlockAndQuote(t, tradie, req.ID, 40000)
	assert.Equal(t, domain.QuoteStatusPending, quote.Status)

	got, err := m.lifecycle.GetRequest(ctx, ports.Caller{UserID: customer, Role: domain.RoleCustomer}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusActive, got.Status)

	_, err = m.lifecycle.SubmitQuote(ctx, tradie, req.ID, quoteInput(35000))
	assertCode(t, err, "REQ_005")

	require.Len(t, m.notifier.to(customer), 1)
	assert.Equal(t, quote.ID.String(), m.notifier.to(customer)[0].Metadata["quote_id"])

	intel, err := m.lifecycle.GetIntelligence(ctx, ports.Caller{UserID: customer, Role: domain.RoleCustomer}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, intel.TotalQuotes)
	assert.Equal(t, int64(40000), intel.PriceRange.Average)
}

func TestLifecycle_SubmitQuoteValidation(t *testing.T) {
	m := newMarketplace(t)
	req := m.postRequest(t, uuid.New())
	tradie := uuid.New()
	m.fund(t, tradie, 100)
	_, err := m.lifecycle.Unlock(context.Background(), tradie, req.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(in *ports.SubmitQuoteInput)
		code   string
	}{
		{"zero amount", func(in *ports.SubmitQuoteInput) { in.Amount = 0 }, "WAL_002"},
		{"negative materials", func(in *ports.SubmitQuoteInput) { in.Materials = -1 }, "REQ_002"},
		{"labour above amount", func(in *ports.SubmitQuoteInput) { in.Labour = in.Amount + 1 }, "REQ_002"},
		{"completion before start", func(in *ports.SubmitQuoteInput) {
			in.EstimatedCompletionDate = in.EstimatedStartDate.Add(-time.Hour)
		}, "REQ_002"},
		{"missing dates", func(in *ports.SubmitQuoteInput) { in.EstimatedStartDate = time.Time{} }, "REQ_002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := quoteInput(20000)
			tt.mutate(&in)
			_, err := m.lifecycle.SubmitQuote(context.Background(), tradie, req.ID, in)
			assertCode(t, err, tt.code)
		})
	}
}

func TestLifecycle_ThreeQuoteScenario(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)

	for _, amount := range []int64{40000, 50000, 60000} {
		tradie := uuid.New()
		m.fund(t, tradie, 100)
		m.unlockAndQuote(t, tradie, req.ID, amount)
	}

	intel, err := m.lifecycle.GetIntelligence(ctx, ports.Caller{UserID: customer, Role: domain.RoleCustomer}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CompetitionMedium, intel.CompetitionLevel)
	assert.Equal(t, int64(50000), intel.PriceRange.Average)
	assert.Equal(t, domain.PriceRecommendation{Min: 45000, Max: 55000, Optimal: 47500}, intel.RecommendedPriceRange)
	assert.Equal(t, 0.46, intel.WinProbability)
}

func TestLifecycle_AcceptQuoteRejectsSiblings(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)

	var quotes []*domain.Quote
	var tradies []uuid.UUID
	for _, amount := range []int64{42000, 39000, 45000} {
		tradie := uuid.New()
		m.fund(t, tradie, 100)
		tradies = append(tradies, tradie)
		quotes = append(quotes, m.unlockAndQuote(t, tradie, req.ID, amount))
	}

	_, err := m.lifecycle.AcceptQuote(ctx, uuid.New(), quotes[1].ID)
	assertCode(t, err, "AUTH_002")

	result, err := m.lifecycle.AcceptQuote(ctx, customer, quotes[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusAccepted, result.Quote.Status)
	assert.NotNil(t, result.Quote.AcceptedAt)
	assert.Equal(t, domain.RequestStatusInProgress, result.Request.Status)
	assert.Equal(t, quotes[1].ID, *result.Request.AcceptedQuoteID)
	assert.ElementsMatch(t, []uuid.UUID{quotes[0].ID, quotes[2].ID}, result.Rejected)

	listed, err := m.lifecycle.ListQuotes(ctx, ports.Caller{UserID: customer, Role: domain.RoleCustomer}, req.ID)
	require.NoError(t, err)
	accepted := 0
	for _, q := range listed {
		if q.Status == domain.QuoteStatusAccepted {
			accepted++
		} else {
			assert.Equal(t, domain.QuoteStatusRejected, q.Status)
		}
	}
	assert.Equal(t, 1, accepted)

	_, err = m.lifecycle.AcceptQuote(ctx, customer, quotes[0].ID)
	assertCode(t, err, "REQ_003")

	assert.Equal(t, "Quote accepted", m.notifier.to(tradies[1])[0].Title)
	assert.Equal(t, "Quote not selected", m.notifier.to(tradies[0])[0].Title)
	assert.Equal(t, "Quote not selected", m.notifier.to(tradies[2])[0].Title)

	_, err = m.lifecycle.AcceptQuote(ctx, customer, uuid.New())
	assertCode(t, err, "REQ_001")
}

func TestLifecycle_ConcurrentAcceptsPickOneWinner(t *testing.T) {
	m := newMarketplace(t)
	customer := uuid.New()
	req := m.postRequest(t, customer)

	var quotes []*domain.Quote
	for i := 0; i < 5; i++ {
		tradie := uuid.New()
		m.fund(t, tradie, 100)
		quotes = append(quotes, m.unlockAndQuote(t, tradie, req.ID, int64(30000+i*1000)))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for _, q := range quotes {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := m.lifecycle.AcceptQuote(context.Background(), customer, id)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.True(t, apperror.IsKind(err, apperror.KindInvalidState), err)
		}(q.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestLifecycle_QuoteVisibility(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)

	first, second, outsider := uuid.New(), uuid.New(), uuid.New()
	m.fund(t, first, 100)
	m.fund(t, second, 100)
	m.unlockAndQuote(t, first, req.ID, 20000)
	m.unlockAndQuote(t, second, req.ID, 21000)

	all, err := m.lifecycle.ListQuotes(ctx, ports.Caller{UserID: customer, Role: domain.RoleCustomer}, req.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := m.lifecycle.ListQuotes(ctx, ports.Caller{UserID: first, Role: domain.RoleTradie}, req.ID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, first, own[0].TradieID)

	_, err = m.lifecycle.ListQuotes(ctx, ports.Caller{UserID: outsider, Role: domain.RoleTradie}, req.ID)
	assertCode(t, err, "MKT_002")

	_, err = m.lifecycle.GetIntelligence(ctx, ports.Caller{UserID: outsider, Role: domain.RoleTradie}, req.ID)
	assertCode(t, err, "MKT_002")

	_, err = m.lifecycle.GetIntelligence(ctx, ports.Caller{UserID: uuid.New(), Role: domain.RoleCustomer}, req.ID)
	assertCode(t, err, "AUTH_002")

	intel, err := m.lifecycle.GetIntelligence(ctx, ports.Caller{UserID: first, Role: domain.RoleTradie}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, intel.TotalQuotes)
}

func TestLifecycle_CompleteRequestUpdatesRating(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	tradie := uuid.New()
	m.fund(t, tradie, 1000)

	ratings := []float64{5, 4, 3.5}
	for i, rating := range ratings {
		customer := uuid.New()
		req := m.postRequest(t, customer)
		quote := m.unlockAndQuote(t, tradie, req.ID, 30000)

		_, err := m.lifecycle.CompleteRequest(ctx, customer, req.ID, rating, "")
		assertCode(t, err, "REQ_003")

		_, err = m.lifecycle.AcceptQuote(ctx, customer, quote.ID)
		require.NoError(t, err)

		_, err = m.lifecycle.CompleteRequest(ctx, customer, req.ID, 5.5, "")
		assertCode(t, err, "REQ_002")
		_, err = m.lifecycle.CompleteRequest(ctx, uuid.New(), req.ID, rating, "")
		assertCode(t, err, "AUTH_002")

		done, err := m.lifecycle.CompleteRequest(ctx, customer, req.ID, rating, "  Great work  ")
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusCompleted, done.Status)
		require.NotNil(t, done.Rating)
		assert.Equal(t, rating, *done.Rating)
		require.NotNil(t, done.Review)
		assert.Equal(t, "Great work", *done.Review)

		profile, err := m.ratings.GetProfile(ctx, tradie)
		require.NoError(t, err)
		assert.Equal(t, i+1, profile.TotalJobs)
	}

	profile, err := m.ratings.GetProfile(ctx, tradie)
	require.NoError(t, err)
	assert.InDelta(t, (5+4+3.5)/3.0, profile.Rating, 1e-9)
}

func TestLifecycle_CancelRefundsUnlocks(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)

	quoter, browser := uuid.New(), uuid.New()
	m.fund(t, quoter, 100)
	m.fund(t, browser, 100)
	quote := m.unlockAndQuote(t, quoter, req.ID, 25000)
	_, err := m.lifecycle.Unlock(ctx, browser, req.ID)
	require.NoError(t, err)

	_, err = m.lifecycle.CancelRequest(ctx, uuid.New(), req.ID)
	assertCode(t, err, "AUTH_002")

	result, err := m.lifecycle.CancelRequest(ctx, customer, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCancelled, result.Request.Status)
	assert.Equal(t, []uuid.UUID{quote.ID}, result.Expired)
	require.Len(t, result.Refunds, 2)
	for _, r := range result.Refunds {
		assert.Equal(t, domain.TransactionKindRefund, r.Kind)
		assert.Equal(t, int64(50), r.Amount)
	}

	for _, tradie := range []uuid.UUID{quoter, browser} {
		wallet, err := m.wallet.GetWallet(ctx, tradie)
		require.NoError(t, err)
		assert.Equal(t, int64(100), wallet.Balance)
		assert.Equal(t, "Job cancelled", m.notifier.to(tradie)[0].Title)
	}

	_, err = m.lifecycle.CancelRequest(ctx, customer, req.ID)
	assertCode(t, err, "REQ_003")
}

func TestLifecycle_CancelWithoutRefunds(t *testing.T) {
	cfg := testMarketplaceConfig()
	cfg.RefundOnCancel = false
	m := newMarketplaceWithConfig(t, cfg)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)
	tradie := uuid.New()
	m.fund(t, tradie, 100)
	m.unlockAndQuote(t, tradie, req.ID, 25000)

	result, err := m.lifecycle.CancelRequest(ctx, customer, req.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Refunds)
	assert.Len(t, result.Expired, 1)

	wallet, err := m.wallet.GetWallet(ctx, tradie)
	require.NoError(t, err)
	assert.Equal(t, int64(50), wallet.Balance)
}

func TestLifecycle_CannotCancelInProgress(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	customer := uuid.New()
	req := m.postRequest(t, customer)
	tradie := uuid.New()
	m.fund(t, tradie, 100)
	quote := m.unlockAndQuote(t, tradie, req.ID, 25000)
	_, err := m.lifecycle.AcceptQuote(ctx, customer, quote.ID)
	require.NoError(t, err)

	_, err = m.lifecycle.CancelRequest(ctx, customer, req.ID)
	assertCode(t, err, "REQ_003")
}

func TestLifecycle_RechargeIsIdempotent(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	tradie := uuid.New()

	first, err := m.lifecycle.RechargeWallet(ctx, tradie, 2000, "card", "recharge-1")
	require.NoError(t, err)
	second, err := m.lifecycle.RechargeWallet(ctx, tradie, 2000, "card", "recharge-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	wallet, err := m.wallet.GetWallet(ctx, tradie)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), wallet.Balance)

	_, err = m.lifecycle.RechargeWallet(ctx, tradie, 500, "card", "")
	require.NoError(t, err)
	_, err = m.lifecycle.RechargeWallet(ctx, tradie, 500, "card", "")
	require.NoError(t, err)

	wallet, err = m.wallet.GetWallet(ctx, tradie)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), wallet.Balance)

	_, err = m.lifecycle.RechargeWallet(ctx, tradie, 0, "card", "recharge-2")
	assertCode(t, err, "WAL_002")

	_, err = m.lifecycle.RechargeWallet(ctx, tradie, 9000, "card", "recharge-1")
	assertCode(t, err, "WAL_004")
	_, err = m.lifecycle.RechargeWallet(ctx, tradie, 2000, "payid", "recharge-1")
	assertCode(t, err, "WAL_004")

	// The same client key is independent per tradie.
	other, err := m.lifecycle.RechargeWallet(ctx, uuid.New(), 2000, "card", "recharge-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestLifecycle_ConcurrentRechargeRetries(t *testing.T) {
	m := newMarketplace(t)
	tradie := uuid.New()

	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := m.lifecycle.RechargeWallet(context.Background(), tradie, 700, "card", "same-key")
			if assert.NoError(t, err) {
				ids <- entry.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	distinct := map[uuid.UUID]struct{}{}
	for id := range ids {
		distinct[id] = struct{}{}
	}
	assert.Len(t, distinct, 1)

	wallet, err := m.wallet.GetWallet(context.Background(), tradie)
	require.NoError(t, err)
	assert.Equal(t, int64(700), wallet.Balance)
}

func TestLifecycle_AuditsCommittedActions(t *testing.T) {
	m := newMarketplace(t)
	ctx := WithClientIP(context.Background(), "203.0.113.9")
	customer := uuid.New()

	_, err := m.lifecycle.CreateRequest(ctx, customer, ports.CreateRequestInput{
		TradeType:   "roofing",
		Description: "Replace cracked tiles",
		Postcode:    "4000",
		Urgency:     domain.UrgencyLow,
	})
	require.NoError(t, err)
	m.audit.Wait()

	entries := m.auditRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionCreateRequest, entries[0].Action)
	assert.Equal(t, "203.0.113.9", entries[0].IPAddress)
	assert.Equal(t, customer, *entries[0].ActorID)
	assert.Contains(t, entries[0].Details, "roofing")
}
