package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tradie-marketplace/config"
	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// notifyRetryIntervals is the wait before each retry; the last value repeats.
var notifyRetryIntervals = []time.Duration{
	2 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// pushPayload is the JSON body POSTed to the push gateway.
type pushPayload struct {
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// NotificationService implements ports.Notifier. Notify returns at once;
// delivery happens on a goroutine with bounded attempts, and each attempt
// is written to the delivery log.
type NotificationService struct {
	endpoint    string
	timeout     time.Duration
	maxAttempts int
	retryWaits  []time.Duration
	httpClient  HTTPClient
	logRepo     ports.NotificationLogRepository
	metrics     *metrics.Manager
	log         zerolog.Logger
	wg          sync.WaitGroup
}

// NewNotificationService creates a push-gateway notifier. An empty
// endpoint makes every notification a logged no-op.
func NewNotificationService(
	cfg config.NotifyConfig,
	httpClient HTTPClient,
	logRepo ports.NotificationLogRepository,
	m *metrics.Manager,
	log zerolog.Logger,
) *NotificationService {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &NotificationService{
		endpoint:    cfg.Endpoint,
		timeout:     cfg.Timeout,
		maxAttempts: attempts,
		retryWaits:  notifyRetryIntervals,
		httpClient:  httpClient,
		logRepo:     logRepo,
		metrics:     m,
		log:         log,
	}
}

// Notify schedules delivery of n and never fails the caller's operation.
func (s *NotificationService) Notify(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(pushPayload{
		UserID:    n.UserID.String(),
		Title:     n.Title,
		Body:      n.Body,
		Metadata:  n.Metadata,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if s.endpoint == "" {
		s.log.Debug().
			Str("user_id", n.UserID.String()).
			Str("title", n.Title).
			Msg("notify: no endpoint configured, skipping")
		s.record(ctx, n, body, 0, domain.DeliveryStatusSkipped, nil, nil)
		s.metrics.RecordNotification(string(domain.DeliveryStatusSkipped))
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetries(context.WithoutCancel(ctx), n, body)
	}()
	return nil
}

// Wait blocks until every scheduled delivery has finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) deliverWithRetries(ctx context.Context, n domain.Notification, body []byte) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(s.retryWait(attempt - 2))
		}

		status, err := s.deliver(ctx, body)
		if err == nil {
			s.record(ctx, n, body, attempt, domain.DeliveryStatusDelivered, &status, nil)
			s.metrics.RecordNotification(string(domain.DeliveryStatusDelivered))
			s.log.Info().
				Str("user_id", n.UserID.String()).
				Int("attempt", attempt).
				Int("status", status).
				Msg("notify: delivered")
			return
		}

		var statusPtr *int
		if status != 0 {
			statusPtr = &status
		}
		s.record(ctx, n, body, attempt, domain.DeliveryStatusFailed, statusPtr, err)
		s.log.Warn().Err(err).
			Str("user_id", n.UserID.String()).
			Int("attempt", attempt).
			Msg("notify: delivery failed")
	}

	s.metrics.RecordNotification(string(domain.DeliveryStatusFailed))
	s.log.Error().Str("user_id", n.UserID.String()).Msg("notify: all attempts exhausted")
}

func (s *NotificationService) retryWait(i int) time.Duration {
	if len(s.retryWaits) == 0 {
		return 0
	}
	if i >= len(s.retryWaits) {
		i = len(s.retryWaits) - 1
	}
	return s.retryWaits[i]
}

func (s *NotificationService) deliver(ctx context.Context, body []byte) (int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *NotificationService) record(
	ctx context.Context,
	n domain.Notification,
	body []byte,
	attempt int,
	status domain.DeliveryStatus,
	httpStatus *int,
	deliveryErr error,
) {
	if s.logRepo == nil {
		return
	}
	entry := &domain.NotificationDeliveryLog{
		ID:         uuid.New(),
		UserID:     n.UserID,
		Title:      n.Title,
		Payload:    string(body),
		HTTPStatus: httpStatus,
		Attempt:    attempt,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		entry.LastError = &msg
	}
	if err := s.logRepo.Create(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("user_id", n.UserID.String()).Msg("notify: failed to persist delivery log")
	}
}
