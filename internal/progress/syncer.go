package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lectern/internal/config"
	"lectern/internal/logging"
)

const (
	batchEndpoint      = "/learning-progress/batch"
	defaultHTTPTimeout = 15 * time.Second
	defaultBatchSize   = 100
	maxResponseBytes   = 1 << 20
)

// ErrSyncDisabled is returned by Push when remote sync is not enabled.
var ErrSyncDisabled = errors.New("progress sync disabled")

// OutcomeKind discriminates how the remote endpoint answered a batch.
type OutcomeKind string

const (
	// OutcomeAccepted means the batch was stored and its entries may be acked.
	OutcomeAccepted OutcomeKind = "accepted"
	// OutcomeRejected means the endpoint refused the batch; entries stay queued.
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeRetry means a transient failure; entries stay queued for the next attempt.
	OutcomeRetry OutcomeKind = "retry"
)

// BatchOutcome is the decoded answer to one batch request.
type BatchOutcome struct {
	Kind       OutcomeKind
	StatusCode int
	Accepted   int
	Message    string
	RetryAfter time.Duration
}

// PushResult summarises one Push call.
type PushResult struct {
	Batches int
	Sent    int
	Acked   int64
	Last    BatchOutcome
}

type batchRequest struct {
	ProgressList []VideoProgress `json:"progressList"`
}

type batchResponse struct {
	Accepted *int   `json:"accepted"`
	Message  string `json:"message"`
}

// Syncer drains the outbox to a remote endpoint.
type Syncer struct {
	store      *Store
	enabled    bool
	baseURL    string
	token      string
	batchSize  int
	httpClient *http.Client
	logger     *slog.Logger
}

// SyncOption customizes the syncer.
type SyncOption func(*Syncer)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) SyncOption {
	return func(s *Syncer) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewSyncer constructs a syncer from the [sync] configuration section.
func NewSyncer(store *Store, cfg config.Sync, logger *slog.Logger, opts ...SyncOption) *Syncer {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	s := &Syncer{
		store:      store,
		enabled:    cfg.Enabled && strings.TrimSpace(cfg.BaseURL) != "",
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      strings.TrimSpace(cfg.Token),
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether Push will contact the remote endpoint.
func (s *Syncer) Enabled() bool {
	return s != nil && s.enabled
}

// Push sends pending entries in batches until the outbox is drained, a batch
// is not accepted, or ctx ends. Accepted batches are acked by revision.
func (s *Syncer) Push(ctx context.Context) (PushResult, error) {
	var result PushResult
	if !s.Enabled() {
		return result, ErrSyncDisabled
	}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entries, err := s.store.Pending(ctx, s.batchSize)
		if err != nil {
			return result, err
		}
		if len(entries) == 0 {
			return result, nil
		}

		outcome, err := s.sendBatch(ctx, entries)
		result.Batches++
		result.Sent += len(entries)
		if err != nil {
			return result, err
		}
		result.Last = outcome
		if outcome.Kind != OutcomeAccepted {
			logging.WarnWithContext(s.logger, "progress batch not accepted", "sync_batch_failed",
				logging.String("outcome", string(outcome.Kind)),
				logging.Int("status", outcome.StatusCode),
				logging.String("message", outcome.Message),
				logging.Duration("retry_after", outcome.RetryAfter),
				logging.String(logging.FieldErrorHint, "entries stay queued for the next sync"),
				logging.String(logging.FieldImpact, "remote progress lags local progress"),
			)
			return result, nil
		}

		acked, err := s.store.Ack(ctx, entries)
		if err != nil {
			return result, err
		}
		result.Acked += acked
		s.logger.Info("progress batch synced",
			logging.Int("entries", len(entries)),
			logging.Int64("acked", acked),
		)
		if len(entries) < s.batchSize {
			return result, nil
		}
	}
}

func (s *Syncer) sendBatch(ctx context.Context, entries []QueueEntry) (BatchOutcome, error) {
	payload := batchRequest{ProgressList: make([]VideoProgress, 0, len(entries))}
	for _, entry := range entries {
		payload.ProgressList = append(payload.ProgressList, entry.Progress)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return BatchOutcome{}, fmt.Errorf("encode progress batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+batchEndpoint, bytes.NewReader(body))
	if err != nil {
		return BatchOutcome{}, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return BatchOutcome{}, ctx.Err()
		}
		return BatchOutcome{Kind: OutcomeRetry, Message: err.Error()}, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return decodeOutcome(resp.StatusCode, resp.Header.Get("Retry-After"), raw, len(entries)), nil
}

// decodeOutcome turns a raw HTTP answer into a BatchOutcome.
func decodeOutcome(status int, retryAfter string, body []byte, sent int) BatchOutcome {
	outcome := BatchOutcome{StatusCode: status}
	var parsed batchResponse
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &parsed) == nil {
		outcome.Message = parsed.Message
	} else {
		outcome.Message = strings.TrimSpace(string(body))
	}

	switch {
	case status >= 200 && status < 300:
		outcome.Kind = OutcomeAccepted
		outcome.Accepted = sent
		if parsed.Accepted != nil {
			outcome.Accepted = *parsed.Accepted
		}
	case status == http.StatusTooManyRequests || status >= 500 || status == http.StatusRequestTimeout:
		outcome.Kind = OutcomeRetry
		outcome.RetryAfter = parseRetryAfter(retryAfter)
	default:
		outcome.Kind = OutcomeRejected
	}
	return outcome
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
