package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lectern/internal/config"
	"lectern/internal/logging"
)

type batchRecorder struct {
	mu       sync.Mutex
	batches  [][]VideoProgress
	auth     []string
	status   int
	response string
}

func (r *batchRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != "/learning-progress/batch" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		if req.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		var body batchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Errorf("decode batch: %v", err)
		}
		r.mu.Lock()
		r.batches = append(r.batches, body.ProgressList)
		r.auth = append(r.auth, req.Header.Get("Authorization"))
		status := r.status
		r.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(r.response))
	}
}

func newTestSyncer(t *testing.T, s *Store, url string, batchSize int) *Syncer {
	t.Helper()
	cfg := config.Sync{Enabled: true, BaseURL: url + "/", Token: "secret", BatchSize: batchSize}
	return NewSyncer(s, cfg, logging.NewNop())
}

func saveLectures(t *testing.T, s *Store, clock *fakeClock, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := s.Save(context.Background(), VideoProgress{CourseID: "local:Go", LectureID: name, ProgressPercent: 25}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		clock.Advance(time.Second)
	}
}

func TestPushDisabledByDefault(t *testing.T) {
	s, _ := newTestStore(t)
	syncer := NewSyncer(s, config.Default().Sync, logging.NewNop())
	if syncer.Enabled() {
		t.Fatal("sync should be disabled by default")
	}
	if _, err := syncer.Push(context.Background()); !errors.Is(err, ErrSyncDisabled) {
		t.Fatalf("expected ErrSyncDisabled, got %v", err)
	}
}

func TestPushDrainsQueueInBatches(t *testing.T) {
	s, clock := newTestStore(t)
	saveLectures(t, s, clock, "a.mp4", "b.mp4", "c.mp4")

	rec := &batchRecorder{response: `{"accepted": 2}`}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	result, err := newTestSyncer(t, s, srv.URL, 2).Push(context.Background())
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if result.Batches != 2 || result.Sent != 3 || result.Acked != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(rec.batches) != 2 || len(rec.batches[0]) != 2 || rec.batches[0][0].LectureID != "a.mp4" {
		t.Fatalf("unexpected batches: %+v", rec.batches)
	}
	if rec.auth[0] != "Bearer secret" {
		t.Fatalf("authorization = %q", rec.auth[0])
	}
	if n, _ := s.QueueLength(context.Background()); n != 0 {
		t.Fatalf("queue length = %d, want 0", n)
	}
}

func TestPushFailureLeavesEntriesQueued(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   OutcomeKind
	}{
		{"server error", http.StatusServiceUnavailable, OutcomeRetry},
		{"rate limited", http.StatusTooManyRequests, OutcomeRetry},
		{"rejected", http.StatusBadRequest, OutcomeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := newTestStore(t)
			saveLectures(t, s, clock, "a.mp4", "b.mp4")

			rec := &batchRecorder{status: tt.status, response: `{"message":"nope"}`}
			srv := httptest.NewServer(rec.handler(t))
			defer srv.Close()

			result, err := newTestSyncer(t, s, srv.URL, 10).Push(context.Background())
			if err != nil {
				t.Fatalf("Push: %v", err)
			}
			if result.Last.Kind != tt.want || result.Last.Message != "nope" || result.Acked != 0 {
				t.Fatalf("unexpected result: %+v", result)
			}
			if n, _ := s.QueueLength(context.Background()); n != 2 {
				t.Fatalf("queue length = %d, want 2", n)
			}
		})
	}
}

func TestPushUnreachableEndpointIsRetry(t *testing.T) {
	s, clock := newTestStore(t)
	saveLectures(t, s, clock, "a.mp4")

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result, err := newTestSyncer(t, s, url, 10).Push(context.Background())
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if result.Last.Kind != OutcomeRetry {
		t.Fatalf("expected retry outcome, got %+v", result.Last)
	}
}

func TestDecodeOutcome(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		body       string
		want       BatchOutcome
	}{
		{"empty ok", 204, "", "", BatchOutcome{Kind: OutcomeAccepted, StatusCode: 204, Accepted: 3}},
		{"ok with count", 200, "", `{"accepted":1,"message":"partial"}`, BatchOutcome{Kind: OutcomeAccepted, StatusCode: 200, Accepted: 1, Message: "partial"}},
		{"retry after seconds", 503, "7", "busy", BatchOutcome{Kind: OutcomeRetry, StatusCode: 503, Message: "busy", RetryAfter: 7 * time.Second}},
		{"unauthorized", 401, "", "", BatchOutcome{Kind: OutcomeRejected, StatusCode: 401}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeOutcome(tt.status, tt.retryAfter, []byte(tt.body), 3)
			if got != tt.want {
				t.Fatalf("decodeOutcome = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type countingPusher struct {
	mu    sync.Mutex
	calls int
	fired chan struct{}
}

func (p *countingPusher) Push(ctx context.Context) (PushResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	select {
	case p.fired <- struct{}{}:
	default:
	}
	return PushResult{}, nil
}

func TestSchedulerLifecycle(t *testing.T) {
	pusher := &countingPusher{fired: make(chan struct{}, 1)}
	sched := NewScheduler(pusher, 10*time.Millisecond, logging.NewNop())

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected error starting twice")
	}
	if !sched.Running() {
		t.Fatal("expected scheduler running")
	}

	select {
	case <-pusher.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never pushed")
	}

	sched.Stop()
	if sched.Running() {
		t.Fatal("expected scheduler stopped")
	}
	sched.Stop()

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	sched.Stop()
}
