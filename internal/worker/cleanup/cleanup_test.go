package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
	"github.com/yukke-bit/fitbit-data-connector/internal/repository"
)

// mockPurger はExpiredSessionPurgerのモック実装。
type mockPurger struct {
	mu      sync.Mutex
	calls   int
	lastNow time.Time
	deleted int64
	err     error
}

func (m *mockPurger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastNow = now
	return m.deleted, m.err
}

func (m *mockPurger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログの中からkeyを含む最初の値を返す。
func findLogField(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewCleanupJob_DefaultInterval(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, newTestLogger(&buf), 0)

	if job.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", job.Interval, DefaultInterval)
	}
}

func TestCleanupJob_Run_PassesCurrentTime(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{deleted: 5}
	job := NewCleanupJob(purger, newTestLogger(&buf), time.Minute)
	fixed := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !purger.lastNow.Equal(fixed) {
		t.Errorf("now = %v, want %v", purger.lastNow, fixed)
	}
	if count, ok := findLogField(&buf, "deleted_count"); !ok || count != float64(5) {
		t.Errorf("ログに deleted_count=5 が記録されていない: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsAndLogsError(t *testing.T) {
	var buf bytes.Buffer
	cause := errors.New("connection refused")
	job := NewCleanupJob(&mockPurger{err: cause}, newTestLogger(&buf), time.Minute)

	err := job.Run(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, newTestLogger(&buf), time.Minute)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := NewCleanupJob(purger, newTestLogger(&buf), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for purger.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want at least 2", purger.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestCleanupJob_WithMemoryStore(t *testing.T) {
	var buf bytes.Buffer
	repo := repository.NewMemorySessionRepo()
	ctx := context.Background()

	now := time.Now()
	repo.Create(ctx, &model.Session{ID: "expired", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)})
	repo.Create(ctx, &model.Session{ID: "live", ExpiresAt: now.Add(time.Hour), CreatedAt: now})

	job := NewCleanupJob(repo, newTestLogger(&buf), time.Minute)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if count, _ := findLogField(&buf, "deleted_count"); count != float64(1) {
		t.Errorf("deleted_count = %v, want 1", count)
	}
	if s, _ := repo.FindByID(ctx, "live"); s == nil {
		t.Error("live session should remain")
	}
}
