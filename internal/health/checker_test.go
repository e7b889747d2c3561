package health

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name    string
	err     error
	delay   time.Duration
	details map[string]interface{}
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

type detailedChecker struct {
	mockChecker
}

func (d *detailedChecker) Details() map[string]interface{} { return d.details }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func TestManager_RunChecks(t *testing.T) {
	manager := NewManager(testLogger())
	manager.Register(&mockChecker{name: "ok"})
	manager.Register(&mockChecker{name: "failing", err: errors.New("receiver gone")})
	manager.Register(&mockChecker{name: "degraded", err: Degraded("cpu unsupported")})
	manager.Register(&detailedChecker{mockChecker{name: "detailed", details: map[string]interface{}{"version": "6.0"}}})

	results := manager.RunChecks(context.Background())
	require.Len(t, results, 4)

	tests := []struct {
		name        string
		wantStatus  Status
		wantMessage string
	}{
		{"ok", StatusOK, ""},
		{"failing", StatusDown, "receiver gone"},
		{"degraded", StatusDegraded, "cpu unsupported"},
		{"detailed", StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := results[tt.name]
			require.NotNil(t, check)
			assert.Equal(t, tt.name, check.Name)
			assert.Equal(t, tt.wantStatus, check.Status)
			assert.Equal(t, tt.wantMessage, check.Message)
			assert.False(t, check.LastChecked.IsZero())
		})
	}
	assert.Equal(t, "6.0", results["detailed"].Details["version"])
	assert.Equal(t, StatusDown, manager.GetOverallStatus())
}

func TestManager_Timeout(t *testing.T) {
	manager := NewManager(testLogger())
	manager.Register(&mockChecker{name: "slow", delay: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results := manager.RunChecks(ctx)
	require.Contains(t, results, "slow")
	assert.Equal(t, StatusDown, results["slow"].Status)
	assert.Equal(t, "Health check timed out", results["slow"].Message)
}

func TestManager_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{name: "no results", want: StatusDown},
		{name: "all ok", checkers: []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b"}}, want: StatusOK},
		{
			name:     "degraded wins over ok",
			checkers: []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b", err: Degraded("x")}},
			want:     StatusDegraded,
		},
		{
			name: "down wins over degraded",
			checkers: []Checker{
				&mockChecker{name: "a", err: errors.New("x")},
				&mockChecker{name: "b", err: Degraded("y")},
			},
			want: StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(testLogger())
			for _, c := range tt.checkers {
				manager.Register(c)
			}
			if len(tt.checkers) > 0 {
				manager.RunChecks(context.Background())
			}
			assert.Equal(t, tt.want, manager.GetOverallStatus())
		})
	}
}

func TestManager_GetResultsReturnsCopies(t *testing.T) {
	manager := NewManager(testLogger())
	manager.Register(&mockChecker{name: "a"})
	manager.RunChecks(context.Background())

	results := manager.GetResults()
	results["a"].Status = StatusDown

	assert.Equal(t, StatusOK, manager.GetResults()["a"].Status)
}

func TestManager_StartPeriodicChecks(t *testing.T) {
	manager := NewManager(testLogger())
	manager.Register(&mockChecker{name: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.StartPeriodicChecks(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(manager.GetResults()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic checks did not stop")
	}
}
