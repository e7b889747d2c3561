package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/pkg/ndi"
	"github.com/zsiec/ndikit/pkg/ndi/native"
)

type recordingPublisher struct {
	mu     sync.Mutex
	passes [][]ndi.Source
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, sources []ndi.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passes = append(p.passes, sources)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.passes)
}

func newTestService(t *testing.T, pubs ...Publisher) (*native.Loopback, *Service) {
	t.Helper()
	lb := native.NewLoopback()
	rt, err := ndi.Acquire(lb)
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	cfg := config.DiscoveryConfig{Interval: 20 * time.Millisecond, WaitTimeout: 10 * time.Millisecond}
	svc, err := New(rt, ndi.DefaultFinderOptions(), cfg, logger.NewNullLogger(), pubs...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return lb, svc
}

func TestDiff(t *testing.T) {
	a := ndi.NewSource("HOST (A)", "")
	b := ndi.NewSource("HOST (B)", "")
	c := ndi.NewSource("HOST (C)", "")

	tests := []struct {
		name        string
		prev, next  []ndi.Source
		wantAdded   []ndi.Source
		wantRemoved []ndi.Source
	}{
		{name: "first pass", next: []ndi.Source{a, b}, wantAdded: []ndi.Source{a, b}},
		{name: "unchanged", prev: []ndi.Source{a, b}, next: []ndi.Source{b, a}},
		{name: "swap", prev: []ndi.Source{a, b}, next: []ndi.Source{b, c}, wantAdded: []ndi.Source{c}, wantRemoved: []ndi.Source{a}},
		{name: "all gone", prev: []ndi.Source{a}, wantRemoved: []ndi.Source{a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := Diff(tt.prev, tt.next)
			assert.Equal(t, tt.wantAdded, added)
			assert.Equal(t, tt.wantRemoved, removed)
		})
	}
}

func TestService_Refresh(t *testing.T) {
	pub := &recordingPublisher{}
	lb, svc := newTestService(t, pub)

	assert.True(t, svc.LastRefresh().IsZero())
	assert.Empty(t, svc.Sources())

	lb.AddSource("STUDIO (Cam 2)", "10.0.0.2:5961")
	lb.AddSource("STUDIO (Cam 1)", "10.0.0.1:5960")

	found, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "STUDIO (Cam 1)", found[0].Name, "sorted by name")

	src, ok := svc.Lookup("STUDIO (Cam 2)")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2:5961", src.Address.String())
	_, ok = svc.Lookup("STUDIO (Cam 3)")
	assert.False(t, ok)

	assert.False(t, svc.LastRefresh().IsZero())
	assert.Equal(t, int64(1), svc.Passes())
	require.Equal(t, 1, pub.count())
	assert.Len(t, pub.passes[0], 2)

	lb.RemoveSource("STUDIO (Cam 2)")
	found, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, found, 1)
	_, ok = svc.Lookup("STUDIO (Cam 2)")
	assert.False(t, ok)
}

func TestService_SourcesIsACopy(t *testing.T) {
	lb, svc := newTestService(t)
	lb.AddSource("STUDIO (Cam 1)", "")
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	got := svc.Sources()
	got[0].Name = "mutated"
	assert.Equal(t, "STUDIO (Cam 1)", svc.Sources()[0].Name)
}

func TestService_PublishErrors(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("redis down")}
	ok := &recordingPublisher{}
	lb, svc := newTestService(t, failing, ok)
	lb.AddSource("STUDIO (Cam 1)", "")

	found, err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Len(t, found, 1, "the pass itself still succeeds")
	assert.Equal(t, 1, ok.count(), "every publisher runs")

	_, found2 := svc.Lookup("STUDIO (Cam 1)")
	assert.True(t, found2)
}

func TestService_Run(t *testing.T) {
	pub := &recordingPublisher{}
	lb, svc := newTestService(t, pub)
	lb.AddSource("STUDIO (Cam 1)", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, ok := svc.Lookup("STUDIO (Cam 1)")
	assert.True(t, ok)
}

func TestNew_ClosedRuntime(t *testing.T) {
	rt, err := ndi.Acquire(native.NewLoopback())
	require.NoError(t, err)
	rt.Close()

	_, err = New(rt, ndi.DefaultFinderOptions(), config.DiscoveryConfig{Interval: time.Second}, logger.NewNullLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ndi.ErrClosed)
}
