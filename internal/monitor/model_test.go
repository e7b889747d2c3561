package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/pkg/ndi"
	"github.com/zsiec/ndikit/pkg/ndi/native"
)

type fakeLister struct {
	sources []ndi.Source
	err     error
}

func (f *fakeLister) FindSources(time.Duration) ([]ndi.Source, error) {
	return f.sources, f.err
}

type fakeProber struct {
	mu     sync.Mutex
	probed []string
	status SourceStatus
	err    error
}

func (f *fakeProber) Probe(src ndi.Source) (SourceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, src.Name)
	st := f.status
	st.Source = src.Name
	return st, f.err
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func withSources(t *testing.T, m *Model, names ...string) {
	t.Helper()
	var sources []ndi.Source
	for _, n := range names {
		sources = append(sources, ndi.NewSource(n, "10.0.0.5:5961"))
	}
	m.Update(sourcesMsg{sources: sources})
}

func TestModel_SortsAndKeepsSelection(t *testing.T) {
	m := NewModel(&fakeLister{}, nil, time.Second)
	withSources(t, m, "STUDIO (CAM 2)", "STUDIO (CAM 1)")

	src, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "STUDIO (CAM 1)", src.Name)

	m.Update(key("down"))
	src, _ = m.Selected()
	assert.Equal(t, "STUDIO (CAM 2)", src.Name)

	// A new source sorting first must not move the highlight.
	withSources(t, m, "STUDIO (CAM 2)", "STUDIO (CAM 1)", "A-ROLL")
	src, _ = m.Selected()
	assert.Equal(t, "STUDIO (CAM 2)", src.Name)

	// Selected source vanished.
	withSources(t, m, "A-ROLL")
	src, _ = m.Selected()
	assert.Equal(t, "A-ROLL", src.Name)
}

func TestModel_Navigation(t *testing.T) {
	prober := &fakeProber{}
	m := NewModel(&fakeLister{}, prober, time.Second)
	withSources(t, m, "A", "B", "C")

	tests := []struct {
		key       string
		want      string
		wantProbe bool
	}{
		{"up", "A", false},
		{"j", "B", true},
		{"down", "C", true},
		{"down", "C", false},
		{"k", "B", true},
	}
	for _, tt := range tests {
		_, cmd := m.Update(key(tt.key))
		src, _ := m.Selected()
		assert.Equal(t, tt.want, src.Name, "after %q", tt.key)
		if !tt.wantProbe {
			assert.Nil(t, cmd, "after %q", tt.key)
			continue
		}
		require.NotNil(t, cmd, "after %q", tt.key)
		msg, ok := cmd().(statusMsg)
		require.True(t, ok)
		assert.Equal(t, tt.want, msg.status.Source)
	}
	assert.Equal(t, []string{"B", "C", "B"}, prober.probed)
}

func TestModel_Quit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		t.Run(k, func(t *testing.T) {
			m := NewModel(&fakeLister{}, nil, time.Second)
			_, cmd := m.Update(key(k))
			require.NotNil(t, cmd)
			assert.Equal(t, tea.Quit(), cmd())
			assert.Contains(t, m.View(), "Closing monitor")
		})
	}
}

func TestModel_FetchSources(t *testing.T) {
	lister := &fakeLister{sources: []ndi.Source{ndi.NewSource("CAM", "10.0.0.5:5961")}}
	m := NewModel(lister, nil, time.Second)

	_, cmd := m.Update(key("r"))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, sourcesMsg{}, msg)
	m.Update(msg)

	assert.Len(t, m.sources, 1)
	assert.False(t, m.lastUpdate.IsZero())
}

func TestModel_DiscoveryError(t *testing.T) {
	m := NewModel(&fakeLister{}, nil, time.Second)
	withSources(t, m, "CAM")

	m.Update(sourcesMsg{err: errors.New("finder closed")})
	view := m.View()
	assert.Contains(t, view, "Discovery failed")
	assert.Contains(t, view, "finder closed")
	// The previous list survives a failed pass.
	assert.Len(t, m.sources, 1)
}

func TestModel_StaleStatusIgnored(t *testing.T) {
	m := NewModel(&fakeLister{}, &fakeProber{}, time.Second)
	withSources(t, m, "A", "B")

	m.Update(statusMsg{status: SourceStatus{Source: "B", Connections: 3}})
	assert.Nil(t, m.status)

	m.Update(statusMsg{status: SourceStatus{Source: "A", Connections: 3}})
	require.NotNil(t, m.status)
	assert.Equal(t, 3, m.status.Connections)
}

func TestModel_View(t *testing.T) {
	tests := []struct {
		name   string
		status *SourceStatus
		err    error
		want   []string
	}{
		{
			name: "connecting",
			want: []string{"Connecting..."},
		},
		{
			name:   "program",
			status: &SourceStatus{Connections: 1, Tally: &ndi.Tally{OnProgram: true}, CheckedAt: time.Now()},
			want:   []string{"PROGRAM", "1 connection"},
		},
		{
			name:   "preview",
			status: &SourceStatus{Connections: 2, Tally: &ndi.Tally{OnPreview: true}, CheckedAt: time.Now()},
			want:   []string{"PREVIEW", "2 connections"},
		},
		{
			name:   "idle",
			status: &SourceStatus{CheckedAt: time.Now()},
			want:   []string{"IDLE", "no connections"},
		},
		{
			name: "error",
			err:  errors.New("receiver closed"),
			want: []string{"receiver closed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(&fakeLister{}, &fakeProber{}, time.Second)
			withSources(t, m, "STUDIO (CAM 1)")
			m.status = tt.status
			m.statusErr = tt.err

			view := m.View()
			assert.Contains(t, view, "NDI Monitor")
			assert.Contains(t, view, "STUDIO (CAM 1)")
			assert.Contains(t, view, "10.0.0.5:5961")
			for _, w := range tt.want {
				assert.Contains(t, view, w)
			}
		})
	}
}

func TestModel_ViewEmpty(t *testing.T) {
	m := NewModel(&fakeLister{}, nil, 0)
	assert.Equal(t, DefaultInterval, m.interval)

	view := m.View()
	assert.Contains(t, view, "Searching for sources")
	assert.Contains(t, view, "updated never")
	assert.NotContains(t, view, "Connecting")
}

func TestReceiverProber(t *testing.T) {
	lb := native.NewLoopback()
	lb.AddSource("CAM 1", "10.0.0.5:5961")
	lb.AddSource("CAM 2", "10.0.0.6:5961")
	lb.Script("CAM 1", native.StatusChangeStep())
	rt, err := ndi.Acquire(lb)
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	p := NewReceiverProber(rt, 20*time.Millisecond)

	st, err := p.Probe(ndi.NewSource("CAM 1", "10.0.0.5:5961"))
	require.NoError(t, err)
	assert.Equal(t, "CAM 1", st.Source)
	assert.True(t, st.Changed)
	assert.Equal(t, 1, st.Connections)

	st, err = p.Probe(ndi.NewSource("CAM 1", "10.0.0.5:5961"))
	require.NoError(t, err)
	assert.False(t, st.Changed)
	assert.Equal(t, int64(1), lb.Calls("RecvCreate"))

	_, err = p.Probe(ndi.NewSource("CAM 2", "10.0.0.6:5961"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), lb.Calls("RecvCreate"))
	assert.Zero(t, lb.Connections("CAM 1"))

	p.Close()
	assert.Zero(t, lb.Connections("CAM 2"))
}
