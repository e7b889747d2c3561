package monitor

import (
	"sync"
	"time"

	"github.com/zsiec/ndikit/pkg/ndi"
)

// SourceStatus is what the monitor shows for the selected source.
type SourceStatus struct {
	Source      string
	Connections int
	Tally       *ndi.Tally
	Changed     bool
	CheckedAt   time.Time
}

// ReceiverProber keeps one low-bandwidth receiver on the source being
// inspected and reconnects when the selection changes.
type ReceiverProber struct {
	rt      *ndi.Runtime
	timeout time.Duration

	mu   sync.Mutex
	recv *ndi.Receiver
	// tally is the last tally seen for the connected source.
	tally *ndi.Tally
}

func NewReceiverProber(rt *ndi.Runtime, pollTimeout time.Duration) *ReceiverProber {
	return &ReceiverProber{rt: rt, timeout: pollTimeout}
}

// Probe connects to src if needed and waits briefly for a status change.
func (p *ReceiverProber) Probe(src ndi.Source) (SourceStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.recv == nil || p.recv.Source().Name != src.Name {
		p.closeLocked()
		recv, err := ndi.NewReceiver(p.rt, ndi.MonitoringPreset(src))
		if err != nil {
			return SourceStatus{}, err
		}
		p.recv = recv
	}

	status := SourceStatus{Source: src.Name, CheckedAt: time.Now()}
	change, err := p.recv.PollStatusChange(p.timeout)
	if err != nil {
		return SourceStatus{}, err
	}
	if change != nil {
		status.Changed = true
		if change.Tally != nil {
			p.tally = change.Tally
		}
	}
	status.Tally = p.tally

	if status.Connections, err = p.recv.Connections(); err != nil {
		return SourceStatus{}, err
	}
	return status, nil
}

func (p *ReceiverProber) closeLocked() {
	if p.recv != nil {
		p.recv.Close()
		p.recv = nil
	}
	p.tally = nil
}

func (p *ReceiverProber) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}
