package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Monitor re-runs discovery on a fixed interval and reports status
// transitions. It backs the "reconnecting" indicator.
type Monitor struct {
	d        *Discoverer
	interval time.Duration
	onChange func(Status, string)
	logger   *zap.Logger

	mu     sync.Mutex
	status Status
	base   string
}

func NewMonitor(d *Discoverer, interval time.Duration, onChange func(Status, string), logger *zap.Logger) *Monitor {
	logger = logging.OrNop(logger)
	return &Monitor{d: d, interval: interval, onChange: onChange, logger: logger}
}

func (m *Monitor) Status() (Status, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.base
}

// Run checks immediately, then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) Check(ctx context.Context) Status {
	res, err := m.d.Discover(ctx)
	if err != nil {
		s, _ := m.Status()
		return s
	}
	next := StatusOnline
	if res.Fallback {
		next = StatusReconnecting
	}

	m.mu.Lock()
	changed := next != m.status || res.Base != m.base
	m.status = next
	m.base = res.Base
	m.mu.Unlock()

	if changed {
		m.logger.Info("api connection status", zap.Stringer("status", next), zap.String("base", res.Base))
		if m.onChange != nil {
			m.onChange(next, res.Base)
		}
	}
	return next
}
