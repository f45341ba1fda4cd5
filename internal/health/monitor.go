package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// Pinger is a provider that can answer a cheap liveness request.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor periodically pings remote providers. A failed ping counts as a
// provider failure; a successful ping clears a cooldown early.
type Monitor struct {
	probe    *Probe
	targets  map[string]Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a Monitor. An interval of zero or less disables it.
func NewMonitor(probe *Probe, targets map[string]Pinger, interval, timeout time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		targets:  targets,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start begins the ping loop. It is a no-op when already running or disabled.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running || m.interval <= 0 || len(m.targets) == 0 {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ticker = time.NewTicker(m.interval)
	m.stopChan = make(chan struct{})
	ticker := m.ticker
	stop := m.stopChan
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("Health monitor started",
		zap.Duration("interval", m.interval),
		zap.Int("providers", len(m.targets)),
	)

	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ticker.C:
				m.CheckAll(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the ping loop and waits for an in-flight round to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	ticker := m.ticker
	stop := m.stopChan
	m.ticker = nil
	m.stopChan = nil
	m.mu.Unlock()

	ticker.Stop()
	close(stop)
	m.wg.Wait()
	m.logger.Info("Health monitor stopped")
}

// CheckAll pings every target once, in provider id order.
func (m *Monitor) CheckAll(ctx context.Context) {
	ids := make([]string, 0, len(m.targets))
	for id := range m.targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m.check(ctx, id, m.targets[id])
	}
}

func (m *Monitor) check(ctx context.Context, id string, pinger Pinger) {
	pingCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	if err := pinger.Ping(pingCtx); err != nil {
		m.logger.Debug("Provider ping failed",
			zap.String("provider", id),
			zap.Error(err),
		)
		m.probe.RecordFailure(ctx, id, domain.KindProviderUnavailable)
		return
	}

	if st := m.probe.State(ctx, id); !st.IsHealthy || st.ConsecutiveFailures > 0 {
		m.logger.Info("Provider recovered", zap.String("provider", id))
		m.probe.RecordSuccess(ctx, id)
	}
}
