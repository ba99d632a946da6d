package manager

import (
	"context"
	"time"

	"chatd/internal/gpumon"
)

// pumpAlerts consumes one monitor's alert stream for a session. Warnings are
// logged and published; cleanup alerts recycle the backend process. The loop
// ends when the monitor is stopped, which closes the channel.
func (m *Manager) pumpAlerts(s *Session) {
	defer m.wg.Done()
	mon := s.Monitor
	for a := range mon.Alerts() {
		switch a.Severity {
		case gpumon.SeverityWarning:
			m.log.Warn().
				Str("session", s.ID).
				Int64("delta_bytes", a.DeltaBytes).
				Uint64("threshold", a.Threshold).
				Msg("memory growth warning")
			m.publisher.Publish(Event{Name: "memory_warning", SessionID: s.ID, Fields: map[string]any{
				"delta_bytes": a.DeltaBytes,
			}})
		case gpumon.SeverityCleanup:
			if !s.cleanupPending.CompareAndSwap(false, true) {
				continue
			}
			m.recycle(s, a)
			s.cleanupPending.Store(false)
		}
	}
}

// recycle tears down and restarts the session's backend after a cleanup
// alert. It blocks on the session gate, so a stream in flight finishes
// before the process goes away. The conversation context survives; only the
// process and its monitor are replaced.
func (m *Manager) recycle(s *Session, a gpumon.Alert) {
	release, err := m.acquireGateBlocking(context.Background(), s)
	if err != nil {
		return
	}
	defer release()

	m.mu.RLock()
	state := s.State
	m.mu.RUnlock()
	if state != StateActive {
		return
	}

	m.log.Warn().
		Str("session", s.ID).
		Int64("delta_bytes", a.DeltaBytes).
		Uint64("threshold", a.Threshold).
		Msg("cleanup threshold crossed, recycling backend")
	m.teardown(s)

	backend, err := m.adapter.Start(s.Model.Path, GenParams{})
	if err != nil {
		m.log.Error().Str("session", s.ID).Err(err).Msg("backend restart failed")
		m.publisher.Publish(Event{Name: "recycle_failed", SessionID: s.ID, Fields: map[string]any{
			"error": err.Error(),
		}})
		return
	}
	pid := backend.PID()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	baseline, serr := m.sampler.Sample(sctx, pid)
	cancel()
	if serr != nil {
		m.log.Warn().Str("session", s.ID).Int("pid", pid).Err(serr).Msg("baseline sample failed")
	}

	mon := gpumon.New(m.sampler, pid, gpumon.Config{
		SessionID:             s.ID,
		Interval:              m.sampleInterval,
		WarnThresholdBytes:    m.warnThreshold,
		CleanupThresholdBytes: m.cleanupThreshold,
		Logger:                m.log,
	})

	m.mu.Lock()
	s.backend = backend
	s.pid = pid
	s.Baseline = baseline
	s.Monitor = mon
	s.State = StateActive
	m.mu.Unlock()

	mon.Start()
	m.wg.Add(1)
	go m.pumpAlerts(s)

	m.cleanupsTotal.Add(1)
	metricRecyclesTotal.Inc()
	metricSessionsActive.Inc()
	m.publisher.Publish(Event{Name: "session_recycle", SessionID: s.ID, Fields: map[string]any{
		"pid": pid,
	}})
}
