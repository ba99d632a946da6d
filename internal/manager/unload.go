package manager

import (
	"context"
	"time"
)

// UnloadSession tears down the session's backend process. It waits for any
// in-flight prompt to finish by taking the session gate, then stops the
// monitor and terminates the process. Unloading an already terminated
// session is a no-op.
func (m *Manager) UnloadSession(ctx context.Context, id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	release, err := m.acquireGateBlocking(ctx, s)
	if err != nil {
		return err
	}
	defer release()
	m.teardown(s)
	return nil
}

// RemoveSession unloads the session and drops it from the registry. The
// persisted transcript stays on disk.
func (m *Manager) RemoveSession(ctx context.Context, id string) error {
	if err := m.UnloadSession(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "session_remove", SessionID: id})
	return nil
}

// EmergencyCleanup terminates every live session. Each teardown gets a
// bounded wait for its gate; a session stuck mid-prompt past that window is
// torn down anyway. Errors are logged and the sweep continues, so one bad
// session never shields the rest.
func (m *Manager) EmergencyCleanup(ctx context.Context) {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		gateCtx, cancel := context.WithTimeout(ctx, m.terminateTimeout+time.Second)
		release, err := m.acquireGateBlocking(gateCtx, s)
		cancel()
		if err != nil {
			m.log.Warn().Str("session", s.ID).Err(err).Msg("emergency teardown without gate")
			m.teardown(s)
			continue
		}
		m.teardown(s)
		release()
	}
	m.log.Info().Int("sessions", len(snapshot)).Msg("emergency cleanup done")
}

// Close runs an emergency cleanup and waits for the alert pumps to drain.
func (m *Manager) Close(ctx context.Context) {
	m.EmergencyCleanup(ctx)
	m.wg.Wait()
}

// acquireGateBlocking always waits for the gate, regardless of the prompt
// admission policy. Cleanup never rejects; it defers.
func (m *Manager) acquireGateBlocking(ctx context.Context, s *Session) (func(), error) {
	select {
	case s.gate <- struct{}{}:
		return func() { <-s.gate }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// teardown stops the monitor and terminates the backend. Callers hold the
// session gate (or have decided to force past it).
func (m *Manager) teardown(s *Session) {
	m.mu.Lock()
	if s.State == StateTerminated {
		m.mu.Unlock()
		return
	}
	wasActive := s.State == StateActive
	s.State = StateCleaning
	mon := s.Monitor
	backend := s.backend
	m.mu.Unlock()

	if mon != nil {
		mon.Stop()
	}
	if backend != nil {
		if err := backend.Close(); err != nil {
			m.log.Warn().Str("session", s.ID).Err(err).Msg("backend close failed")
		}
	}

	m.mu.Lock()
	s.backend = nil
	s.State = StateTerminated
	m.mu.Unlock()
	if wasActive {
		metricSessionsActive.Dec()
	}
	m.publisher.Publish(Event{Name: "session_unload", SessionID: s.ID})
	m.log.Info().Str("session", s.ID).Msg("session terminated")
}
