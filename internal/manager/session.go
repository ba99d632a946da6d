package manager

import (
	"context"
	"time"

	"chatd/internal/convo"
	"chatd/internal/gpumon"
	"chatd/internal/store"
)

// StartSession creates a session record, spawns its backend, captures the
// memory baseline and begins monitoring. The session is registered in the
// loading state before the spawn so duplicate creates fail fast; it flips to
// active only once the backend is ready and the record is still loading. A
// cleanup that lands mid-spawn wins: the fresh backend is closed and the
// create fails.
func (m *Manager) StartSession(ctx context.Context, id, modelID string) (*Session, error) {
	mdl, err := m.resolveModel(modelID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = store.NewID()
	}
	cv, err := convo.NewManager(convo.Config{
		Budget:          m.tokenBudget,
		ProtectedTail:   m.protectedTail,
		PreferSummarize: m.preferSummarize,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:       id,
		Model:    mdl,
		State:    StateIdle,
		LastUsed: time.Now(),
		Convo:    cv,
		gate:     make(chan struct{}, 1),
	}
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return nil, errSessionExists{id: id}
	}
	s.State = StateLoading
	m.sessions[id] = s
	m.mu.Unlock()

	backend, err := m.adapter.Start(mdl.Path, GenParams{})
	if err != nil {
		m.mu.Lock()
		s.State = StateIdle
		delete(m.sessions, id)
		m.mu.Unlock()
		m.log.Error().Str("session", id).Str("model", mdl.ID).Err(err).Msg("backend start failed")
		if IsBackendUnavailable(err) {
			return nil, err
		}
		return nil, ErrBackendUnavailable(err.Error())
	}
	pid := backend.PID()

	// Baseline capture is best effort: a failed first sample leaves the
	// monitor to establish its baseline on the first good one.
	baseline, serr := m.sampler.Sample(ctx, pid)
	if serr != nil {
		m.log.Warn().Str("session", id).Int("pid", pid).Err(serr).Msg("baseline sample failed")
	}

	mon := gpumon.New(m.sampler, pid, gpumon.Config{
		SessionID:             id,
		Interval:              m.sampleInterval,
		WarnThresholdBytes:    m.warnThreshold,
		CleanupThresholdBytes: m.cleanupThreshold,
		Logger:                m.log,
	})

	// Resume a persisted transcript when one exists for this id.
	if m.storage != nil {
		if rec, lerr := m.storage.Load(id); lerr == nil {
			if rerr := cv.ReplaceTurns(rec.Turns); rerr != nil {
				m.log.Warn().Str("session", id).Err(rerr).Msg("transcript over budget after resume")
			}
		}
	}

	m.mu.Lock()
	if s.State != StateLoading {
		// A teardown ran while the backend was spawning. The record is
		// already terminated; kill the fresh process instead of reviving it.
		delete(m.sessions, id)
		m.mu.Unlock()
		if cerr := backend.Close(); cerr != nil {
			m.log.Warn().Str("session", id).Err(cerr).Msg("backend close failed")
		}
		m.log.Warn().Str("session", id).Msg("session torn down during spawn")
		return nil, ErrBackendUnavailable("session " + id + " terminated during startup")
	}
	s.backend = backend
	s.pid = pid
	s.Baseline = baseline
	s.Monitor = mon
	s.State = StateActive
	s.LastUsed = time.Now()
	m.mu.Unlock()

	mon.Start()
	m.wg.Add(1)
	go m.pumpAlerts(s)

	m.sessionsTotal.Add(1)
	metricSessionsStarted.Inc()
	metricSessionsActive.Inc()
	m.publisher.Publish(Event{Name: "session_start", SessionID: id, Fields: map[string]any{
		"model": mdl.ID,
		"pid":   pid,
	}})
	m.log.Info().Str("session", id).Str("model", mdl.ID).Int("pid", pid).Msg("session active")
	return s, nil
}

// Rebaseline resets the session's memory baseline to the next sample.
func (m *Manager) Rebaseline(id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	m.mu.RLock()
	mon := s.Monitor
	m.mu.RUnlock()
	if mon != nil {
		mon.Rebaseline()
	}
	m.publisher.Publish(Event{Name: "session_rebaseline", SessionID: id})
	return nil
}
