package manager

import (
	"sort"
	"time"

	"chatd/pkg/types"
)

// Status reports a snapshot of every managed session plus server counters.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := types.StatusResponse{
		Sessions:       make([]types.SessionStatus, 0, len(sessions)),
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		CleanupsTotal:  m.cleanupsTotal.Load(),
		SessionsTotal:  m.sessionsTotal.Load(),
	}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, m.sessionStatus(s))
	}
	sort.Slice(out.Sessions, func(i, j int) bool {
		return out.Sessions[i].SessionID < out.Sessions[j].SessionID
	})
	return out
}

// SessionStatus reports one session's snapshot.
func (m *Manager) SessionStatus(id string) (types.SessionStatus, error) {
	s, err := m.session(id)
	if err != nil {
		return types.SessionStatus{}, err
	}
	return m.sessionStatus(s), nil
}

func (m *Manager) sessionStatus(s *Session) types.SessionStatus {
	m.mu.RLock()
	st := types.SessionStatus{
		SessionID: s.ID,
		Model:     s.Model.ID,
		State:     string(s.State),
		PID:       s.pid,
		LastUsed:  s.LastUsed.Unix(),
	}
	mon := s.Monitor
	cv := s.Convo
	m.mu.RUnlock()
	if cv != nil {
		st.Context = cv.Usage()
	}
	if mon != nil {
		st.Memory = mon.Status()
	}
	return st
}
