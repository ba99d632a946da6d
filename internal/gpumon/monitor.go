// Package gpumon polls one backend process's memory footprint and raises
// threshold alerts against a session baseline. Alerts are edge-triggered and
// delivered on a channel; the sampling loop never blocks on consumers.
package gpumon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/memsample"
	"chatd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultInterval   = 2 * time.Second
	alertChanCapacity = 8
)

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityCleanup Severity = "cleanup"
)

// Alert is one threshold crossing observed by the monitor.
type Alert struct {
	Severity   Severity
	Sample     memsample.Sample
	DeltaBytes int64
	Threshold  uint64
}

// Config holds the tunables for one monitor. Thresholds are absolute byte
// counts, resolved once at session start; CleanupThresholdBytes must exceed
// WarnThresholdBytes.
type Config struct {
	SessionID             string
	Interval              time.Duration
	WarnThresholdBytes    uint64
	CleanupThresholdBytes uint64
	Logger                zerolog.Logger
}

// Monitor samples one process on an interval and compares GPU memory deltas
// against the session baseline.
type Monitor struct {
	cfg     Config
	sampler memsample.Sampler
	pid     int

	mu           sync.Mutex
	baseline     *memsample.Sample
	last         memsample.Sample
	peakDevice   uint64
	rebaseline   bool
	warnArmed    bool
	cleanupArmed bool

	alerts   chan Alert
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New constructs a monitor bound to pid. Call Start to begin sampling.
func New(sampler memsample.Sampler, pid int, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Monitor{
		cfg:          cfg,
		sampler:      sampler,
		pid:          pid,
		warnArmed:    true,
		cleanupArmed: true,
		alerts:       make(chan Alert, alertChanCapacity),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Alerts returns the channel alerts are delivered on. It is closed by Stop.
func (m *Monitor) Alerts() <-chan Alert { return m.alerts }

// Start launches the sampling loop.
func (m *Monitor) Start() {
	go m.loop()
}

// Stop terminates the loop, waits for it to exit, and closes the alert
// channel. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
		close(m.alerts)
	})
}

// Rebaseline makes the next successful sample the new baseline, used after
// an intentional large allocation the caller does not want flagged.
func (m *Monitor) Rebaseline() {
	m.mu.Lock()
	m.rebaseline = true
	m.mu.Unlock()
}

// Status reports the monitor's current view for the status surface.
func (m *Monitor) Status() types.MemoryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := types.MemoryStatus{
		ResidentBytes:   m.last.ResidentBytes,
		DeviceBytes:     m.last.DeviceBytes,
		PeakDeviceBytes: m.peakDevice,
	}
	if m.baseline != nil {
		st.DeviceDeltaBytes = int64(m.last.DeviceBytes) - int64(m.baseline.DeviceBytes)
	}
	return st
}

func (m *Monitor) loop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			sample, err := m.sampler.Sample(context.Background(), m.pid)
			if err != nil {
				// Monitoring hiccups skip the cycle; they never kill the loop.
				if memsample.IsProcessNotFound(err) || memsample.IsSampleTimeout(err) {
					m.cfg.Logger.Debug().Str("session", m.cfg.SessionID).Err(err).Msg("sample skipped")
					samplesSkipped.WithLabelValues(m.cfg.SessionID).Inc()
					continue
				}
				m.cfg.Logger.Warn().Str("session", m.cfg.SessionID).Err(err).Msg("sampler error, cycle skipped")
				samplesSkipped.WithLabelValues(m.cfg.SessionID).Inc()
				continue
			}
			m.observe(sample)
		}
	}
}

// observe folds one sample into monitor state and emits at most one alert,
// the highest severity crossed this cycle.
func (m *Monitor) observe(sample memsample.Sample) {
	m.mu.Lock()
	if m.baseline == nil || m.rebaseline {
		base := sample
		m.baseline = &base
		m.rebaseline = false
		m.warnArmed = true
		m.cleanupArmed = true
		m.last = sample
		m.mu.Unlock()
		m.cfg.Logger.Debug().Str("session", m.cfg.SessionID).
			Uint64("device_bytes", sample.DeviceBytes).Msg("baseline captured")
		return
	}
	m.last = sample
	if sample.DeviceBytes > m.peakDevice {
		m.peakDevice = sample.DeviceBytes
	}
	delta := int64(sample.DeviceBytes) - int64(m.baseline.DeviceBytes)

	var alert *Alert
	cleanupCrossed := m.cfg.CleanupThresholdBytes > 0 && delta >= int64(m.cfg.CleanupThresholdBytes)
	warnCrossed := m.cfg.WarnThresholdBytes > 0 && delta >= int64(m.cfg.WarnThresholdBytes)
	switch {
	case cleanupCrossed && m.cleanupArmed:
		m.cleanupArmed = false
		m.warnArmed = false
		alert = &Alert{Severity: SeverityCleanup, Sample: sample, DeltaBytes: delta, Threshold: m.cfg.CleanupThresholdBytes}
	case warnCrossed && !cleanupCrossed && m.warnArmed:
		m.warnArmed = false
		alert = &Alert{Severity: SeverityWarning, Sample: sample, DeltaBytes: delta, Threshold: m.cfg.WarnThresholdBytes}
	}
	// Re-arm only once the delta falls back below the threshold.
	if !warnCrossed {
		m.warnArmed = true
	}
	if !cleanupCrossed {
		m.cleanupArmed = true
	}
	peak := m.peakDevice
	m.mu.Unlock()

	deviceDelta.WithLabelValues(m.cfg.SessionID).Set(float64(delta))
	peakDevice.WithLabelValues(m.cfg.SessionID).Set(float64(peak))

	if alert == nil {
		return
	}
	if alert.Severity == SeverityCleanup && warnCrossed {
		m.cfg.Logger.Info().Str("session", m.cfg.SessionID).Int64("delta", delta).
			Msg("warning threshold also crossed; emitting cleanup only")
	}
	alertsTotal.WithLabelValues(m.cfg.SessionID, string(alert.Severity)).Inc()
	select {
	case m.alerts <- *alert:
	default:
		m.cfg.Logger.Warn().Str("session", m.cfg.SessionID).
			Str("severity", string(alert.Severity)).Msg("alert channel full, alert dropped")
	}
}
