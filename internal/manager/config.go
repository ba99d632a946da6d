package manager

import (
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/memsample"
	"chatd/internal/store"
	"chatd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultTokenBudget      = 4096
	defaultProtectedTail    = 2
	defaultSampleInterval   = 2 * time.Second
	defaultTerminateTimeout = 2 * time.Second
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Registry     []types.Model
	DefaultModel string

	// Context accounting.
	TokenBudget     int
	ProtectedTail   int
	PreferSummarize bool

	// Process memory monitoring. Thresholds of zero disable the
	// corresponding alert.
	WarnThresholdBytes    uint64
	CleanupThresholdBytes uint64
	SampleInterval        time.Duration
	SampleTimeout         time.Duration

	// Lifecycle behavior.
	TerminateTimeout    time.Duration
	BlockOnBusy         bool
	KeepPartialOnCancel bool

	// Inference / llama.cpp configuration (no envs; set by callers)
	LlamaBin       string
	LlamaHost      string
	LlamaPortStart int
	LlamaPortEnd   int
	LlamaCtx       int
	LlamaThreads   int

	// Optional collaborators; nil fields get working defaults.
	Logger    *zerolog.Logger
	Publisher EventPublisher
	Sampler   memsample.Sampler
	Adapter   BackendAdapter
	Store     *store.Store
}

// NewWithConfig constructs a Manager from Config.
func NewWithConfig(cfg Config) *Manager {
	m := &Manager{
		registry:     cfg.Registry,
		defaultModel: cfg.DefaultModel,
		sessions:     make(map[string]*Session),
	}
	// Apply defaults if unset
	if cfg.TokenBudget <= 0 {
		m.tokenBudget = defaultTokenBudget
	} else {
		m.tokenBudget = cfg.TokenBudget
	}
	if cfg.ProtectedTail <= 0 {
		m.protectedTail = defaultProtectedTail
	} else {
		m.protectedTail = cfg.ProtectedTail
	}
	m.preferSummarize = cfg.PreferSummarize
	m.warnThreshold = cfg.WarnThresholdBytes
	m.cleanupThreshold = cfg.CleanupThresholdBytes
	if cfg.SampleInterval <= 0 {
		m.sampleInterval = defaultSampleInterval
	} else {
		m.sampleInterval = cfg.SampleInterval
	}
	if cfg.TerminateTimeout <= 0 {
		m.terminateTimeout = defaultTerminateTimeout
	} else {
		m.terminateTimeout = cfg.TerminateTimeout
	}
	m.blockOnBusy = cfg.BlockOnBusy
	m.keepPartial = cfg.KeepPartialOnCancel

	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	} else {
		m.publisher = noopPublisher{}
	}
	if cfg.Sampler != nil {
		m.sampler = cfg.Sampler
	} else {
		ps := memsample.NewProcSampler()
		if cfg.SampleTimeout > 0 {
			ps.Timeout = cfg.SampleTimeout
		}
		m.sampler = ps
	}
	m.storage = cfg.Store

	switch {
	case cfg.Adapter != nil:
		m.adapter = cfg.Adapter
	case cfg.LlamaBin != "":
		m.adapter = NewSubprocessAdapter(SubprocessConfig{
			Bin:       cfg.LlamaBin,
			Host:      cfg.LlamaHost,
			PortStart: cfg.LlamaPortStart,
			PortEnd:   cfg.LlamaPortEnd,
			CtxSize:   cfg.LlamaCtx,
			Threads:   cfg.LlamaThreads,
			StopWait:  m.terminateTimeout,
			Logger:    m.log,
		})
	default:
		m.adapter = NewLlamaAdapter(cfg.LlamaCtx, cfg.LlamaThreads)
	}
	m.startTime = time.Now()
	return m
}
