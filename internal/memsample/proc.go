package memsample

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// defaultTimeout bounds one sampling call, including the nvidia-smi exec.
const defaultTimeout = 5 * time.Second

// ProcSampler samples resident memory from /proc/<pid>/status and GPU memory
// from `nvidia-smi --query-compute-apps`. A machine without nvidia-smi
// reports zero device bytes; that is not an error.
type ProcSampler struct {
	// Timeout bounds a single Sample call. Zero means defaultTimeout.
	Timeout time.Duration
	// smiBin is the nvidia-smi binary name, overridable in tests.
	smiBin string
}

// NewProcSampler returns a sampler with default settings.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{Timeout: defaultTimeout, smiBin: "nvidia-smi"}
}

// Sample reads the process's resident and device memory. Fails with a
// process-not-found error when pid has exited and a timeout error when the
// deadline elapses mid-sample.
func (s *ProcSampler) Sample(ctx context.Context, pid int) (Sample, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return Sample{}, s.mapCtxErr(err, pid)
	}

	resident, err := residentBytes(pid)
	if err != nil {
		return Sample{}, err
	}
	device, err := s.deviceBytes(ctx, pid)
	if err != nil {
		return Sample{}, s.mapCtxErr(err, pid)
	}
	return Sample{
		Timestamp:     time.Now().UTC(),
		ResidentBytes: resident,
		DeviceBytes:   device,
		PID:           pid,
	}, nil
}

func (s *ProcSampler) mapCtxErr(err error, pid int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errSampleTimeout{pid: pid}
	}
	return err
}

// residentBytes reads VmRSS from /proc/<pid>/status.
func residentBytes(pid int) (uint64, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		if os.IsNotExist(err) || !processAlive(pid) {
			return 0, errProcessNotFound{pid: pid}
		}
		return 0, err
	}
	return parseVmRSS(string(b)), nil
}

// processAlive probes the process with signal 0.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// parseVmRSS extracts the resident set size in bytes from a /proc status
// dump. Returns 0 when the field is missing.
func parseVmRSS(status string) uint64 {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

// deviceBytes queries per-process GPU memory. A missing nvidia-smi binary or
// a pid absent from its output both yield zero.
func (s *ProcSampler) deviceBytes(ctx context.Context, pid int) (uint64, error) {
	bin := s.smiBin
	if bin == "" {
		bin = "nvidia-smi"
	}
	out, err := exec.CommandContext(ctx, bin,
		"--query-compute-apps=pid,used_memory",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		// No GPU tooling on this host.
		return 0, nil
	}
	return parseComputeApps(string(out), pid), nil
}

// parseComputeApps sums the used_memory columns (MiB) of rows matching pid.
func parseComputeApps(out string, pid int) uint64 {
	var total uint64
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		rowPID, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || rowPID != pid {
			continue
		}
		mib, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			continue
		}
		total += mib * 1024 * 1024
	}
	return total
}
