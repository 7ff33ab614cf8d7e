package audio

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/command"
)

// DurationProber reports the length of an audio file.
type DurationProber interface {
	Duration(path string) (time.Duration, error)
}

// FfprobeProber measures file durations with ffprobe and memoizes the result
// per file identity (path, size, mtime) so repeated playbacks skip the probe.
type FfprobeProber struct {
	runner  command.Runner
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[probeKey]time.Duration
}

type probeKey struct {
	path  string
	size  int64
	mtime int64
}

// NewFfprobeProber creates an FfprobeProber with the given per-probe timeout.
func NewFfprobeProber(runner command.Runner, timeout time.Duration, logger *zap.Logger) *FfprobeProber {
	return &FfprobeProber{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		cache:   make(map[probeKey]time.Duration),
	}
}

func (p *FfprobeProber) Duration(path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	key := probeKey{path: path, size: info.Size(), mtime: info.ModTime().UnixNano()}

	p.mu.Lock()
	if d, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return d, nil
	}
	p.mu.Unlock()

	if _, ok := p.runner.LookPath("ffprobe"); !ok {
		return 0, fmt.Errorf("ffprobe not available")
	}

	result, err := p.runner.Run([]string{
		"ffprobe", "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}, p.timeout)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}
	if result.ExitCode != 0 {
		return 0, fmt.Errorf("ffprobe exited %d for %s: %s",
			result.ExitCode, path, strings.TrimSpace(result.Stderr))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("ffprobe returned unusable duration %q for %s",
			strings.TrimSpace(result.Stdout), path)
	}
	d := time.Duration(seconds * float64(time.Second))

	p.mu.Lock()
	p.cache[key] = d
	p.mu.Unlock()

	p.logger.Debug("Probed audio duration",
		zap.String("path", path), zap.Duration("duration", d))
	return d, nil
}
