package probe

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/command"
)

// DefaultTimeout bounds one ffprobe invocation.
const DefaultTimeout = 5 * time.Second

// FFProbe measures durations with the ffprobe executable.
type FFProbe struct {
	lookPath func(string) (string, error)
	runner   command.Runner
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// NewFFProbe builds a prober that locates ffprobe with lookPath and runs it
// through runner.
func NewFFProbe(lookPath func(string) (string, error), runner command.Runner, timeout time.Duration, logger logrus.FieldLogger) *FFProbe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FFProbe{
		lookPath: lookPath,
		runner:   runner,
		timeout:  timeout,
		logger:   logger,
	}
}

// Probe implements Prober.
func (p *FFProbe) Probe(ctx context.Context, path string) Estimate {
	bin, err := p.lookPath("ffprobe")
	if err != nil {
		p.logger.WithError(err).Debug("ffprobe not found, duration unavailable")
		return Unavailable()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := buildFFProbeArgs(path)
	res, err := p.runner.Run(ctx, bin, args...)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"exit":   res.ExitCode,
			"stderr": strings.TrimSpace(res.Stderr),
		}).WithError(err).Debug("ffprobe failed, duration unavailable")
		return Unavailable()
	}

	est := parseDuration(res.Stdout)
	if !est.Known {
		p.logger.WithField("stdout", strings.TrimSpace(res.Stdout)).Debug("ffprobe output not a duration")
	}
	return est
}

// buildFFProbeArgs prints only the container duration, one bare value.
func buildFFProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// parseDuration reads the first non-empty line as seconds. ffprobe prints
// N/A for streams without a known duration.
func parseDuration(out string) Estimate {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seconds, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Unavailable()
		}
		return Seconds(seconds)
	}
	return Unavailable()
}
