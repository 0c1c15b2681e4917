package probe

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// WAVHeader reads the duration of .wav files from their RIFF header. It
// covers uncompressed recordings when ffprobe is not installed.
type WAVHeader struct{}

// Probe implements Prober.
func (WAVHeader) Probe(_ context.Context, path string) Estimate {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return Unavailable()
	}

	f, err := os.Open(path)
	if err != nil {
		return Unavailable()
	}
	defer f.Close()

	d, err := wav.NewDecoder(f).Duration()
	if err != nil {
		return Unavailable()
	}
	return Seconds(d.Seconds())
}
