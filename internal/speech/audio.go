package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"scribe-desktop/internal/command"
)

// preprocessor converts arbitrary media into 16 kHz mono float samples.
type preprocessor struct {
	ffmpegPath string
	runner     command.Runner
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
}

func newPreprocessor(ffmpegPath string, runner command.Runner) *preprocessor {
	return &preprocessor{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
	}
}

func (p *preprocessor) samples(ctx context.Context, inputPath string) ([]float32, error) {
	tempDir, err := p.mkdirTemp("", "scribe-desktop-*")
	if err != nil {
		return nil, fmt.Errorf("create temporary workspace: %w", err)
	}
	defer func() { _ = p.removeAll(tempDir) }()

	outPath := filepath.Join(tempDir, "preprocessed-16k-mono.wav")
	args := buildFFmpegArgs(inputPath, outPath)
	res, runErr := p.runner.Run(ctx, p.ffmpegPath, args...)
	if runErr != nil {
		return nil, &CommandError{
			Message: "ffmpeg audio conversion failed",
			Log:     command.NewLog(p.ffmpegPath, args, res),
			Err:     runErr,
		}
	}

	samples, err := decodeWAV(outPath)
	if err != nil {
		return nil, &CommandError{
			Message: "ffmpeg completed but output audio is unreadable",
			Log:     command.NewLog(p.ffmpegPath, args, res),
			Err:     err,
		}
	}
	return samples, nil
}

// buildFFmpegArgs builds the 16 kHz mono PCM conversion command.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func decodeWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	return pcmToFloat32(buf), nil
}

func pcmToFloat32(buf *audio.IntBuffer) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	return out
}
