package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"scribe-desktop/internal/bootstrap"
	"scribe-desktop/internal/config"
	"scribe-desktop/internal/domain"
	"scribe-desktop/internal/jobs"
)

type flags struct {
	configPath string
	ffmpegDir  string
	input      string
	output     string
	model      string
	language   string
	device     string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "scribe-desktop",
		Short:         "Transcribe audio and video files to text",
		Long:          "Without --input the desktop window opens. With --input the file is transcribed in the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.New(appOptions(f))
			if err != nil {
				return fmt.Errorf("bootstrap app: %w", err)
			}
			if f.input == "" {
				return app.Run()
			}
			return transcribeFile(cmd.Context(), app, f, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "settings file (default ~/.scribe-desktop/settings.toml)")
	cmd.Flags().StringVar(&f.ffmpegDir, "ffmpeg-dir", "", "folder containing ffmpeg and ffprobe")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "media file to transcribe without opening the window")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "transcript path (default next to the input)")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model size: tiny, base, small, medium, large")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "language code or name, auto to detect")
	cmd.Flags().StringVarP(&f.device, "device", "d", "", "device: auto, cuda, cpu")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log to stderr at debug level")
	return cmd
}

func appOptions(f *flags) bootstrap.Options {
	opts := bootstrap.Options{
		Overrides: func(s *domain.Settings) {
			if f.ffmpegDir != "" {
				s.FFmpegDir = f.ffmpegDir
			}
			if f.verbose {
				s.Log.Level = "debug"
				s.Log.Stdout = true
			}
		},
	}
	if f.configPath != "" {
		opts.Store = config.NewTOMLStore(f.configPath)
	}
	return opts
}

// transcribeFile runs one session and prints its progress until it ends.
func transcribeFile(ctx context.Context, app *bootstrap.App, f *flags, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Subscribe(newEventPrinter(out))

	if _, err := app.StartTranscription(domain.JobRequest{
		InputPath:  f.input,
		OutputPath: f.output,
		ModelSize:  domain.ModelSize(f.model),
		Language:   domain.Language(f.language),
		Device:     domain.Device(f.device),
	}); err != nil {
		return err
	}

	waitErr := app.Session.Wait(ctx)
	app.Shutdown(context.Background())
	if waitErr != nil {
		logrus.WithError(waitErr).Warn("transcription interrupted")
		return waitErr
	}

	state := app.CurrentStatus()
	if state.Job.Status != domain.JobStatusDone {
		if state.Err != nil {
			return state.Err
		}
		return errors.New(state.Message)
	}
	return nil
}

// newEventPrinter renders session events as terminal lines, one per whole
// percent of progress.
func newEventPrinter(out io.Writer) func(jobs.Event) {
	lastPercent := -1
	return func(event jobs.Event) {
		switch event.Type {
		case jobs.EventTypeProgress:
			if event.Progress == nil {
				return
			}
			percent := int(event.Progress.Percent)
			if percent != lastPercent {
				lastPercent = percent
				fmt.Fprintf(out, "%3d%%  %s\n", percent, event.Progress.Label)
			}
		case jobs.EventTypeStatus, jobs.EventTypeNote, jobs.EventTypeError:
			if event.Message != "" {
				fmt.Fprintln(out, event.Message)
			}
		}
	}
}
