package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jaki95/podsplit/config"
	"github.com/jaki95/podsplit/internal/audio"
	"github.com/jaki95/podsplit/internal/downloader"
	"github.com/jaki95/podsplit/internal/processor"
	"github.com/jaki95/podsplit/internal/progress"
	"github.com/jaki95/podsplit/internal/storage"
	"github.com/jaki95/podsplit/internal/tools"
)

// modeCaptionsOnly is the optional third positional argument that skips
// audio extraction.
const modeCaptionsOnly = "subs_only"

type cliOptions struct {
	configPath    string
	captionsOnly  bool
	tracklistPath string
	workers       int
	lang          string
	logLevel      string
	jsonOutput    bool
}

func newRootCommand() *cobra.Command {
	var opts cliOptions

	rootCmd := &cobra.Command{
		Use:   "podsplit <source> <output-dir> [mode]",
		Short: "Split long-form media into per-track audio and caption files",
		Long: `podsplit downloads a video or podcast episode, reads the track listing from
its description and writes one audio file per track together with the
captions spoken during that track.

Pass "subs_only" as the mode to write only the caption files.`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 3 && args[2] == modeCaptionsOnly {
				opts.captionsOnly = true
			}
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "./config/config.yaml", "Configuration file path")
	flags.BoolVar(&opts.captionsOnly, "captions-only", false, "Only write caption files, skip audio extraction")
	flags.StringVar(&opts.tracklistPath, "tracklist", "", "Read the track listing from this file instead of the description")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Maximum concurrent extractions (overrides max_workers)")
	flags.StringVar(&opts.lang, "lang", "", "Caption language (overrides caption_lang)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides log_level)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the run report as JSON instead of a table")

	return rootCmd
}

func run(ctx context.Context, out io.Writer, source, outputDir string, opts cliOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.Level(cfg.LogLevel)
	if opts.logLevel != "" {
		if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", opts.logLevel, err)
		}
	}
	logger := newLogger(os.Stderr, cfg.LogFormat, level).With("run", uuid.NewString())
	slog.SetDefault(logger)

	specs := []tools.Spec{tools.Downloader(cfg.DownloaderPath)}
	if !opts.captionsOnly {
		specs = append(specs, tools.FFmpeg(cfg.FFmpegPath))
	}
	paths, err := tools.NewLocator().ResolveAll(specs...)
	if err != nil {
		return err
	}
	logger.Debug("resolved tools", "paths", paths)

	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	store, err := storage.NewLocalFileStorage(outputDir, cfg.WorkDir)
	if err != nil {
		return err
	}

	tracker := progress.NewProgressTracker()
	if isTerminal(os.Stdout) && !opts.jsonOutput {
		bar := newProgressBar()
		tracker.AddListener(bar.update)
		defer bar.finish()
	}

	ffmpegPath := paths["ffmpeg"]
	if ffmpegPath == "" {
		ffmpegPath = cfg.FFmpegPath
	}

	p := processor.New(
		cfg,
		downloader.NewYTDLP(paths["downloader"], cfg.AutoCaptions),
		audio.NewFFMPEGEngine(ffmpegPath),
		store,
		tracker,
		logger,
	)

	logger.Info("starting", "source", source, "output_dir", outputDir, "captions_only", opts.captionsOnly)
	report, err := p.Run(ctx, processor.Options{
		Source:        source,
		TracklistPath: opts.tracklistPath,
		CaptionsOnly:  opts.captionsOnly,
		Workers:       opts.workers,
		Lang:          opts.lang,
	})
	if err != nil {
		state := tracker.State()
		logger.Error("run failed", "last_step", state.Message, "progress", state.Progress, "error", err)
		return err
	}

	if opts.jsonOutput {
		return writeJSON(out, report)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSummary(report))
	if n := len(report.MissingCaptions); n > 0 {
		fmt.Fprintf(out, "%d of %d tracks have no captions\n", n, len(report.Tracks))
	}
	return nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
