package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/maauso/audiosplit-api/internal/audio"
	"github.com/maauso/audiosplit-api/internal/bootstrap"
	"github.com/maauso/audiosplit-api/internal/config"
	"github.com/maauso/audiosplit-api/internal/job"
)

type splitOptions struct {
	path      string
	outDir    string
	mediaType string
	lang      string
	force     bool
	verbose   bool
}

func newSplitCommand() *cobra.Command {
	var opts splitOptions

	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split an audio file at its midpoint into part1 and part2",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.path = args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.lang != "" {
				cfg.StatusLang = opts.lang
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			deps, err := bootstrap.NewDependencies(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := deps.Close(); err != nil {
					logger.Warn("failed to close engine", slog.String("error", err.Error()))
				}
			}()

			return runSplit(cmd.Context(), deps.SplitService, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Directory for the parts (default: next to the input)")
	cmd.Flags().StringVarP(&opts.mediaType, "type", "t", "", "Media type of the input (default: detected from content)")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "Language of progress messages (en, ko)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite existing part files")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity")

	return cmd
}

func runSplit(ctx context.Context, svc *job.SplitService, opts splitOptions, stdout, stderr io.Writer) error {
	absPath, err := filepath.Abs(opts.path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("file does not exist: %s", absPath)
		}
		return fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", absPath)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	mediaType := opts.mediaType
	if mediaType == "" {
		mediaType = mimetype.Detect(data).String()
	}

	outDir := opts.outDir
	if outDir == "" {
		outDir = filepath.Dir(absPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// Refuse before doing any engine work.
	ext := audio.ContainerExt(info.Name(), mediaType)
	if !opts.force {
		for i := 1; i <= 2; i++ {
			target := filepath.Join(outDir, fmt.Sprintf("part%d%s", i, ext))
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
		}
	}

	stop := followProgress(svc, stderr)
	j, err := svc.Submit(ctx, job.InputFile{
		Name:      info.Name(),
		MediaType: mediaType,
		Data:      data,
	})
	stop()

	defer func() {
		if rErr := svc.Reset(context.WithoutCancel(ctx)); rErr != nil {
			fmt.Fprintln(stderr, "warning: reset:", rErr)
		}
	}()

	if err != nil {
		if j != nil {
			return fmt.Errorf("%s [%s]", j.Message, j.ErrorCode)
		}
		return err
	}

	rows := make([][]string, 0, len(j.Artifacts))
	for i, a := range j.Artifacts {
		target := filepath.Join(outDir, a.Name)
		if err := writePart(target, a.Data, opts.force); err != nil {
			return err
		}

		start, end := 0.0, j.SplitAt
		if i == 1 {
			start, end = j.SplitAt, j.DurationSeconds
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			target,
			formatClock(start),
			formatClock(end),
			humanize.Bytes(uint64(a.Size)),
		})
	}

	printTable(stdout, partTable{
		headers: []string{"Part", "File", "Start", "End", "Size"},
		aligns:  []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight},
		rows:    rows,
	})
	return nil
}

func writePart(path string, data []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// followProgress prints status and step messages until the returned func is called.
func followProgress(svc *job.SplitService, w io.Writer) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	var last int64

	drain := func() {
		for _, ev := range svc.Events(last) {
			last = ev.Seq
			if ev.Message != "" && ev.Type != job.EventTypeError {
				fmt.Fprintln(w, "·", ev.Message)
			}
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				drain()
				return
			case <-ticker.C:
				drain()
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// formatClock renders seconds as m:ss.mmm.
func formatClock(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	minutes := int(sec) / 60
	return fmt.Sprintf("%d:%06.3f", minutes, sec-float64(minutes*60))
}
