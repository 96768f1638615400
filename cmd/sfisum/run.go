package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sfisum/cmd/sfisum/tui"
	"github.com/jamesainslie/sfisum/pkg/sfisum/config"
	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/engine"
	"github.com/jamesainslie/sfisum/pkg/sfisum/hasher"
	"github.com/jamesainslie/sfisum/pkg/sfisum/history"
	"github.com/jamesainslie/sfisum/pkg/sfisum/logging"
	"github.com/jamesainslie/sfisum/pkg/sfisum/output"
	"github.com/jamesainslie/sfisum/pkg/sfisum/tuner"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

var logger = logging.Get("cli")

// runRequest describes one engine run requested on the command line.
type runRequest struct {
	mode     engine.Mode
	hash     digest.Type
	manifest string
	base     string
	save     bool
	strict   bool
}

// runMode runs req, prints the report and records it in the history.
func runMode(cmd *cobra.Command, req runRequest) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	formatter, err := output.Get(cfg.Format)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", cfg.Format, output.Available())
	}
	if tf, ok := formatter.(*output.TemplateFormatter); ok {
		if tmpl := viper.GetString("template"); tmpl != "" {
			tf.SetTemplate(tmpl)
		}
	}

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := dispatch(ctx, req, opts)
	if result != nil {
		recordHistory(cfg, result, runErr)
	}

	if runErr != nil {
		if errors.Is(runErr, hasher.ErrInterrupted) {
			printInfo("Interrupted, no manifest was written")
			return &exitError{code: exitInterrupted}
		}
		return runErr
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if !getQuiet() || result.Events > 0 {
		fmt.Print(buf.String())
	}

	if req.strict {
		if _, _, errs := result.Totals(); errs > 0 {
			return &exitError{code: exitFindings}
		}
	}
	return nil
}

// dispatch picks the digest type once and runs the generic engine.
func dispatch(ctx context.Context, req runRequest, opts engine.Options) (*output.Result, error) {
	switch req.hash {
	case digest.TypeMD5:
		return run(ctx, digest.MD5Algorithm, req, opts)
	case digest.TypeSHA256:
		return run(ctx, digest.SHA256Algorithm, req, opts)
	case digest.TypeBLAKE2b256:
		return run(ctx, digest.BLAKE2b256Algorithm, req, opts)
	case digest.TypeXXH128:
		return run(ctx, digest.XXH128Algorithm, req, opts)
	default:
		return nil, fmt.Errorf("%w: %v", digest.ErrUnknownType, req.hash)
	}
}

func run[D digest.Digest[D]](ctx context.Context, algo digest.Algorithm[D], req runRequest, opts engine.Options) (*output.Result, error) {
	var progress *tui.Progress
	if showProgress() {
		progress = tui.Start(req.mode.String(), os.Stderr)
		opts.OnWalkProgress = progress.Walk
		opts.Hasher.OnProgress = progress.Hash
	}

	eng := engine.New(algo, opts)
	eng.SetPaths(req.manifest, req.base)

	var err error
	switch req.mode {
	case engine.ModeGenerate:
		err = eng.Generate(ctx)
	case engine.ModeValidate:
		err = eng.Validate(ctx)
	case engine.ModeFastRefresh:
		err = eng.FastRefresh(ctx)
	case engine.ModeFullRefresh:
		err = eng.FullRefresh(ctx)
	default:
		err = types.Internalf("no handler for mode %s", req.mode)
	}
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return eng.Report(), err
	}

	if req.save {
		path, err := eng.SaveManifest("")
		if err != nil {
			if errors.Is(err, engine.ErrNothingToSave) {
				printInfo("Nothing to save: %v", err)
				return eng.Report(), nil
			}
			return eng.Report(), err
		}
		printVerbose("Manifest written to %s", path)
	}
	return eng.Report(), nil
}

// engineOptions builds engine options from the configuration, sizing the
// hasher pools for this machine unless they are set explicitly.
func engineOptions(cfg *config.Config) (engine.Options, error) {
	threshold, err := cfg.ThresholdBytes()
	if err != nil {
		return engine.Options{}, err
	}

	resources, err := tuner.Detect()
	if err != nil {
		printVerbose("Failed to detect system resources, using defaults: %v", err)
		resources = tuner.SystemResources{CPUCores: 4, TotalRAM: 8 * types.GiB, AvailableRAM: 4 * types.GiB}
	}
	pools := tuner.CalculateWithOverrides(resources, cfg.Workers.Small, cfg.Workers.Large)

	printVerbose("System: %d CPUs, %s RAM, %s available",
		resources.CPUCores,
		types.FormatSize(uint64(resources.TotalRAM)),
		types.FormatSize(uint64(resources.AvailableRAM)))
	printVerbose("Hasher: %d small workers, %d large workers, threshold %s",
		pools.SmallWorkers, pools.LargeWorkers, types.FormatSize(uint64(threshold)))

	return engine.Options{
		Hasher: hasher.Options{
			Threshold:        threshold,
			SmallWorkers:     pools.SmallWorkers,
			LargeWorkers:     pools.LargeWorkers,
			ProgressInterval: cfg.ProgressInterval,
		},
		Exclude:   cfg.Exclude,
		OutputDir: cfg.OutputDir,
	}, nil
}

func showProgress() bool {
	if getQuiet() || viper.GetBool("no_progress") {
		return false
	}
	return tui.IsTerminal(os.Stderr)
}

// recordHistory stores a summary of the run. Failures are logged only.
func recordHistory(cfg *config.Config, result *output.Result, runErr error) {
	if !cfg.History.Enabled || viper.GetBool("no_history") {
		return
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Warn("history unavailable", "path", cfg.History.Path, "error", err)
		return
	}
	defer store.Close()

	entry := history.FromResult(result, runErr)
	if err := store.Log(entry); err != nil {
		logger.Warn("failed to record run", "error", err)
		return
	}
	logger.Debug("run recorded", "id", entry.ID)
}
