package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir|glob>",
	Short: "Convert every zipped shapefile in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("convert"); err != nil {
			return err
		}

		opts, err := convertFlags(cmd)
		if err != nil {
			return err
		}
		opts.Out = ""
		opts.OutDir, _ = cmd.Flags().GetString("out-dir")
		opts.RemoveOverlap, _ = cmd.Flags().GetBool("remove-overlap")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		inputs, err := collectInputs(args[0])
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg, envOptions{Journal: true})
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := processBatch(ctx, inputs, concurrency, func(ctx context.Context, src string) (*convertResult, error) {
			o := opts
			// Each input gets its own output name and table.
			o.Table = ""
			return convertFile(ctx, e, src, o)
		})
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d conversions failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

func init() {
	addConvertFlags(batchCmd)
	batchCmd.Flags().String("out-dir", ".", "directory for the converted files")
	batchCmd.Flags().Int("concurrency", 0, "conversions in parallel (default from config)")
	batchCmd.Flags().Bool("remove-overlap", false, "remove overlaps before exporting")
	_ = batchCmd.Flags().MarkHidden("out")
	_ = batchCmd.Flags().MarkHidden("journal")
	rootCmd.AddCommand(batchCmd)
}

// collectInputs expands arg into the .zip files to convert: every .zip in a
// directory (not recursive), or the matches of a glob.
func collectInputs(arg string) ([]string, error) {
	var matches []string
	if fi, err := os.Stat(arg); err == nil && fi.IsDir() {
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read %s", arg)
		}
		for _, ent := range entries {
			if !ent.IsDir() && strings.EqualFold(filepath.Ext(ent.Name()), ".zip") {
				matches = append(matches, filepath.Join(arg, ent.Name()))
			}
		}
	} else {
		m, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: bad pattern %q", arg)
		}
		matches = m
	}
	sort.Strings(matches)
	return matches, nil
}

// convertFunc runs one conversion.
type convertFunc func(ctx context.Context, src string) (*convertResult, error)

// batchSummary counts the outcomes of a batch.
type batchSummary struct {
	Total     int
	Succeeded int
	Failed    int
}

// processBatch converts inputs concurrently. A failed input is logged and
// counted but never stops the others.
func processBatch(ctx context.Context, inputs []string, concurrency int, convert convertFunc) (batchSummary, error) {
	sum := batchSummary{Total: len(inputs)}
	if len(inputs) == 0 {
		zap.L().Info("no inputs found")
		return sum, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("inputs", len(inputs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, src := range inputs {
		g.Go(func() error {
			log := zap.L().With(zap.String("source", src))
			if err := gctx.Err(); err != nil {
				failed.Add(1)
				return nil
			}

			res, err := convert(gctx, src)
			if err != nil {
				failed.Add(1)
				log.Error("conversion failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("conversion complete",
				zap.String("output", res.Path),
				zap.Int("features", res.Features),
				zap.Int64("bytes", res.Bytes),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "batch processing")
	}

	sum.Succeeded = int(succeeded.Load())
	sum.Failed = int(failed.Load())
	zap.L().Info("batch complete",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
