package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/format"
)

var exportCmd = &cobra.Command{
	Use:   "export <src>",
	Short: "Convert a dataset to another format",
	Long:  "Reads a zipped shapefile (local path or http, https or ftp URL) and writes it as geojson, topojson, wkt, kml, sql, parquet or xlsx.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args[0], false)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean <src>",
	Short: "Remove overlaps between features, then export",
	Long:  "Trims each polygon by every earlier polygon it intersects so no area is covered twice, then writes the result like export.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args[0], true)
	},
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, cleanCmd} {
		addConvertFlags(c)
		rootCmd.AddCommand(c)
	}
}

func addConvertFlags(c *cobra.Command) {
	c.Flags().StringP("format", "f", "geojson", "output format")
	c.Flags().String("input-format", "", "declared input format (default derived from the file name)")
	c.Flags().String("crs", "", "working CRS; sources in another CRS are reprojected into it")
	c.Flags().String("target-crs", "", "CRS of the exported coordinates (default per format)")
	c.Flags().StringP("out", "o", "", `output file ("-" for stdout, default <layer><ext>)`)
	c.Flags().Bool("topology", true, "enforce shared arcs in topojson output")
	c.Flags().String("schema", "", "target schema for sql output (default from config)")
	c.Flags().String("table", "", "target table for sql output (default the layer name)")
	c.Flags().Bool("journal", false, "record the conversion in the run journal")
}

// convertFlags reads the flags added by addConvertFlags.
func convertFlags(cmd *cobra.Command) (convertOptions, error) {
	var opts convertOptions
	f, _ := cmd.Flags().GetString("format")
	to, err := format.Parse(f)
	if err != nil {
		return opts, err
	}
	opts.To = to

	if opts.CRS, err = crsFlag(cmd, "crs"); err != nil {
		return opts, err
	}
	if opts.TargetCRS, err = crsFlag(cmd, "target-crs"); err != nil {
		return opts, err
	}
	opts.InputFormat, _ = cmd.Flags().GetString("input-format")
	opts.Out, _ = cmd.Flags().GetString("out")
	opts.Topology, _ = cmd.Flags().GetBool("topology")
	opts.Schema, _ = cmd.Flags().GetString("schema")
	opts.Table, _ = cmd.Flags().GetString("table")
	return opts, nil
}

func runConvert(cmd *cobra.Command, src string, removeOverlap bool) error {
	ctx := cmd.Context()
	if err := cfg.Validate("convert"); err != nil {
		return err
	}

	opts, err := convertFlags(cmd)
	if err != nil {
		return err
	}
	opts.RemoveOverlap = removeOverlap
	journal, _ := cmd.Flags().GetBool("journal")

	e, err := initEnv(ctx, cfg, envOptions{Journal: journal})
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := convertFile(ctx, e, src, opts)
	if err != nil {
		return err
	}

	zap.L().Info("export complete",
		zap.String("source", src),
		zap.String("format", opts.To.String()),
		zap.String("output", res.Path),
		zap.Int("features", res.Features),
		zap.Int("trimmed", res.Trimmed),
		zap.Int64("bytes", res.Bytes),
	)
	return nil
}
