package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/geodata"
)

var infoCmd = &cobra.Command{
	Use:   "info <src>",
	Short: "Describe a dataset: CRS, feature count, geometry types, bounds and fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("convert"); err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		inFormat, _ := cmd.Flags().GetString("input-format")
		working, err := crsFlag(cmd, "crs")
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg, envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()

		a, cleanup, err := openSource(ctx, e, args[0], inFormat, working)
		if err != nil {
			return eris.Wrap(err, "info")
		}
		defer cleanup()

		sum, err := a.Summary(ctx)
		if err != nil {
			return eris.Wrap(err, "info")
		}
		return writeSummary(os.Stdout, sum, output)
	},
}

func init() {
	infoCmd.Flags().StringP("output", "o", "yaml", "output format (yaml, json)")
	infoCmd.Flags().String("input-format", "", "declared input format (default derived from the file name)")
	infoCmd.Flags().String("crs", "", "working CRS; sources in another CRS are reprojected into it")
	rootCmd.AddCommand(infoCmd)
}

func writeSummary(w io.Writer, sum *geodata.Summary, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(sum)
	default:
		return eris.Errorf("unknown output %q (want yaml or json)", output)
	}
}

// crsFlag parses a CRS flag; empty yields the zero CRS.
func crsFlag(cmd *cobra.Command, name string) (crs.CRS, error) {
	v, _ := cmd.Flags().GetString(name)
	c, err := crs.Parse(v)
	if err != nil {
		return crs.CRS{}, eris.Wrapf(err, "--%s", name)
	}
	return c, nil
}
