package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geodata/internal/geodata"
)

var unionCmd = &cobra.Command{
	Use:   "union <src>",
	Short: "Dissolve all features into one geometry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("convert"); err != nil {
			return err
		}

		asFlag, _ := cmd.Flags().GetString("as")
		as, err := geodata.ParseUnionFormat(asFlag)
		if err != nil {
			return err
		}
		if as == geodata.UnionRaw {
			as = geodata.UnionWKT
		}
		out, _ := cmd.Flags().GetString("out")
		working, err := crsFlag(cmd, "crs")
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg, envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()

		a, cleanup, err := openSource(ctx, e, args[0], "", working)
		if err != nil {
			return eris.Wrap(err, "union")
		}
		defer cleanup()

		res, err := a.Union(ctx, as)
		if err != nil {
			return eris.Wrap(err, "union")
		}
		return writeOutput(os.Stdout, out, []byte(res.Text+"\n"))
	},
}

func init() {
	unionCmd.Flags().String("as", "wkt", "encoding of the dissolved geometry (wkt, geojson)")
	unionCmd.Flags().String("crs", "", "working CRS; sources in another CRS are reprojected into it")
	unionCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(unionCmd)
}
