package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/db"
	"github.com/sells-group/geodata/internal/geodata"
	"github.com/sells-group/geodata/internal/store"
)

var loadCmd = &cobra.Command{
	Use:   "load <src>",
	Short: "Load a dataset into a PostGIS table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("load"); err != nil {
			return err
		}

		table, _ := cmd.Flags().GetString("table")
		schema, _ := cmd.Flags().GetString("schema")
		truncate, _ := cmd.Flags().GetBool("truncate")
		upsert, _ := cmd.Flags().GetBool("upsert")
		working, err := crsFlag(cmd, "crs")
		if err != nil {
			return err
		}
		if schema == "" {
			schema = cfg.Store.Schema
		}

		e, err := initEnv(ctx, cfg, envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()

		a, cleanup, err := openSource(ctx, e, args[0], "", working)
		if err != nil {
			return eris.Wrap(err, "load")
		}
		defer cleanup()

		ds, err := a.Dataset()
		if err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		layer := layerFromDataset(ds, table)
		n, err := store.NewPostGIS(pool, cfg.Store.BatchSize).Load(ctx, layer, store.LoadOptions{
			Schema:   schema,
			Truncate: truncate,
			Upsert:   upsert,
		})
		if err != nil {
			return err
		}

		zap.L().Info("load complete",
			zap.String("source", args[0]),
			zap.String("table", schema+"."+layer.Table),
			zap.Int64("rows", n),
		)
		return nil
	},
}

func init() {
	loadCmd.Flags().String("table", "", "target table (default derived from the layer name)")
	loadCmd.Flags().String("schema", "", "target schema (default from config)")
	loadCmd.Flags().Bool("truncate", false, "empty the table before loading")
	loadCmd.Flags().Bool("upsert", false, "update rows whose fid already exists instead of failing")
	loadCmd.Flags().String("crs", "", "working CRS; sources in another CRS are reprojected into it")
	rootCmd.AddCommand(loadCmd)
}

// layerFromDataset maps a loaded dataset onto a loader layer. An empty table
// name is derived from the dataset name.
func layerFromDataset(ds *geodata.Dataset, table string) store.Layer {
	if table == "" {
		table = geodata.TableName(ds.Name)
	}
	return store.Layer{
		Table:    table,
		Fields:   ds.Fields,
		Features: ds.Features,
		SRID:     ds.CRS.EPSG(),
	}
}
