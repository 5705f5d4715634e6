package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geodata/internal/api"
	"github.com/sells-group/geodata/internal/config"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP conversion service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg, envOptions{Journal: true})
		if err != nil {
			return err
		}
		defer e.Close()

		srv := api.New(serverOptions(cfg, e))
		if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func serverOptions(c *config.Config, e *env) api.Options {
	return api.Options{
		NewAdapter:     e.NewAdapter,
		Journal:        e.Journal,
		Resolver:       e.Resolver,
		MaxUploadBytes: c.Server.MaxUploadBytes(),
		RateLimit:      c.Server.RateLimit,
		RateBurst:      c.Server.RateBurst,
		AllowedOrigins: c.Server.AllowedOrigins,
		TempDir:        c.Export.TempDir,
	}
}
