package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emera/sattur/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("host"); addr != "" {
			cfg.Server.Host = addr
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, app.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer a.Close()

		h := a.Dispatcher.Health()
		logger.Info("starting sattur",
			zap.String("version", version),
			zap.Bool("ready", h.Ready),
			zap.Bool("retrieval", h.Retrieval),
			zap.Bool("curriculum", h.CurriculumExists),
		)
		return a.Server().ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntP("port", "p", 0, "Listen port (overrides config)")
}
