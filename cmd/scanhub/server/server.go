package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"scanhub/api/routes"
	"scanhub/internal/app"
	"scanhub/pkg/logger"
)

type ServerOpts struct {
	Port            int
	Ip              string
	ShutdownTimeout time.Duration
}

func NewServerCommand() *cobra.Command {
	ServerConfig := &ServerOpts{}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the scanhub server",
		Long:  `Start the scanhub REST API. Scans left unfinished by a previous run are marked failed on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, log, err := app.LoadFromFlags(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = ServerConfig.Port
			}

			undo, err := maxprocs.Set(maxprocs.Logger(log.Debugf))
			defer undo()
			if err != nil {
				log.WithError(err).Warn("Failed to set GOMAXPROCS")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log, app.WithCatalogWatch())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return run(ctx, a, ServerConfig)
		},
	}

	serverCmd.Flags().IntVarP(&ServerConfig.Port, "port", "p", 8080, "Port to run the server on")
	serverCmd.Flags().StringVarP(&ServerConfig.Ip, "ip", "i", "", "IP address to bind the server to")
	serverCmd.Flags().DurationVar(&ServerConfig.ShutdownTimeout, "shutdown-timeout", 20*time.Second, "Time allowed for in-flight requests on shutdown")

	return serverCmd
}

func run(ctx context.Context, a *app.App, opts *ServerOpts) error {
	log := a.Logger

	recovered, err := a.ScanService.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted scans: %w", err)
	}
	if recovered > 0 {
		log.WithFields(logger.Fields{"scans": recovered}).Warn("Marked interrupted scans as failed")
	}

	if !log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.InitRouter(routes.RouterDeps{
		ScanService: a.ScanService,
		VulnService: a.VulnService,
		ToolService: a.ToolService,
		Logger:      log,
		CORSOrigins: a.Config.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Ip, a.Config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithFields(logger.Fields{"addr": srv.Addr}).Info("Server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}
