package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/killallgit/composer/pkg/config"
	"github.com/killallgit/composer/pkg/controllers"
	"github.com/killallgit/composer/pkg/headless"
	"github.com/killallgit/composer/pkg/logger"
	"github.com/killallgit/composer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// AppConfig contains all configuration needed to run the application
type AppConfig struct {
	Config      *config.Config
	Prompt      string
	Attachments []string
	In          io.Reader
	Out         io.Writer
	ErrOut      io.Writer
}

// RunApplication is the main entry point for the application logic
func RunApplication(ctx context.Context, appCfg *AppConfig) error {
	log := logger.WithComponent("app")
	log.Info("Application starting")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if addr := appCfg.Config.Metrics.Addr; addr != "" {
		srv, err := metrics.Listen(addr, reg)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	session, err := controllers.Initialize(ctx, &controllers.InitConfig{
		Config:  appCfg.Config,
		Metrics: m,
		AuthRedirect: func(status int) {
			log.Warn("Backend requested a new login", "status_code", status)
			fmt.Fprintln(appCfg.ErrOut, "Your session has expired. Sign in again and retry.")
		},
	})
	if err != nil {
		return err
	}

	err = headless.Run(ctx, session, headless.Options{
		Prompt:      appCfg.Prompt,
		Attachments: appCfg.Attachments,
		In:          appCfg.In,
		Out:         appCfg.Out,
		ErrOut:      appCfg.ErrOut,
	})

	log.Info("Application shutting down")
	return err
}
