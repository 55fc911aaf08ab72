package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recursifist/signflow"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "signflow",
		Usage: "automated web-form signing service",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the signing API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "environment file path",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address (overrides SIGNFLOW_ADDR)",
					},
				},
				Action: serveAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := signflow.LoadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Addr = addr
	}
	cfg.InfoLog = func(ev signflow.LogEvent) {
		slog.Info(ev.Message, logAttrs(ev)...)
	}
	cfg.ErrorLog = func(ev signflow.LogEvent) {
		slog.Error(ev.Message, logAttrs(ev)...)
	}

	svc, err := signflow.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := &http.Server{Addr: cfg.Addr, Handler: svc.Handler()}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func logAttrs(ev signflow.LogEvent) []any {
	attrs := make([]any, 0, 8)
	if ev.JobID != "" {
		attrs = append(attrs, "job", ev.JobID)
	}
	if ev.Title != "" {
		attrs = append(attrs, "title", ev.Title)
	}
	if ev.Duration != nil {
		attrs = append(attrs, "duration", ev.Duration.String())
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err.Error())
	}
	return attrs
}
