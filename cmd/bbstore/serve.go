package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jkassis/bbstore/internal/admin"
	"github.com/jkassis/bbstore/internal/msg"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the store, replay stored messages and serve the admin endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("admin-addr", ":9090", "admin listen address")
	serveCmd.Flags().Duration("ws-interval", time.Second, "websocket feed interval")
	_ = viper.BindPFlag("admin-addr", serveCmd.Flags().Lookup("admin-addr"))
	_ = viper.BindPFlag("ws-interval", serveCmd.Flags().Lookup("ws-interval"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Shutdown(); err != nil {
			logger.Error("Store shutdown failed", zap.Error(err))
		}
	}()

	n, err := s.Load(ctx, func(m *msg.Msg) {
		logger.Debug("Replaying stored message",
			zap.String("msgID", m.SMS.ID.String()),
			zap.String("type", m.SMS.SMSType.String()),
		)
	})
	if err != nil {
		logger.Error("Store load incomplete", zap.Error(err))
	}
	logger.Info("Store ready", zap.Int("replayed", n), zap.Int64("outstanding", s.Messages()))

	srv := &http.Server{
		Addr:              viper.GetString("admin-addr"),
		Handler:           admin.ServerMake(s, logger, viper.GetDuration("ws-interval")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("Admin server started", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
