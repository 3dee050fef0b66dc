// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/FrameworkAssistant/services/assistant"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr      string
		accessLog bool
		watch     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Long: `Serve the assistant over HTTP under /v1/assistant.

The listener starts before the catalog is loaded. Until vectors are ready,
conversation endpoints answer 503 with Retry-After; /v1/assistant/health and
/metrics are always available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				c.cfg.HTTPAddr = addr
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return c.serve(ctx, accessLog, watch)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env HTTP_ADDR)")
	cmd.Flags().BoolVar(&accessLog, "access-log", false, "log every request")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the catalog when the file changes")
	return cmd
}

// serve runs the HTTP server, the initial load and the catalog watcher
// until ctx is done or one of them fails.
func (c *cli) serve(ctx context.Context, accessLog, watch bool) error {
	logger := c.logger
	a, err := openApp(ctx, c.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}()

	if c.logLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := assistant.NewHTTPHandler(a.engine, assistant.ServerOptions{
		ServiceName: "framework-assistant",
		AccessLog:   accessLog,
	}, logger)
	srv := &http.Server{
		Addr:              c.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting assistant server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down assistant server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		start := time.Now()
		if err := a.engine.Load(gctx); err != nil {
			return err
		}
		logger.Info("catalog ready", slog.Duration("duration", time.Since(start)))
		if !watch {
			return nil
		}
		if err := a.engine.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("catalog watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})
	return g.Wait()
}
