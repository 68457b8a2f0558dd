// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// coderoomd is the collaboration server: it hosts the websocket
// endpoint, the room file workspaces, the shared terminal sessions,
// the chat history store, and the operator control socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/coderoom-dev/coderoom/filesync"
	"github.com/coderoom-dev/coderoom/history"
	"github.com/coderoom-dev/coderoom/hub"
	"github.com/coderoom-dev/coderoom/lib/clock"
	"github.com/coderoom-dev/coderoom/lib/config"
	"github.com/coderoom-dev/coderoom/lib/service"
	"github.com/coderoom-dev/coderoom/lib/version"
	"github.com/coderoom-dev/coderoom/server"
	"github.com/coderoom-dev/coderoom/terminal"
)

// shutdownGrace bounds how long draining the HTTP listener may take.
const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "coderoomd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		listen        string
		controlSocket string
		logLevel      string
		showVersion   bool
	)
	pflag.StringVar(&configPath, "config", "", "config file path (default: $CODEROOM_CONFIG)")
	pflag.StringVar(&listen, "listen", "", "override server.listen from the config")
	pflag.StringVar(&controlSocket, "control-socket", "", "override server.control_socket from the config")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println("coderoomd", version.Info())
		return nil
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if controlSocket != "" {
		cfg.Server.ControlSocket = controlSocket
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := hub.NewRegistry()
	rooms := hub.New(registry, logger)

	store := filesync.NewStore(cfg.Workspace.Root)
	engine := filesync.NewEngine(store, rooms, registry, logger)
	watcher := filesync.NewWatcher(engine, store, clock.Real(),
		cfg.Workspace.RefreshDebounce, logger)

	terminals := terminal.NewMultiplexer(terminal.Options{
		Shell:           cfg.Terminal.Shell,
		ScrollbackBytes: cfg.Terminal.ScrollbackBytes,
		Columns:         uint16(cfg.Terminal.Columns),
		Rows:            uint16(cfg.Terminal.Rows),
		WorkDir:         store.RoomDir,
	}, rooms, logger)
	rooms.OnLeave(terminals.LeaveHook())

	messages, err := history.Open(cfg.History.Database, 0, clock.Real(), logger)
	if err != nil {
		return err
	}
	defer messages.Close()

	srv := server.New(server.Options{
		Registry:    registry,
		Rooms:       rooms,
		Files:       engine,
		Terminals:   terminals,
		Messages:    messages,
		ReplayLimit: cfg.History.ReplayLimit,
		Logger:      logger,
		BaseContext: ctx,
	})

	watcherDone := make(chan error, 1)
	go func() {
		watcherDone <- watcher.Run(ctx)
	}()

	controlServer := service.NewSocketServer(cfg.Server.ControlSocket, logger)
	srv.RegisterControl(controlServer)
	controlDone := make(chan error, 1)
	go func() {
		controlDone <- controlServer.Serve(ctx)
	}()

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: srv.Handler(),
	}
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.ListenAndServe()
	}()

	logger.Info("coderoomd running",
		"version", version.Info(),
		"listen", cfg.Server.Listen,
		"control_socket", cfg.Server.ControlSocket,
		"workspace", cfg.Workspace.Root,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-httpDone:
		stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Warn("http drain incomplete", "error", err)
	}

	terminals.Shutdown()

	if err := <-controlDone; err != nil {
		logger.Error("control socket error", "error", err)
	}
	if err := <-watcherDone; err != nil {
		logger.Error("filesystem watcher error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process-wide JSON logger.
func newLogger(level string) (*slog.Logger, error) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})), nil
}
