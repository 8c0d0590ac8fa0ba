package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ctxengine "github.com/user/notifyr/internal/context"
	"github.com/user/notifyr/internal/gateway"
	"github.com/user/notifyr/internal/llmgen"
	"github.com/user/notifyr/internal/mirror"
	"github.com/user/notifyr/internal/normalize"
	"github.com/user/notifyr/internal/reply"
	"github.com/user/notifyr/internal/sender"
	"github.com/user/notifyr/internal/store"
	"github.com/user/notifyr/internal/telegram"
	"github.com/user/notifyr/internal/types"
	"github.com/user/notifyr/internal/webhook"
	"github.com/user/notifyr/pkg/llm"
	"github.com/user/notifyr/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the notifyr daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Core pipeline
	normalizer := normalize.New(cfg.SelfSentinel)
	st := store.New(cfg.Capacity, nil)
	tracker := reply.NewTracker(st)

	transports := sender.NewRegistry()
	policy := &sender.RetryPolicy{
		MaxAttempts:  cfg.Send.MaxAttempts,
		InitialDelay: time.Duration(cfg.Send.InitialDelayMS) * time.Millisecond,
		Multiplier:   cfg.Send.Multiplier,
		MaxDelay:     time.Duration(cfg.Send.MaxDelayMS) * time.Millisecond,
	}
	snd := sender.New(st, tracker, transports, policy, int64(cfg.Send.MaxConcurrent), cfg.Send.RatePerSecond)

	// Reply generator
	var generator types.Generator
	if cfg.LLM.APIKey != "" {
		provider := openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		engine, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
		if err != nil {
			return fmt.Errorf("create context engine: %w", err)
		}
		generator = llmgen.New(provider, engine)
	} else {
		slog.Warn("reply generation disabled (no API key)")
	}

	gw := gateway.New(normalizer, st, tracker, snd, generator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snd.Start(ctx)
	defer snd.Stop()

	slog.Info("notifyr started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"capacity", cfg.Capacity,
		"max_attempts", cfg.Send.MaxAttempts,
		"max_concurrent_sends", cfg.Send.MaxConcurrent,
	)

	// Telegram adapter: notification source and reply transport.
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw, cfg.SelfSentinel)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		transports.Register(types.PlatformTelegram, adapter)
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Mirror exporter
	if cfg.Mirror.Enabled {
		exporter := mirror.New(st, cfg.Mirror.Dir, nil)
		if err := exporter.Start(cfg.Mirror.Schedule); err != nil {
			return fmt.Errorf("start mirror exporter: %w", err)
		}
		defer exporter.Stop()
	}

	// HTTP server
	if cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: webhook.NewServer(gw),
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("shutting down", "signal", sig)
	return nil
}
