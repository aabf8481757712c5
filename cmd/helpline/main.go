// Helpline is a voice customer-service assistant. It transcribes uploaded
// questions, answers them through an ordered chain of language models that
// ends in a rule-based responder, and optionally speaks the answer back.
//
// Usage:
//
//	helpline [flags]
//	helpline --config /path/to/helpline.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nadzzz/helpline/docs"
	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/health"
	"github.com/nadzzz/helpline/internal/intake"
	"github.com/nadzzz/helpline/internal/orchestrator"
	"github.com/nadzzz/helpline/internal/responder"
	"github.com/nadzzz/helpline/internal/responder/rules"
	"github.com/nadzzz/helpline/internal/transcriber"
	httptransport "github.com/nadzzz/helpline/internal/transport/http"
	"github.com/nadzzz/helpline/internal/tts"
)

// version is set at build time via ldflags.
var version = "dev"

const janitorInterval = time.Minute

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/helpline.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("helpline %s\n", version)
		os.Exit(0)
	}

	if err := run(*configFile); err != nil {
		slog.Error("helpline failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	config.SetupLogging(cfg.Logging)
	slog.Info("helpline starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := buildTranscriber(ctx, cfg.Transcriber)
	if err != nil {
		return err
	}
	stt := transcriber.NewGateway(backend, transcriber.GatewayConfig{
		Timeout:    cfg.Transcriber.Timeout,
		Language:   cfg.Transcriber.Language,
		SampleRate: cfg.Transcriber.SampleRate,
		Channels:   cfg.Transcriber.Channels,
	})
	defer stt.Close()

	chain := responder.NewChain(buildResponders(cfg.Responder), rules.New(), cfg.Responder.Timeout)
	slog.Info("responder chain", "providers", chain.Providers())

	store, err := buildAudioStore(ctx, cfg.Storage, cfg.HTTP.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("audio store: %w", err)
	}

	hist, err := buildHistory(ctx, cfg.History)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer hist.Close()

	spool, err := intake.NewSpool(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}

	deps := orchestrator.Deps{
		Validator:    intake.NewValidator(cfg.HTTP.MaxUploadBytes),
		Spool:        spool,
		Transcriber:  stt,
		Answerer:     chain,
		History:      hist,
		HistoryTurns: cfg.History.MaxTurns,
		Language:     cfg.Transcriber.Language,
	}
	if cfg.TTS.Enabled {
		synths := buildSynthesizers(cfg.TTS)
		if len(synths) == 0 {
			slog.Warn("tts enabled but no provider is configured, replying with text only")
		} else {
			voice := tts.NewGateway(synths, store, cfg.TTS.Timeout)
			defer voice.Close()
			deps.Voice = voice
			slog.Info("tts enabled", "providers", voice.Providers(), "store", store.Name())
		}
	}
	orch := orchestrator.New(deps)

	checker := health.NewChecker(health.Info{
		STTBackend: stt.Backend(),
		Responders: chain.Providers(),
		TTSEnabled: orch.VoiceEnabled(),
	})
	checker.Register("history", hist.Ping)
	checker.Register("storage", store.Ping)

	healthServer := health.NewServer(cfg.Server.HealthPort, checker)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()
	if cfg.Server.GRPCHealthPort > 0 {
		go func() {
			if err := healthServer.ServeGRPC(ctx, cfg.Server.GRPCHealthPort); err != nil {
				slog.Error("grpc health server failed", "error", err)
			}
		}()
	}

	j := &janitor{
		spool:       spool,
		uploadTTL:   cfg.Storage.UploadTTL,
		store:       store,
		responseTTL: cfg.Storage.ResponseTTL,
		history:     hist,
	}
	go j.run(ctx, janitorInterval)

	api := httptransport.New(httptransport.Options{
		Port:           cfg.HTTP.Port,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RateLimits:     cfg.HTTP.RateLimits,
		Files:          store,
		Health:         checker,
		Version:        version,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting transport", "name", api.Name())
		errCh <- api.Listen(ctx, orch.Handle)
	}()

	checker.SetReady(true)
	slog.Info("helpline ready",
		"http_port", cfg.HTTP.Port,
		"health_port", cfg.Server.HealthPort,
		"stt", stt.Backend(),
		"tts", orch.VoiceEnabled(),
		"history", cfg.History.Backend)

	// Block until shutdown signal or transport failure.
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	checker.SetReady(false)
	if err := api.Close(); err != nil {
		slog.Error("transport close error", "name", api.Name(), "error", err)
	}
	slog.Info("helpline stopped")
	return nil
}
