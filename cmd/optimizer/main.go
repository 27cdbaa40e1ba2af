// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command optimizer starts the protocol optimizer HTTP server.
//
// This is the main entry point for the containerized optimizer service.
// It reads configuration from environment variables and starts the
// server.
//
// # Environment Variables
//
//   - OPTIMIZER_PORT: HTTP server port (default: 12410)
//   - LLM_BACKEND_TYPE: LLM provider - openai, anthropic, ollama, fake
//     (default: openai)
//   - OPENAI_MODEL: chat model for agent turns (default: gpt-4o-mini)
//   - OPENAI_API_KEY: provider credential, /run/secrets fallback
//   - ANTHROPIC_MODEL, ANTHROPIC_API_KEY: same for the anthropic backend
//   - OLLAMA_MODEL, OLLAMA_BASE_URL: same for the ollama backend
//   - REQUEST_TIMEOUT_SECONDS: per-request budget (default: 600)
//   - GIN_MODE: gin framework mode (debug, release, test)
//
// # Usage
//
//	# Build
//	go build -o optimizer ./cmd/optimizer
//
//	# Run
//	./optimizer
//
//	# Offline demo without credentials
//	LLM_BACKEND_TYPE=fake ./optimizer
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/ShinnosukeUesaka/opt-com/services/optimizer"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := optimizer.Config{
		Port:           getEnvInt("OPTIMIZER_PORT", 12410),
		LLMBackend:     getEnvString("LLM_BACKEND_TYPE", "openai"),
		Model:          os.Getenv("OPENAI_MODEL"),
		GinMode:        os.Getenv("GIN_MODE"),
		EnableMetrics:  true,
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 600)) * time.Second,
	}

	slog.Info("Starting optimizer",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"model", cfg.Model,
	)

	svc, err := optimizer.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create optimizer: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Optimizer error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
