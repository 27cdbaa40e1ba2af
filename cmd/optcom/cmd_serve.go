// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShinnosukeUesaka/opt-com/services/optimizer"
)

func runServeCommand(cmd *cobra.Command, args []string) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := optimizer.Config{
		Port:          servePort,
		LLMBackend:    serveBackend,
		Model:         serveModel,
		GinMode:       serveGinMode,
		EnableMetrics: serveMetrics,
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

	if err := svc.Run(); err != nil {
		log.Fatalf("Optimizer error: %v", err)
	}
}
