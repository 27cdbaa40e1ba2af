// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package optimizer assembles the protocol optimizer service.
//
// This package contains the main Service type that coordinates all
// components of the service: HTTP routing, the LLM client, token
// counting, and Prometheus metrics.
//
// # Usage
//
//	cfg := optimizer.Config{Port: 12410, LLMBackend: "openai"}
//	svc, err := optimizer.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ShinnosukeUesaka/opt-com/services/llm"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/agent"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/observability"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/routes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the optimizer service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
//
// # Assumptions
//
//   - Service is fully initialized before Run() is called
//   - Run() is called at most once per Service instance
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds optimizer service configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables or programmatically for testing.
// All fields are optional with defaults applied by New().
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Custom port and model
//	cfg := Config{
//	    Port:  8080,
//	    Model: "gpt-4o",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12410
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "openai", "anthropic", "ollama", "fake"
	// Default: "openai"
	LLMBackend string

	// Model is the chat model used for agent turns, variation
	// generation, and token counting. Empty uses the client's own
	// default and the cl100k_base token encoding.
	Model string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: false (enabled explicitly by the server entrypoint)
	EnableMetrics bool

	// RequestTimeout bounds each request's context. Optimization runs
	// make many model calls, so keep this generous. Zero disables the
	// limit.
	RequestTimeout time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config       Config
	router       *gin.Engine
	llmClient    llm.LLMClient
	speechClient llm.SpeechClient
	counter      agent.TokenCounter
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new optimizer Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes Prometheus metrics when enabled
//  3. Creates the LLM client based on backend type
//  4. Builds the token counter for the configured model
//  5. Sets up HTTP routes
//
// The speech client is derived from the LLM client when the backend
// supports synthesis; otherwise the TTS endpoint reports the missing
// credential.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run optimizer service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the chosen provider (API keys)
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for streaming")
	}

	if err := s.initLLMClient(); err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initTokenCounter(); err != nil {
		return nil, fmt.Errorf("failed to initialize token counter: %w", err)
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting optimizer server",
		"port", s.config.Port,
		"backend", s.config.LLMBackend,
	)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12410
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	return cfg
}

// initLLMClient initializes the LLM provider client.
//
// The openai backend also serves speech synthesis with the same
// credential. Every other backend leaves speech unconfigured.
func (s *service) initLLMClient() error {
	switch s.config.LLMBackend {
	case "openai":
		client, err := llm.NewOpenAIClientWithModel(s.config.Model)
		if err != nil {
			return err
		}
		s.llmClient = client
		slog.Info("Using OpenAI LLM backend")
	case "anthropic":
		client, err := llm.NewAnthropicClientWithModel(s.config.Model)
		if err != nil {
			return err
		}
		s.llmClient = client
		slog.Info("Using Anthropic LLM backend")
	case "ollama":
		client, err := llm.NewOllamaClientWithModel(s.config.Model)
		if err != nil {
			return err
		}
		s.llmClient = client
		slog.Info("Using Ollama LLM backend")
	case "fake":
		s.llmClient = llm.NewFakeClient()
		slog.Info("Using fake LLM backend, responses are canned")
	default:
		return fmt.Errorf("unknown LLM backend: %s", s.config.LLMBackend)
	}

	if speech, ok := s.llmClient.(llm.SpeechClient); ok {
		s.speechClient = speech
	}

	return nil
}

// initTokenCounter builds the counter that scores channel messages.
//
// tiktoken encodings are fetched and cached on first use, so the
// offline fake backend pairs with a plain word counter instead.
func (s *service) initTokenCounter() error {
	if s.config.LLMBackend == "fake" {
		s.counter = agent.NewWordCounter()
		return nil
	}

	counter, err := agent.NewTokenCounter(s.config.Model)
	if err != nil {
		return err
	}
	s.counter = counter
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	if s.config.RequestTimeout > 0 {
		s.router.Use(requestTimeout(s.config.RequestTimeout))
	}

	routes.SetupRoutes(s.router, s.llmClient, s.speechClient, s.counter)
}

// requestTimeout bounds each request's context so a stuck provider call
// cannot hold a connection forever.
func requestTimeout(limit time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), limit)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
