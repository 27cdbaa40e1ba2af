// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShinnosukeUesaka/opt-com/services/llm"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/agent"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/handlers"
)

// SetupRoutes registers every endpoint of the optimizer service.
//
// speech may be nil when no provider credential is configured; the TTS
// handler then answers 500 with a fixed detail instead of letting
// clients discover the missing credential through provider errors.
func SetupRoutes(router *gin.Engine, client llm.LLMClient, speech llm.SpeechClient,
	counter agent.TokenCounter) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	streaming := handlers.NewStreamingHandler(client, counter)

	// API group, path-compatible with existing visualizer clients
	api := router.Group("/api")
	{
		api.POST("/run", handlers.HandleRun(client, counter))
		api.POST("/run/stream", streaming.HandleRunStream)
		api.POST("/optimize", handlers.HandleOptimize(client, counter))
		api.POST("/optimize/stream", streaming.HandleOptimizeStream)
		api.POST("/tts", handlers.HandleTTS(speech))
	}
}
