package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/config"
	"github.com/companionos/companion/internal/llm"
)

// NewModelBackend returns the Ollama client and checks in the background
// that the configured model is pulled. A missing model only logs a warning.
func NewModelBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) *llm.OllamaClient {
	client := llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel)

	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.BootstrapTimeoutSeconds)*time.Second)
		defer cancel()

		models, err := client.Models(warmupCtx)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.OllamaURL).Msg("model backend unreachable at startup")
			return
		}
		for _, want := range []string{cfg.OllamaModel, cfg.JudgeModel} {
			if !contains(models, want) {
				log.Warn().Str("model", want).Strs("available", models).Msg("model not pulled on backend")
			}
		}
	}()
	return client
}

func contains(list []string, want string) bool {
	for _, m := range list {
		if m == want || m == want+":latest" {
			return true
		}
	}
	return false
}
