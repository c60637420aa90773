// Package api — configuration endpoints.
package api

import (
	"net/http"

	"github.com/seenimoa/retailcast/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config  config.Config         `json:"config"`
	Secrets []config.SecretStatus `json:"secrets"`
}

// handleGetConfig returns the running configuration. Secret values are
// replaced by their masked form.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    redactedConfig(s.cfg),
	})
}

func redactedConfig(cfg *config.Config) ConfigResponse {
	secrets := config.CheckSecrets(cfg)
	c := *cfg
	c.Storage.PostgresDSN = ""
	for _, sec := range secrets {
		if sec.Name == config.SecretPostgresDSN {
			c.Storage.PostgresDSN = sec.Masked
		}
	}
	return ConfigResponse{Config: c, Secrets: secrets}
}
