package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/chapelmedia/broadcastd/internal/api/models"
	"github.com/chapelmedia/broadcastd/internal/restream"
	"github.com/chapelmedia/broadcastd/internal/vault"
)

// registerPlatformRoutes registers platform configuration endpoints. Secrets
// leave the server masked and arrive either masked (unchanged) or plaintext
// (freshly encrypted before storage).
func (s *Server) registerPlatformRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-platforms",
		Method:      http.MethodGet,
		Path:        "/api/platforms",
		Summary:     "List Platforms",
		Description: "All restream platforms with masked credentials",
		Tags:        []string{"platforms"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.PlatformListResponse, error) {
		platforms := s.options.Platforms.List()
		out := make([]models.PlatformData, len(platforms))
		for i, p := range platforms {
			out[i] = s.platformToAPI(p)
		}
		return &models.PlatformListResponse{
			Body: models.PlatformListData{Platforms: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-platform",
		Method:      http.MethodPatch,
		Path:        "/api/platforms/{platform_id}",
		Summary:     "Update Platform",
		Description: "Partially update one platform. Secret values beginning with the mask marker are left unchanged; any other value is encrypted before storage.",
		Tags:        []string{"platforms"},
		Errors:      []int{401, 404, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.PlatformUpdateRequest) (*models.PlatformResponse, error) {
		update := restream.PlatformUpdate{
			Enabled:   input.Body.Enabled,
			RTMPURL:   input.Body.RTMPURL,
			ChannelID: input.Body.ChannelID,
		}

		var err error
		if update.StreamKey, err = s.encryptSecret(input.Body.StreamKey); err != nil {
			return nil, huma.Error500InternalServerError("failed to encrypt stream key")
		}
		if update.APIKey, err = s.encryptSecret(input.Body.APIKey); err != nil {
			return nil, huma.Error500InternalServerError("failed to encrypt API key")
		}

		p, err := s.options.Platforms.Update(input.PlatformID, update)
		if err != nil {
			if _, ok := s.options.Platforms.Get(input.PlatformID); !ok {
				return nil, huma.Error404NotFound("unknown platform")
			}
			s.logger.Error("Failed to update platform", "platform", input.PlatformID, "error", err)
			return nil, huma.Error500InternalServerError("failed to persist platform")
		}
		return &models.PlatformResponse{Body: s.platformToAPI(p)}, nil
	})
}

// encryptSecret handles the write-skip protocol: nil means not provided,
// masked means unchanged, anything else is encrypted.
func (s *Server) encryptSecret(value *string) (*string, error) {
	if value == nil || vault.IsMasked(*value) {
		return nil, nil
	}
	if *value == "" {
		// An explicit empty string clears the secret.
		empty := ""
		return &empty, nil
	}
	encrypted, err := s.options.Vault.Encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &encrypted, nil
}

func (s *Server) platformToAPI(p restream.Platform) models.PlatformData {
	data := models.PlatformData{
		ID:        p.ID,
		Name:      p.Name,
		Enabled:   p.Enabled,
		RTMPURL:   p.RTMPURL,
		ChannelID: p.ChannelID,
	}
	if p.StreamKey != "" {
		data.StreamKey = s.options.Vault.Mask(p.StreamKey)
	}
	if p.APIKey != "" {
		data.APIKey = s.options.Vault.Mask(p.APIKey)
	}
	return data
}
