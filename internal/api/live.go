package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/chapelmedia/broadcastd/internal/api/models"
	"github.com/chapelmedia/broadcastd/internal/liveness"
)

// registerLiveRoutes registers the public liveness status endpoint and the
// privileged broadcast info update.
func (s *Server) registerLiveRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-live-status",
		Method:      http.MethodGet,
		Path:        "/api/live",
		Summary:     "Live Status",
		Description: "Current broadcast liveness and metadata. Polled by the public site.",
		Tags:        []string{"live"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.LiveStatusResponse, error) {
		status := s.options.Detector.Status(ctx)
		info := s.options.InfoStore.Get()

		data := models.LiveStatusData{
			IsLive:       status.IsLive,
			Title:        info.Title,
			Description:  info.Description,
			ThumbnailURL: info.ThumbnailURL,
		}
		// Playback URL and session start only exist while live.
		if status.IsLive {
			data.HLSURL = s.options.RelayBasePath + "/index.m3u8"
			if info.StartedAt != nil {
				data.StartedAt = info.StartedAt.Format(time.RFC3339)
			}
		}
		return &models.LiveStatusResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-live-info",
		Method:      http.MethodPatch,
		Path:        "/api/live",
		Summary:     "Update Broadcast Info",
		Description: "Partially update broadcast title, description, or thumbnail. Liveness itself is derived from the upstream feed and cannot be set.",
		Tags:        []string{"live"},
		Errors:      []int{401, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.LiveUpdateRequest) (*models.LiveStatusResponse, error) {
		info, err := s.options.InfoStore.Update(liveness.InfoUpdate{
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			ThumbnailURL: input.Body.ThumbnailURL,
		})
		if err != nil {
			s.logger.Error("Failed to update broadcast info", "error", err)
			return nil, huma.Error500InternalServerError("failed to persist broadcast info")
		}

		status := s.options.Detector.Status(ctx)
		data := models.LiveStatusData{
			IsLive:       status.IsLive,
			Title:        info.Title,
			Description:  info.Description,
			ThumbnailURL: info.ThumbnailURL,
		}
		if status.IsLive {
			data.HLSURL = s.options.RelayBasePath + "/index.m3u8"
			if info.StartedAt != nil {
				data.StartedAt = info.StartedAt.Format(time.RFC3339)
			}
		}
		return &models.LiveStatusResponse{Body: data}, nil
	})
}
