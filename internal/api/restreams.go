package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/chapelmedia/broadcastd/internal/api/models"
	"github.com/chapelmedia/broadcastd/internal/restream"
)

const timeFormat = time.RFC3339

// registerRestreamRoutes registers the restream status and operator action
// endpoints.
func (s *Server) registerRestreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-restreams",
		Method:      http.MethodGet,
		Path:        "/api/restream",
		Summary:     "Restream Status",
		Description: "Per-platform restream lifecycle status",
		Tags:        []string{"restream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.RestreamListResponse, error) {
		return s.restreamList(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-restream",
		Method:      http.MethodPost,
		Path:        "/api/restream/start",
		Summary:     "Start Restreaming",
		Description: "Run the start protocol for one platform, or every enabled platform when platform_id is omitted. Already-running platforms are skipped.",
		Tags:        []string{"restream"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.RestreamActionRequest) (*models.RestreamListResponse, error) {
		if input.Body.PlatformID != "" {
			if err := s.options.Supervisor.Start(input.Body.PlatformID); err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
		} else {
			s.options.Supervisor.StartAll()
		}
		return s.restreamList(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-restream",
		Method:      http.MethodPost,
		Path:        "/api/restream/stop",
		Summary:     "Stop Restreaming",
		Description: "Gracefully stop one platform's encoder, or all of them when platform_id is omitted. A deliberate stop always lands on idle.",
		Tags:        []string{"restream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.RestreamActionRequest) (*models.RestreamListResponse, error) {
		if input.Body.PlatformID != "" {
			s.options.Supervisor.Stop(input.Body.PlatformID)
		} else {
			s.options.Supervisor.StopAll()
		}
		return s.restreamList(), nil
	})
}

func (s *Server) restreamList() *models.RestreamListResponse {
	records := s.options.Supervisor.Statuses()
	out := make([]models.RestreamStatusData, len(records))
	for i, r := range records {
		out[i] = statusToAPI(r)
	}
	return &models.RestreamListResponse{
		Body: models.RestreamListData{Restreams: out, Count: len(out)},
	}
}

func statusToAPI(r restream.StatusRecord) models.RestreamStatusData {
	data := models.RestreamStatusData{
		PlatformID:   r.PlatformID,
		Status:       r.Status,
		ErrorMessage: r.ErrorMessage,
	}
	if r.StartedAt != nil {
		data.StartedAt = r.StartedAt.Format(timeFormat)
	}
	if r.StoppedAt != nil {
		data.StoppedAt = r.StoppedAt.Format(timeFormat)
	}
	return data
}
