// Package api exposes the HTTP surface: the public liveness endpoint, the
// privileged administration API, the HLS relay mount, the websocket
// gateway, SSE streams, and Prometheus metrics.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/chapelmedia/broadcastd/internal/api/models"
	"github.com/chapelmedia/broadcastd/internal/events"
	"github.com/chapelmedia/broadcastd/internal/liveness"
	"github.com/chapelmedia/broadcastd/internal/logging"
	"github.com/chapelmedia/broadcastd/internal/restream"
	"github.com/chapelmedia/broadcastd/internal/vault"
	"github.com/chapelmedia/broadcastd/internal/version"
)

// Options carries the dependencies and settings for the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Detector   *liveness.Detector
	InfoStore  *liveness.InfoStore
	Platforms  *restream.PlatformStore
	Supervisor *restream.Supervisor
	Vault      *vault.Vault
	EventBus   *events.Bus

	// RelayHandler serves /live/hls/{path...} on the raw mux.
	RelayHandler http.Handler
	// GatewayHandler serves the websocket endpoint on the raw mux.
	GatewayHandler http.Handler
	// PrometheusHandler serves /metrics when set.
	PrometheusHandler http.Handler

	// RelayBasePath is the public playback prefix. It is both the mux
	// mount for RelayHandler and the URL prefix reported by the live
	// status endpoint. Defaults to /live/hls.
	RelayBasePath string
}

// Server is the Huma v2 API server over a standard library mux.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// NewServer builds the API server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Broadcast Control API", version.Version)
	config.Info.Description = "Live broadcast control plane: liveness, restreaming, and realtime messaging"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Normalize once so the mount pattern and the playback URLs reported
	// by /api/live cannot drift apart.
	opts.RelayBasePath = strings.TrimRight(opts.RelayBasePath, "/")
	if opts.RelayBasePath == "" {
		opts.RelayBasePath = "/live/hls"
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	if opts.RelayHandler != nil {
		mux.Handle(opts.RelayBasePath+"/{path...}", opts.RelayHandler)
	}
	if opts.GatewayHandler != nil {
		mux.Handle("GET /ws", opts.GatewayHandler)
	}

	server.registerRoutes()
	server.registerLiveRoutes()
	server.registerPlatformRoutes()
	server.registerRestreamRoutes()
	server.registerSSERoutes()
	server.registerLogRoutes()

	return server
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. SSE endpoints additionally accept base64 credentials
// in the "auth" query parameter since EventSource cannot set headers.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var credentials string

		authHeader := ctx.Header("Authorization")
		if authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				ctx.SetHeader("WWW-Authenticate", `Basic realm="Broadcast API"`)
				huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid authentication type")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
			if err != nil {
				ctx.SetHeader("WWW-Authenticate", `Basic realm="Broadcast API"`)
				huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		} else if queryAuth := ctx.Query("auth"); queryAuth != "" {
			decoded, err := base64.StdEncoding.DecodeString(queryAuth)
			if err != nil {
				ctx.SetHeader("WWW-Authenticate", `Basic realm="Broadcast API"`)
				huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
				return
			}
			credentials = string(decoded)
		}

		if credentials == "" {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Broadcast API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		parts := strings.SplitN(credentials, ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Broadcast API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

// GetMux returns the underlying mux for additional setup.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on the given address and blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections; SSE and
// websocket clients reconnect on their own.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up the unauthenticated system endpoints.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})
}
