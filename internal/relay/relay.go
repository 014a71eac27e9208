// Package relay serves upstream HLS manifests and segments from the
// application origin so browsers never talk to the media server directly.
package relay

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chapelmedia/broadcastd/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Handler proxies GET requests for a path suffix to the upstream HLS
// endpoint. It holds no session state; every request is an independent
// upstream fetch.
type Handler struct {
	upstream *url.URL
	client   *http.Client
	logger   *slog.Logger
}

// New creates a relay handler for the given upstream base URL, for example
// "http://127.0.0.1:8888/live". The request path below the mount point is
// appended to the base.
func New(upstreamBase string, timeout time.Duration, logger *slog.Logger) (*Handler, error) {
	base, err := url.Parse(upstreamBase)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		upstream: base,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

// ServeHTTP fetches the upstream object named by the "path" wildcard and
// streams it back with caching disabled.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		metrics.RelayRequests.WithLabelValues("rejected").Inc()
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := h.upstream.JoinPath(r.PathValue("path"))
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), nil)
	if err != nil {
		metrics.RelayRequests.WithLabelValues("error").Inc()
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug("Upstream fetch failed", "path", r.PathValue("path"), "error", err)
		metrics.RelayRequests.WithLabelValues("error").Inc()
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Player seeks and tab closes abort segment downloads mid-copy.
		h.logger.Debug("Relay copy interrupted", "path", r.PathValue("path"), "error", err)
	}
	metrics.RelayRequests.WithLabelValues(statusClass(resp.StatusCode)).Inc()
}

func statusClass(code int) string {
	if code >= 200 && code <= 299 {
		return "ok"
	}
	return "upstream_error"
}
