// Package models holds the request and response schemas for the HTTP API.
package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24" doc:"Go version used to build"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Build platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Live broadcast models
type LiveStatusData struct {
	IsLive       bool   `json:"is_live" doc:"Whether the upstream feed is live"`
	Title        string `json:"title,omitempty" example:"Sunday Service" doc:"Broadcast title"`
	Description  string `json:"description,omitempty" doc:"Broadcast description"`
	HLSURL       string `json:"hls_url,omitempty" example:"/live/hls/index.m3u8" doc:"Relay playback path, set only while live"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" doc:"Thumbnail image URL"`
	StartedAt    string `json:"started_at,omitempty" example:"2025-01-26T10:00:00Z" doc:"Session start time, set only while live"`
}

type LiveStatusResponse struct {
	Body LiveStatusData
}

// LiveUpdateData is a partial update. Liveness is derived from the upstream
// feed and is deliberately not part of this schema.
type LiveUpdateData struct {
	Title        *string `json:"title,omitempty" maxLength:"200" doc:"Broadcast title"`
	Description  *string `json:"description,omitempty" maxLength:"2000" doc:"Broadcast description"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty" maxLength:"500" doc:"Thumbnail image URL"`
}

type LiveUpdateRequest struct {
	Body LiveUpdateData
}

// Platform models
type PlatformData struct {
	ID        string `json:"id" example:"youtube" doc:"Platform identifier"`
	Name      string `json:"name" example:"YouTube" doc:"Display name"`
	Enabled   bool   `json:"enabled" doc:"Whether restreaming to this platform is enabled"`
	RTMPURL   string `json:"rtmp_url,omitempty" doc:"Ingest URL override; platform default applies when empty"`
	StreamKey string `json:"stream_key,omitempty" example:"****ab12" doc:"Masked stream key"`
	ChannelID string `json:"channel_id,omitempty" doc:"Platform channel identifier"`
	APIKey    string `json:"api_key,omitempty" example:"****cd34" doc:"Masked API key"`
}

type PlatformListData struct {
	Platforms []PlatformData `json:"platforms" doc:"All configured platforms"`
	Count     int            `json:"count" example:"2" doc:"Number of platforms"`
}

type PlatformListResponse struct {
	Body PlatformListData
}

// PlatformUpdateData is a partial update. Secret values beginning with the
// mask marker are treated as unchanged.
type PlatformUpdateData struct {
	Enabled   *bool   `json:"enabled,omitempty" doc:"Enable or disable restreaming"`
	RTMPURL   *string `json:"rtmp_url,omitempty" maxLength:"500" doc:"Ingest URL override"`
	StreamKey *string `json:"stream_key,omitempty" maxLength:"500" doc:"New stream key, stored encrypted"`
	ChannelID *string `json:"channel_id,omitempty" maxLength:"200" doc:"Platform channel identifier"`
	APIKey    *string `json:"api_key,omitempty" maxLength:"500" doc:"New API key, stored encrypted"`
}

type PlatformUpdateRequest struct {
	PlatformID string `path:"platform_id" example:"youtube" doc:"Platform identifier"`
	Body       PlatformUpdateData
}

type PlatformResponse struct {
	Body PlatformData
}

// Restream models
type RestreamStatusData struct {
	PlatformID   string `json:"platform_id" example:"youtube" doc:"Platform identifier"`
	Status       string `json:"status" example:"active" enum:"idle,active,error" doc:"Restream lifecycle status"`
	StartedAt    string `json:"started_at,omitempty" doc:"When the encoder was started"`
	StoppedAt    string `json:"stopped_at,omitempty" doc:"When the encoder last stopped"`
	ErrorMessage string `json:"error_message,omitempty" doc:"Failure detail when status is error"`
}

type RestreamListData struct {
	Restreams []RestreamStatusData `json:"restreams" doc:"Per-platform restream status"`
	Count     int                  `json:"count" example:"2" doc:"Number of platforms"`
}

type RestreamListResponse struct {
	Body RestreamListData
}

// RestreamActionData targets one platform, or every enabled platform when
// platform_id is omitted.
type RestreamActionData struct {
	PlatformID string `json:"platform_id,omitempty" example:"youtube" doc:"Platform to act on; empty means all enabled platforms"`
}

type RestreamActionRequest struct {
	Body RestreamActionData
}
