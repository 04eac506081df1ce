// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	internal_type "github.com/rapidaai/checkin/internal/type"
	"github.com/rapidaai/checkin/pkg/commons"
)

// AudioClient is the authenticated REST surface of the check-in service:
// multipart upload, listing for cold-start hydration, and the audio byte
// stream for server-held recordings.
type AudioClient struct {
	logger commons.Logger
	http   *resty.Client
	base   string
}

// NewAudioClient builds a client against baseURL with bearer authentication.
// The timeout bounds every request, including uploads.
func NewAudioClient(logger commons.Logger, baseURL, accessToken string, timeout time.Duration) *AudioClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(accessToken).
		SetTimeout(timeout)

	return &AudioClient{
		logger: logger,
		http:   httpClient,
		base:   baseURL,
	}
}

// recordingPayload is the wire shape shared by the upload response and the
// listing entries. Server ids are numeric; json.Number keeps them lossless.
type recordingPayload struct {
	ID                  json.Number `json:"id"`
	Transcription       string      `json:"transcription"`
	TranscriptionStatus string      `json:"transcriptionStatus"`
	AnalysisStatus      string      `json:"analysisStatus"`
	RiskLevel           string      `json:"riskLevel"`
	AudioFilePath       string      `json:"audioFilePath"`
	DurationSeconds     int         `json:"durationSeconds"`
	Description         string      `json:"description"`
	MoodRating          int         `json:"moodRating"`
	CreatedAt           time.Time   `json:"createdAt"`
}

// Upload posts the audio bytes plus metadata as a multipart request and
// returns the server acknowledgment. Failures are classified into a typed
// *internal_type.UploadError.
func (c *AudioClient) Upload(ctx context.Context, body io.Reader, filename, description string, moodRating int) (*internal_type.UploadResult, error) {
	start := time.Now()
	var payload recordingPayload

	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, body).
		SetFormData(map[string]string{
			"description": description,
			"mood_rating": fmt.Sprintf("%d", moodRating),
		}).
		SetResult(&payload).
		Post("/audio/upload")
	if err != nil {
		return nil, internal_type.NewUploadError(classifyTransportError(err), err)
	}
	if resp.IsError() {
		return nil, internal_type.NewUploadError(
			classifyStatus(resp.StatusCode()),
			fmt.Errorf("upload rejected: %s", resp.Status()),
		)
	}

	c.logger.Benchmark("AudioClient.Upload", time.Since(start))
	return &internal_type.UploadResult{
		ServerID:      payload.ID.String(),
		Transcription: payload.Transcription,
		RiskLevel:     payload.RiskLevel,
		InitialStatus: payload.TranscriptionStatus,
		AudioFilePath: payload.AudioFilePath,
		CreatedAt:     payload.CreatedAt,
	}, nil
}

// List fetches the server-side recording summaries used to hydrate the store
// on cold start. The server returns them ordered newest first.
func (c *AudioClient) List(ctx context.Context) ([]internal_type.RecordingSummary, error) {
	var payload []recordingPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/audio/list")
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing recordings: %s", resp.Status())
	}

	summaries := make([]internal_type.RecordingSummary, 0, len(payload))
	for _, p := range payload {
		summaries = append(summaries, internal_type.RecordingSummary{
			ID:                  p.ID.String(),
			Transcription:       p.Transcription,
			TranscriptionStatus: p.TranscriptionStatus,
			AnalysisStatus:      p.AnalysisStatus,
			RiskLevel:           p.RiskLevel,
			DurationSeconds:     p.DurationSeconds,
			Description:         p.Description,
			MoodRating:          p.MoodRating,
			AudioFilePath:       p.AudioFilePath,
			CreatedAt:           p.CreatedAt,
		})
	}
	return summaries, nil
}

// Stream fetches the audio bytes of a server-held recording.
func (c *AudioClient) Stream(ctx context.Context, serverID string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/audio/%s/stream", serverID))
	if err != nil {
		return nil, fmt.Errorf("streaming recording %s: %w", serverID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("streaming recording %s: %s", serverID, resp.Status())
	}
	return resp.Body(), nil
}

// WebsocketURL derives the progress channel endpoint from the REST base URL:
// the scheme is upgraded (http→ws, https→wss) and the user id and access
// token are carried in the path and query.
func (c *AudioClient) WebsocketURL(userID uint64, accessToken string) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("/ws/%d", userID)
	q := u.Query()
	q.Set("token", accessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func classifyTransportError(err error) internal_type.UploadFailureReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return internal_type.UploadFailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return internal_type.UploadFailureTimeout
	}
	return internal_type.UploadFailureNetwork
}

func classifyStatus(code int) internal_type.UploadFailureReason {
	switch {
	case code == http.StatusRequestEntityTooLarge:
		return internal_type.UploadFailureTooLarge
	case code == http.StatusUnsupportedMediaType:
		return internal_type.UploadFailureUnsupported
	case code >= 500:
		return internal_type.UploadFailureServer
	default:
		return internal_type.UploadFailureClient
	}
}
