// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/checkin/internal/type"
	"github.com/rapidaai/checkin/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-client"),
		commons.Level("error"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *AudioClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAudioClient(newTestLogger(t), srv.URL, "token-abc", 5*time.Second)
}

func TestUploadSendsMultipartFieldsAndAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/audio/upload", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a rough day", r.FormValue("description"))
		assert.Equal(t, "4", r.FormValue("mood_rating"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "clip.wav", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "wav-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 9001,
			"transcription": "a rough day indeed",
			"transcriptionStatus": "completed",
			"riskLevel": "low",
			"audioFilePath": "/audio/9001.wav"
		}`))
	})

	result, err := c.Upload(context.Background(),
		strings.NewReader("wav-bytes"), "clip.wav", "a rough day", 4)
	require.NoError(t, err)

	assert.Equal(t, "9001", result.ServerID, "numeric server id survives as a string")
	assert.Equal(t, "a rough day indeed", result.Transcription)
	assert.Equal(t, internal_type.StatusCompleted, result.InitialStatus)
	assert.Equal(t, internal_type.RiskLow, result.RiskLevel)
}

func TestUploadStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		reason internal_type.UploadFailureReason
	}{
		{"payload too large", http.StatusRequestEntityTooLarge, internal_type.UploadFailureTooLarge},
		{"unsupported media", http.StatusUnsupportedMediaType, internal_type.UploadFailureUnsupported},
		{"server error", http.StatusInternalServerError, internal_type.UploadFailureServer},
		{"bad gateway", http.StatusBadGateway, internal_type.UploadFailureServer},
		{"unauthorized", http.StatusUnauthorized, internal_type.UploadFailureClient},
		{"not found", http.StatusNotFound, internal_type.UploadFailureClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			})

			_, err := c.Upload(context.Background(), strings.NewReader("x"), "clip.wav", "", 5)
			var uploadErr *internal_type.UploadError
			require.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, tt.reason, uploadErr.Reason)
		})
	}
}

func TestUploadTimeoutClassifiedAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	c := NewAudioClient(newTestLogger(t), srv.URL, "token", 20*time.Millisecond)

	_, err := c.Upload(context.Background(), strings.NewReader("x"), "clip.wav", "", 5)
	var uploadErr *internal_type.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, internal_type.UploadFailureTimeout, uploadErr.Reason)
}

func TestUploadConnectionRefusedIsNetworkFailure(t *testing.T) {
	c := NewAudioClient(newTestLogger(t), "http://127.0.0.1:1", "token", time.Second)

	_, err := c.Upload(context.Background(), strings.NewReader("x"), "clip.wav", "", 5)
	var uploadErr *internal_type.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, internal_type.UploadFailureNetwork, uploadErr.Reason)
}

func TestListParsesSummaries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/list", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 12, "transcription": "newer", "transcriptionStatus": "completed",
			 "analysisStatus": "completed", "riskLevel": "medium",
			 "durationSeconds": 42, "moodRating": 6,
			 "createdAt": "2026-08-20T10:00:00Z"},
			{"id": 11, "transcription": "older", "transcriptionStatus": "completed",
			 "analysisStatus": "processing", "riskLevel": "",
			 "durationSeconds": 7, "moodRating": 8,
			 "createdAt": "2026-08-19T10:00:00Z"}
		]`))
	})

	summaries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "12", summaries[0].ID)
	assert.Equal(t, "newer", summaries[0].Transcription)
	assert.Equal(t, internal_type.RiskMedium, summaries[0].RiskLevel)
	assert.Equal(t, 42, summaries[0].DurationSeconds)
	assert.Equal(t, "11", summaries[1].ID)
	assert.Equal(t, internal_type.StatusProcessing, summaries[1].AnalysisStatus)
}

func TestListServerErrorPropagates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.List(context.Background())
	assert.Error(t, err)
}

func TestStreamReturnsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/55/stream", r.URL.Path)
		w.Write([]byte("riff-bytes"))
	})

	data, err := c.Stream(context.Background(), "55")
	require.NoError(t, err)
	assert.Equal(t, "riff-bytes", string(data))
}

func TestWebsocketURLDerivation(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"http upgrades to ws", "http://api.example.com:8080", "ws://api.example.com:8080/ws/42?token=tok"},
		{"https upgrades to wss", "https://api.example.com", "wss://api.example.com/ws/42?token=tok"},
		{"base path is replaced", "http://api.example.com/v1", "ws://api.example.com/ws/42?token=tok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewAudioClient(newTestLogger(t), tt.base, "tok", time.Second)
			got, err := c.WebsocketURL(42, "tok")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
