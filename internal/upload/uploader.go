// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_upload

import (
	"context"
	"errors"
	"io"
	"time"

	internal_store "github.com/rapidaai/checkin/internal/store"
	internal_type "github.com/rapidaai/checkin/internal/type"
	"github.com/rapidaai/checkin/pkg/commons"
)

// Transport is the HTTP surface the uploader needs; satisfied by
// internal_client.AudioClient.
type Transport interface {
	Upload(ctx context.Context, body io.Reader, filename, description string, moodRating int) (*internal_type.UploadResult, error)
}

// Uploader drives one upload attempt end to end: resolve the clip bytes,
// post them, and reconcile the result into the store. When the progress
// channel is connected the server's upload_progress events drive the
// percentage; when it is not, the uploader self-simulates a monotonically
// non-decreasing percentage capped below 100 until the response arrives.
type Uploader struct {
	logger    commons.Logger
	transport Transport
	store     *internal_store.Store
	source    ClipSource

	simInterval time.Duration
	// realtime reports whether channel-driven progress is available; the
	// simulator only runs when it is not.
	realtime func() bool
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithClipSource overrides the source URI resolver.
func WithClipSource(source ClipSource) Option {
	return func(u *Uploader) { u.source = source }
}

// WithSimulateInterval overrides the simulated-progress tick (default 400ms).
func WithSimulateInterval(d time.Duration) Option {
	return func(u *Uploader) { u.simInterval = d }
}

// WithRealtime injects the channel connectivity probe.
func WithRealtime(fn func() bool) Option {
	return func(u *Uploader) { u.realtime = fn }
}

// NewUploader builds an upload pipeline writing through the given store.
func NewUploader(logger commons.Logger, transport Transport, store *internal_store.Store, opts ...Option) *Uploader {
	u := &Uploader{
		logger:      logger,
		transport:   transport,
		store:       store,
		source:      NewFileClipSource(),
		simInterval: 400 * time.Millisecond,
		realtime:    func() bool { return false },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload performs one attempt for the given record. On failure the record is
// recovered into a visible failed state (placeholder transcription, uploading
// cleared) and the typed error is returned; the record is never removed.
func (u *Uploader) Upload(ctx context.Context, rec internal_type.RecordingRecord) (*internal_type.UploadResult, error) {
	id := rec.ID.Value

	stopSim := make(chan struct{})
	if !u.realtime() {
		go u.simulateProgress(id, stopSim)
	}
	defer close(stopSim)

	body, filename, err := u.source.Open(rec.SourceURI)
	if err != nil {
		uploadErr := internal_type.NewUploadError(internal_type.UploadFailureUnsupported, err)
		u.store.MarkUploadFailed(id, uploadErr.Reason)
		return nil, uploadErr
	}
	defer body.Close()

	result, err := u.transport.Upload(ctx, body, filename, rec.Description, rec.MoodRating)
	if err != nil {
		reason := internal_type.UploadFailureNetwork
		var uploadErr *internal_type.UploadError
		if errors.As(err, &uploadErr) {
			reason = uploadErr.Reason
		}
		u.store.MarkUploadFailed(id, reason)
		return nil, err
	}

	// Reconciliation snaps progress to 100 and promotes the temporary id.
	u.store.ReconcileUploadResult(id, *result)
	u.logger.Infof("upload: %s acknowledged as %s", id, result.ServerID)
	return result, nil
}

// simulateProgress feeds the store a slowly climbing percentage while the
// request is in flight. Capped at 90 so only the real acknowledgment can
// complete the bar.
func (u *Uploader) simulateProgress(id string, stop <-chan struct{}) {
	ticker := time.NewTicker(u.simInterval)
	defer ticker.Stop()

	percent := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			percent += 7
			if percent > 90 {
				return
			}
			u.store.SetUploadProgress(id, percent)
		}
	}
}
