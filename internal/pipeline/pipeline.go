// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/checkin/config"
	internal_capture "github.com/rapidaai/checkin/internal/capture"
	internal_channel "github.com/rapidaai/checkin/internal/channel"
	internal_client "github.com/rapidaai/checkin/internal/client"
	internal_playback "github.com/rapidaai/checkin/internal/playback"
	internal_store "github.com/rapidaai/checkin/internal/store"
	internal_type "github.com/rapidaai/checkin/internal/type"
	internal_upload "github.com/rapidaai/checkin/internal/upload"
	"github.com/rapidaai/checkin/pkg/commons"
	"github.com/rapidaai/checkin/pkg/utils"
)

// Pipeline wires the check-in components together: one capture unit, one
// upload pipeline, one progress channel and one playback engine, all writing
// through a single recordings store.
type Pipeline struct {
	logger commons.Logger
	cfg    *config.AppConfig

	store    *internal_store.Store
	recorder *internal_capture.Recorder
	uploader *internal_upload.Uploader
	channel  *internal_channel.ProgressChannel
	engine   *internal_playback.Engine
	client   *internal_client.AudioClient
}

// New assembles a pipeline from configuration with the default desktop
// device adapters.
func New(logger commons.Logger, cfg *config.AppConfig) (*Pipeline, error) {
	store := internal_store.NewStore(logger)
	client := internal_client.NewAudioClient(logger, cfg.BaseURL, cfg.AccessToken, cfg.UploadTimeout)

	wsURL, err := client.WebsocketURL(cfg.UserID, cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("deriving channel url: %w", err)
	}
	channel := internal_channel.NewProgressChannel(logger, wsURL, cfg.UserID, store,
		internal_channel.WithHeartbeatInterval(cfg.HeartbeatInterval),
		internal_channel.WithReconnectDelay(cfg.ReconnectDelay),
	)

	uploader := internal_upload.NewUploader(logger, client, store,
		internal_upload.WithRealtime(channel.Connected),
	)
	recorder := internal_capture.NewRecorder(logger,
		captureDevice(cfg),
		cfg.SampleRate, cfg.Channels, cfg.RecordingDir,
	)
	engine := internal_playback.NewEngine(logger, store,
		internal_playback.NewWAVSource(client),
		internal_playback.NewPortAudioSink(),
	)

	return &Pipeline{
		logger:   logger,
		cfg:      cfg,
		store:    store,
		recorder: recorder,
		uploader: uploader,
		channel:  channel,
		engine:   engine,
		client:   client,
	}, nil
}

// captureDevice selects the configured capture backend. PortAudio is the
// default; ffmpeg covers platforms without a PortAudio build.
func captureDevice(cfg *config.AppConfig) internal_capture.Device {
	if cfg.CaptureBackend == "ffmpeg" {
		return internal_capture.NewFFmpegDevice(cfg.FFmpegFormat, cfg.FFmpegInput)
	}
	return internal_capture.NewPortAudioDevice()
}

// Start hydrates the store from the server listing and brings the progress
// channel up. A channel connect failure is not fatal: the reconnect loop
// keeps trying and uploads fall back to simulated progress meanwhile.
func (p *Pipeline) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summaries, err := p.client.List(gCtx)
		if err != nil {
			return fmt.Errorf("hydrating recordings: %w", err)
		}
		p.store.Hydrate(summaries)
		return nil
	})

	g.Go(func() error {
		if err := p.channel.Connect(gCtx); err != nil {
			p.logger.Warnf("pipeline: realtime updates unavailable, using basic progress: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// StartCheckIn begins a capture session.
func (p *Pipeline) StartCheckIn(ctx context.Context) error {
	return p.recorder.Start(ctx)
}

// StopCheckIn finalizes the active capture, appends the optimistic record at
// the head of the list and uploads it in the background. The second return
// is false when no capture was active.
func (p *Pipeline) StopCheckIn(ctx context.Context, description string, moodRating int) (internal_type.RecordingRecord, bool, error) {
	clip, ok, err := p.recorder.Stop(ctx)
	if err != nil || !ok {
		return internal_type.RecordingRecord{}, false, err
	}

	rec := p.store.AddLocal(clip, description, moodRating, time.Now())
	utils.Go(ctx, func() {
		// Upload survives the caller's context; failures are recovered into
		// the record by the uploader.
		if _, err := p.uploader.Upload(context.Background(), rec); err != nil {
			p.logger.Warnf("pipeline: upload of %s failed: %v", rec.ID, err)
		}
	})
	return rec, true, nil
}

// RetryUpload starts a new upload attempt for a previously failed record.
// The same record is reused; retries never duplicate it.
func (p *Pipeline) RetryUpload(ctx context.Context, id string) error {
	rec, ok := p.store.Get(id)
	if !ok {
		return fmt.Errorf("unknown recording %s", id)
	}
	if rec.SourceURI == "" {
		return fmt.Errorf("recording %s has no local audio to upload", id)
	}
	if !p.store.BeginUploadAttempt(id) {
		return fmt.Errorf("recording %s is already uploading", id)
	}
	rec, _ = p.store.Get(id)

	utils.Go(ctx, func() {
		if _, err := p.uploader.Upload(context.Background(), rec); err != nil {
			p.logger.Warnf("pipeline: retry of %s failed: %v", id, err)
		}
	})
	return nil
}

// Play starts playback of a record, interrupting any current one.
func (p *Pipeline) Play(ctx context.Context, id string) error {
	_, err := p.engine.Play(ctx, id)
	return err
}

// StopPlayback stops the current playback, if any.
func (p *Pipeline) StopPlayback() {
	p.engine.Stop()
}

// ToggleExpanded flips a record's expansion state.
func (p *Pipeline) ToggleExpanded(id string) {
	p.store.ToggleExpanded(id)
}

// Records returns the current list snapshot, newest first.
func (p *Pipeline) Records() []internal_type.RecordingRecord {
	return p.store.List()
}

// Watch returns the store's coalesced change notification channel.
func (p *Pipeline) Watch() <-chan struct{} {
	return p.store.Watch()
}

// RealtimeUpdates reports whether the progress channel is delivering live
// events; false means uploads run with basic (simulated) progress.
func (p *Pipeline) RealtimeUpdates() bool {
	return p.channel.Connected()
}

// Close tears the pipeline down: playback stops, any active capture is
// discarded and the channel closes cleanly with its timers cancelled.
func (p *Pipeline) Close(ctx context.Context) error {
	p.engine.Stop()
	if p.recorder.Active() {
		if _, _, err := p.recorder.Stop(ctx); err != nil {
			p.logger.Warnf("pipeline: discarding capture on close: %v", err)
		}
	}
	return p.channel.Close(ctx)
}
