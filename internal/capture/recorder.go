// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	internal_type "github.com/rapidaai/checkin/internal/type"
	"github.com/rapidaai/checkin/pkg/commons"
)

// Recorder is the capture unit: it owns at most one active capture session,
// ticks an elapsed-duration counter once per second while active, and
// finalizes a stopped session into a WAV clip on disk.
//
// Calling Start while a session is active returns ErrCaptureActive (explicit
// error rather than a silent no-op). Calling Stop without a prior Start is a
// no-op and produces no clip.
type Recorder struct {
	logger commons.Logger
	device Device

	sampleRate int
	channels   int
	dir        string
	tick       time.Duration
	onElapsed  func(seconds int)
	permission func() bool
	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time

	mu        sync.Mutex
	active    bool
	session   Session
	startTime time.Time
	pcm       bytes.Buffer
	stopTick  chan struct{}
	pumpDone  chan struct{}
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) { r.clock = clock }
}

// WithTickInterval overrides the elapsed-counter interval (default 1s).
func WithTickInterval(d time.Duration) Option {
	return func(r *Recorder) { r.tick = d }
}

// WithOnElapsed registers the per-second elapsed callback (the UI timer).
func WithOnElapsed(fn func(seconds int)) Option {
	return func(r *Recorder) { r.onElapsed = fn }
}

// WithPermission injects the microphone permission check. When it reports
// false, Start fails with ErrPermissionDenied before touching the device.
func WithPermission(fn func() bool) Option {
	return func(r *Recorder) { r.permission = fn }
}

// NewRecorder builds a capture unit writing WAV clips into dir.
func NewRecorder(logger commons.Logger, device Device, sampleRate, channels int, dir string, opts ...Option) *Recorder {
	r := &Recorder{
		logger:     logger,
		device:     device,
		sampleRate: sampleRate,
		channels:   channels,
		dir:        dir,
		tick:       time.Second,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start acquires the input device and begins capturing. Fails with
// ErrPermissionDenied when access has not been granted, ErrDeviceUnavailable
// when the device cannot be opened, and ErrCaptureActive when a session is
// already running.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return internal_type.ErrCaptureActive
	}
	if r.permission != nil && !r.permission() {
		return internal_type.ErrPermissionDenied
	}

	session, err := r.device.Open(r.sampleRate, r.channels)
	if err != nil {
		return err
	}

	r.session = session
	r.active = true
	r.startTime = r.clock()
	r.pcm.Reset()
	r.stopTick = make(chan struct{})
	r.pumpDone = make(chan struct{})

	go r.pump(session, r.pumpDone)
	go r.tickElapsed(r.stopTick)

	r.logger.Infof("capture: session started (%dHz, %dch)", r.sampleRate, r.channels)
	return nil
}

// pump drains PCM from the session into the accumulation buffer until the
// session is closed.
func (r *Recorder) pump(session Session, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := session.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.pcm.Write(buf[:n])
			r.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// tickElapsed fires the elapsed callback once per tick interval until stopped.
// The ticker is released on every exit path.
func (r *Recorder) tickElapsed(stop chan struct{}) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	seconds := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			seconds++
			if r.onElapsed != nil {
				r.onElapsed(seconds)
			}
		}
	}
}

// Stop finalizes the capture, releases the device and returns the clip
// descriptor. The second return is false when no session was active (Stop
// without Start is a no-op). Fails with ErrCaptureFinalizeFailed when the
// session produced no bytes.
func (r *Recorder) Stop(ctx context.Context) (internal_type.Clip, bool, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return internal_type.Clip{}, false, nil
	}

	close(r.stopTick)
	session := r.session
	pumpDone := r.pumpDone
	duration := int(r.clock().Sub(r.startTime) / time.Second)
	r.active = false
	r.session = nil
	r.mu.Unlock()

	// Closing the session makes the pump's Read fail and exit; wait for it so
	// every captured byte is in the buffer before finalizing.
	if err := session.Close(); err != nil {
		r.logger.Warnf("capture: session close: %v", err)
	}
	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		r.logger.Warnf("capture: pump did not drain in time")
	}

	r.mu.Lock()
	pcm := make([]byte, r.pcm.Len())
	copy(pcm, r.pcm.Bytes())
	r.pcm.Reset()
	r.mu.Unlock()

	if len(pcm) == 0 {
		return internal_type.Clip{}, false, internal_type.ErrCaptureFinalizeFailed
	}

	path := filepath.Join(r.dir, fmt.Sprintf("checkin-%s.wav", uuid.NewString()))
	if err := os.WriteFile(path, createWAVFile(pcm, r.sampleRate, r.channels), 0o600); err != nil {
		return internal_type.Clip{}, false, fmt.Errorf("%w: %v", internal_type.ErrCaptureFinalizeFailed, err)
	}

	r.logger.Infof("capture: finalized %s (%ds, %d bytes)", path, duration, len(pcm))
	return internal_type.Clip{SourceURI: path, DurationSeconds: duration}, true, nil
}

// Active reports whether a capture session is currently running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
