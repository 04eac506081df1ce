// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_store "github.com/rapidaai/checkin/internal/store"
	internal_type "github.com/rapidaai/checkin/internal/type"
	"github.com/rapidaai/checkin/pkg/commons"
	"github.com/rapidaai/checkin/pkg/utils"
)

// EngineState is the player slot state. There is exactly one slot across all
// records: starting a new item interrupts the current one.
type EngineState string

const (
	StateIdle    EngineState = "idle"
	StateLoading EngineState = "loading"
	StatePlaying EngineState = "playing"
)

// ClipAudio is decoded audio ready for the sink.
type ClipAudio struct {
	SampleRate      int
	Channels        int
	Samples         []int16
	DurationSeconds float64
}

// Source resolves a record into decoded audio. Whether the bytes come from
// the local clip file or the server stream is decided inside the resolver;
// the engine's transitions never see the difference.
type Source interface {
	Resolve(ctx context.Context, rec internal_type.RecordingRecord) (*ClipAudio, error)
}

// Sink is the platform audio output.
type Sink interface {
	Open(sampleRate, channels int) error
	// WriteFrames blocks until the device has consumed the samples, pacing
	// playback at the output rate.
	WriteFrames(samples []int16) error
	Close() error
}

// Engine manages the single playback slot. While playing it feeds the sink
// chunk by chunk and writes position updates onto the target record only;
// playback state is cleared on every exit transition (completion, stop,
// interruption, error), never left at the terminal position.
type Engine struct {
	logger commons.Logger
	store  *internal_store.Store
	source Source
	sink   Sink

	chunk   time.Duration
	onError func(id string, err error)

	mu        sync.Mutex
	state     EngineState
	currentID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithChunkInterval sets how much audio each sink write carries, which is
// also the position-reporting granularity (default 100ms).
func WithChunkInterval(d time.Duration) Option {
	return func(e *Engine) { e.chunk = d }
}

// WithErrorCallback observes asynchronous playback failures.
func WithErrorCallback(fn func(id string, err error)) Option {
	return func(e *Engine) { e.onError = fn }
}

// NewEngine builds a playback engine writing transport state through store.
func NewEngine(logger commons.Logger, store *internal_store.Store, source Source, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		logger: logger,
		store:  store,
		source: source,
		sink:   sink,
		chunk:  100 * time.Millisecond,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current slot state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Play starts playback of the record with the given id. Any currently
// sounding item is stopped first and its playback state cleared, so at most
// one record is ever playing. The returned cancel function stops this
// playback; it is safe to call on any exit path.
func (e *Engine) Play(ctx context.Context, id string) (context.CancelFunc, error) {
	rec, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown recording %s", internal_type.ErrPlaybackFailed, id)
	}

	// Interrupt whatever is sounding before loading the new item.
	e.Stop()

	e.mu.Lock()
	e.state = StateLoading
	e.currentID = id
	e.mu.Unlock()

	audio, err := e.source.Resolve(ctx, rec)
	if err != nil {
		e.toIdle()
		return nil, fmt.Errorf("%w: %v", internal_type.ErrPlaybackFailed, err)
	}
	if err := e.sink.Open(audio.SampleRate, audio.Channels); err != nil {
		e.toIdle()
		return nil, fmt.Errorf("%w: %v", internal_type.ErrPlaybackFailed, err)
	}

	playCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	e.state = StatePlaying
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	e.store.SetPlayback(id, utils.Ptr(internal_type.PlaybackState{IsPlaying: true}))
	go e.run(playCtx, id, audio, done)

	return cancel, nil
}

// Stop interrupts the current playback, if any, and waits for the slot to
// return to Idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// run feeds the sink chunk by chunk, reporting position after each write.
// Every exit path closes the sink, clears the record's playback state and
// returns the slot to Idle.
func (e *Engine) run(ctx context.Context, id string, audio *ClipAudio, done chan struct{}) {
	defer close(done)
	defer e.toIdle()
	defer e.store.SetPlayback(id, nil)
	defer e.sink.Close()

	frames := audio.SampleRate * int(e.chunk) / int(time.Second)
	step := frames * audio.Channels
	if step <= 0 {
		step = len(audio.Samples)
	}

	written := 0
	for written < len(audio.Samples) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		end := written + step
		if end > len(audio.Samples) {
			end = len(audio.Samples)
		}
		if err := e.sink.WriteFrames(audio.Samples[written:end]); err != nil {
			e.logger.Errorf("playback: sink write failed for %s: %v", id, err)
			if e.onError != nil {
				e.onError(id, fmt.Errorf("%w: %v", internal_type.ErrPlaybackFailed, err))
			}
			return
		}
		written = end

		position := float64(written) / float64(audio.SampleRate*audio.Channels)
		fraction := 0.0
		if audio.DurationSeconds > 0 {
			fraction = position / audio.DurationSeconds
			if fraction > 1 {
				fraction = 1
			}
		}
		e.store.SetPlayback(id, utils.Ptr(internal_type.PlaybackState{
			IsPlaying:        true,
			PositionSeconds:  position,
			FractionComplete: fraction,
		}))
	}
}

// toIdle releases the slot.
func (e *Engine) toIdle() {
	e.mu.Lock()
	e.state = StateIdle
	e.currentID = ""
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()
}
