// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_playback

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	internal_type "github.com/rapidaai/checkin/internal/type"
)

// portAudioSink plays PCM through the default output device.
type portAudioSink struct {
	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

// NewPortAudioSink returns the default desktop playback sink.
func NewPortAudioSink() Sink {
	return &portAudioSink{}
}

func (s *portAudioSink) Open(sampleRate, channels int) error {
	s.initOnce.Do(func() {
		s.initErr = portaudio.Initialize()
	})
	if s.initErr != nil {
		return fmt.Errorf("%w: portaudio init: %v", internal_type.ErrPlaybackFailed, s.initErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}
	frames := sampleRate / 10
	s.buf = make([]int16, frames*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), frames, s.buf)
	if err != nil {
		return fmt.Errorf("%w: %v", internal_type.ErrPlaybackFailed, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: %v", internal_type.ErrPlaybackFailed, err)
	}
	s.stream = stream
	return nil
}

// WriteFrames pushes samples to the device in buffer-sized slices. The device
// write blocks until consumed, which paces playback at the output rate.
func (s *portAudioSink) WriteFrames(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("%w: sink not open", internal_type.ErrPlaybackFailed)
	}

	for len(samples) > 0 {
		n := copy(s.buf, samples)
		if n < len(s.buf) {
			// Zero-pad the final partial buffer.
			for i := n; i < len(s.buf); i++ {
				s.buf[i] = 0
			}
		}
		if err := s.stream.Write(); err != nil {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

func (s *portAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	s.stream = nil
	return err
}
