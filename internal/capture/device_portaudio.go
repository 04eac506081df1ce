// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	internal_type "github.com/rapidaai/checkin/internal/type"
)

// portAudioDevice captures from the default input device through PortAudio.
type portAudioDevice struct {
	initOnce sync.Once
	initErr  error
}

// NewPortAudioDevice returns the default desktop capture device.
func NewPortAudioDevice() Device {
	return &portAudioDevice{}
}

func (d *portAudioDevice) Open(sampleRate, channels int) (Session, error) {
	d.initOnce.Do(func() {
		d.initErr = portaudio.Initialize()
	})
	if d.initErr != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", internal_type.ErrDeviceUnavailable, d.initErr)
	}

	// 100ms of frames per read keeps latency low without hammering the driver.
	frames := sampleRate / 10
	buf := make([]int16, frames*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), frames, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal_type.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: %v", internal_type.ErrDeviceUnavailable, err)
	}
	return &portAudioSession{stream: stream, samples: buf}, nil
}

type portAudioSession struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	samples []int16
	pending []byte
	closed  bool
}

func (s *portAudioSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		if s.closed {
			return 0, io.EOF
		}
		if err := s.stream.Read(); err != nil {
			return 0, err
		}
		s.pending = make([]byte, len(s.samples)*2)
		for i, sample := range s.samples {
			binary.LittleEndian.PutUint16(s.pending[i*2:], uint16(sample))
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *portAudioSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return err
	}
	return s.stream.Close()
}
