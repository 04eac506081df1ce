// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_capture

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	internal_type "github.com/rapidaai/checkin/internal/type"
)

// ffmpegDevice captures raw PCM by shelling out to ffmpeg. Used on platforms
// where PortAudio is not built in; the grab format/input pair selects the
// platform backend ("alsa"/"default", "pulse"/"default", "avfoundation"/":0").
type ffmpegDevice struct {
	format string
	input  string
}

// NewFFmpegDevice returns an exec-based capture device.
func NewFFmpegDevice(format, input string) Device {
	return &ffmpegDevice{format: format, input: input}
}

func (d *ffmpegDevice) Open(sampleRate, channels int) (Session, error) {
	cmd := exec.Command("ffmpeg",
		"-f", d.format, "-i", d.input,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal_type.ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", internal_type.ErrDeviceUnavailable, err)
	}
	return &ffmpegSession{cmd: cmd, stdout: stdout}, nil
}

type ffmpegSession struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	closed bool
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	// SIGINT lets ffmpeg flush its output before exiting.
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
