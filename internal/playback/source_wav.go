// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	internal_type "github.com/rapidaai/checkin/internal/type"
)

// Streamer fetches server-held audio bytes; satisfied by
// internal_client.AudioClient.
type Streamer interface {
	Stream(ctx context.Context, serverID string) ([]byte, error)
}

// wavSource resolves a record to decoded WAV audio. Records that already
// carry a server id are streamed from the service; records still local are
// decoded from their clip file.
type wavSource struct {
	streamer Streamer
}

// NewWAVSource returns the standard source resolver.
func NewWAVSource(streamer Streamer) Source {
	return &wavSource{streamer: streamer}
}

func (s *wavSource) Resolve(ctx context.Context, rec internal_type.RecordingRecord) (*ClipAudio, error) {
	if rec.ID.IsServer() {
		data, err := s.streamer.Stream(ctx, rec.ID.Value)
		if err != nil {
			return nil, err
		}
		return decodeWAV(bytes.NewReader(data))
	}
	if rec.SourceURI == "" {
		return nil, fmt.Errorf("recording %s has no audio source", rec.ID)
	}
	f, err := os.Open(rec.SourceURI)
	if err != nil {
		return nil, fmt.Errorf("opening clip %s: %w", rec.SourceURI, err)
	}
	defer f.Close()
	return decodeWAV(f)
}

func decodeWAV(r io.ReadSeeker) (*ClipAudio, error) {
	decoder := wav.NewDecoder(r)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	duration, err := decoder.Duration()
	if err != nil {
		return nil, fmt.Errorf("reading wav duration: %w", err)
	}
	return &ClipAudio{
		SampleRate:      buf.Format.SampleRate,
		Channels:        buf.Format.NumChannels,
		Samples:         toInt16(buf),
		DurationSeconds: duration.Seconds(),
	}, nil
}

func toInt16(buf *audio.IntBuffer) []int16 {
	out := make([]int16, len(buf.Data))
	for i, sample := range buf.Data {
		out[i] = int16(sample)
	}
	return out
}
