// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_capture

// Device abstracts the platform audio input. The rest of the capture unit
// depends only on this interface; each platform target ships one
// implementation (portaudio, ffmpeg).
type Device interface {
	// Open acquires the input device and starts delivering LINEAR16 PCM.
	// Returns internal_type.ErrPermissionDenied or ErrDeviceUnavailable when
	// the platform refuses access.
	Open(sampleRate, channels int) (Session, error)
}

// Session is a live capture stream.
type Session interface {
	// Read fills p with little-endian 16-bit PCM and returns the byte count.
	// Returns an error once the session is closed.
	Read(p []byte) (int, error)
	// Close releases the device. Idempotent.
	Close() error
}
