// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import (
	"errors"
	"fmt"
)

// Capture errors. Surfaced directly to the user: they require intervention
// (grant mic permission, retry).
var (
	ErrPermissionDenied      = errors.New("microphone permission denied")
	ErrDeviceUnavailable     = errors.New("audio input device unavailable")
	ErrCaptureFinalizeFailed = errors.New("capture produced no audio")
	ErrCaptureActive         = errors.New("capture session already active")
)

// Channel errors. Recovered silently via reconnect; never fatal to an upload.
var (
	ErrChannelConnectFailed = errors.New("progress channel connect failed")
	ErrChannelClosedUnclean = errors.New("progress channel closed uncleanly")
	ErrChannelNoUser        = errors.New("progress channel requires a user id")
)

// ErrPlaybackFailed wraps device/codec failures from the playback engine.
var ErrPlaybackFailed = errors.New("playback failed")

// UploadFailureReason classifies an upload failure.
type UploadFailureReason string

const (
	UploadFailureNetwork     UploadFailureReason = "network"
	UploadFailureTimeout     UploadFailureReason = "timeout"
	UploadFailureClient      UploadFailureReason = "server-4xx"
	UploadFailureServer      UploadFailureReason = "server-5xx"
	UploadFailureTooLarge    UploadFailureReason = "too-large"
	UploadFailureUnsupported UploadFailureReason = "unsupported-type"
)

// UploadError carries the failure classification alongside the cause. Upload
// failures are recovered into a visible record state, not propagated as fatal.
type UploadError struct {
	Reason UploadFailureReason
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upload failed: %s", e.Reason)
	}
	return fmt.Sprintf("upload failed (%s): %v", e.Reason, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// NewUploadError wraps err with a failure reason.
func NewUploadError(reason UploadFailureReason, err error) *UploadError {
	return &UploadError{Reason: reason, Err: err}
}
