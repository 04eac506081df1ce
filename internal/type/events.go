// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

// ProgressEventType identifies an inbound progress channel frame.
type ProgressEventType string

const (
	EventUploadStarted       ProgressEventType = "upload_started"
	EventUploadProgress      ProgressEventType = "upload_progress"
	EventUploadCompleted     ProgressEventType = "upload_completed"
	EventUploadError         ProgressEventType = "upload_error"
	EventTranscriptionUpdate ProgressEventType = "transcription_update"
	EventAnalysisUpdate      ProgressEventType = "analysis_update"
	EventHeartbeat           ProgressEventType = "heartbeat"
)

// ProgressEvent is the JSON frame carried by the progress channel. The server
// keys events by document_id or audio_id depending on the stage; TargetID
// resolves whichever is set.
type ProgressEvent struct {
	Type       ProgressEventType `json:"type"`
	DocumentID string            `json:"document_id,omitempty"`
	AudioID    string            `json:"audio_id,omitempty"`
	Filename   string            `json:"filename,omitempty"`
	Message    string            `json:"message,omitempty"`
	Progress   float64           `json:"progress,omitempty"`

	Status        string  `json:"status,omitempty"`
	Transcription string  `json:"transcription,omitempty"`
	RiskLevel     string  `json:"risk_level,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
}

// TargetID returns the record identifier this event refers to, or "" for
// untargeted events (heartbeat, upload_started before an id is issued).
func (e *ProgressEvent) TargetID() string {
	if e.AudioID != "" {
		return e.AudioID
	}
	return e.DocumentID
}
