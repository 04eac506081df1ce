// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import (
	"time"

	"github.com/google/uuid"
)

// Stage status constants. A stage is monotonic per record:
// pending → processing → completed|failed. Terminal states never regress, so
// replaying a terminal event is a safe no-op.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// statusRank orders stage statuses for monotonicity checks. completed and
// failed share the terminal rank.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// StatusAdvances reports whether moving from current to next is a forward
// transition. Equal-rank moves (completed → completed replay, or a
// completed → failed flip) do not advance.
func StatusAdvances(current, next string) bool {
	nr, ok := statusRank[next]
	if !ok {
		return false
	}
	return nr > statusRank[current]
}

// IsTerminalStatus returns true for completed and failed.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Risk level labels computed server-side after analysis.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// UploadFailedPlaceholder is placed in the transcription field of a record
// whose upload failed, so the record stays visible and inspectable instead of
// being silently dropped.
const UploadFailedPlaceholder = "Upload failed. Tap to retry."

// IDKind discriminates client-generated temporary ids from server-issued ids.
type IDKind string

const (
	IDTemporary IDKind = "temporary"
	IDServer    IDKind = "server"
)

// RecordingID is a tagged id. A record is created with a temporary id and
// promoted to a server id once the upload is acknowledged; matching during the
// transition window must consider both (see RecordingRecord.MatchesID).
type RecordingID struct {
	Kind  IDKind
	Value string
}

// NewTemporaryID returns a fresh client-generated id. The "local-" prefix
// keeps temporary ids out of the server id space.
func NewTemporaryID() RecordingID {
	return RecordingID{Kind: IDTemporary, Value: "local-" + uuid.NewString()}
}

// NewServerID wraps a server-issued identifier.
func NewServerID(value string) RecordingID {
	return RecordingID{Kind: IDServer, Value: value}
}

func (id RecordingID) IsServer() bool { return id.Kind == IDServer }

func (id RecordingID) String() string { return id.Value }

// Clip is a finished capture: a byte-addressable audio resource plus its
// measured duration.
type Clip struct {
	SourceURI       string
	DurationSeconds int
}

// PlaybackState is transient transport state, present only while the record
// is the active playback target.
type PlaybackState struct {
	IsPlaying        bool
	PositionSeconds  float64
	FractionComplete float64
}

// UploadResult is the server acknowledgment of a completed upload.
type UploadResult struct {
	ServerID      string
	Transcription string
	RiskLevel     string
	InitialStatus string
	AudioFilePath string
	CreatedAt     time.Time
}

// RecordingRecord is the canonical unit of the recordings store. Records are
// treated as values: every store mutation replaces the record wholesale so
// readers never observe a half-applied update.
type RecordingRecord struct {
	ID RecordingID
	// TempID retains the original client id after promotion to a server id,
	// because progress events emitted during the transition window may still
	// be keyed by it.
	TempID string

	SourceURI       string
	DurationSeconds int
	CreatedAt       time.Time

	Description string
	MoodRating  int

	Transcription       string
	TranscriptionStatus string
	AnalysisStatus      string
	RiskLevel           string
	Confidence          float64
	AudioFilePath       string

	UploadProgressPercent int
	IsUploading           bool
	IsTranscribing        bool
	IsAnalyzing           bool

	IsExpanded bool
	Playback   *PlaybackState
}

// MatchesID reports whether the given identifier refers to this record,
// checking the current id and the retained temporary id.
func (r *RecordingRecord) MatchesID(id string) bool {
	if id == "" {
		return false
	}
	return r.ID.Value == id || r.TempID == id
}

// Clone returns a deep copy. Playback is the only pointer field.
func (r *RecordingRecord) Clone() RecordingRecord {
	out := *r
	if r.Playback != nil {
		pb := *r.Playback
		out.Playback = &pb
	}
	return out
}
