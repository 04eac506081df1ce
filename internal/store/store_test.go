// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/checkin/internal/type"
	"github.com/rapidaai/checkin/pkg/commons"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-store"),
		commons.Level("error"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return NewStore(logger)
}

func addLocal(t *testing.T, s *Store) internal_type.RecordingRecord {
	t.Helper()
	return s.AddLocal(internal_type.Clip{SourceURI: "/tmp/clip.wav", DurationSeconds: 5},
		"feeling fine", 7, time.Now())
}

// ============================================================================
// AddLocal
// ============================================================================

func TestAddLocalPrependsOptimisticRecord(t *testing.T) {
	s := newTestStore(t)
	first := addLocal(t, s)
	second := s.AddLocal(internal_type.Clip{SourceURI: "/tmp/b.wav", DurationSeconds: 3},
		"", 5, time.Now().Add(time.Second))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest record should be at the head")
	assert.Equal(t, first.ID, list[1].ID)

	head := list[0]
	assert.Equal(t, internal_type.IDTemporary, head.ID.Kind)
	assert.True(t, head.IsUploading)
	assert.Equal(t, internal_type.StatusPending, head.TranscriptionStatus)
	assert.Equal(t, internal_type.StatusPending, head.AnalysisStatus)
}

func TestTemporaryIDsDoNotCollideWithServerIDs(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)
	assert.Contains(t, rec.ID.Value, "local-")
}

// ============================================================================
// ApplyProgressEvent
// ============================================================================

func TestProgressEventForUnknownIDIsNoOp(t *testing.T) {
	s := newTestStore(t)
	addLocal(t, s)
	before := s.List()

	events := []*internal_type.ProgressEvent{
		{Type: internal_type.EventUploadProgress, AudioID: "ghost", Progress: 50},
		{Type: internal_type.EventTranscriptionUpdate, AudioID: "ghost", Status: internal_type.StatusCompleted, Transcription: "hi"},
		{Type: internal_type.EventAnalysisUpdate, AudioID: "ghost", Status: internal_type.StatusCompleted, RiskLevel: internal_type.RiskHigh},
		{Type: internal_type.EventUploadError, DocumentID: "ghost"},
	}
	for _, ev := range events {
		s.ApplyProgressEvent(ev)
	}

	assert.Equal(t, before, s.List(), "unknown-id events must not change the store")
}

func TestUploadProgressEventUpdatesOnlyTarget(t *testing.T) {
	s := newTestStore(t)
	target := addLocal(t, s)
	other := addLocal(t, s)

	s.ApplyProgressEvent(&internal_type.ProgressEvent{
		Type:     internal_type.EventUploadProgress,
		AudioID:  target.ID.Value,
		Progress: 42,
	})

	got, ok := s.Get(target.ID.Value)
	require.True(t, ok)
	assert.Equal(t, 42, got.UploadProgressPercent)

	untouched, ok := s.Get(other.ID.Value)
	require.True(t, ok)
	assert.Equal(t, 0, untouched.UploadProgressPercent, "no other record may be affected")
}

func TestUploadProgressNeverMovesBackwards(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)

	s.ApplyProgressEvent(&internal_type.ProgressEvent{Type: internal_type.EventUploadProgress, AudioID: rec.ID.Value, Progress: 60})
	s.ApplyProgressEvent(&internal_type.ProgressEvent{Type: internal_type.EventUploadProgress, AudioID: rec.ID.Value, Progress: 30})

	got, _ := s.Get(rec.ID.Value)
	assert.Equal(t, 60, got.UploadProgressPercent)
}

func TestTerminalEventReplayIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)

	completed := &internal_type.ProgressEvent{
		Type:          internal_type.EventTranscriptionUpdate,
		AudioID:       rec.ID.Value,
		Status:        internal_type.StatusCompleted,
		Transcription: "hello world",
		Confidence:    0.92,
	}
	s.ApplyProgressEvent(completed)
	once := s.List()

	s.ApplyProgressEvent(completed)
	assert.Equal(t, once, s.List(), "replaying a terminal event must be a no-op")
}

func TestStatusNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)

	s.ApplyProgressEvent(&internal_type.ProgressEvent{
		Type: internal_type.EventTranscriptionUpdate, AudioID: rec.ID.Value,
		Status: internal_type.StatusCompleted, Transcription: "done",
	})
	s.ApplyProgressEvent(&internal_type.ProgressEvent{
		Type: internal_type.EventTranscriptionUpdate, AudioID: rec.ID.Value,
		Status: internal_type.StatusProcessing,
	})

	got, _ := s.Get(rec.ID.Value)
	assert.Equal(t, internal_type.StatusCompleted, got.TranscriptionStatus)
	assert.Equal(t, "done", got.Transcription)
	assert.False(t, got.IsTranscribing)
}

func TestAnalysisUpdateSetsRiskLevel(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)

	s.ApplyProgressEvent(&internal_type.ProgressEvent{
		Type: internal_type.EventAnalysisUpdate, AudioID: rec.ID.Value,
		Status: internal_type.StatusProcessing,
	})
	got, _ := s.Get(rec.ID.Value)
	assert.True(t, got.IsAnalyzing)

	s.ApplyProgressEvent(&internal_type.ProgressEvent{
		Type: internal_type.EventAnalysisUpdate, AudioID: rec.ID.Value,
		Status: internal_type.StatusCompleted, RiskLevel: internal_type.RiskMedium,
	})
	got, _ = s.Get(rec.ID.Value)
	assert.False(t, got.IsAnalyzing)
	assert.Equal(t, internal_type.RiskMedium, got.RiskLevel)
	assert.Equal(t, internal_type.StatusCompleted, got.AnalysisStatus)
}

func TestHeartbeatIsIgnored(t *testing.T) {
	s := newTestStore(t)
	addLocal(t, s)
	before := s.List()
	s.ApplyProgressEvent(&internal_type.ProgressEvent{Type: internal_type.EventHeartbeat})
	assert.Equal(t, before, s.List())
}

// ============================================================================
// ReconcileUploadResult
// ============================================================================

func TestReconcilePromotesTemporaryIDInPlace(t *testing.T) {
	s := newTestStore(t)
	older := addLocal(t, s)
	target := s.AddLocal(internal_type.Clip{SourceURI: "/tmp/t.wav", DurationSeconds: 2},
		"", 5, time.Now().Add(time.Second))

	ok := s.ReconcileUploadResult(target.ID.Value, internal_type.UploadResult{
		ServerID: "1001", InitialStatus: internal_type.StatusProcessing,
	})
	require.True(t, ok)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "1001", list[0].ID.Value, "position preserved under id replacement")
	assert.Equal(t, internal_type.IDServer, list[0].ID.Kind)
	assert.Equal(t, target.ID.Value, list[0].TempID, "temporary id retained for the transition window")
	assert.Equal(t, older.ID, list[1].ID)

	head := list[0]
	assert.False(t, head.IsUploading)
	assert.Equal(t, 100, head.UploadProgressPercent)
	assert.Empty(t, head.SourceURI, "local bytes dropped once the server can stream")
	assert.Equal(t, internal_type.StatusProcessing, head.TranscriptionStatus)
	assert.True(t, head.IsTranscribing)
}

func TestReconcileForUnknownIDIsNoOp(t *testing.T) {
	s := newTestStore(t)
	addLocal(t, s)
	before := s.List()
	assert.False(t, s.ReconcileUploadResult("ghost", internal_type.UploadResult{ServerID: "9"}))
	assert.Equal(t, before, s.List())
}

func TestReconcileAndFirstEventCommute(t *testing.T) {
	result := internal_type.UploadResult{
		ServerID:      "2002",
		Transcription: "today went well",
		RiskLevel:     internal_type.RiskLow,
	}
	event := &internal_type.ProgressEvent{
		Type:          internal_type.EventTranscriptionUpdate,
		AudioID:       "2002",
		Status:        internal_type.StatusCompleted,
		Transcription: "today went well",
	}

	// Order A: reconcile first, then the event.
	a := newTestStore(t)
	recA := addLocal(t, a)
	a.ReconcileUploadResult(recA.ID.Value, result)
	a.ApplyProgressEvent(event)

	// Order B: the event first (unknown server id, dropped), then reconcile.
	b := newTestStore(t)
	recB := addLocal(t, b)
	b.ApplyProgressEvent(event)
	b.ReconcileUploadResult(recB.ID.Value, result)

	gotA, okA := a.Get("2002")
	gotB, okB := b.Get("2002")
	require.True(t, okA)
	require.True(t, okB)

	// Ignore the differing temp ids and creation instants; everything
	// observable must match.
	gotA.TempID, gotB.TempID = "", ""
	gotA.CreatedAt, gotB.CreatedAt = time.Time{}, time.Time{}
	assert.Equal(t, gotA, gotB, "reconciliation must commute with the first progress event")
	assert.Equal(t, "today went well", gotA.Transcription)
	assert.Equal(t, internal_type.StatusCompleted, gotA.TranscriptionStatus)
	assert.Equal(t, internal_type.RiskLow, gotA.RiskLevel)
}

func TestEventKeyedByTempIDStillMatchesAfterPromotion(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)
	s.ReconcileUploadResult(rec.ID.Value, internal_type.UploadResult{ServerID: "3003"})

	s.ApplyProgressEvent(&internal_type.ProgressEvent{
		Type: internal_type.EventTranscriptionUpdate, AudioID: rec.ID.Value,
		Status: internal_type.StatusProcessing,
	})
	got, ok := s.Get("3003")
	require.True(t, ok)
	assert.Equal(t, internal_type.StatusProcessing, got.TranscriptionStatus)
}

// ============================================================================
// Upload failure
// ============================================================================

func TestMarkUploadFailedKeepsRecordVisible(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)

	require.True(t, s.MarkUploadFailed(rec.ID.Value, internal_type.UploadFailureNetwork))

	list := s.List()
	require.Len(t, list, 1, "a failed upload must not delete the record")
	got := list[0]
	assert.False(t, got.IsUploading)
	assert.Equal(t, internal_type.UploadFailedPlaceholder, got.Transcription)
	assert.Equal(t, internal_type.StatusFailed, got.TranscriptionStatus)
	assert.Equal(t, internal_type.StatusFailed, got.AnalysisStatus)
}

func TestBeginUploadAttemptResetsFailedRecord(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)
	s.MarkUploadFailed(rec.ID.Value, internal_type.UploadFailureTimeout)

	require.True(t, s.BeginUploadAttempt(rec.ID.Value))

	got, _ := s.Get(rec.ID.Value)
	assert.True(t, got.IsUploading)
	assert.Empty(t, got.Transcription, "placeholder cleared on retry")
	assert.Equal(t, internal_type.StatusPending, got.TranscriptionStatus)
	assert.Len(t, s.List(), 1, "a retry must never duplicate the record")
}

func TestBeginUploadAttemptRefusedWhileUploading(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)
	assert.False(t, s.BeginUploadAttempt(rec.ID.Value))
}

// ============================================================================
// Playback state
// ============================================================================

func TestAtMostOneRecordIsPlaying(t *testing.T) {
	s := newTestStore(t)
	a := addLocal(t, s)
	b := addLocal(t, s)

	s.SetPlayback(a.ID.Value, &internal_type.PlaybackState{IsPlaying: true})
	s.SetPlayback(b.ID.Value, &internal_type.PlaybackState{IsPlaying: true, PositionSeconds: 1})

	playing := 0
	for _, rec := range s.List() {
		if rec.Playback != nil && rec.Playback.IsPlaying {
			playing++
			assert.Equal(t, b.ID, rec.ID, "only the most recent Play target may be playing")
		}
	}
	assert.Equal(t, 1, playing)

	gotA, _ := s.Get(a.ID.Value)
	assert.Nil(t, gotA.Playback, "interrupted record's playback state is cleared, not paused")
}

func TestClearPlayback(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)
	s.SetPlayback(rec.ID.Value, &internal_type.PlaybackState{IsPlaying: true, PositionSeconds: 2})
	s.ClearPlayback()

	got, _ := s.Get(rec.ID.Value)
	assert.Nil(t, got.Playback)
}

// ============================================================================
// Misc
// ============================================================================

func TestToggleExpandedIsLocalOnly(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)

	s.ToggleExpanded(rec.ID.Value)
	got, _ := s.Get(rec.ID.Value)
	assert.True(t, got.IsExpanded)

	s.ToggleExpanded(rec.ID.Value)
	got, _ = s.Get(rec.ID.Value)
	assert.False(t, got.IsExpanded)
}

func TestListSnapshotsDoNotAlias(t *testing.T) {
	s := newTestStore(t)
	rec := addLocal(t, s)
	s.SetPlayback(rec.ID.Value, &internal_type.PlaybackState{IsPlaying: true})

	snapshot := s.List()
	snapshot[0].Playback.PositionSeconds = 999
	snapshot[0].Transcription = "mutated"

	got, _ := s.Get(rec.ID.Value)
	assert.Zero(t, got.Playback.PositionSeconds, "snapshot mutation must not leak into the store")
	assert.Empty(t, got.Transcription)
}

func TestHydrateKeepsLocalInFlightRecords(t *testing.T) {
	s := newTestStore(t)
	local := addLocal(t, s)

	now := time.Now()
	s.Hydrate([]internal_type.RecordingSummary{
		{ID: "10", Transcription: "older entry", CreatedAt: now.Add(-time.Hour)},
		{ID: "11", Transcription: "newer entry", CreatedAt: now.Add(-time.Minute)},
	})

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, local.ID, list[0].ID, "local in-flight record stays at the head")
	assert.Equal(t, "11", list[1].ID.Value, "server entries ordered newest first")
	assert.Equal(t, "10", list[2].ID.Value)
}

func TestWatchCoalescesNotifications(t *testing.T) {
	s := newTestStore(t)
	watch := s.Watch()

	for i := 0; i < 5; i++ {
		addLocal(t, s)
	}

	select {
	case <-watch:
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-watch:
		t.Fatal("notifications must coalesce to at most one pending signal")
	default:
	}
}
