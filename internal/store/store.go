// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"sort"
	"sync"
	"time"

	"github.com/rapidaai/checkin/pkg/commons"
	"github.com/rapidaai/checkin/pkg/utils"

	internal_type "github.com/rapidaai/checkin/internal/type"
)

// Store is the single source of truth for the recordings list and the sole
// serialization point of the pipeline. Four independent producers write
// through it (capture, upload, progress channel, playback); every mutation
// replaces records wholesale under the lock, so List always returns a
// consistent snapshot and no reader can observe a torn update.
//
// Records are ordered newest-first by CreatedAt. Promoting a temporary id to
// a server id mutates the record in place in the slice, so ordering is stable
// under id replacement.
type Store struct {
	logger commons.Logger

	mu       sync.Mutex
	records  []internal_type.RecordingRecord
	watchers []chan struct{}
}

// NewStore returns an empty store.
func NewStore(logger commons.Logger) *Store {
	return &Store{logger: logger}
}

// List returns a deep-copied snapshot of the current records, newest first.
func (s *Store) List() []internal_type.RecordingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]internal_type.RecordingRecord, len(s.records))
	for i := range s.records {
		out[i] = s.records[i].Clone()
	}
	return out
}

// Get returns a copy of the record matching id (temporary or server).
func (s *Store) Get(id string) (internal_type.RecordingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.records[i].Clone(), true
	}
	return internal_type.RecordingRecord{}, false
}

// Watch returns a coalescing notification channel: at most one pending signal
// regardless of how many mutations occurred, so a renderer does bounded work
// per wakeup independent of list length or mutation rate.
func (s *Store) Watch() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.watchers = append(s.watchers, ch)
	return ch
}

// notify signals all watchers without blocking. Callers must hold the lock.
func (s *Store) notify() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// indexOf finds a record by temporary or server id. Callers must hold the lock.
func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].MatchesID(id) {
			return i
		}
	}
	return -1
}

// AddLocal prepends a freshly captured clip as an optimistic record with a
// temporary id and returns a copy of it. The record starts uploading with
// both processing stages pending.
func (s *Store) AddLocal(clip internal_type.Clip, description string, moodRating int, createdAt time.Time) internal_type.RecordingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := internal_type.RecordingRecord{
		ID:                  internal_type.NewTemporaryID(),
		SourceURI:           clip.SourceURI,
		DurationSeconds:     clip.DurationSeconds,
		CreatedAt:           createdAt,
		Description:         description,
		MoodRating:          moodRating,
		TranscriptionStatus: internal_type.StatusPending,
		AnalysisStatus:      internal_type.StatusPending,
		IsUploading:         true,
	}
	rec.TempID = rec.ID.Value

	next := make([]internal_type.RecordingRecord, 0, len(s.records)+1)
	next = append(next, rec)
	next = append(next, s.records...)
	s.records = next
	s.notify()

	s.logger.Debugf("store: added local recording %s (%ds)", rec.ID, rec.DurationSeconds)
	return rec.Clone()
}

// Hydrate replaces all server-backed records with the given summaries,
// preserving any local records still mid-upload. Summaries are sorted
// newest-first.
func (s *Store) Hydrate(summaries []internal_type.RecordingSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]internal_type.RecordingRecord, 0, len(summaries)+len(s.records))
	for i := range s.records {
		if !s.records[i].ID.IsServer() {
			next = append(next, s.records[i])
		}
	}
	for _, sum := range summaries {
		next = append(next, internal_type.RecordingRecord{
			ID:                  internal_type.NewServerID(sum.ID),
			DurationSeconds:     sum.DurationSeconds,
			CreatedAt:           sum.CreatedAt,
			Description:         sum.Description,
			MoodRating:          sum.MoodRating,
			Transcription:       sum.Transcription,
			TranscriptionStatus: utils.FirstNonEmpty(sum.TranscriptionStatus, internal_type.StatusCompleted),
			AnalysisStatus:      utils.FirstNonEmpty(sum.AnalysisStatus, internal_type.StatusCompleted),
			RiskLevel:           sum.RiskLevel,
			AudioFilePath:       sum.AudioFilePath,
		})
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.After(next[j].CreatedAt)
	})
	s.records = next
	s.notify()

	s.logger.Infof("store: hydrated %d recordings from server", len(summaries))
}

// ReconcileUploadResult merges the server acknowledgment into the record that
// owns tempID: the temporary id is promoted to the server id (position
// preserved), uploading ends, and any authoritative fields carried by the
// response (transcription, risk level) are applied. Merging here is what
// keeps reconciliation commutative with the first progress event for the same
// recording: whichever is applied first, the record converges to the same
// state because events are idempotent and statuses monotonic.
func (s *Store) ReconcileUploadResult(tempID string, result internal_type.UploadResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(tempID)
	if i < 0 {
		s.logger.Warnf("store: reconcile for unknown id %s dropped", tempID)
		return false
	}

	rec := s.records[i].Clone()
	rec.ID = internal_type.NewServerID(result.ServerID)
	rec.IsUploading = false
	rec.UploadProgressPercent = 100
	rec.AudioFilePath = result.AudioFilePath
	// Playback is served from the server once an id exists; drop the local
	// byte source.
	rec.SourceURI = ""

	if result.Transcription != "" {
		rec.Transcription = result.Transcription
		rec.TranscriptionStatus = internal_type.StatusCompleted
		rec.IsTranscribing = false
	} else if initial := utils.FirstNonEmpty(result.InitialStatus, internal_type.StatusPending); internal_type.StatusAdvances(rec.TranscriptionStatus, initial) {
		rec.TranscriptionStatus = initial
		rec.IsTranscribing = initial == internal_type.StatusProcessing
	}

	if result.RiskLevel != "" {
		rec.RiskLevel = result.RiskLevel
		rec.AnalysisStatus = internal_type.StatusCompleted
		rec.IsAnalyzing = false
	}

	s.replace(i, rec)
	s.logger.Infof("store: reconciled %s -> %s", tempID, result.ServerID)
	return true
}

// MarkUploadFailed recovers a failed upload into a visible, inspectable state:
// the record stays in the list, uploading ends and the transcription field
// carries the failure placeholder. Never deletes the record.
func (s *Store) MarkUploadFailed(id string, reason internal_type.UploadFailureReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	rec := s.records[i].Clone()
	rec.IsUploading = false
	rec.IsTranscribing = false
	rec.IsAnalyzing = false
	rec.UploadProgressPercent = 0
	rec.Transcription = internal_type.UploadFailedPlaceholder
	rec.TranscriptionStatus = internal_type.StatusFailed
	rec.AnalysisStatus = internal_type.StatusFailed

	s.replace(i, rec)
	s.logger.Warnf("store: upload failed for %s (%s)", id, reason)
	return true
}

// BeginUploadAttempt resets a record for a retry. The same record is reused;
// a new attempt never duplicates it.
func (s *Store) BeginUploadAttempt(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.records[i].IsUploading {
		return false
	}
	rec := s.records[i].Clone()
	rec.IsUploading = true
	rec.UploadProgressPercent = 0
	if rec.Transcription == internal_type.UploadFailedPlaceholder {
		rec.Transcription = ""
	}
	rec.TranscriptionStatus = internal_type.StatusPending
	rec.AnalysisStatus = internal_type.StatusPending

	s.replace(i, rec)
	return true
}

// SetUploadProgress sets the upload percentage while the record is uploading.
// Progress never moves backwards within an attempt.
func (s *Store) SetUploadProgress(id string, percent int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || !s.records[i].IsUploading {
		return false
	}
	percent = utils.Clamp(percent, 0, 100)
	if percent <= s.records[i].UploadProgressPercent {
		return false
	}
	rec := s.records[i].Clone()
	rec.UploadProgressPercent = percent
	s.replace(i, rec)
	return true
}

// ApplyProgressEvent routes an inbound channel event to the matching record.
// Unknown ids are dropped without error: the event may have raced AddLocal or
// ReconcileUploadResult, or refer to a record since removed. Application is
// idempotent; replaying a terminal event leaves the store unchanged.
func (s *Store) ApplyProgressEvent(event *internal_type.ProgressEvent) {
	if event == nil || event.Type == internal_type.EventHeartbeat {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(event.TargetID())
	if i < 0 {
		s.logger.Debugf("store: event %s for unknown id %q dropped", event.Type, event.TargetID())
		return
	}
	rec := s.records[i].Clone()

	switch event.Type {
	case internal_type.EventUploadProgress:
		if !rec.IsUploading {
			return
		}
		percent := utils.Clamp(int(event.Progress), 0, 100)
		if percent <= rec.UploadProgressPercent {
			return
		}
		rec.UploadProgressPercent = percent

	case internal_type.EventUploadCompleted:
		if !rec.IsUploading {
			return
		}
		rec.UploadProgressPercent = 100

	case internal_type.EventUploadError:
		if !rec.IsUploading {
			return
		}
		rec.IsUploading = false
		rec.UploadProgressPercent = 0
		rec.Transcription = internal_type.UploadFailedPlaceholder
		rec.TranscriptionStatus = internal_type.StatusFailed
		rec.AnalysisStatus = internal_type.StatusFailed

	case internal_type.EventTranscriptionUpdate:
		if internal_type.IsTerminalStatus(rec.TranscriptionStatus) {
			return
		}
		if !internal_type.StatusAdvances(rec.TranscriptionStatus, event.Status) {
			return
		}
		rec.TranscriptionStatus = event.Status
		rec.IsTranscribing = event.Status == internal_type.StatusProcessing
		if event.Status == internal_type.StatusCompleted {
			if event.Transcription != "" {
				rec.Transcription = event.Transcription
			}
			rec.Confidence = event.Confidence
		}

	case internal_type.EventAnalysisUpdate:
		if internal_type.IsTerminalStatus(rec.AnalysisStatus) {
			return
		}
		if !internal_type.StatusAdvances(rec.AnalysisStatus, event.Status) {
			return
		}
		rec.AnalysisStatus = event.Status
		rec.IsAnalyzing = event.Status == internal_type.StatusProcessing
		if event.Status == internal_type.StatusCompleted && event.RiskLevel != "" {
			rec.RiskLevel = event.RiskLevel
		}

	default:
		// upload_started carries no record id; nothing to route.
		return
	}

	s.replace(i, rec)
}

// SetPlayback attaches transient playback state to the target record. Passing
// a playing state clears playback on every other record first, enforcing the
// at-most-one-playing invariant in a single serialized mutation. A nil state
// clears the target's playback.
func (s *Store) SetPlayback(id string, state *internal_type.PlaybackState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}

	next := make([]internal_type.RecordingRecord, len(s.records))
	copy(next, s.records)
	if state != nil && state.IsPlaying {
		for j := range next {
			if j != i && next[j].Playback != nil {
				cleared := next[j].Clone()
				cleared.Playback = nil
				next[j] = cleared
			}
		}
	}
	rec := next[i].Clone()
	if state == nil {
		rec.Playback = nil
	} else {
		pb := *state
		rec.Playback = &pb
	}
	next[i] = rec

	s.records = next
	s.notify()
	return true
}

// ClearPlayback removes playback state from whichever record holds it.
func (s *Store) ClearPlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	next := make([]internal_type.RecordingRecord, len(s.records))
	copy(next, s.records)
	for j := range next {
		if next[j].Playback != nil {
			cleared := next[j].Clone()
			cleared.Playback = nil
			next[j] = cleared
			changed = true
		}
	}
	if changed {
		s.records = next
		s.notify()
	}
}

// ToggleExpanded flips the local-only expansion state of a record.
func (s *Store) ToggleExpanded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	rec := s.records[i].Clone()
	rec.IsExpanded = !rec.IsExpanded
	s.replace(i, rec)
	return true
}

// replace swaps the record at index i into a fresh slice and notifies
// watchers. Callers must hold the lock.
func (s *Store) replace(i int, rec internal_type.RecordingRecord) {
	next := make([]internal_type.RecordingRecord, len(s.records))
	copy(next, s.records)
	next[i] = rec
	s.records = next
	s.notify()
}
