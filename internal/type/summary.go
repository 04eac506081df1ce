// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "time"

// RecordingSummary is a server-side recording as returned by the listing
// endpoint, used to hydrate the store on cold start.
type RecordingSummary struct {
	ID                  string    `json:"id"`
	Transcription       string    `json:"transcription,omitempty"`
	TranscriptionStatus string    `json:"transcriptionStatus,omitempty"`
	AnalysisStatus      string    `json:"analysisStatus,omitempty"`
	RiskLevel           string    `json:"riskLevel,omitempty"`
	DurationSeconds     int       `json:"durationSeconds,omitempty"`
	Description         string    `json:"description,omitempty"`
	MoodRating          int       `json:"moodRating,omitempty"`
	AudioFilePath       string    `json:"audioFilePath,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}
