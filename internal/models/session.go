package models

import (
	"fmt"
	"strings"
	"time"
)

// Variant selects which intake/submission behaviour a session uses.
type Variant string

const (
	VariantSingleFile Variant = "singleFile"
	VariantFolder     Variant = "folder"
)

// ParseVariant accepts the canonical names plus a few spellings used on the CLI.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "singlefile", "single", "single-file", "file":
		return VariantSingleFile, nil
	case "folder", "dir", "directory":
		return VariantFolder, nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// Phase is the step of the submission state machine a session is in.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseRejected   Phase = "rejected"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// SessionInfo is the metadata the API reports for an intake session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Variant      Variant   `json:"variant"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}
