// Package workflow holds the intake/submission state of one user session.
//
// State changes go through Reduce, a pure function, so every transition can be
// tested without a network, a timer or a browser. Controller wires Reduce to
// storage, the submission strategy, the downloader and the message timer.
package workflow

import (
	"github.com/informes/backend/internal/models"
)

// State is a snapshot of one session.
type State struct {
	Variant    models.Variant      `json:"variant" msgpack:"variant"`
	Phase      models.Phase        `json:"phase" msgpack:"phase"`
	Staged     []models.StagedFile `json:"staged" msgpack:"staged"`
	Message    models.Message      `json:"message" msgpack:"message"`
	Loading    bool                `json:"loading" msgpack:"loading"`
	DragActive bool                `json:"dragActive" msgpack:"dragActive"`
	Download   *models.Download    `json:"download,omitempty" msgpack:"download,omitempty"`

	// MessageSeq increases every time Message is replaced, so a timer armed
	// for an older message can tell it is stale.
	MessageSeq uint64 `json:"messageSeq" msgpack:"messageSeq"`
}

// NewState returns the idle state of a variant.
func NewState(v models.Variant) State {
	return State{Variant: v, Phase: models.PhaseIdle, Staged: []models.StagedFile{}}
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// DragEntered marks the drop zone active.
type DragEntered struct{}

// DragLeft clears the drop zone highlight.
type DragLeft struct{}

// FilesStaged replaces the staged set. A non-empty Rejection means the
// selection had nothing acceptable: the set becomes empty and the rejection is
// shown as an error.
type FilesStaged struct {
	Files     []models.StagedFile
	Rejection string
}

// SubmitRequested starts validating a submission attempt.
type SubmitRequested struct{}

// SubmitRejected ends an attempt before any network call.
type SubmitRejected struct {
	Reason string
}

// SubmitStarted enters the in-flight phase.
type SubmitStarted struct{}

// SubmitSucceeded ends an attempt successfully.
type SubmitSucceeded struct {
	Message     string
	Download    *models.Download
	ClearStaged bool
}

// SubmitFailed ends an attempt with a transport or server error.
type SubmitFailed struct {
	Message string
}

// MessageExpired clears the message shown at sequence Seq.
type MessageExpired struct {
	Seq uint64
}

// MessageDismissed clears whatever message is shown.
type MessageDismissed struct{}

func (DragEntered) isEvent()      {}
func (DragLeft) isEvent()         {}
func (FilesStaged) isEvent()      {}
func (SubmitRequested) isEvent()  {}
func (SubmitRejected) isEvent()   {}
func (SubmitStarted) isEvent()    {}
func (SubmitSucceeded) isEvent()  {}
func (SubmitFailed) isEvent()     {}
func (MessageExpired) isEvent()   {}
func (MessageDismissed) isEvent() {}

// Reduce applies e to s and returns the new state. s is not modified.
func Reduce(s State, e Event) State {
	next := s
	next.Staged = cloneFiles(s.Staged)

	switch ev := e.(type) {
	case DragEntered:
		next.DragActive = true

	case DragLeft:
		next.DragActive = false

	case FilesStaged:
		next.DragActive = false
		if ev.Rejection != "" {
			next.Staged = []models.StagedFile{}
			next.setMessage(models.ErrorMessage(ev.Rejection))
		} else {
			next.Staged = cloneFiles(ev.Files)
			next.setMessage(models.Message{})
		}
		if !next.Loading {
			next.Phase = models.PhaseIdle
		}

	case SubmitRequested:
		next.Phase = models.PhaseValidating

	case SubmitRejected:
		next.Phase = models.PhaseRejected
		next.setMessage(models.ErrorMessage(ev.Reason))

	case SubmitStarted:
		next.Phase = models.PhaseSubmitting
		next.Loading = true
		next.Download = nil
		next.setMessage(models.Message{})

	case SubmitSucceeded:
		next.Phase = models.PhaseSucceeded
		next.Loading = false
		next.Download = ev.Download
		next.setMessage(models.SuccessMessage(ev.Message))
		if ev.ClearStaged {
			next.Staged = []models.StagedFile{}
		}

	case SubmitFailed:
		next.Phase = models.PhaseFailed
		next.Loading = false
		next.setMessage(models.ErrorMessage(ev.Message))

	case MessageExpired:
		if ev.Seq == s.MessageSeq && !s.Message.IsZero() {
			next.setMessage(models.Message{})
			if !next.Loading {
				next.Phase = models.PhaseIdle
			}
		}

	case MessageDismissed:
		if !s.Message.IsZero() {
			next.setMessage(models.Message{})
		}
	}

	return next
}

func (s *State) setMessage(m models.Message) {
	s.Message = m
	s.MessageSeq++
}

func cloneFiles(files []models.StagedFile) []models.StagedFile {
	out := make([]models.StagedFile, len(files))
	copy(out, files)
	return out
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s State) Clone() State {
	c := s
	c.Staged = cloneFiles(s.Staged)
	if s.Download != nil {
		d := *s.Download
		c.Download = &d
	}
	return c
}
