package watch

import (
	"context"
	"errors"

	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/workflow"
)

// ProcessFile stages path into c and submits it. The error carries the
// status message when the file was rejected or the submission failed.
func ProcessFile(ctx context.Context, c *workflow.Controller, path string) (workflow.State, error) {
	cand, err := intake.FromPath(path)
	if err != nil {
		return workflow.State{}, err
	}

	st, err := c.Stage(ctx, []intake.Candidate{cand})
	if err != nil {
		return st, err
	}
	if st.Message.Kind == models.MessageError {
		return st, errors.New(st.Message.Text)
	}

	st, err = c.Submit(ctx)
	if err != nil {
		return st, err
	}
	if st.Phase != models.PhaseSucceeded {
		return st, errors.New(st.Message.Text)
	}
	return st, nil
}
