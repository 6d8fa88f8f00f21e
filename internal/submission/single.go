package submission

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/informes/backend/internal/models"
)

// SingleFileStrategy posts the first staged file to the report generator and
// returns the processed document.
type SingleFileStrategy struct {
	URL      string
	Client   Doer
	Filename string // defaults to ResultFilename
	// MaxResultBytes caps the response body; 0 means unlimited.
	MaxResultBytes int64
}

// Variant implements Strategy.
func (s *SingleFileStrategy) Variant() models.Variant { return models.VariantSingleFile }

// EmptyMessage implements Strategy.
func (s *SingleFileStrategy) EmptyMessage() string { return MsgSelectDocxFirst }

// Submit implements Strategy.
func (s *SingleFileStrategy) Submit(ctx context.Context, files []Payload) (*Result, error) {
	if len(files) == 0 {
		return nil, errors.New(MsgSelectDocxFirst)
	}

	resp, err := postMultipart(ctx, s.Client, s.URL, "file", files[:1], false)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if s.MaxResultBytes > 0 {
		body = io.LimitReader(resp.Body, s.MaxResultBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if s.MaxResultBytes > 0 && int64(len(data)) > s.MaxResultBytes {
		return nil, fmt.Errorf("response larger than %d bytes", s.MaxResultBytes)
	}

	filename := s.Filename
	if filename == "" {
		filename = ResultFilename
	}
	return &Result{
		Data:       data,
		Filename:   filename,
		Message:    MsgReportGenerated,
		HTTPStatus: resp.StatusCode,
	}, nil
}
