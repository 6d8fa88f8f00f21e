package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/informes/backend/internal/models"
)

// FolderStrategy submits a whole staged folder. With no URL configured the
// backend contract is undefined, so it only reports a placeholder and makes
// no network call.
type FolderStrategy struct {
	URL    string
	Client Doer
}

type folderResponse struct {
	Message string `json:"message"`
}

// Variant implements Strategy.
func (s *FolderStrategy) Variant() models.Variant { return models.VariantFolder }

// EmptyMessage implements Strategy.
func (s *FolderStrategy) EmptyMessage() string { return MsgSelectFolderFirst }

// AcceptsEmpty implements EmptyAccepter: the placeholder is shown whether or
// not anything is staged.
func (s *FolderStrategy) AcceptsEmpty() bool { return s.URL == "" }

// Submit implements Strategy.
func (s *FolderStrategy) Submit(ctx context.Context, files []Payload) (*Result, error) {
	if s.URL == "" {
		return &Result{Message: MsgFolderPending, KeepStaged: true}, nil
	}
	if len(files) == 0 {
		return nil, errors.New(MsgSelectFolderFirst)
	}

	resp, err := postMultipart(ctx, s.Client, s.URL, "files", files, true)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var out folderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	msg := out.Message
	if msg == "" {
		msg = fmt.Sprintf("%d archivos procesados", len(files))
	}
	return &Result{Message: msg, HTTPStatus: resp.StatusCode, KeepStaged: true}, nil
}
