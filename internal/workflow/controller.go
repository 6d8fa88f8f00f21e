package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/submission"
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrClosed is returned after the session was closed.
	ErrClosed = errors.New("session closed")
)

// DefaultMessageTTL is how long a status message stays on screen.
const DefaultMessageTTL = 3 * time.Second

// Recorder receives one record per submission attempt.
type Recorder interface {
	Record(ctx context.Context, rec models.SubmissionRecord) error
}

// Config wires a Controller.
type Config struct {
	SessionID  string
	Variant    models.Variant
	Store      storage.Store
	Strategy   submission.Strategy
	Downloader submission.Downloader
	// Policy defaults to intake.PolicyFor(Variant).
	Policy intake.Policy
	Clock  clock.Clock
	// MessageTTL of 0 keeps messages until replaced.
	MessageTTL time.Duration
	Recorder   Recorder
	Logger     *slog.Logger
}

// Controller owns the state of one intake session. All methods are safe for
// concurrent use.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	timer    clock.Timer
	inflight map[string]bool
	subs     map[int]chan State
	nextSub  int
	closed   bool
}

// New creates a controller in the idle state.
func New(cfg Config) *Controller {
	if cfg.Variant == "" {
		cfg.Variant = cfg.Strategy.Variant()
	}
	if cfg.Policy == nil {
		cfg.Policy = intake.PolicyFor(cfg.Variant)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "workflow", "session", cfg.SessionID)

	return &Controller{
		cfg:      cfg,
		state:    NewState(cfg.Variant),
		inflight: make(map[string]bool),
		subs:     make(map[int]chan State),
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Variant returns the session variant.
func (c *Controller) Variant() models.Variant {
	return c.cfg.Variant
}

// Loading reports whether a submission is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Loading
}

// Drag applies a drop-zone lifecycle event.
func (c *Controller) Drag(ev intake.DragEvent) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev {
	case intake.DragEnter:
		c.apply(DragEntered{})
	case intake.DragLeave, intake.DragDrop:
		c.apply(DragLeft{})
	}
	return c.state.Clone()
}

// Stage replaces the staged set with the accepted subset of files. Accepted
// files are copied into storage; files of the replaced set are released.
func (c *Controller) Stage(ctx context.Context, files []intake.Candidate) (State, error) {
	if c.isClosed() {
		return State{}, ErrClosed
	}

	sel := c.cfg.Policy.Select(files)
	var staged []models.StagedFile
	if sel.Rejection == "" {
		var err error
		staged, err = c.persist(ctx, sel.Files)
		if err != nil {
			return c.State(), err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.release(staged)
		return State{}, ErrClosed
	}

	old := c.state.Staged
	c.apply(FilesStaged{Files: staged, Rejection: sel.Rejection})
	c.release(old)

	if sel.Rejection != "" {
		c.cfg.Logger.Info("selection rejected", "offered", len(files))
	} else {
		c.cfg.Logger.Info("files staged", "count", len(staged))
	}
	return c.state.Clone(), nil
}

func (c *Controller) persist(ctx context.Context, files []intake.Candidate) ([]models.StagedFile, error) {
	out := make([]models.StagedFile, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			c.release(out)
			return nil, err
		}
		sf, err := c.persistOne(f)
		if err != nil {
			c.release(out)
			return nil, fmt.Errorf("staging %s: %w", f.DisplayName(), err)
		}
		out = append(out, sf)
	}
	return out, nil
}

func (c *Controller) persistOne(f intake.Candidate) (models.StagedFile, error) {
	rc, err := f.Open()
	if err != nil {
		return models.StagedFile{}, err
	}
	defer rc.Close()

	info, err := c.cfg.Store.Save(f.Name, f.ContentType, rc)
	if err != nil {
		return models.StagedFile{}, err
	}
	return models.StagedFile{
		ID:          info.ID,
		Name:        f.Name,
		RelPath:     f.RelPath,
		ContentType: f.ContentType,
		Size:        info.Size,
	}, nil
}

// Submit performs one submission of the staged set. A failed submission is
// not an error: it is reported through the returned state's message. The
// error is ErrBusy when another submission is in flight and ErrClosed after
// Close.
func (c *Controller) Submit(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrClosed
	}
	if c.state.Loading {
		snapshot := c.state.Clone()
		c.mu.Unlock()
		return snapshot, ErrBusy
	}

	c.apply(SubmitRequested{})
	if len(c.state.Staged) == 0 && !submission.AcceptsEmpty(c.cfg.Strategy) {
		reason := c.cfg.Strategy.EmptyMessage()
		c.apply(SubmitRejected{Reason: reason})
		snapshot := c.state.Clone()
		c.mu.Unlock()

		c.record(ctx, models.SubmissionRecord{
			Outcome:   models.OutcomeRejected,
			Error:     reason,
			StartedAt: c.cfg.Clock.Now(),
		})
		return snapshot, nil
	}

	c.apply(SubmitStarted{})
	files := cloneFiles(c.state.Staged)
	for _, f := range files {
		c.inflight[f.ID] = true
	}
	c.mu.Unlock()

	started := c.cfg.Clock.Now()
	result, download, err := c.run(ctx, files)
	elapsed := c.cfg.Clock.Now().Sub(started)

	c.mu.Lock()
	// Files staged while the call was in flight may be dropped by the result.
	prev := cloneFiles(c.state.Staged)
	if err != nil {
		c.apply(SubmitFailed{Message: submission.FailureMessage(err)})
	} else {
		c.apply(SubmitSucceeded{
			Message:     result.Message,
			Download:    download,
			ClearStaged: !result.KeepStaged,
		})
	}
	for _, f := range files {
		delete(c.inflight, f.ID)
	}
	c.releaseUnstaged(append(prev, files...))
	snapshot := c.state.Clone()
	c.mu.Unlock()

	rec := models.SubmissionRecord{
		Files:      displayNames(files),
		Bytes:      totalSize(files),
		StartedAt:  started,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		rec.Outcome = models.OutcomeFailed
		rec.Error = err.Error()
		var httpErr *submission.HTTPError
		if errors.As(err, &httpErr) {
			rec.HTTPStatus = httpErr.StatusCode
		}
		c.cfg.Logger.Warn("submission failed", "err", err, "files", len(files), "elapsed", elapsed)
	} else {
		rec.Outcome = models.OutcomeSucceeded
		rec.HTTPStatus = result.HTTPStatus
		c.cfg.Logger.Info("submission succeeded", "files", len(files), "elapsed", elapsed, "download", download != nil)
	}
	c.record(ctx, rec)

	return snapshot, nil
}

// run calls the strategy and the downloader. A panic in either is turned
// into an error so the loading flag is always cleared.
func (c *Controller) run(ctx context.Context, files []models.StagedFile) (result *submission.Result, download *models.Download, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, download = nil, nil
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	result, err = c.cfg.Strategy.Submit(ctx, c.payloads(files))
	if err != nil {
		return nil, nil, err
	}
	if result.Data != nil && c.cfg.Downloader != nil {
		download, err = c.cfg.Downloader.Trigger(ctx, result.Data, result.Filename)
		if err != nil {
			return nil, nil, err
		}
	}
	return result, download, nil
}

func (c *Controller) payloads(files []models.StagedFile) []submission.Payload {
	out := make([]submission.Payload, len(files))
	for i, f := range files {
		id := f.ID
		out[i] = submission.Payload{
			Name:        f.Name,
			RelPath:     f.RelPath,
			ContentType: f.ContentType,
			Size:        f.Size,
			Open:        func() (io.ReadCloser, error) { return c.cfg.Store.Open(id) },
		}
	}
	return out
}

// Dismiss clears the current message.
func (c *Controller) Dismiss() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(MessageDismissed{})
	return c.state.Clone()
}

// Subscribe returns a channel receiving a snapshot after every change. Slow
// readers only miss intermediate snapshots, never the latest one.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 8)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops timers, closes subscriptions and releases staged files. Files
// of an in-flight submission are released when it finishes.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.release(c.state.Staged)
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// apply runs Reduce, re-arms the message timer when the message changed and
// notifies subscribers. Callers hold c.mu.
func (c *Controller) apply(e Event) {
	prevSeq := c.state.MessageSeq
	c.state = Reduce(c.state, e)
	if c.state.MessageSeq != prevSeq {
		c.armMessageTimer()
	}
	c.publish()
}

func (c *Controller) armMessageTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.state.Message.IsZero() || c.cfg.MessageTTL <= 0 || c.closed {
		return
	}
	seq := c.state.MessageSeq
	c.timer = c.cfg.Clock.AfterFunc(c.cfg.MessageTTL, func() {
		c.expireMessage(seq)
	})
}

func (c *Controller) expireMessage(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.state.MessageSeq {
		return
	}
	c.timer = nil
	c.apply(MessageExpired{Seq: seq})
}

func (c *Controller) publish() {
	if len(c.subs) == 0 {
		return
	}
	snapshot := c.state.Clone()
	for _, ch := range c.subs {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// release deletes stored bytes of files that no submission is reading.
func (c *Controller) release(files []models.StagedFile) {
	for _, f := range files {
		if c.inflight[f.ID] {
			continue
		}
		if err := c.cfg.Store.Delete(f.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			c.cfg.Logger.Warn("failed to release staged file", "id", f.ID, "err", err)
		}
	}
}

// releaseUnstaged releases the given files that are no longer staged, which
// happens when the set was cleared or replaced during the submission.
func (c *Controller) releaseUnstaged(files []models.StagedFile) {
	seen := make(map[string]bool, len(files)+len(c.state.Staged))
	if !c.closed {
		for _, f := range c.state.Staged {
			seen[f.ID] = true
		}
	}
	var gone []models.StagedFile
	for _, f := range files {
		if !seen[f.ID] {
			seen[f.ID] = true
			gone = append(gone, f)
		}
	}
	c.release(gone)
}

func (c *Controller) record(ctx context.Context, rec models.SubmissionRecord) {
	if c.cfg.Recorder == nil {
		return
	}
	rec.ID = uuid.New().String()
	rec.SessionID = c.cfg.SessionID
	rec.Variant = c.cfg.Variant
	if rec.Files == nil {
		rec.Files = []string{}
	}
	// The request context may already be cancelled; history is best effort.
	if err := c.cfg.Recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		c.cfg.Logger.Warn("failed to record submission", "err", err)
	}
}

func displayNames(files []models.StagedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.DisplayName()
	}
	return out
}

func totalSize(files []models.StagedFile) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}
