package taskstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskflow/backend"
	"taskflow/internal/utils"
)

// ErrInvalidTransition is returned when a draft operation is not allowed in its current state.
var ErrInvalidTransition = errors.New("invalid draft transition")

// DraftState is the lifecycle position of an edit session
type DraftState int

const (
	DraftIdle DraftState = iota
	DraftEditing
	DraftCommitting
)

func (s DraftState) String() string {
	switch s {
	case DraftIdle:
		return "idle"
	case DraftEditing:
		return "editing"
	case DraftCommitting:
		return "committing"
	}
	return fmt.Sprintf("DraftState(%d)", int(s))
}

// Draft is an edit session over one task. The authoritative copy in the
// store is only replaced once the remote update succeeds.
type Draft struct {
	state    DraftState
	original backend.Task
	working  backend.Task
	err      error
}

// NewDraft returns an idle draft.
func NewDraft() *Draft {
	return &Draft{}
}

// State returns the current state
func (d *Draft) State() DraftState { return d.state }

// Err returns the error recorded by the last failed commit.
func (d *Draft) Err() error { return d.err }

// Original returns the task as it was when editing began.
func (d *Draft) Original() backend.Task { return d.original }

// Working returns the edited copy.
func (d *Draft) Working() backend.Task { return d.working }

func (d *Draft) transition(from, to DraftState) error {
	if d.state != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, d.state)
	}
	d.state = to
	return nil
}

// Begin starts editing task.
func (d *Draft) Begin(task backend.Task) error {
	if err := d.transition(DraftIdle, DraftEditing); err != nil {
		return err
	}
	d.original = task
	d.working = task
	d.err = nil
	return nil
}

// SetTitle edits the working title
func (d *Draft) SetTitle(title string) error {
	if d.state != DraftEditing {
		return fmt.Errorf("%w: edit while %s", ErrInvalidTransition, d.state)
	}
	d.working.Title = title
	return nil
}

// SetDescription edits the working description
func (d *Draft) SetDescription(desc string) error {
	if d.state != DraftEditing {
		return fmt.Errorf("%w: edit while %s", ErrInvalidTransition, d.state)
	}
	d.working.Description = desc
	return nil
}

// SetStatus edits the working status
func (d *Draft) SetStatus(status backend.TaskStatus) error {
	if d.state != DraftEditing {
		return fmt.Errorf("%w: edit while %s", ErrInvalidTransition, d.state)
	}
	d.working.Status = status
	return nil
}

// Cancel discards the draft.
func (d *Draft) Cancel() error {
	if err := d.transition(DraftEditing, DraftIdle); err != nil {
		return err
	}
	d.reset()
	return nil
}

// Commit validates the draft and returns the patch to send. A validation
// failure leaves the draft in editing with the error recorded.
func (d *Draft) Commit() (backend.TaskPatch, error) {
	if err := d.transition(DraftEditing, DraftCommitting); err != nil {
		return backend.TaskPatch{}, err
	}
	patch := d.Patch()
	if err := utils.ValidatePatch(patch); err != nil {
		_ = d.Fail(err)
		return backend.TaskPatch{}, err
	}
	return patch, nil
}

// Patch returns the fields that differ from the original.
func (d *Draft) Patch() backend.TaskPatch {
	var p backend.TaskPatch
	if title := strings.TrimSpace(d.working.Title); title != d.original.Title {
		p.Title = &title
	}
	if d.working.Description != d.original.Description {
		desc := d.working.Description
		p.Description = &desc
	}
	if d.working.Status != d.original.Status {
		status := d.working.Status
		p.Status = &status
	}
	return p
}

// Done ends a successful commit.
func (d *Draft) Done() error {
	if err := d.transition(DraftCommitting, DraftIdle); err != nil {
		return err
	}
	d.reset()
	return nil
}

// Fail returns a committing draft to editing, keeping the edits.
func (d *Draft) Fail(err error) error {
	if terr := d.transition(DraftCommitting, DraftEditing); terr != nil {
		return terr
	}
	d.err = err
	return nil
}

func (d *Draft) reset() {
	d.original = backend.Task{}
	d.working = backend.Task{}
	d.err = nil
}

// Finish ends a commit with the outcome of its remote update: Done when err
// is nil, Fail otherwise.
func (d *Draft) Finish(err error) error {
	if err != nil {
		return d.Fail(err)
	}
	return d.Done()
}

// CommitDraft commits d through the update mutation. An unchanged draft
// finishes without a remote call and returns the original task.
func (s *Store) CommitDraft(ctx context.Context, d *Draft) (*backend.Task, error) {
	patch, err := d.Commit()
	if err != nil {
		return nil, err
	}
	updated, err := s.SendDraft(ctx, d.Original(), patch)
	_ = d.Finish(err)
	return updated, err
}

// SendDraft runs the remote half of a commit for a draft that was begun on
// original. It never touches the draft, so callers that own the draft on
// another goroutine call Finish with the result themselves.
func (s *Store) SendDraft(ctx context.Context, original backend.Task, patch backend.TaskPatch) (*backend.Task, error) {
	if patch.Empty() {
		return &original, nil
	}
	return s.Update(ctx, original.ID, patch)
}
