package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hay-kot/criterio"
	"taskflow/backend"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// ValidateTitle requires a non-blank title within the length limit.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	return nil
}

// ValidateDescription enforces the description length limit.
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

// ValidateStatus accepts the canonical statuses only.
func ValidateStatus(status backend.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("status must be one of todo, in-progress, done")
	}
	return nil
}

// ValidateNewTask checks a task about to be created. An empty status is
// allowed and defaults to todo.
func ValidateNewTask(t backend.Task) error {
	var errs criterio.FieldErrorsBuilder
	if err := ValidateTitle(t.Title); err != nil {
		errs = errs.Append("title", err)
	}
	if err := ValidateDescription(t.Description); err != nil {
		errs = errs.Append("description", err)
	}
	if t.Status != "" {
		if err := ValidateStatus(t.Status); err != nil {
			errs = errs.Append("status", err)
		}
	}
	return errs.ToError()
}

// ValidatePatch checks the fields present in a partial update.
func ValidatePatch(p backend.TaskPatch) error {
	var errs criterio.FieldErrorsBuilder
	if p.Title != nil {
		if err := ValidateTitle(*p.Title); err != nil {
			errs = errs.Append("title", err)
		}
	}
	if p.Description != nil {
		if err := ValidateDescription(*p.Description); err != nil {
			errs = errs.Append("description", err)
		}
	}
	if p.Status != nil {
		if err := ValidateStatus(*p.Status); err != nil {
			errs = errs.Append("status", err)
		}
	}
	return errs.ToError()
}

// FieldMessages flattens validation errors into user-facing strings.
// Errors that are not field errors yield their own message.
func FieldMessages(err error) []string {
	if err == nil {
		return nil
	}
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Err.Error())
	}
	return msgs
}

// ParseTaskID parses a positive integer task id argument.
func ParseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidTaskID(arg)
	}
	return id, nil
}
