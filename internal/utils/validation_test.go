package utils

import (
	"strings"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"taskflow/backend"
)

func ptr[T any](v T) *T { return &v }

func TestValidateNewTask(t *testing.T) {
	require.NoError(t, ValidateNewTask(backend.Task{Title: "Ship it"}))
	require.NoError(t, ValidateNewTask(backend.Task{Title: "Ship it", Status: backend.StatusDone}))

	err := ValidateNewTask(backend.Task{Title: "   ", Status: "blocked"})
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)
	assert.Equal(t, "title", fieldErrs[0].Field)
	assert.Equal(t, "status", fieldErrs[1].Field)
}

func TestValidateNewTask_Lengths(t *testing.T) {
	err := ValidateNewTask(backend.Task{
		Title:       strings.Repeat("a", MaxTitleLength+1),
		Description: strings.Repeat("b", MaxDescriptionLength+1),
	})
	msgs := FieldMessages(err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "title must be at most")
	assert.Contains(t, msgs[1], "description must be at most")
}

func TestValidatePatch(t *testing.T) {
	require.NoError(t, ValidatePatch(backend.TaskPatch{}))
	require.NoError(t, ValidatePatch(backend.TaskPatch{Status: ptr(backend.StatusInProgress)}))

	err := ValidatePatch(backend.TaskPatch{Title: ptr("")})
	assert.Equal(t, []string{"title is required"}, FieldMessages(err))
}

func TestFieldMessages_PlainError(t *testing.T) {
	assert.Nil(t, FieldMessages(nil))
	assert.Equal(t, []string{assert.AnError.Error()}, FieldMessages(assert.AnError))
}

func TestParseTaskID(t *testing.T) {
	id, err := ParseTaskID(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := ParseTaskID(bad)
		assert.Error(t, err, "ParseTaskID(%q)", bad)
	}
}
