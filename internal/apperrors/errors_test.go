package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSentinelsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("join room: %w", NotFound("room %d not found", 7))

	require.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "join room: room 7 not found", err.Error())
}

func TestSpecificSentinelDoesNotMatchOtherErrorsOfSameKind(t *testing.T) {
	errRoomMissing := NotFound("room not found")
	errUserMissing := NotFound("user not found")

	assert.True(t, errors.Is(errRoomMissing, errRoomMissing))
	assert.False(t, errors.Is(errUserMissing, errRoomMissing))
	assert.True(t, errors.Is(errUserMissing, ErrNotFound))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(cause, "load room")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, "load room: connection reset", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, "unknown", KindOf(nil).String())
}
