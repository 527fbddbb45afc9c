package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
)

func TestLoginCreatesThenReturnsUser(t *testing.T) {
	f := newFixture(t)

	created, isNew, err := f.users.Login(f.ctx, LoginRequest{Nickname: " 민수_01 "})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "민수_01", created.Nickname)
	assert.Equal(t, models.DefaultProfileColor, created.ProfileColor)

	again, isNew, err := f.users.Login(f.ctx, LoginRequest{Nickname: "민수_01", ProfileColor: "#ff0000"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "#ff0000", again.ProfileColor)
	assert.True(t, again.LastActiveAt.After(created.LastActiveAt))

	stored, err := f.users.GetUser(f.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", stored.ProfileColor)
}

func TestLoginRejectsInvalidNicknames(t *testing.T) {
	f := newFixture(t)
	for _, nickname := range []string{"", "a", "has space", "semi;colon", string(make([]byte, 51))} {
		_, _, err := f.users.Login(f.ctx, LoginRequest{Nickname: nickname})
		assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument), "nickname %q", nickname)
	}
}

func TestRegisterAndNicknameAvailability(t *testing.T) {
	f := newFixture(t)

	available, err := f.users.NicknameAvailable(f.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, available)

	user, err := f.users.Register(f.ctx, LoginRequest{Nickname: "alice"})
	require.NoError(t, err)

	_, err = f.users.Register(f.ctx, LoginRequest{Nickname: "alice"})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	available, err = f.users.NicknameAvailable(f.ctx, "alice")
	require.NoError(t, err)
	assert.False(t, available)

	_, err = f.users.NicknameAvailable(f.ctx, "!")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	byName, err := f.users.GetUserByNickname(f.ctx, " alice ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = f.users.GetUser(f.ctx, 999)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
