package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-chat-service/internal/apperrors"
	"room-chat-service/internal/models"
	"room-chat-service/internal/repositories"
)

type countingAttachments struct {
	puts    int
	deleted []string
}

func (a *countingAttachments) Put(_ context.Context, roomID int64, _ string, _ string) (string, error) {
	a.puts++
	return fmt.Sprintf("s3://chat-attachments/rooms/%d/%d.png", roomID, a.puts), nil
}

func (a *countingAttachments) Delete(_ context.Context, ref string) error {
	a.deleted = append(a.deleted, ref)
	return nil
}

// failingInsertStore rejects every message insert inside a transaction.
type failingInsertStore struct {
	repositories.Store
}

func (s failingInsertStore) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repositories.Store) error {
		return fn(failingInsertStore{Store: tx})
	})
}

func (s failingInsertStore) Messages() repositories.MessageRepository {
	return failingMessages{MessageRepository: s.Store.Messages()}
}

type failingMessages struct {
	repositories.MessageRepository
}

func (failingMessages) CreateMessage(context.Context, *models.Message) error {
	return apperrors.Transient(errors.New("disk full"), "insert message")
}

func TestAppendTextLengthBoundary(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")

	msg, err := f.log.Append(f.ctx, room, &alice, models.TextBody{Text: strings.Repeat("가", models.MaxTextLength)})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeText, msg.Type)

	_, err = f.log.Append(f.ctx, room, &alice, models.TextBody{Text: strings.Repeat("a", models.MaxTextLength+1)})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	_, err = f.log.Append(f.ctx, room, &alice, models.TextBody{Text: " \n\t "})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestAppendRejectsBadBodies(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")

	cases := map[string]models.MessageBody{
		"nil body":           nil,
		"image without name": models.ImageBody{Payload: "AAAA"},
		"empty sticker":      models.StickerBody{},
		"oversized sticker":  models.StickerBody{Payload: strings.Repeat("x", models.MaxPayloadBytes+1)},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.log.Append(f.ctx, room, &alice, body)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
		})
	}

	_, err := f.log.Append(f.ctx, room, nil, models.TextBody{Text: "who am i"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestAppendMediaContent(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")

	image, err := f.log.Append(f.ctx, room, &alice, models.ImageBody{FileName: "cat.png", Payload: "data:image/png;base64,AAAA"})
	require.NoError(t, err)
	assert.Equal(t, "cat.png", image.Content)
	require.NotNil(t, image.Attachment)
	assert.Equal(t, models.MediaKindImage, image.Attachment.Kind)

	sticker, err := f.log.Append(f.ctx, room, &alice, models.StickerBody{Payload: "heart"})
	require.NoError(t, err)
	assert.Equal(t, "[sticker]", sticker.Content)
	assert.Equal(t, "[sticker]", sticker.Preview())

	stored, err := f.log.Get(f.ctx, image.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Attachment)
	assert.Equal(t, "cat.png", stored.Attachment.FileName)
}

func TestAppendRequiresMembershipAndRoom(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, "general")

	_, err := f.log.Append(f.ctx, room, &bob, models.TextBody{Text: "let me in"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	_, err = f.log.Append(f.ctx, 404, &alice, models.TextBody{Text: "hello?"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMessageIDsStrictlyIncreaseWithTime(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.log.Append(f.ctx, room, &alice, models.TextBody{Text: text})
		require.NoError(t, err)
	}

	msgs, err := f.log.ListSince(f.ctx, room, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID)
		assert.False(t, msgs[i].SentAt.Before(msgs[i-1].SentAt))
	}
}

func TestListSinceForStrangerIsEmpty(t *testing.T) {
	f := newFixture(t)
	alice, carol := f.user(t, "alice"), f.user(t, "carol")
	room := f.room(t, alice, "general")

	msgs, err := f.log.ListSince(f.ctx, room, &carol)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = f.log.ListSince(f.ctx, 404, nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")
	for _, text := range []string{"lunch at noon", "100% sure", "Lunch again"} {
		_, err := f.log.Append(f.ctx, room, &alice, models.TextBody{Text: text})
		require.NoError(t, err)
	}

	found, err := f.log.Search(f.ctx, room, "  lunch ")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Lunch again", found[0].Content)
	assert.Equal(t, "lunch at noon", found[1].Content)

	found, err = f.log.Search(f.ctx, room, "%")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "100% sure", found[0].Content)

	_, err = f.log.Search(f.ctx, room, "   ")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	_, err = f.log.Search(f.ctx, room, strings.Repeat("k", 256))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestLastMessage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")

	last, ok, err := f.log.LastMessage(f.ctx, room)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.IsSystem())

	sent, err := f.log.Append(f.ctx, room, &alice, models.TextBody{Text: "latest"})
	require.NoError(t, err)
	_, err = f.log.SoftDelete(f.ctx, room, sent.ID, alice)
	require.NoError(t, err)

	last, ok, err = f.log.LastMessage(f.ctx, room)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, sent.ID, last.ID)

	_, ok, err = f.log.LastMessage(f.ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestImageUploadRequiresActiveMember(t *testing.T) {
	f := newFixture(t)
	alice, mallory := f.user(t, "alice"), f.user(t, "mallory")
	room := f.room(t, alice, "general")
	attachments := &countingAttachments{}
	msgLog := NewMessageLog(f.memory, attachments, f.clock.Now)
	image := models.ImageBody{FileName: "cat.png", Payload: "data:image/png;base64,AAAA"}

	_, err := msgLog.Append(f.ctx, room, &mallory, image)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))
	_, err = msgLog.Append(f.ctx, 404, &alice, image)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 0, attachments.puts)

	require.NoError(t, f.rooms.DeactivateRoom(f.ctx, room, alice))
	_, err = msgLog.Append(f.ctx, room, &alice, image)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))
	assert.Equal(t, 0, attachments.puts)
}

func TestFailedAppendRemovesUploadedImage(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	room := f.room(t, alice, "general")
	attachments := &countingAttachments{}
	msgLog := NewMessageLog(failingInsertStore{Store: f.memory}, attachments, f.clock.Now)

	_, err := msgLog.Append(f.ctx, room, &alice, models.ImageBody{FileName: "cat.png", Payload: "data:image/png;base64,AAAA"})
	assert.True(t, errors.Is(err, apperrors.ErrTransient))
	assert.Equal(t, 1, attachments.puts)
	assert.Equal(t, []string{fmt.Sprintf("s3://chat-attachments/rooms/%d/1.png", room)}, attachments.deleted)
}
