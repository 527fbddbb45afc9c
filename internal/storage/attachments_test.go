package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineStoreReturnsPayload(t *testing.T) {
	ref, err := InlineStore{}.Put(context.Background(), 1, "cat.png", "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", ref)
	assert.NoError(t, InlineStore{}.Delete(context.Background(), ref))
}

func TestMinioDeleteIgnoresForeignReferences(t *testing.T) {
	s := &MinioStore{bucket: "chat-attachments"}

	assert.NoError(t, s.Delete(context.Background(), "data:image/png;base64,AAAA"))
	assert.NoError(t, s.Delete(context.Background(), "s3://other-bucket/rooms/1/a.png"))
	assert.NoError(t, s.Delete(context.Background(), "s3://chat-attachments/"))
}

func TestDecodePayload(t *testing.T) {
	data, contentType := decodePayload("data:image/png;base64,aGVsbG8=")
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, "image/png", contentType)

	data, contentType = decodePayload("data:image/png;base64,%%%")
	assert.Equal(t, []byte("data:image/png;base64,%%%"), data)
	assert.Equal(t, "application/octet-stream", contentType)

	data, contentType = decodePayload("plain")
	assert.Equal(t, []byte("plain"), data)
	assert.Equal(t, "application/octet-stream", contentType)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "rooms/7/abc.png", ObjectKey(7, "Cat.PNG", "abc"))
	assert.Equal(t, "rooms/7/abc", ObjectKey(7, "noext", "abc"))
	assert.Equal(t, "rooms/7/abc", ObjectKey(7, "trailing.", "abc"))
}
