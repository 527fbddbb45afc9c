// Package storage keeps image payloads out of the message table.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// AttachmentStore stores an encoded image payload and returns the reference
// persisted on the attachment row.
type AttachmentStore interface {
	Put(ctx context.Context, roomID int64, fileName, payload string) (string, error)
	// Delete removes a stored payload by the reference Put returned.
	Delete(ctx context.Context, ref string) error
}

// InlineStore keeps the payload itself as the reference.
type InlineStore struct{}

func (InlineStore) Put(_ context.Context, _ int64, _ string, payload string) (string, error) {
	return payload, nil
}

func (InlineStore) Delete(context.Context, string) error { return nil }

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore uploads payloads as objects and returns "s3://bucket/key" references.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the bucket, creating it when missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://"), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("minio attachment store ready")
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, roomID int64, fileName, payload string) (string, error) {
	data, contentType := decodePayload(payload)
	key := ObjectKey(roomID, fileName, uuid.NewString())

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload attachment: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Delete removes the object behind an "s3://bucket/key" reference. References
// to other buckets are left alone.
func (s *MinioStore) Delete(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, fmt.Sprintf("s3://%s/", s.bucket))
	if !ok || key == "" {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}

// ObjectKey builds the object name for an attachment of a room.
func ObjectKey(roomID int64, fileName, id string) string {
	ext := ""
	if i := strings.LastIndex(fileName, "."); i >= 0 && i < len(fileName)-1 {
		ext = strings.ToLower(fileName[i:])
	}
	return fmt.Sprintf("rooms/%d/%s%s", roomID, id, ext)
}

// decodePayload unpacks "data:<mime>;base64,<data>" URLs. Anything else is
// stored verbatim as an opaque blob.
func decodePayload(payload string) ([]byte, string) {
	const prefix = "data:"
	if strings.HasPrefix(payload, prefix) {
		header, body, ok := strings.Cut(payload[len(prefix):], ",")
		if ok && strings.HasSuffix(header, ";base64") {
			if data, err := base64.StdEncoding.DecodeString(body); err == nil {
				contentType := strings.TrimSuffix(header, ";base64")
				if contentType == "" {
					contentType = "application/octet-stream"
				}
				return data, contentType
			}
		}
	}
	return []byte(payload), "application/octet-stream"
}
