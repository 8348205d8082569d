package store

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Avatar content types accepted for upload, with their file extensions.
var avatarTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// AvatarStore keeps profile pictures in the service's S3-compatible bucket.
type AvatarStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewAvatarStore connects to the storage endpoint and makes sure the bucket
// exists. publicURL is the prefix objects are served from; when empty the
// endpoint itself is used.
func NewAvatarStore(ctx context.Context, endpoint, accessKey, secretKey, bucket, publicURL string, useSSL bool) (*AvatarStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage make bucket: %w", err)
		}
	}

	if publicURL == "" {
		publicURL = client.EndpointURL().String()
	}
	return &AvatarStore{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// AvatarContentTypeAllowed reports whether contentType can be uploaded.
func AvatarContentTypeAllowed(contentType string) bool {
	_, ok := avatarTypes[contentType]
	return ok
}

// Avatar is a stored object and the URL it is served from.
type Avatar struct {
	Key string
	URL string
}

// Upload stores a new avatar for userID.
func (s *AvatarStore) Upload(ctx context.Context, userID string, data []byte, contentType string) (Avatar, error) {
	ext, ok := avatarTypes[contentType]
	if !ok {
		return Avatar{}, fmt.Errorf("upload avatar: unsupported content type %q", contentType)
	}
	key := fmt.Sprintf("%s/%s.%s", userID, uuid.NewString(), ext)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Avatar{}, fmt.Errorf("upload avatar: %w", err)
	}
	return Avatar{Key: key, URL: fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)}, nil
}

// Remove deletes an uploaded avatar object.
func (s *AvatarStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// SetAvatar points the profile at a stored avatar.
func (s *Store) SetAvatar(ctx context.Context, userID, url string) error {
	return s.UpdateProfile(ctx, userID, map[string]any{"avatar_url": url})
}
