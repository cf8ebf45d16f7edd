package libraries

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ThumbnailStore keeps design preview images and returns the URL they are served from.
type ThumbnailStore interface {
	Put(ctx context.Context, designID string, mime string, data []byte) (string, error)
}

func thumbnailName(designID, mime string) string {
	ext := ".jpg"
	switch mime {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}
	return designID + ext
}

// GCSThumbnailStore writes thumbnails to a Cloud Storage bucket.
type GCSThumbnailStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSThumbnailStore uses GCP_SERVICE_ACCOUNT_CREDENTIALS (base64 service account JSON)
// when set and application default credentials otherwise.
func NewGCSThumbnailStore(ctx context.Context, bucket, baseURL string) (*GCSThumbnailStore, error) {
	var opts []option.ClientOption
	if encoded := os.Getenv("GCP_SERVICE_ACCOUNT_CREDENTIALS"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode service account json: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	if baseURL == "" || strings.HasPrefix(baseURL, "/") {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSThumbnailStore{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *GCSThumbnailStore) Put(ctx context.Context, designID, mime string, data []byte) (string, error) {
	name := "thumbnails/" + thumbnailName(designID, mime)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mime
	// thumbnails are overwritten on every save
	w.CacheControl = "no-cache"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return s.baseURL + "/" + name, nil
}

func (s *GCSThumbnailStore) Close() error {
	return s.client.Close()
}

// LocalThumbnailStore writes thumbnails to a directory served by the API.
type LocalThumbnailStore struct {
	Dir     string
	BaseURL string
}

func NewLocalThumbnailStore(dir, baseURL string) (*LocalThumbnailStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create thumbnail directory: %w", err)
	}
	return &LocalThumbnailStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalThumbnailStore) Put(_ context.Context, designID, mime string, data []byte) (string, error) {
	name := thumbnailName(designID, mime)
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return s.BaseURL + "/" + name, nil
}
