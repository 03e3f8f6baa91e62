package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsTimeout = 2 * time.Minute

// GCSStore keeps artifacts as objects under a prefix of a bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore connects to Cloud Storage. Without a credentials file it uses
// Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// ObjectName returns the object path of the named artifact.
func (s *GCSStore) ObjectName(name string) string {
	return objectName(s.prefix, name)
}

// URI returns the gs:// URI of the named artifact.
func (s *GCSStore) URI(name string) string {
	return "gs://" + s.bucket + "/" + s.ObjectName(name)
}

func (s *GCSStore) WriteArtifact(ctx context.Context, name string, payload []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, gcsTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.ObjectName(name)).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s to GCS: %w", s.URI(name), err)
	}

	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload of %s: %w", s.URI(name), err)
	}
	return nil
}

func (s *GCSStore) ReadArtifact(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, gcsTimeout)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(s.ObjectName(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", s.URI(name), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

func objectName(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// SplitURI splits gs://bucket/path/to/object into bucket and object path.
func SplitURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// NameFromURI returns the artifact name at the end of a gs:// URI.
// e.g. "gs://bucket/aperture/transformed_mock_x.json" → "transformed_mock_x.json"
func NameFromURI(uri string) (string, error) {
	_, object, err := SplitURI(uri)
	if err != nil {
		return "", err
	}
	return path.Base(object), nil
}
