// Package gcs moves uploaded statement documents in and out of Google
// Cloud Storage. Application Default Credentials are assumed.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// Fetch downloads a document from a gs://bucket/object URI. The MIME type
// is taken from object metadata, falling back to a sniff on the extension.
func Fetch(ctx context.Context, gcsURI string) (domain.RawDocument, error) {
	bucket, object, err := splitURI(gcsURI)
	if err != nil {
		return domain.RawDocument{}, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("gcs fetch: creating storage client: %w", err)
	}
	defer client.Close()

	obj := client.Bucket(bucket).Object(object)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("gcs fetch: object attrs %s: %w", gcsURI, err)
	}

	rc, err := obj.NewReader(ctx)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("gcs fetch: reading object %s: %w", gcsURI, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("gcs fetch: reading bytes: %w", err)
	}

	mime := attrs.ContentType
	if mime == "" {
		mime = MIMEFromName(object)
	}

	return domain.RawDocument{Data: data, MIMEType: mime}, nil
}

// Upload pushes a local file into the bucket under objectName.
func Upload(ctx context.Context, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("gcs upload: open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("gcs upload: creating storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = MIMEFromName(objectName)

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs upload: copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs upload: finalize: %w", err)
	}
	return nil
}

// Filename extracts the object's base name from a GCS URI, for logging.
func Filename(gcsURI string) string {
	_, object, err := splitURI(gcsURI)
	if err != nil {
		return gcsURI
	}
	return path.Base(object)
}

// MIMEFromName maps a filename extension to the document MIME types the
// pipeline understands.
func MIMEFromName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func splitURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}
