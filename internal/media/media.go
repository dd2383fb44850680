// Package media provides object storage for message attachments and
// uploaded files.
package media

import (
	"context"
	"strings"
	"time"
)

// Object describes one stored blob.
type Object struct {
	Key          string    `json:"key"`
	URL          string    `json:"url,omitempty"`
	Size         int64     `json:"size"`
	Mimetype     string    `json:"mimetype,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// Store is the object-store adapter for binary blobs. Retrieval goes
// through presigned URLs so media never streams through this process.
type Store interface {
	// Ensure creates the backing bucket if it does not exist yet.
	// Idempotent; called once at startup.
	Ensure(ctx context.Context) error

	// Upload stores data under key and returns the stored object with a
	// presigned retrieval URL. An empty key gets a generated one.
	Upload(ctx context.Context, data []byte, mimetype, key string) (*Object, error)

	// URL returns a presigned GET URL for key, valid for ttl.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete removes the object under key.
	Delete(ctx context.Context, key string) error

	// List returns the objects whose keys start with prefix. An empty
	// prefix lists the whole bucket.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// knownExtensions maps mimetypes to the file extension used when
// building media object keys.
var knownExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"video/mp4":       "mp4",
	"audio/ogg":       "ogg",
	"audio/mpeg":      "mp3",
	"application/pdf": "pdf",
}

// ExtensionFor returns the file extension for a mimetype, falling back
// to "bin" for anything unrecognized. Parameters after ";" are ignored.
func ExtensionFor(mimetype string) string {
	if i := strings.IndexByte(mimetype, ';'); i >= 0 {
		mimetype = strings.TrimSpace(mimetype[:i])
	}
	if ext, ok := knownExtensions[mimetype]; ok {
		return ext
	}
	return "bin"
}
