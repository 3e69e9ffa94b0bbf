// Package upload stores complaint attachments.
//
// Citizens attach photos and documents to complaints; this package owns the
// blob side of that. Two backends are provided: DiskStore for single-node
// deployments and S3Store for shared object storage. Both enforce a size
// limit and support age-based cleanup of orphaned files.
package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an attachment does not exist.
var ErrNotFound = errors.New("upload: attachment not found")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// Attachment describes a stored file.
type Attachment struct {
	// ID is the storage identifier, assigned at save time.
	ID string `json:"id"`

	// Filename is the original client-supplied name.
	Filename string `json:"filename"`

	// ContentType is the MIME type reported by the client.
	ContentType string `json:"contentType"`

	// Size is the stored size in bytes.
	Size int64 `json:"size"`

	// CreatedAt is when the attachment was stored.
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the interface for attachment backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the file and returns its attachment record.
	// Returns ErrTooLarge if the content exceeds the backend's limit.
	Save(ctx context.Context, filename, contentType string, r io.Reader) (*Attachment, error)

	// Open returns the content and record for an attachment.
	// The caller closes the reader.
	Open(ctx context.Context, id string) (io.ReadCloser, *Attachment, error)

	// Delete removes an attachment. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// Cleanup removes attachments older than maxAge. Run periodically to
	// reclaim files whose complaints were never submitted.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// newID returns a random attachment id.
func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("upload: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
