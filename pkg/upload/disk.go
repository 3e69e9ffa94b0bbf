package upload

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore stores attachments on the local filesystem. Each attachment is
// a blob file plus a JSON sidecar with its metadata, so the store survives
// restarts without a database.
type DiskStore struct {
	dir     string
	maxSize int64
}

// NewDiskStore creates a DiskStore rooted at dir. maxSize of 0 disables the
// size limit.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, maxSize: maxSize}, nil
}

func (s *DiskStore) blobPath(id string) string { return filepath.Join(s.dir, id) }
func (s *DiskStore) metaPath(id string) string { return filepath.Join(s.dir, id+".json") }

// Save stores the file and its metadata sidecar.
func (s *DiskStore) Save(ctx context.Context, filename, contentType string, r io.Reader) (*Attachment, error) {
	id := newID()
	path := s.blobPath(id)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := r
	if s.maxSize > 0 {
		// One extra byte so the limit overflow is detectable.
		reader = io.LimitReader(r, s.maxSize+1)
	}
	written, err := io.Copy(f, reader)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	if s.maxSize > 0 && written > s.maxSize {
		os.Remove(path)
		return nil, ErrTooLarge
	}

	att := &Attachment{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        written,
		CreatedAt:   time.Now().UTC(),
	}
	meta, err := json.Marshal(att)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	if err := os.WriteFile(s.metaPath(id), meta, 0o644); err != nil {
		os.Remove(path)
		return nil, err
	}
	return att, nil
}

// Open returns the attachment content and metadata.
func (s *DiskStore) Open(ctx context.Context, id string) (io.ReadCloser, *Attachment, error) {
	meta, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	var att Attachment
	if err := json.Unmarshal(meta, &att); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return f, &att, nil
}

// Delete removes the blob and sidecar. Missing files are ignored.
func (s *DiskStore) Delete(ctx context.Context, id string) error {
	if err := os.Remove(s.blobPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// String describes the backend for startup logging.
func (s *DiskStore) String() string {
	return "disk:" + s.dir
}

// Cleanup removes attachments older than maxAge.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := s.Delete(ctx, entry.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}
