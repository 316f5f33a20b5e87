// Package multipart implements the coordinator's S3-style multipart upload
// protocol: an in-memory upload-id registry and on-disk part staging, with
// completion handing a single concatenated buffer to the replication
// pipeline.
package multipart

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/mkvstore/coordinator/pkg/metrics"
)

// ErrUnknownUpload is returned when an operation names an uploadId that was
// never initiated, already completed, or already aborted.
var ErrUnknownUpload = fmt.Errorf("multipart: unknown upload id")

// Registry tracks in-flight multipart uploads and which part numbers have
// been staged for each. It does not persist across restarts — an abandoned
// upload on restart is reclaimed by the client retrying from Initiate.
type Registry struct {
	mu         sync.Mutex
	uploads    map[string]map[int]bool // uploadID -> staged part numbers
	stagingDir string
}

// NewRegistry returns a Registry that stages parts under dir.
func NewRegistry(dir string) *Registry {
	return &Registry{
		uploads:    make(map[string]map[int]bool),
		stagingDir: dir,
	}
}

// Initiate registers a new upload id and returns it.
func (r *Registry) Initiate() string {
	id := uuid.New().String()

	r.mu.Lock()
	r.uploads[id] = make(map[int]bool)
	r.mu.Unlock()

	metrics.MultipartUploadsActive.Inc()
	return id
}

// Known reports whether uploadID is currently registered.
func (r *Registry) Known(uploadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.uploads[uploadID]
	return ok
}

// StagePart writes body to the staging file for uploadID/partNumber.
// Returns ErrUnknownUpload if uploadID isn't registered.
func (r *Registry) StagePart(uploadID string, partNumber int, body io.Reader) error {
	r.mu.Lock()
	parts, ok := r.uploads[uploadID]
	if ok {
		parts[partNumber] = true
	}
	r.mu.Unlock()
	if !ok {
		return ErrUnknownUpload
	}

	f, err := os.Create(r.partPath(uploadID, partNumber))
	if err != nil {
		return fmt.Errorf("multipart: create staging file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("multipart: write staging file: %w", err)
	}
	return nil
}

// Complete concatenates the staged parts named in partNumbers, in that
// order, returns the combined bytes, and removes every staged file and the
// upload's registration. Returns ErrUnknownUpload if uploadID isn't
// registered.
func (r *Registry) Complete(uploadID string, partNumbers []int) ([]byte, error) {
	if !r.Known(uploadID) {
		return nil, ErrUnknownUpload
	}

	var combined []byte
	for _, n := range partNumbers {
		part, err := os.ReadFile(r.partPath(uploadID, n))
		if err != nil {
			return nil, fmt.Errorf("multipart: read staged part %d: %w", n, err)
		}
		combined = append(combined, part...)
	}

	r.cleanup(uploadID)
	return combined, nil
}

// Abort discards every staged part for uploadID and drops its registration.
// Returns ErrUnknownUpload if uploadID isn't registered.
func (r *Registry) Abort(uploadID string) error {
	if !r.Known(uploadID) {
		return ErrUnknownUpload
	}
	r.cleanup(uploadID)
	return nil
}

func (r *Registry) cleanup(uploadID string) {
	r.mu.Lock()
	parts := r.uploads[uploadID]
	delete(r.uploads, uploadID)
	r.mu.Unlock()

	for n := range parts {
		_ = os.Remove(r.partPath(uploadID, n))
	}

	metrics.MultipartUploadsActive.Dec()
}

func (r *Registry) partPath(uploadID string, partNumber int) string {
	return filepath.Join(r.stagingDir, fmt.Sprintf("%s-%d", uploadID, partNumber))
}
