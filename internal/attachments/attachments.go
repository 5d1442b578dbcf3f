// Package attachments downloads chat media into the scratch directory so
// the local path can be handed to the terminal session.
//
// Downloaded files are namespaced by session and registered in the state
// store, which a periodic sweep uses to delete old files. The message that
// reaches the terminal is just the path (with an optional caption), never
// the file content.
package attachments

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/telemux/telemux/internal/errors"
	"github.com/telemux/telemux/internal/telegram"
	"github.com/telemux/telemux/internal/textutil"
)

// Downloader is the transport surface the pipeline needs. *telegram.Client
// satisfies it; tests substitute a fake.
type Downloader interface {
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, filePath string, dst io.Writer, maxBytes int64) (int64, error)
}

// Recorder registers downloaded files for later cleanup. *state.Store
// satisfies it.
type Recorder interface {
	RecordAttachment(session, path string) error
}

// Pipeline fetches attachments and manages their on-disk lifecycle.
type Pipeline struct {
	client     Downloader
	recorder   Recorder
	scratchDir string
	maxBytes   int64
}

// NewPipeline creates a pipeline writing into scratchDir with the given
// per-file size cap in bytes.
func NewPipeline(client Downloader, recorder Recorder, scratchDir string, maxBytes int64) *Pipeline {
	return &Pipeline{
		client:     client,
		recorder:   recorder,
		scratchDir: scratchDir,
		maxBytes:   maxBytes,
	}
}

// Fetch downloads the file behind fileID and returns its local path.
//
// The size reported by getFile is checked before any bytes move, and the
// cap is enforced again during the streamed copy since the report can be
// absent. Oversized or failed downloads leave nothing on disk.
//
// suggestedName is the client-provided filename, which is untrusted input:
// it is sanitized before use, and a missing name falls back to the
// server-side path's base name.
func (p *Pipeline) Fetch(ctx context.Context, session, fileID, suggestedName string) (string, error) {
	f, err := p.client.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if f.FileSize > p.maxBytes {
		return "", errors.TooLarge(f.FileSize, p.maxBytes)
	}

	name := suggestedName
	if name == "" {
		name = filepath.Base(f.FilePath)
	}
	name = textutil.SanitizeFilename(name)

	if err := os.MkdirAll(p.scratchDir, 0o700); err != nil {
		return "", errors.DownloadFailed(name, err)
	}

	// Session prefix plus a short unique id: collisions between messages
	// carrying the same filename must not overwrite each other.
	local := filepath.Join(p.scratchDir, fmt.Sprintf("%s-%s-%s", session, uuid.NewString()[:8], name))

	out, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", errors.DownloadFailed(name, err)
	}

	if _, err := p.client.DownloadFile(ctx, f.FilePath, out, p.maxBytes); err != nil {
		out.Close()
		os.Remove(local)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(local)
		return "", errors.DownloadFailed(name, err)
	}

	if err := p.recorder.RecordAttachment(session, local); err != nil {
		// An unregistered file would never be swept; discard it and fail
		// the fetch instead of leaking it.
		os.Remove(local)
		return "", err
	}
	return local, nil
}

// Remove deletes swept attachment files, ignoring ones already gone.
func Remove(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
