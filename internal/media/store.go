// Package media stores incident attachments in object storage.
package media

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrStorageDisabled is returned when no object store is configured.
var ErrStorageDisabled = errors.New("media storage is disabled")

// Kind classifies an attachment.
type Kind string

// Attachment kinds.
const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Object is an attachment to upload.
type Object struct {
	Kind        Kind
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists attachments and returns their public URL.
type Store interface {
	Put(ctx context.Context, obj Object) (string, error)
}

// Disabled rejects every upload.
type Disabled struct{}

// Put always fails with ErrStorageDisabled.
func (Disabled) Put(context.Context, Object) (string, error) {
	return "", ErrStorageDisabled
}

// ObjectKey builds "<kind>/<yyyy/mm/dd>/<uuid><ext>" for an upload.
func ObjectKey(kind Kind, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join(string(kind), now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}
