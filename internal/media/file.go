// Package media stages uploaded files on local disk and publishes them to the
// object store.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

// Uploader publishes a staged file and returns its public URL. The local file
// is removed whether or not the upload succeeds. Delete removes an object
// previously returned by Upload.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Delete(ctx context.Context, objectURL string) error
}

// File is an upload staged on local disk.
type File struct {
	Path string
	Name string
	Size int64
}

// Optional holds a File that may be absent.
type Optional struct {
	file File
	ok   bool
}

func Some(f File) Optional { return Optional{file: f, ok: true} }

func None() Optional { return Optional{} }

func (o Optional) Get() (File, bool) { return o.file, o.ok }

func (o Optional) Present() bool { return o.ok }

// Discard removes the staged file, if any. Used when a request fails before
// the file reaches an Uploader.
func (o Optional) Discard() {
	if o.ok {
		_ = os.Remove(o.file.Path)
	}
}

// Stage copies the multipart file field of r into dir. A missing field yields
// None. The multipart form must already be parsed.
func Stage(r *http.Request, field, dir string) (Optional, error) {
	src, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return None(), nil
		}
		return None(), fmt.Errorf("read %s: %w", field, err)
	}
	defer src.Close()

	if dir == "" {
		dir = os.TempDir()
	}
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	path := filepath.Join(dir, utilities.NewKSUID()+ext)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return None(), fmt.Errorf("stage %s: %w", field, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return None(), fmt.Errorf("stage %s: %w", field, err)
	}
	return Some(File{Path: path, Name: hdr.Filename, Size: n}), nil
}
