package files

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Blob is a stored payload read back for inlining into a request.
type Blob struct {
	Data string // base64
	MIME string
}

// Blobs is the physical payload storage.
type Blobs interface {
	// Save copies the file at src into managed storage under name and returns its path.
	Save(ctx context.Context, src, name string) (string, error)
	Delete(ctx context.Context, name string) error
	ReadBase64(ctx context.Context, path string) (Blob, error)
}

// Disk keeps payloads as plain files in one directory.
type Disk struct {
	Dir string
}

var _ Blobs = (*Disk)(nil)

func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{Dir: dir}, nil
}

func (d *Disk) Save(ctx context.Context, src, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(d.Dir, name)
	tmp, err := os.CreateTemp(d.Dir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return dst, nil
}

func (d *Disk) Delete(ctx context.Context, name string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid stored name %q", name)
	}
	return os.Remove(filepath.Join(d.Dir, name))
}

func (d *Disk) ReadBase64(ctx context.Context, path string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, err
	}
	return Blob{
		Data: base64.StdEncoding.EncodeToString(b),
		MIME: mimetype.Detect(b).String(),
	}, nil
}
