// Package files implements content-addressed, reference-counted attachment storage.
package files

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/suPer8Hu/chatcore/internal/models"
	"golang.org/x/sync/errgroup"
)

// Descriptor is a user-selected file waiting to be uploaded.
type Descriptor struct {
	// ID is an optional precomputed content id; when empty it is derived from the payload.
	ID   string
	Path string
	Name string
	Ext  string
	Size int64
	Type models.FileType
}

type Store struct {
	index  Index
	blobs  Blobs
	locks  *keyedMutex
	logger *slog.Logger

	// batchLimit bounds concurrent uploads/releases in the *Many calls.
	batchLimit int
}

func NewStore(index Index, blobs Blobs, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		index:      index,
		blobs:      blobs,
		locks:      newKeyedMutex(),
		logger:     logger,
		batchLimit: 4,
	}
}

// Upload stores d's payload once per content id. Re-uploading an existing id
// only increments its reference count. A failed upload leaves no record behind.
func (s *Store) Upload(ctx context.Context, d Descriptor) (*models.FileRecord, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		var err error
		id, err = ContentID(d.Path)
		if err != nil {
			return nil, &StorageError{Op: "hash", Err: err}
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.index.Get(ctx, id)
	switch {
	case err == nil:
		existing.Count++
		if err := s.index.Update(ctx, id, map[string]any{"count": existing.Count}); err != nil {
			return nil, &StorageError{Op: "increment", ID: id, Err: err}
		}
		s.logger.Debug("attachment reused", "id", id, "count", existing.Count)
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, &StorageError{Op: "lookup", ID: id, Err: err}
	}

	ext := models.NormalizeExt(d.Ext, firstNonEmpty(d.Name, d.Path))
	rec := &models.FileRecord{
		ID:    id,
		Name:  firstNonEmpty(d.Name, filepath.Base(d.Path)),
		Ext:   ext,
		Size:  d.Size,
		Type:  d.Type,
		Count: 1,
	}
	if rec.Type == "" {
		rec.Type = models.ClassifyExt(ext)
	}
	if rec.Size == 0 {
		if fi, err := os.Stat(d.Path); err == nil {
			rec.Size = fi.Size()
		}
	}

	path, err := s.blobs.Save(ctx, d.Path, rec.StoredName())
	if err != nil {
		return nil, &StorageError{Op: "save", ID: id, Err: err}
	}
	rec.Path = path

	if err := s.index.Add(ctx, rec); err != nil {
		if derr := s.blobs.Delete(ctx, rec.StoredName()); derr != nil {
			s.logger.Warn("orphaned attachment payload", "id", id, "err", derr)
		}
		return nil, &StorageError{Op: "index", ID: id, Err: err}
	}
	s.logger.Debug("attachment stored", "id", id, "type", rec.Type, "size", rec.Size)
	return rec, nil
}

// UploadEach uploads each descriptor independently and reports per input
// index: recs[i] is nil exactly when errs[i] is not.
func (s *Store) UploadEach(ctx context.Context, ds []Descriptor) (recs []*models.FileRecord, errs []error) {
	recs = make([]*models.FileRecord, len(ds))
	errs = make([]error, len(ds))

	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, d := range ds {
		g.Go(func() error {
			recs[i], errs[i] = s.Upload(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return recs, errs
}

// UploadMany uploads each descriptor independently. Successful uploads are kept
// even when others fail; the returned slice holds only the successes, in input order.
func (s *Store) UploadMany(ctx context.Context, ds []Descriptor) ([]models.FileRecord, error) {
	results, errs := s.UploadEach(ctx, ds)
	out := make([]models.FileRecord, 0, len(ds))
	for _, rec := range results {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, errors.Join(errs...)
}

// Acquire adds a reference to an already stored payload, for a second owner
// such as a message carrying the id.
func (s *Store) Acquire(ctx context.Context, id string) (*models.FileRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.index.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "lookup", ID: id, Err: err}
	}
	rec.Count++
	if err := s.index.Update(ctx, id, map[string]any{"count": rec.Count}); err != nil {
		return nil, &StorageError{Op: "increment", ID: id, Err: err}
	}
	return rec, nil
}

// AcquireMany takes one reference per id, all or nothing.
func (s *Store) AcquireMany(ctx context.Context, ids []string) error {
	for i, id := range ids {
		if _, err := s.Acquire(ctx, id); err != nil {
			if rerr := s.ReleaseMany(context.WithoutCancel(ctx), ids[:i]); rerr != nil {
				s.logger.Warn("attachment rollback failed", "err", rerr)
			}
			return err
		}
	}
	return nil
}

// Resolve returns ErrNotFound for unknown ids.
func (s *Store) Resolve(ctx context.Context, id string) (*models.FileRecord, error) {
	return s.index.Get(ctx, id)
}

// Release drops one reference. At zero the payload is deleted and the record
// removed; a payload deletion failure is logged and the record is removed anyway.
// Releasing an unknown id is a no-op.
func (s *Store) Release(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.index.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return &StorageError{Op: "lookup", ID: id, Err: err}
	}

	if rec.Count > 1 {
		if err := s.index.Update(ctx, id, map[string]any{"count": rec.Count - 1}); err != nil {
			return &StorageError{Op: "decrement", ID: id, Err: err}
		}
		return nil
	}

	if err := s.blobs.Delete(ctx, rec.StoredName()); err != nil {
		s.logger.Warn("attachment payload delete failed", "id", id, "err", err)
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return &StorageError{Op: "unindex", ID: id, Err: err}
	}
	s.logger.Debug("attachment removed", "id", id)
	return nil
}

// ReleaseMany releases every id; a failure on one id does not stop the rest.
func (s *Store) ReleaseMany(ctx context.Context, ids []string) error {
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, id := range ids {
		g.Go(func() error {
			errs[i] = s.Release(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Store) ListAll(ctx context.Context) ([]models.FileRecord, error) {
	return s.index.ToArray(ctx)
}

// ReadBase64 loads a stored payload for inlining into a model request.
func (s *Store) ReadBase64(ctx context.Context, rec models.FileRecord) (Blob, error) {
	return s.blobs.ReadBase64(ctx, rec.Path)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
