package files

import (
	"context"
	"errors"

	"github.com/suPer8Hu/chatcore/internal/models"
	"gorm.io/gorm"
)

// Index is the persistent record store backing the attachment reference counts.
type Index interface {
	Get(ctx context.Context, id string) (*models.FileRecord, error)
	Add(ctx context.Context, rec *models.FileRecord) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	ToArray(ctx context.Context) ([]models.FileRecord, error)
}

type Repo struct {
	db *gorm.DB
}

var _ Index = (*Repo)(nil)

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Get returns ErrNotFound when no record has the id.
func (r *Repo) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	var rec models.FileRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) Add(ctx context.Context, rec *models.FileRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repo) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.FileRecord{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.FileRecord{}, "id = ?", id).Error
}

// ToArray returns every record, oldest first.
func (r *Repo) ToArray(ctx context.Context) ([]models.FileRecord, error) {
	var out []models.FileRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
