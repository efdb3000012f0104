package models

import (
	"path/filepath"
	"strings"
	"time"
)

type FileType string

const (
	FileImage FileType = "image"
	FileOther FileType = "other"
)

// FileRecord is one content-addressed attachment. Count is the number of
// messages referencing it; the payload lives until Count drops to zero.
type FileRecord struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Path      string    `gorm:"type:varchar(1024);not null" json:"path"`
	Ext       string    `gorm:"type:varchar(32)" json:"ext"`
	Size      int64     `gorm:"not null" json:"size"`
	Type      FileType  `gorm:"type:varchar(16);not null" json:"type"`
	Count     int       `gorm:"not null;default:1" json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

func (FileRecord) TableName() string { return "files" }

// StoredName is the payload's file name inside managed storage.
func (f FileRecord) StoredName() string { return f.ID + f.Ext }

func (f FileRecord) IsImage() bool { return f.Type == FileImage }

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

// ClassifyExt returns FileImage for common raster image extensions.
func ClassifyExt(ext string) FileType {
	ext = strings.ToLower(ext)
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	if _, ok := imageExts[ext]; ok {
		return FileImage
	}
	return FileOther
}

// NormalizeExt derives a dotted lower-case extension from ext or, when empty, from name.
func NormalizeExt(ext, name string) string {
	if ext == "" {
		ext = filepath.Ext(name)
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return ext
}
