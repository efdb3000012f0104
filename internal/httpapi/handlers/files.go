package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/common"
	"github.com/suPer8Hu/chatcore/internal/files"
	"github.com/suPer8Hu/chatcore/internal/models"
)

// maxUploadBytes bounds a single multipart upload
const maxUploadBytes = 64 << 20

// uploadError reports one multipart part that could not be stored.
type uploadError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// UploadFiles accepts one or more multipart "file" fields. Each stored part
// holds one reference for the caller, released with DELETE /files/:id; a
// message that carries the id takes its own. Parts fail independently: the
// response lists what was stored and what was not.
func (h *Handler) UploadFiles(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid multipart form")
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "file required")
		return
	}

	tmpDir, err := os.MkdirTemp("", "chatcore-upload-*")
	if err != nil {
		h.fail(c, "upload", err)
		return
	}
	defer os.RemoveAll(tmpDir)

	failed := make([]uploadError, 0)
	descs := make([]files.Descriptor, 0, len(headers))
	for i, fh := range headers {
		name := filepath.Base(fh.Filename)
		if fh.Size == 0 {
			failed = append(failed, uploadError{Name: name, Error: "empty file"})
			continue
		}
		ext := models.NormalizeExt("", fh.Filename)
		tmp := filepath.Join(tmpDir, strconv.Itoa(i)+ext)
		if err := c.SaveUploadedFile(fh, tmp); err != nil {
			h.Logger.Warn("upload part not saved", "name", name, "err", err)
			failed = append(failed, uploadError{Name: name, Error: err.Error()})
			continue
		}
		descs = append(descs, files.Descriptor{
			Path: tmp,
			Name: name,
			Ext:  ext,
			Size: fh.Size,
			Type: models.ClassifyExt(ext),
		})
	}

	results, errs := h.Files.UploadEach(c.Request.Context(), descs)
	stored := make([]models.FileRecord, 0, len(results))
	var storeErr error
	for i, rec := range results {
		if errs[i] != nil {
			h.Logger.Warn("upload part not stored", "name", descs[i].Name, "err", errs[i])
			failed = append(failed, uploadError{Name: descs[i].Name, Error: errs[i].Error()})
			storeErr = errs[i]
			continue
		}
		stored = append(stored, *rec)
	}

	if len(stored) == 0 {
		if storeErr != nil {
			h.fail(c, "upload", storeErr)
			return
		}
		common.Fail(c, http.StatusBadRequest, 10002, "no file uploaded: "+failed[0].Error)
		return
	}
	common.OK(c, gin.H{"files": stored, "errors": failed})
}

func (h *Handler) ListFiles(c *gin.Context) {
	list, err := h.Files.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, "list files", err)
		return
	}
	common.OK(c, gin.H{"files": list})
}

func (h *Handler) GetFile(c *gin.Context) {
	rec, err := h.Files.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get file", err)
		return
	}
	common.OK(c, rec)
}

// DeleteFile drops one reference; the payload goes away with the last one.
func (h *Handler) DeleteFile(c *gin.Context) {
	if err := h.Files.Release(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "release file", err)
		return
	}
	common.OK(c, nil)
}
