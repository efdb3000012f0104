package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/ai"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/common"
	"github.com/suPer8Hu/chatcore/internal/files"
)

type Handler struct {
	ChatSvc *chat.Service
	Files   *files.Store
	Logger  *slog.Logger
}

func NewHandler(svc *chat.Service, store *files.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ChatSvc: svc, Files: store, Logger: logger}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// fail maps engine errors onto the JSON envelope.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, files.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40400, "not found")
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case ai.IsValidation(err):
		common.Fail(c, http.StatusBadRequest, 10003, err.Error())
	default:
		h.Logger.Error(op+" failed", "err", err, "path", c.FullPath())
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
