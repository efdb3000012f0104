package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/ai"
	"github.com/suPer8Hu/chatcore/internal/common"
)

func (h *Handler) ListProviders(c *gin.Context) {
	reg := h.ChatSvc.Registry()
	common.OK(c, gin.H{
		"providers": reg.Configs(),
		"defaults":  reg.Defaults(),
	})
}

// ListModels queries the backend live; an unreachable catalog is an empty list.
func (h *Handler) ListModels(c *gin.Context) {
	p, err := h.ChatSvc.Registry().Get(c.Param("id"))
	if err != nil {
		h.fail(c, "list models", err)
		return
	}
	common.OK(c, gin.H{"models": p.Models(c.Request.Context())})
}

func (h *Handler) CheckProvider(c *gin.Context) {
	p, err := h.ChatSvc.Registry().Get(c.Param("id"))
	if err != nil {
		h.fail(c, "check provider", err)
		return
	}
	ok, err := p.Check(c.Request.Context())
	if err != nil {
		if ai.IsValidation(err) {
			common.Fail(c, http.StatusBadRequest, 10003, err.Error())
			return
		}
		// a failed probe is a normal answer, not a server error
		common.OK(c, gin.H{"ok": false, "error": err.Error()})
		return
	}
	common.OK(c, gin.H{"ok": ok})
}
