package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/common"
	"github.com/suPer8Hu/chatcore/internal/models"
)

type assistantReq struct {
	Name       *string                   `json:"name"`
	Prompt     *string                   `json:"prompt"`
	ProviderID *string                   `json:"provider_id"`
	Model      *string                   `json:"model"`
	Settings   *models.AssistantSettings `json:"settings"`
}

func (r assistantReq) apply(a *models.Assistant) {
	if r.Name != nil {
		a.Name = strings.TrimSpace(*r.Name)
	}
	if r.Prompt != nil {
		a.Prompt = *r.Prompt
	}
	if r.ProviderID != nil {
		a.ProviderID = strings.TrimSpace(*r.ProviderID)
	}
	if r.Model != nil {
		a.Model = strings.TrimSpace(*r.Model)
	}
	if r.Settings != nil {
		a.Settings = *r.Settings
	}
}

func (h *Handler) CreateAssistant(c *gin.Context) {
	var req assistantReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	var a models.Assistant
	req.apply(&a)
	if err := h.ChatSvc.CreateAssistant(c.Request.Context(), &a); err != nil {
		h.fail(c, "create assistant", err)
		return
	}
	common.OK(c, a)
}

func (h *Handler) ListAssistants(c *gin.Context) {
	list, err := h.ChatSvc.ListAssistants(c.Request.Context())
	if err != nil {
		h.fail(c, "list assistants", err)
		return
	}
	common.OK(c, gin.H{"assistants": list})
}

func (h *Handler) GetAssistant(c *gin.Context) {
	a, err := h.ChatSvc.GetAssistant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get assistant", err)
		return
	}
	common.OK(c, a)
}

func (h *Handler) UpdateAssistant(c *gin.Context) {
	var req assistantReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ctx := c.Request.Context()
	a, err := h.ChatSvc.GetAssistant(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "update assistant", err)
		return
	}
	req.apply(a)
	if err := h.ChatSvc.UpdateAssistant(ctx, a); err != nil {
		h.fail(c, "update assistant", err)
		return
	}
	common.OK(c, a)
}

func (h *Handler) DeleteAssistant(c *gin.Context) {
	if err := h.ChatSvc.DeleteAssistant(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete assistant", err)
		return
	}
	common.OK(c, nil)
}

type createTopicReq struct {
	Name string `json:"name"`
}

func (h *Handler) CreateTopic(c *gin.Context) {
	var req createTopicReq
	_ = c.ShouldBindJSON(&req)

	t, err := h.ChatSvc.CreateTopic(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.fail(c, "create topic", err)
		return
	}
	common.OK(c, t)
}

func (h *Handler) ListTopics(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.ChatSvc.GetAssistant(ctx, c.Param("id")); err != nil {
		h.fail(c, "list topics", err)
		return
	}
	topics, err := h.ChatSvc.ListTopics(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "list topics", err)
		return
	}
	common.OK(c, gin.H{"topics": topics})
}

func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), c.Param("topic_id"))
	if err != nil {
		h.fail(c, "list messages", err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) DeleteTopic(c *gin.Context) {
	if err := h.ChatSvc.DeleteTopic(c.Request.Context(), c.Param("topic_id")); err != nil {
		h.fail(c, "delete topic", err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ClearTopic(c *gin.Context) {
	if err := h.ChatSvc.ClearTopic(c.Request.Context(), c.Param("topic_id")); err != nil {
		h.fail(c, "clear topic", err)
		return
	}
	common.OK(c, nil)
}

// NewContext answers with the divider, or paused=true when it only stopped a running stream.
func (h *Handler) NewContext(c *gin.Context) {
	divider, err := h.ChatSvc.NewContext(c.Request.Context(), c.Param("topic_id"))
	if err != nil {
		h.fail(c, "new context", err)
		return
	}
	common.OK(c, gin.H{"message": divider, "paused": divider == nil})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.ChatSvc.DeleteMessage(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete message", err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) Suggestions(c *gin.Context) {
	common.OK(c, gin.H{"suggestions": h.ChatSvc.Suggestions(c.Request.Context(), c.Param("topic_id"))})
}
