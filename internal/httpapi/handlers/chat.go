package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/common"
	"github.com/suPer8Hu/chatcore/internal/models"
)

// heartbeat keeps idle SSE connections open through proxies
var heartbeat = 15 * time.Second

// sseWriter frames JSON payloads as server-sent events.
type sseWriter struct {
	c       *gin.Context
	flusher http.Flusher
}

func startSSE(c *gin.Context) (*sseWriter, bool) {
	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// can't stream
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return nil, false
	}
	return &sseWriter{c: c, flusher: flusher}, true
}

func (w *sseWriter) send(event string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		// last-resort: send a simple error that won't break SSE framing
		fmt.Fprintf(w.c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
		w.flusher.Flush()
		return
	}
	if event != "" {
		fmt.Fprintf(w.c.Writer, "event: %s\n", event)
	}
	fmt.Fprintf(w.c.Writer, "data: %s\n\n", string(b))
	w.flusher.Flush()
}

func (w *sseWriter) ping() {
	w.send("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})
}

type streamReq struct {
	TopicID string   `json:"topic_id" binding:"required"`
	Message string   `json:"message"`
	FileIDs []string `json:"file_ids"`
	// Surface defaults to the topic id
	Surface string `json:"surface"`
}

func (h *Handler) SendChatMessageStream(c *gin.Context) {
	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" && len(req.FileIDs) == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "message or file_ids required")
		return
	}

	ctx := c.Request.Context()
	attachments := make([]models.FileRecord, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		rec, err := h.Files.Resolve(ctx, id)
		if err != nil {
			h.fail(c, "resolve attachment", err)
			return
		}
		attachments = append(attachments, *rec)
	}

	w, ok := startSSE(c)
	if !ok {
		return
	}

	events := h.ChatSvc.SendStream(ctx, chat.SendRequest{
		TopicID: req.TopicID,
		Content: req.Message,
		Files:   attachments,
		Surface: req.Surface,
	})

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case chat.EventEstimate:
				w.send("estimate", gin.H{"type": "estimate", "tokens": ev.Estimate.Tokens, "contextCount": ev.Estimate.ContextCount})
			case chat.EventChunk:
				w.send("chunk", gin.H{"type": "chunk", "delta": ev.Text})
			case chat.EventDone:
				w.send("done", gin.H{"type": "done", "message": ev.Message, "usage": ev.Message.Usage})
			case chat.EventError:
				w.send("error", gin.H{"type": "error", "message": ev.Error, "reply": ev.Message})
			}

		case <-ticker.C:
			w.ping()

		case <-ctx.Done():
			return
		}
	}
}

type pauseReq struct {
	Surface string `json:"surface" binding:"required"`
}

func (h *Handler) Pause(c *gin.Context) {
	var req pauseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.ChatSvc.Pause(c.Request.Context(), req.Surface); err != nil {
		h.fail(c, "pause", err)
		return
	}
	common.OK(c, gin.H{"streaming": h.ChatSvc.Streaming(req.Surface)})
}

type translateReq struct {
	Text string `json:"text" binding:"required"`
	Lang string `json:"lang"`
}

func (h *Handler) Translate(c *gin.Context) {
	var req translateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Lang == "" {
		req.Lang = "English"
	}
	out, err := h.ChatSvc.Translate(c.Request.Context(), req.Text, req.Lang)
	if err != nil {
		h.fail(c, "translate", err)
		return
	}
	common.OK(c, gin.H{"text": out})
}

type estimateReq struct {
	Text string `json:"text"`
}

func (h *Handler) Estimate(c *gin.Context) {
	var req estimateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	common.OK(c, gin.H{"tokens": chatctx.EstimateInput(req.Text)})
}

// Events streams lifecycle notifications (titles, pauses, cleared topics)
// for every topic until the client disconnects.
func (h *Handler) Events(c *gin.Context) {
	w, ok := startSSE(c)
	if !ok {
		return
	}

	// subscribers must not block the publisher; a slow client drops events
	events := make(chan chat.Event, 32)
	unsubscribe := h.ChatSvc.Subscribe(func(ev chat.Event) {
		select {
		case events <- ev:
		default:
			h.Logger.Warn("event dropped", "kind", ev.Kind, "topic_id", ev.TopicID)
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev := <-events:
			w.send(string(ev.Kind), ev)
		case <-ticker.C:
			w.ping()
		case <-ctx.Done():
			return
		}
	}
}
