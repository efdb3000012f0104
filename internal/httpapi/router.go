package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/common"
	"github.com/suPer8Hu/chatcore/internal/files"
	"github.com/suPer8Hu/chatcore/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatcore/internal/httpapi/middleware"
)

func NewRouter(svc *chat.Service, store *files.Store, jwtSecret string, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(svc, store, logger)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(jwtSecret))

	// assistants
	authGroup.POST("/assistants", h.CreateAssistant)
	authGroup.GET("/assistants", h.ListAssistants)
	authGroup.GET("/assistants/:id", h.GetAssistant)
	authGroup.PUT("/assistants/:id", h.UpdateAssistant)
	authGroup.DELETE("/assistants/:id", h.DeleteAssistant)

	// topics
	authGroup.POST("/assistants/:id/topics", h.CreateTopic)
	authGroup.GET("/assistants/:id/topics", h.ListTopics)
	authGroup.GET("/topics/:topic_id/messages", h.ListMessages)
	authGroup.GET("/topics/:topic_id/suggestions", h.Suggestions)
	authGroup.DELETE("/topics/:topic_id", h.DeleteTopic)
	authGroup.POST("/topics/:topic_id/clear", h.ClearTopic)
	authGroup.POST("/topics/:topic_id/new-context", h.NewContext)
	authGroup.DELETE("/messages/:id", h.DeleteMessage)

	// chat
	authGroup.POST("/chat/messages/stream", h.SendChatMessageStream)
	authGroup.POST("/chat/pause", h.Pause)
	authGroup.POST("/chat/translate", h.Translate)
	authGroup.POST("/chat/estimate", h.Estimate)
	authGroup.GET("/events", h.Events)

	// attachments
	authGroup.POST("/files", h.UploadFiles)
	authGroup.GET("/files", h.ListFiles)
	authGroup.GET("/files/:id", h.GetFile)
	authGroup.DELETE("/files/:id", h.DeleteFile)

	// providers
	authGroup.GET("/providers", h.ListProviders)
	authGroup.GET("/providers/:id/models", h.ListModels)
	authGroup.POST("/providers/:id/check", h.CheckProvider)
	return r
}
