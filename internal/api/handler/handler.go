package handler

import (
	"djchat/backend/internal/auth"
	"djchat/backend/internal/chathub"
	"djchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler містить посилання на ChatHub, сховище та видавця токенів
type Handler struct {
	Hub          *chathub.ManagerService
	Store        storage.Storage
	Auth         *auth.TokenIssuer
	HistoryLimit int
}

func NewHandler(hub *chathub.ManagerService, store storage.Storage, issuer *auth.TokenIssuer) *Handler {
	return &Handler{
		Hub:          hub,
		Store:        store,
		Auth:         issuer,
		HistoryLimit: hub.Config.HistoryLimit,
	}
}

// Register mounts the chat routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/", h.RequireUser)
	api.POST("/conversations", h.CreateConversation)
	api.GET("/conversations/:id/messages", h.GetHistory)
}
