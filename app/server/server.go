// Package server exposes the bridge over a small HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nuclight.org/telegram-bridge/app/services"
	"nuclight.org/telegram-bridge/app/storage"
	e "nuclight.org/telegram-bridge/pkg/entities"
	"nuclight.org/telegram-bridge/pkg/logger"
)

const defaultContextSize = 5

// Server serves chat and message queries from the local store and
// proxies send, download and sync requests to the live client.
type Server struct {
	Log logger.Logger

	Chats    ChatStore
	Messages MessageStore
	Bridge   *services.Bridge
	Sync     *services.Sync
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/chats", s.listChats)
	api.GET("/messages", s.listMessages)
	api.GET("/messages/:chat_id/:message_id/context", s.messageContext)
	api.GET("/attachments", s.listAttachments)
	api.POST("/send", s.sendMessage)
	api.POST("/download", s.downloadMedia)
	api.POST("/sync", s.syncChat)

	return router
}

func (s *Server) listChats(c *gin.Context) {
	filter := storage.ChatFilter{
		Query:  c.Query("query"),
		Type:   e.ChatType(c.Query("chat_type")),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
		SortBy: c.Query("sort_by"),
	}

	chats, err := s.Chats.GetChats(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, "listing chats", err)
		return
	}

	models := make([]ChatModel, 0, len(chats))
	for _, chat := range chats {
		models = append(models, chatModel(chat))
	}

	c.JSON(http.StatusOK, models)
}

func (s *Server) listMessages(c *gin.Context) {
	filter := storage.MessageFilter{
		ChatID:   queryInt64Ptr(c, "chat_id"),
		SenderID: queryInt64Ptr(c, "sender_id"),
		Query:    c.Query("query"),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}

	if from, ok := queryTime(c, "from"); ok {
		filter.From = &from
	}
	if to, ok := queryTime(c, "to"); ok {
		filter.To = &to
	}

	messages, err := s.Messages.GetMessages(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, "listing messages", err)
		return
	}

	c.JSON(http.StatusOK, messageModels(messages))
}

func (s *Server) messageContext(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat_id"})
		return
	}
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message_id"})
		return
	}

	before := queryInt(c, "before", defaultContextSize)
	after := queryInt(c, "after", defaultContextSize)

	mctx, err := s.Messages.GetMessageContext(c.Request.Context(), messageID, chatID, before, after)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		s.fail(c, "getting message context", err)
		return
	}

	c.JSON(http.StatusOK, MessageContextModel{
		Message: messageModel(mctx.Message),
		Before:  messageModels(mctx.Before),
		After:   messageModels(mctx.After),
	})
}

func (s *Server) listAttachments(c *gin.Context) {
	attachments, err := s.Bridge.GetAttachments(
		c.Request.Context(),
		queryInt64Ptr(c, "chat_id"),
		c.Query("media_type"),
		queryInt(c, "limit", 50),
		queryInt(c, "offset", 0),
	)
	if err != nil {
		s.fail(c, "listing attachments", err)
		return
	}

	c.JSON(http.StatusOK, attachments)
}

func (s *Server) sendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok, message := s.Bridge.SendMessage(c.Request.Context(), req.Recipient, req.Message)

	c.JSON(http.StatusOK, SendMessageResponse{Success: ok, Message: message})
}

func (s *Server) downloadMedia(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok, message, localPath := s.Bridge.DownloadMedia(c.Request.Context(), req.MessageID, req.ChatID, req.DownloadDir)

	c.JSON(http.StatusOK, DownloadResponse{Success: ok, Message: message, LocalPath: localPath})
}

func (s *Server) syncChat(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok, message, count := s.Sync.SyncChatHistory(c.Request.Context(), req.ChatID)

	c.JSON(http.StatusOK, SyncResponse{Success: ok, Message: message, Count: count})
}

func (s *Server) fail(c *gin.Context, action string, err error) {
	s.Log.Error(action, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryInt64Ptr(c *gin.Context, name string) *int64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, false
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return value, true
}

// ChatStore reads chats from the local store.
type ChatStore interface {
	GetChats(ctx context.Context, filter storage.ChatFilter) ([]e.Chat, error)
}

// MessageStore reads messages from the local store.
type MessageStore interface {
	GetMessages(ctx context.Context, filter storage.MessageFilter) ([]e.Message, error)
	GetMessageContext(ctx context.Context, messageID, chatID int64, before, after int) (*e.MessageContext, error)
}
