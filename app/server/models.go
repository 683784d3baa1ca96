package server

import (
	"time"

	e "nuclight.org/telegram-bridge/pkg/entities"
)

type ChatModel struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Username        string     `json:"username,omitempty"`
	Type            string     `json:"type"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
}

type MessageModel struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chat_id"`
	ChatTitle  string    `json:"chat_title"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsFromMe   bool      `json:"is_from_me"`
}

type MessageContextModel struct {
	Message MessageModel   `json:"message"`
	Before  []MessageModel `json:"before"`
	After   []MessageModel `json:"after"`
}

type SendMessageRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

type SendMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type DownloadRequest struct {
	MessageID   int64  `json:"message_id" binding:"required"`
	ChatID      int64  `json:"chat_id" binding:"required"`
	DownloadDir string `json:"download_dir,omitempty"`
}

type DownloadResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LocalPath string `json:"local_path,omitempty"`
}

type SyncRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func chatModel(chat e.Chat) ChatModel {
	return ChatModel{
		ID:              chat.ID,
		Title:           chat.Title,
		Username:        chat.Username,
		Type:            string(chat.Type),
		LastMessageTime: chat.LastMessageTime,
	}
}

func messageModel(msg e.Message) MessageModel {
	return MessageModel{
		ID:         msg.ID,
		ChatID:     msg.ChatID,
		ChatTitle:  msg.ChatTitle,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		IsFromMe:   msg.IsFromMe,
	}
}

func messageModels(messages []e.Message) []MessageModel {
	models := make([]MessageModel, 0, len(messages))
	for _, msg := range messages {
		models = append(models, messageModel(msg))
	}
	return models
}
