package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"djchat/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InsertChannel is the Postgres NOTIFY channel announcing new chat rows.
const InsertChannel = "chat_message_inserted"

// Storage is the durable side of the chat as seen by handlers and the admin CLI.
type Storage interface {
	SaveUser(user *models.User) error
	CreateConversation(ctx context.Context, user1ID, user2ID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)

	FetchHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	Insert(ctx context.Context, conversationID, senderID, content string) (models.Message, error)
	FindHistoryByID(ctx context.Context, id uint) (*models.ChatHistory, error)
}

type Service struct {
	DB       *gorm.DB
	Listener *InsertListener
}

// NewStorageService Constructor. listener may be nil, in which case
// SubscribeToInserts reports ErrNoListener.
func NewStorageService(db *gorm.DB, listener *InsertListener) *Service {
	s := &Service{
		DB:       db,
		Listener: listener,
	}
	if listener != nil {
		listener.load = s.loadInserted
	}
	return s
}

// ErrNoListener is returned by SubscribeToInserts when no LISTEN connection is configured.
var ErrNoListener = errors.New("insert listener not configured")

// insertNotice is the NOTIFY payload. Only ids travel; the row is re-read,
// which keeps the payload well under the 8000 byte NOTIFY limit.
type insertNotice struct {
	ConversationID string `json:"conversation_id"`
	ID             uint   `json:"id"`
}

// SaveUser зберігає користувача в PostgreSQL
func (s *Service) SaveUser(user *models.User) error {
	return s.DB.Save(user).Error
}

// CreateConversation opens a thread between two matched users.
func (s *Service) CreateConversation(ctx context.Context, user1ID, user2ID string) (*models.Conversation, error) {
	if user1ID == "" || user2ID == "" || user1ID == user2ID {
		return nil, fmt.Errorf("conversation needs two distinct users, got %q and %q", user1ID, user2ID)
	}
	conv := &models.Conversation{
		ConversationID: uuid.New().String(),
		User1ID:        user1ID,
		User2ID:        user2ID,
	}
	if err := s.DB.WithContext(ctx).Create(conv).Error; err != nil {
		log.Printf("ERROR: Failed to create conversation for %s and %s: %v", user1ID, user2ID, err)
		return nil, err
	}
	return conv, nil
}

// GetConversation returns nil without error when the conversation does not exist.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to get conversation %s: %v", conversationID, err)
		return nil, err
	}
	return &conv, nil
}

func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil || conv == nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

// FetchHistory returns the newest limit messages of a conversation in
// ascending created_at order.
func (s *Service) FetchHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var rows []models.ChatHistory
	if err := historyQuery(s.DB.WithContext(ctx), conversationID, limit, &rows).Error; err != nil {
		log.Printf("ERROR: Failed to get chat history for conversation %s: %v", conversationID, err)
		return nil, err
	}
	return toAscendingMessages(rows), nil
}

// historyQuery selects newest first so LIMIT keeps the latest page.
func historyQuery(tx *gorm.DB, conversationID string, limit int, dest *[]models.ChatHistory) *gorm.DB {
	q := tx.Where("conversation_id = ?", conversationID).Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q.Find(dest)
}

func toAscendingMessages(rows []models.ChatHistory) []models.Message {
	out := make([]models.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.ToMessage()
	}
	return out
}

// Insert saves a message and announces it on InsertChannel. The returned
// message carries the durable id and timestamp.
func (s *Service) Insert(ctx context.Context, conversationID, senderID, content string) (models.Message, error) {
	history := models.ChatHistory{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}

	if err := s.DB.WithContext(ctx).Create(&history).Error; err != nil {
		log.Printf("ERROR: Failed to save message for conversation %s: %v", conversationID, err)
		return models.Message{}, fmt.Errorf("inserting message: %w", err)
	}

	payload, err := json.Marshal(insertNotice{ConversationID: conversationID, ID: history.ID})
	if err == nil {
		err = s.DB.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", InsertChannel, string(payload)).Error
	}
	if err != nil {
		// The row is durable; other devices fall back to the broadcast path.
		log.Printf("WARNING: Failed to notify insert %d for conversation %s: %v", history.ID, conversationID, err)
	}

	return history.ToMessage(), nil
}

// FindHistoryByID повертає повний запис ChatHistory за його внутрішнім ID (gorm.Model.ID).
func (s *Service) FindHistoryByID(ctx context.Context, id uint) (*models.ChatHistory, error) {
	var history models.ChatHistory
	err := s.DB.WithContext(ctx).First(&history, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// SubscribeToInserts delivers rows inserted into conversationID by any
// process, including this one. The returned func stops the delivery.
func (s *Service) SubscribeToInserts(ctx context.Context, conversationID string, onInsert func(models.Message)) (func(), error) {
	if s.Listener == nil {
		return nil, ErrNoListener
	}
	unsubscribe := s.Listener.Subscribe(conversationID, onInsert)
	context.AfterFunc(ctx, unsubscribe)
	return unsubscribe, nil
}

// loadInserted reads the row named by an insert notice.
func (s *Service) loadInserted(ctx context.Context, id uint) (models.Message, bool, error) {
	history, err := s.FindHistoryByID(ctx, id)
	if err != nil || history == nil {
		return models.Message{}, false, err
	}
	return history.ToMessage(), true, nil
}
