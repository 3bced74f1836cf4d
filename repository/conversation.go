package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/osiprototype/backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// SaveMessage saves a message to the database using GORM
func (r *ConversationRepository) SaveMessage(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error; err != nil {
		slog.Error("Failed to save message", "error", err, "from_user_id", message.FromUserID, "to_user_id", message.ToUserID)
		return fmt.Errorf("failed to save message: %w", err)
	}

	slog.Info("Message saved", "message_id", message.ID, "from_user_id", message.FromUserID, "to_user_id", message.ToUserID)
	return nil
}

// between scopes a query to the messages exchanged by two users, either direction
func between(userA, userB string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
			userA, userB, userB, userA,
		)
	}
}

// GetMessagesBetween returns the thread between two users, newest first
func (r *ConversationRepository) GetMessagesBetween(ctx context.Context, userA, userB string) ([]models.Message, error) {
	var messages []models.Message

	err := r.db.WithContext(ctx).
		Scopes(between(userA, userB)).
		Preload("FromUser").
		Preload("ToUser").
		Order("created_at DESC").
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to get messages between users", "error", err, "user_a", userA, "user_b", userB)
		return nil, fmt.Errorf("failed to get messages between users: %w", err)
	}

	slog.Info("Thread retrieved", "user_a", userA, "user_b", userB, "count", len(messages))
	return messages, nil
}

// MarkRead clears the unread flag on the given messages, restricted to those
// addressed to recipientID. Returns the number of rows changed.
func (r *ConversationRepository) MarkRead(ctx context.Context, recipientID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ? AND to_user_id = ? AND is_unread = ?", messageIDs, recipientID, true).
		Update("is_unread", false)
	if result.Error != nil {
		slog.Error("Failed to mark messages read", "error", result.Error, "user_id", recipientID)
		return 0, fmt.Errorf("failed to mark messages read: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		slog.Info("Messages marked read", "user_id", recipientID, "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// GetThreads lists one entry per counterpart the user has exchanged messages
// with, most recent conversation first.
func (r *ConversationRepository) GetThreads(ctx context.Context, userID string) ([]models.Thread, error) {
	var messages []models.Message

	err := r.db.WithContext(ctx).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to get threads", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}

	index := make(map[string]int)
	var threads []models.Thread
	var counterpartIDs []string
	for _, m := range messages {
		other := m.FromUserID
		if other == userID {
			other = m.ToUserID
		}
		i, ok := index[other]
		if !ok {
			i = len(threads)
			index[other] = i
			threads = append(threads, models.Thread{LastMessage: m})
			counterpartIDs = append(counterpartIDs, other)
		}
		if m.ToUserID == userID && m.IsUnread {
			threads[i].UnreadCount++
		}
	}

	if len(counterpartIDs) == 0 {
		return threads, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", counterpartIDs).Find(&users).Error; err != nil {
		slog.Error("Failed to load thread participants", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to load thread participants: %w", err)
	}
	for _, u := range users {
		threads[index[u.ID]].User = u
	}

	// drop threads whose counterpart has since been deleted
	live := threads[:0]
	for _, t := range threads {
		if t.User.ID != "" {
			live = append(live, t)
		}
	}

	return live, nil
}

// CountUnread returns how many messages addressed to the user are unread
func (r *ConversationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("to_user_id = ? AND is_unread = ?", userID, true).
		Count(&count).Error; err != nil {
		slog.Error("Failed to count unread messages", "error", err, "user_id", userID)
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
