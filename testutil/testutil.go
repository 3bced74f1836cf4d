package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/osiprototype/backend/models"
	"github.com/osiprototype/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

// OpenTestDB opens a private in-memory SQLite database and migrates it.
// The database is closed through t.Cleanup.
func OpenTestDB(t *testing.T) *repository.Database {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.OpenOptions{
		Driver: repository.DriverSQLite,
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(db.Close)

	if err := repository.NewGORMRepository(db.DB).AutoMigrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// CreateUser inserts a user with the given password (bcrypt MinCost).
func CreateUser(t *testing.T, repo *repository.GORMRepository, username, email, role, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		Username: username,
		Email:    email,
		Password: string(hash),
		Role:     role,
		Active:   true,
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// CreateMessage inserts a message with an explicit timestamp so ordering is deterministic.
func CreateMessage(t *testing.T, conv *repository.ConversationRepository, from, to *models.User, body string, at time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		FromUserID: from.ID,
		ToUserID:   to.ID,
		Body:       body,
		IsUnread:   true,
		CreatedAt:  at,
	}
	if err := conv.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return msg
}
