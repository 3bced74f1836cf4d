package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/osiprototype/backend/models"
	"github.com/osiprototype/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

const demoPassword = "password"

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.GORMRepository
	conv *repository.ConversationRepository
	cost int
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository, conv *repository.ConversationRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo, conv: conv, cost: bcrypt.DefaultCost}
}

// SeedDatabase creates a demo foster parent and placement agent with a short
// conversation between them. Existing accounts are left alone.
func (s *DatabaseSeeder) SeedDatabase(ctx context.Context) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(demoPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	two, three := 2, 3
	parent, created, err := s.seedUser(ctx, models.User{
		Username:     "demoparent",
		Email:        "parent@example.com",
		Password:     string(hashedPassword),
		Role:         models.RoleParent,
		Active:       true,
		FirstName:    "Pat",
		LastName:     "Rivera",
		Blurb:        "Licensed foster home with room for siblings.",
		NumAdults:    &two,
		NumCapacity:  &three,
		PrefSiblings: true,
		Pref6To9:     true,
	})
	if err != nil {
		return err
	}

	agent, _, err := s.seedUser(ctx, models.User{
		Username:      "demoagent",
		Email:         "agent@example.com",
		Password:      string(hashedPassword),
		Role:          models.RoleAgent,
		Active:        true,
		FirstName:     "Alex",
		LastName:      "Morgan",
		LicenseNumber: "AG-100200",
	})
	if err != nil {
		return err
	}

	// the conversation only goes in alongside a freshly created parent
	if !created {
		slog.Info("Database seeding already completed, skipping messages")
		return nil
	}

	now := time.Now()
	conversation := []models.Message{
		{FromUserID: agent.ID, ToUserID: parent.ID, Body: "Hi Pat, do you have room for two siblings next month?", CreatedAt: now.Add(-2 * time.Hour)},
		{FromUserID: parent.ID, ToUserID: agent.ID, Body: "We do, what ages are they?", CreatedAt: now.Add(-time.Hour)},
		{FromUserID: agent.ID, ToUserID: parent.ID, Body: "Six and eight.", CreatedAt: now.Add(-30 * time.Minute), IsUnread: true},
	}
	for i := range conversation {
		if err := s.conv.SaveMessage(ctx, &conversation[i]); err != nil {
			return fmt.Errorf("failed to seed message: %w", err)
		}
	}

	slog.Info("Database seeded", "parent", parent.Username, "agent", agent.Username, "messages", len(conversation))
	return nil
}

func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) (*models.User, bool, error) {
	existing, err := s.repo.GetUserByUsername(ctx, user.Username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check seed user %s: %w", user.Username, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return nil, false, fmt.Errorf("failed to seed user %s: %w", user.Username, err)
	}
	return &user, true, nil
}
