package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles a user can register with. Parents message agents and vice versa.
const (
	RoleParent = "parent"
	RoleAgent  = "agent"
)

type User struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username string `gorm:"size:25;uniqueIndex;not null" json:"username"`
	Email    string `gorm:"size:40;uniqueIndex;not null" json:"email"`
	Password string `gorm:"size:255" json:"-"` // bcrypt hash
	Role     string `gorm:"size:16;not null;default:'parent';index" json:"role"`
	Active   bool   `gorm:"not null" json:"active"`

	// Profile
	Blurb         string  `gorm:"size:128" json:"blurb,omitempty"`
	Address       string  `gorm:"size:128" json:"address,omitempty"`
	FirstName     string  `gorm:"size:40" json:"first_name,omitempty"`
	LastName      string  `gorm:"size:40" json:"last_name,omitempty"`
	PhoneNumber   string  `gorm:"type:text" json:"phone_number,omitempty"`
	LicenseNumber string  `gorm:"type:text" json:"license_number,omitempty"`
	ProfilePhoto  *string `gorm:"size:255" json:"profile_photo,omitempty"`

	// Household
	NumAdults   *int `json:"num_adults,omitempty"`
	NumChildren *int `json:"num_children,omitempty"`
	NumCapacity *int `json:"num_capacity,omitempty"`

	// Placement preferences
	PrefGirls      bool `gorm:"default:false" json:"pref_girls"`
	PrefBoys       bool `gorm:"default:false" json:"pref_boys"`
	Pref1To5       bool `gorm:"column:pref_1_to_5;default:false" json:"pref_1_to_5"`
	Pref6To9       bool `gorm:"column:pref_6_to_9;default:false" json:"pref_6_to_9"`
	Pref10To18     bool `gorm:"column:pref_10_to_18;default:false" json:"pref_10_to_18"`
	PrefSiblings   bool `gorm:"default:false" json:"pref_siblings"`
	PrefBehavioral bool `gorm:"default:false" json:"pref_behavioral"`
	PrefRespite    bool `gorm:"default:false" json:"pref_respite"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"refresh_tokens,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// FullName joins first and last name, falling back to the username.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// CounterpartRole is the role this user may message.
func (u *User) CounterpartRole() string {
	if u.Role == RoleParent {
		return RoleAgent
	}
	return RoleParent
}

type RefreshToken struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string         `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Token     string         `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time      `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
