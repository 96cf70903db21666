package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

type Profile struct {
	FirstName   string  `json:"firstName,omitempty"`
	LastName    string  `json:"lastName,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Address     Address `json:"address"`
	Website     string  `json:"website,omitempty"`
	Description string  `json:"description,omitempty"`
}

type NotificationSettings struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

type PrivacySettings struct {
	PublicProfile bool `json:"publicProfile"`
}

type Settings struct {
	Notifications NotificationSettings `json:"notifications"`
	Privacy       PrivacySettings      `json:"privacy"`
}

func DefaultSettings() Settings {
	return Settings{
		Notifications: NotificationSettings{Email: true, Push: true},
		Privacy:       PrivacySettings{PublicProfile: false},
	}
}

// User is a registered participant. Users are never hard-deleted; they are
// deactivated through IsActive.
type User struct {
	ID            uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	Username      string                       `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email         string                       `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password      string                       `gorm:"not null" json:"-"`
	WalletAddress string                       `gorm:"size:42;not null;uniqueIndex" json:"walletAddress"`
	Role          Role                         `gorm:"size:20;not null;index" json:"role"`
	Organization  string                       `gorm:"size:100" json:"organization,omitempty"`
	IsVerified    bool                         `gorm:"not null" json:"isVerified"`
	IsActive      bool                         `gorm:"not null;index" json:"isActive"`
	Profile       datatypes.JSONType[Profile]  `json:"profile"`
	Settings      datatypes.JSONType[Settings] `json:"settings"`
	LastLogin     *time.Time                   `json:"lastLogin,omitempty"`
	CreatedAt     time.Time                    `json:"createdAt"`
	UpdatedAt     time.Time                    `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
