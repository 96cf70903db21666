package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username      string          `json:"username" validate:"required,min=3,max=50"`
	Email         string          `json:"email" validate:"required,email"`
	Password      string          `json:"password" validate:"required,min=8"`
	WalletAddress string          `json:"walletAddress" validate:"required,eth_addr"`
	Role          string          `json:"role" validate:"required,oneof=PRODUCER CERTIFIER CONSUMER REGULATOR"`
	Organization  string          `json:"organization" validate:"required,max=100"`
	Profile       *ProfileRequest `json:"profile" validate:"omitempty"`
}

type ProfileRequest struct {
	FirstName   string          `json:"firstName" validate:"max=50"`
	LastName    string          `json:"lastName" validate:"max=50"`
	Phone       string          `json:"phone" validate:"max=30"`
	Address     *models.Address `json:"address"`
	Website     string          `json:"website" validate:"omitempty,url"`
	Description string          `json:"description" validate:"max=1000"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type UpdateProfileRequest struct {
	Organization *string                `json:"organization" validate:"omitempty,max=100"`
	Profile      *ProfileRequest        `json:"profile" validate:"omitempty"`
	Settings     *SettingsUpdateRequest `json:"settings" validate:"omitempty"`
}

// SettingsUpdateRequest changes only the settings that are present.
type SettingsUpdateRequest struct {
	Notifications *NotificationsUpdate `json:"notifications"`
	Privacy       *PrivacyUpdate       `json:"privacy"`
}

type NotificationsUpdate struct {
	Email *bool `json:"email"`
	Push  *bool `json:"push"`
}

type PrivacyUpdate struct {
	PublicProfile *bool `json:"publicProfile"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

type SetUserStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type AuthResponse struct {
	Message      string       `json:"message,omitempty"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         *models.User `json:"user"`
}

// PublicUser is the view of a user shown to other participants.
type PublicUser struct {
	ID           uuid.UUID     `json:"id"`
	Username     string        `json:"username"`
	Organization string        `json:"organization,omitempty"`
	Role         models.Role   `json:"role"`
	IsVerified   bool          `json:"isVerified"`
	Profile      PublicProfile `json:"profile"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type PublicProfile struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Website     string `json:"website,omitempty"`
	Description string `json:"description,omitempty"`
}

func NewPublicUser(u *models.User) PublicUser {
	p := u.Profile.Data()
	return PublicUser{
		ID:           u.ID,
		Username:     u.Username,
		Organization: u.Organization,
		Role:         u.Role,
		IsVerified:   u.IsVerified,
		Profile: PublicProfile{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Website:     p.Website,
			Description: p.Description,
		},
		CreatedAt: u.CreatedAt,
	}
}

func NewPublicUsers(users []models.User) []PublicUser {
	out := make([]PublicUser, 0, len(users))
	for i := range users {
		out = append(out, NewPublicUser(&users[i]))
	}
	return out
}
