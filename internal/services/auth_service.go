package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/config"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

type AuthService struct {
	store  repository.Store
	ledger ledger.Client
	cfg    *config.Config
	now    func() time.Time
}

func NewAuthService(store repository.Store, client ledger.Client, cfg *config.Config) *AuthService {
	return &AuthService{
		store:  store,
		ledger: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, validationError("Validation failed", FieldError{Field: "role", Message: err.Error()})
	}
	wallet, err := ledger.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, addressError("walletAddress", err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	}
	if _, err := s.store.Users().FindByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	}
	if _, err := s.store.Users().FindByWallet(ctx, wallet); err == nil {
		return nil, ErrWalletTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var profile models.Profile
	if req.Profile != nil {
		profile = mergeProfile(profile, req.Profile)
	}
	user := &models.User{
		ID:            uuid.New(),
		Username:      username,
		Email:         email,
		Password:      string(hash),
		WalletAddress: wallet,
		Role:          role,
		Organization:  strings.TrimSpace(req.Organization),
		IsActive:      true,
	}
	user.Profile = datatypes.NewJSONType(profile)
	user.Settings = datatypes.NewJSONType(models.DefaultSettings())

	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent registration.
			return nil, wrapSentinel(ErrEmailTaken, err)
		}
		return nil, persistenceError("failed to create user", err)
	}

	s.grantLedgerRole(ctx, user)
	slog.Info("user registered", "user_id", user.ID.String(), "role", string(user.Role))

	resp, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}
	resp.Message = "User registered successfully"
	return resp, nil
}

// grantLedgerRole mirrors the user's role on the contract. A failure is
// logged only: the operator can grant the role again later.
func (s *AuthService) grantLedgerRole(ctx context.Context, user *models.User) {
	if s.ledger == nil {
		return
	}
	_, err := submit(ctx, s.cfg.LedgerTimeout, ledger.MethodGrant, func(ctx context.Context) (*ledger.Receipt, error) {
		return s.ledger.GrantRole(ctx, user.WalletAddress, user.Role)
	})
	if err != nil {
		slog.Warn("ledger role grant failed", "user_id", user.ID.String(), "role", string(user.Role), "error", err)
	}
}

func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.Users().FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, persistenceError("failed to load user", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	user.LastLogin = &now
	if err := s.store.Users().Update(ctx, user); err != nil {
		slog.Warn("failed to record last login", "user_id", user.ID.String(), "error", err)
	}

	resp, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}
	resp.Message = "Login successful"
	return resp, nil
}

func (s *AuthService) Refresh(ctx context.Context, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	tokenHash := hashToken(req.RefreshToken)

	stored, err := s.store.RefreshTokens().FindActive(ctx, tokenHash)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Rotation: the presented token is spent whether or not it is still valid.
	if err := s.store.RefreshTokens().Revoke(ctx, tokenHash); err != nil {
		return nil, persistenceError("failed to revoke refresh token", err)
	}
	if s.now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	user, err := s.store.Users().FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return s.generateTokenPair(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, req *dto.LogoutRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	if err := s.store.RefreshTokens().Revoke(ctx, hashToken(req.RefreshToken)); err != nil {
		return persistenceError("failed to logout", err)
	}
	return nil
}

// ActiveUser loads the caller behind an access token and rejects
// deactivated accounts.
func (s *AuthService) ActiveUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, persistenceError("failed to load user", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, user *models.User, req *dto.UpdateProfileRequest) (*models.User, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	updated := *user
	if req.Organization != nil {
		updated.Organization = strings.TrimSpace(*req.Organization)
	}
	if req.Profile != nil {
		updated.Profile = datatypes.NewJSONType(mergeProfile(user.Profile.Data(), req.Profile))
	}
	if req.Settings != nil {
		updated.Settings = datatypes.NewJSONType(mergeSettings(user.Settings.Data(), req.Settings))
	}
	if err := s.store.Users().Update(ctx, &updated); err != nil {
		return nil, persistenceError("failed to update profile", err)
	}
	return &updated, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, req *dto.ChangePasswordRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	updated := *user
	updated.Password = string(hash)
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Update(ctx, &updated); err != nil {
			return persistenceError("failed to change password", err)
		}
		// Existing sessions end with the old password.
		if err := tx.RefreshTokens().RevokeAllForUser(ctx, user.ID); err != nil {
			return persistenceError("failed to revoke sessions", err)
		}
		return nil
	})
}

// ListActiveUsers returns every active user, newest first.
func (s *AuthService) ListActiveUsers(ctx context.Context) ([]models.User, error) {
	users, _, err := s.store.Users().List(ctx, repository.UserFilter{ActiveOnly: true}, repository.Page{})
	if err != nil {
		return nil, persistenceError("failed to get users", err)
	}
	return users, nil
}

func (s *AuthService) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, validationError("Invalid role", FieldError{Field: "role", Message: err.Error()})
	}
	users, _, err := s.store.Users().List(ctx, repository.UserFilter{Role: &r, ActiveOnly: true}, repository.Page{})
	if err != nil {
		return nil, persistenceError("failed to get users", err)
	}
	return users, nil
}

// SetUserActive activates or deactivates a user. Deactivation revokes the
// user's refresh tokens.
func (s *AuthService) SetUserActive(ctx context.Context, actor *models.User, id uuid.UUID, req *dto.SetUserStatusRequest) (*models.User, error) {
	if actor.Role != models.RoleRegulator {
		return nil, ErrForbiddenRole
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	if actor.ID == id && !*req.IsActive {
		return nil, validationError("cannot deactivate your own account")
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := tx.Users().FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return persistenceError("failed to load user", err)
		}
		u.IsActive = *req.IsActive
		if err := tx.Users().Update(ctx, u); err != nil {
			return persistenceError("failed to update user", err)
		}
		if !u.IsActive {
			if err := tx.RefreshTokens().RevokeAllForUser(ctx, u.ID); err != nil {
				return persistenceError("failed to revoke sessions", err)
			}
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("user status changed", "user_id", user.ID.String(), "is_active", user.IsActive, "actor_id", actor.ID.String())
	return user, nil
}

func mergeProfile(p models.Profile, req *dto.ProfileRequest) models.Profile {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.FirstName, req.FirstName)
	set(&p.LastName, req.LastName)
	set(&p.Phone, req.Phone)
	set(&p.Website, req.Website)
	set(&p.Description, req.Description)
	if req.Address != nil {
		set(&p.Address.Street, req.Address.Street)
		set(&p.Address.City, req.Address.City)
		set(&p.Address.State, req.Address.State)
		set(&p.Address.Country, req.Address.Country)
		set(&p.Address.ZipCode, req.Address.ZipCode)
	}
	return p
}

func mergeSettings(st models.Settings, req *dto.SettingsUpdateRequest) models.Settings {
	if n := req.Notifications; n != nil {
		if n.Email != nil {
			st.Notifications.Email = *n.Email
		}
		if n.Push != nil {
			st.Notifications.Push = *n.Push
		}
	}
	if p := req.Privacy; p != nil && p.PublicProfile != nil {
		st.Privacy.PublicProfile = *p.PublicProfile
	}
	return st
}

func (s *AuthService) generateTokenPair(ctx context.Context, user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.JWTAccessExpiry.Seconds()),
		User:         user,
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":    user.ID.String(),
		"role":   string(user.Role),
		"wallet": user.WalletAddress,
		"iat":    now.Unix(),
		"exp":    now.Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(ctx context.Context, user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)
	record := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: s.now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.store.RefreshTokens().Create(ctx, &record); err != nil {
		return "", persistenceError("failed to store refresh token", err)
	}

	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
