// Package auth はOAuth・パスワード認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	HostedDomain   string // Google Workspaceの組織ドメイン。個人アカウントでは空
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	AllowedDomain string // 空でない場合、このドメインのメールアドレスのみOAuthログインを許可する
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	profileRepo repository.ProfileRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	profileRepo repository.ProfileRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		profileRepo: profileRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はprofilesレコードとidentitiesレコードを同時に自動作成する。
// AllowedDomainが設定されている場合、他ドメインのアカウントはDOMAIN_NOT_ALLOWEDで拒否する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if errors.Is(err, ErrEmailNotVerified) {
		return nil, model.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	if !s.domainAllowed(userInfo) {
		slog.Warn("oauth login rejected by domain",
			slog.String("email", userInfo.Email),
			slog.String("allowed_domain", s.config.AllowedDomain),
		)
		return nil, model.NewDomainNotAllowedError(s.config.AllowedDomain)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string

	if identity != nil {
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		now := time.Now()
		profile := &model.Profile{
			ID:        uuid.New().String(),
			Email:     userInfo.Email,
			FullName:  userInfo.Name,
			CreatedAt: now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         profile.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.profileRepo.CreateWithIdentity(ctx, profile, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create profile and identity: %w", err)
		}

		userID = profile.ID
		slog.Info("new user created",
			slog.String("user_id", userID),
			slog.String("email", userInfo.Email),
			slog.String("provider", userInfo.Provider),
		)
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// domainAllowed はOAuthユーザーが組織ドメインに属するかを判定する。
// hdクレームはクライアント側で改ざんできるため、メールアドレスのドメインで判定する。
func (s *Service) domainAllowed(info *OAuthUserInfo) bool {
	if s.config.AllowedDomain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(info.Email), "@"+strings.ToLower(s.config.AllowedDomain))
}

// Register はメールアドレスとパスワードでプロフィールを作成し、セッションを発行する。
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*model.Session, error) {
	email = normalizeEmail(email)

	existing, err := s.profileRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyInUseError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	profile := &model.Profile{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	slog.Info("new user registered", slog.String("user_id", profile.ID))

	return s.createSession(ctx, profile.ID)
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// ユーザー不在とパスワード不一致は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	profile, err := s.profileRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by email: %w", err)
	}
	if profile == nil || profile.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	err = bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, model.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	slog.Info("user logged in with password", slog.String("user_id", profile.ID))

	return s.createSession(ctx, profile.ID)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のプロフィールを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.Profile, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	profile, err := s.profileRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewUserNotFoundError()
	}

	return profile, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
