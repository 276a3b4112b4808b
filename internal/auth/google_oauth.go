package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	googleHTTPTimeout = 10 * time.Second
	// maxGoogleResponseBytes はトークンとユーザー情報のレスポンス上限。
	maxGoogleResponseBytes = 1 << 20
)

// ErrEmailNotVerified はGoogle側でメールアドレスが未確認のアカウント。
var ErrEmailNotVerified = errors.New("google account email is not verified")

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
// URLとHTTPClientは未設定ならGoogleの本番エンドポイントとタイムアウト付きクライアントを使う。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// HostedDomain はアカウント選択画面のhdヒント。ドメインの強制はService側で行う。
	HostedDomain string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	HTTPClient  *http.Client
}

// GoogleOAuthProvider は認可コードフローでGoogleアカウントを識別する。
type GoogleOAuthProvider struct {
	config GoogleOAuthConfig
	client *http.Client
}

func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: googleHTTPTimeout}
	}
	return &GoogleOAuthProvider{config: config, client: client}
}

// GetLoginURL は毎回アカウント選択画面を出す認可URLを返す。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.config.ClientID)
	q.Set("redirect_uri", p.config.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("prompt", "select_account")
	if p.config.HostedDomain != "" {
		q.Set("hd", p.config.HostedDomain)
	}
	return p.config.AuthURL + "?" + q.Encode()
}

type googleToken struct {
	AccessToken string `json:"access_token"`
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	HD            string `json:"hd"`
}

// ExchangeCode は認可コードをトークンに交換し、確認済みメールアドレスを持つユーザー情報を返す。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token googleToken
	if err := p.doJSON(tokenReq, &token); err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("failed to exchange token: empty access token")
	}

	infoReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	infoReq.Header.Set("Authorization", "Bearer "+token.AccessToken)

	var info googleUserInfo
	if err := p.doJSON(infoReq, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, errors.New("failed to fetch user info: missing sub or email")
	}
	if !info.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return &OAuthUserInfo{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		Name:           info.Name,
		HostedDomain:   info.HD,
		Provider:       "google",
	}, nil
}

// doJSON はリクエストを送り、200以外はステータスと本文をエラーに含める。
func (p *GoogleOAuthProvider) doJSON(req *http.Request, v any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGoogleResponseBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
