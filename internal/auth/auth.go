// Package auth implements the device-code OAuth2 flow against Twitch and
// persists the resulting credentials to the token file spec.md §6 describes
// ("token_file: {access_token, refresh_token, expires_at, user_id,
// user_name}"), rewritten atomically on every refresh.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/twitch-miner/predictor/internal/constants"
)

var (
	ErrBadCredentials       = errors.New("bad credentials")
	ErrExpiredCode          = errors.New("device code expired")
	ErrAuthorizationPending = errors.New("authorization pending")
	ErrSlowDown             = errors.New("polling too fast")
)

type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
}

type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}

// Token is the on-disk shape named in spec.md §6.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
}

func (t Token) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// TwitchAuth owns the current credential and the device-code/refresh flows
// that keep it valid. Safe for concurrent reads via GetAuthToken/GetUserID;
// writes are serialized by mu.
type TwitchAuth struct {
	path     string
	deviceID string
	client   *http.Client

	mu    sync.RWMutex
	token Token
}

func NewTwitchAuth(tokenFilePath, deviceID string) *TwitchAuth {
	return &TwitchAuth{
		path:     tokenFilePath,
		deviceID: deviceID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *TwitchAuth) GetAuthToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token.AccessToken
}

func (a *TwitchAuth) GetUserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token.UserID
}

func (a *TwitchAuth) GetUserName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token.UserName
}

// Expired reports whether the current access token has passed expires_at.
func (a *TwitchAuth) Expired(now time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token.expired(now)
}

func (a *TwitchAuth) loadFromDisk() (Token, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return Token{}, err
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// saveAtomic writes the token file via a temp file + rename so a crash
// mid-write never leaves a truncated token file on disk.
func (a *TwitchAuth) saveAtomic(t Token) error {
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, a.path)
}

func (a *TwitchAuth) HasStoredAuth() bool {
	_, err := os.Stat(a.path)
	return err == nil
}

// Login loads a stored token if present and unexpired, refreshes it if
// expired, and otherwise falls back to the device-code flow.
func (a *TwitchAuth) Login() error {
	stored, err := a.loadFromDisk()
	if err == nil && stored.AccessToken != "" {
		a.mu.Lock()
		a.token = stored
		a.mu.Unlock()

		if !stored.expired(time.Now()) {
			return nil
		}
		if stored.RefreshToken != "" {
			if err := a.Refresh(); err == nil {
				return nil
			}
		}
	}

	return a.DeviceFlowLogin()
}

// Refresh exchanges the stored refresh_token for a new access token and
// rewrites the token file atomically.
func (a *TwitchAuth) Refresh() error {
	a.mu.RLock()
	refreshToken := a.token.RefreshToken
	userID := a.token.UserID
	userName := a.token.UserName
	a.mu.RUnlock()

	if refreshToken == "" {
		return errors.New("no refresh token available")
	}

	data := url.Values{
		"client_id":     {constants.ClientIDTV},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequest("POST", constants.OAuthTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Client-Id", constants.ClientIDTV)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh failed: unexpected status code %d", resp.StatusCode)
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return err
	}

	next := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		UserID:       userID,
		UserName:     userName,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = refreshToken
	}

	a.mu.Lock()
	a.token = next
	a.mu.Unlock()

	return a.saveAtomic(next)
}

func (a *TwitchAuth) DeviceFlowLogin() error {
	deviceCode, err := a.requestDeviceCode()
	if err != nil {
		return fmt.Errorf("failed to get device code: %w", err)
	}

	fmt.Println("\n=== Twitch Login Required ===")
	fmt.Printf("Open: %s\n", deviceCode.VerificationURI)
	fmt.Printf("Enter code: %s\n", deviceCode.UserCode)
	fmt.Printf("Code expires in %d minutes\n", deviceCode.ExpiresIn/60)
	fmt.Println("Waiting for authorization...")

	tok, err := a.pollForToken(deviceCode)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	next := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}

	a.mu.Lock()
	a.token = next
	a.mu.Unlock()

	if err := a.saveAtomic(next); err != nil {
		return fmt.Errorf("failed to save auth: %w", err)
	}

	return nil
}

func (a *TwitchAuth) requestDeviceCode() (*DeviceCodeResponse, error) {
	data := url.Values{
		"client_id": {constants.ClientIDTV},
		"scopes":    {constants.OAuthScopes},
	}

	req, err := http.NewRequest("POST", constants.OAuthDeviceURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-Id", constants.ClientIDTV)
	req.Header.Set("X-Device-Id", a.deviceID)
	req.Header.Set("User-Agent", constants.TVUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var deviceCode DeviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceCode); err != nil {
		return nil, err
	}

	return &deviceCode, nil
}

func (a *TwitchAuth) pollForToken(deviceCode *DeviceCodeResponse) (*TokenResponse, error) {
	deadline := time.Now().Add(time.Duration(deviceCode.ExpiresIn) * time.Second)
	interval := time.Duration(deviceCode.Interval) * time.Second

	for time.Now().Before(deadline) {
		time.Sleep(interval)

		token, err := a.requestToken(deviceCode.DeviceCode)
		if errors.Is(err, ErrAuthorizationPending) || errors.Is(err, ErrSlowDown) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return token, nil
	}

	return nil, ErrExpiredCode
}

func (a *TwitchAuth) requestToken(deviceCode string) (*TokenResponse, error) {
	data := url.Values{
		"client_id":   {constants.ClientIDTV},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}

	req, err := http.NewRequest("POST", constants.OAuthTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-Id", constants.ClientIDTV)
	req.Header.Set("X-Device-Id", a.deviceID)
	req.Header.Set("User-Agent", constants.TVUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return nil, ErrAuthorizationPending
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrSlowDown
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}

	return &token, nil
}
