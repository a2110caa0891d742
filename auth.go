package portal

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Pubkey   string `json:"pubkey,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type challengeRequest struct {
	Pubkey string `json:"pubkey"`
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

type pubkeyLoginRequest struct {
	Pubkey    string `json:"pubkey"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

type authStatusResponse struct {
	Status bool `json:"status"`
}

// Token returns the current session token, or "" if not logged in.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// PubkeyHex returns the hex-encoded ed25519 public key of the configured
// private key, or "" if none is set.
func (c *Client) PubkeyHex() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pubkeyHex(c.privateKey)
}

func pubkeyHex(key ed25519.PrivateKey) string {
	if key == nil {
		return ""
	}
	return hex.EncodeToString(key.Public().(ed25519.PublicKey))
}

// UseNewPubkeyAccount replaces the configured credentials with a freshly
// generated ed25519 key and no password. Call Register to create the
// account on the portal.
func (c *Client) UseNewPubkeyAccount() error {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.privateKey = key
	c.password = ""
	return nil
}

// Register creates an account with the configured email and password
// and/or public key.
func (c *Client) Register(ctx context.Context) error {
	c.mu.RLock()
	req := registerRequest{Email: c.email, Password: c.password, Pubkey: pubkeyHex(c.privateKey)}
	c.mu.RUnlock()

	if req.Email == "" {
		return fmt.Errorf("%w: email", ErrCredentialsRequired)
	}
	if req.Password == "" && req.Pubkey == "" {
		return fmt.Errorf("%w: password or private key", ErrCredentialsRequired)
	}
	if err := c.call(ctx, http.MethodPost, "/account/register", req, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	c.log().Info("account registered", "email", req.Email)
	return nil
}

// Login exchanges the configured email and password for a session token.
func (c *Client) Login(ctx context.Context) error {
	c.mu.RLock()
	req := loginRequest{Email: c.email, Password: c.password}
	c.mu.RUnlock()

	if req.Email == "" || req.Password == "" {
		return fmt.Errorf("%w: email and password", ErrCredentialsRequired)
	}
	var resp loginResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return errors.New("login: portal returned no token")
	}
	c.setToken(resp.Token)
	c.log().Debug("logged in", "email", req.Email)
	return nil
}

// LoginPubkey logs in by signing a portal challenge with the configured
// private key.
func (c *Client) LoginPubkey(ctx context.Context) error {
	c.mu.RLock()
	key := c.privateKey
	c.mu.RUnlock()
	if key == nil {
		return fmt.Errorf("%w: private key", ErrCredentialsRequired)
	}
	pub := pubkeyHex(key)

	var challenge challengeResponse
	if err := c.call(ctx, http.MethodPost, "/auth/pubkey/challenge", challengeRequest{Pubkey: pub}, &challenge); err != nil {
		return fmt.Errorf("request login challenge: %w", err)
	}
	sig := ed25519.Sign(key, []byte(challenge.Challenge))

	var resp loginResponse
	req := pubkeyLoginRequest{
		Pubkey:    pub,
		Challenge: challenge.Challenge,
		Signature: hex.EncodeToString(sig),
	}
	if err := c.call(ctx, http.MethodPost, "/auth/pubkey/login", req, &resp); err != nil {
		return fmt.Errorf("pubkey login: %w", err)
	}
	if resp.Token == "" {
		return errors.New("pubkey login: portal returned no token")
	}
	c.setToken(resp.Token)
	c.log().Debug("logged in with public key", "pubkey", pub)
	return nil
}

// Logout ends the current session. The local token is cleared even if the
// portal request fails.
func (c *Client) Logout(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return nil
	}
	c.setToken("")
	if err := c.call(ctx, http.MethodPost, "/auth/logout", logoutRequest{Token: token}, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// IsLoggedIn reports whether the portal accepts the current session token.
func (c *Client) IsLoggedIn(ctx context.Context) (bool, error) {
	var resp authStatusResponse
	err := c.call(ctx, http.MethodGet, "/auth/status", nil, &resp)
	if errors.Is(err, ErrAuthRequired) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return resp.Status, nil
}
