package schwab

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"trader/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_schwabOAuthTokenUrl = "https://api.schwabapi.com/v1/oauth/token"

	// access tokens last 30 minutes; refresh a little early so in-flight
	// requests never carry an expired one.
	_tokenExpirySlack = 60 * time.Second
)

// tokenFile is the cached grant on disk. The refresh token comes from the
// manual browser authorization and is rotated by hand every seven days; this
// process only mints access tokens from it.
type tokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type tokenRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
}

// FileTokenSource serves access tokens from a cached grant file, refreshing
// through OAuth when the cached one is near expiry. Safe for concurrent use;
// only one refresh runs at a time.
type FileTokenSource struct {
	client    *http.Client
	appKey    string
	appSecret string
	path      string

	mu     sync.Mutex
	cached tokenFile
	loaded bool
}

func NewFileTokenSource(client *http.Client, appKey, appSecret, path string) *FileTokenSource {
	return &FileTokenSource{
		client:    client,
		appKey:    appKey,
		appSecret: appSecret,
		path:      path,
	}
}

func (s *FileTokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.load(); err != nil {
			return "", err
		}
		s.loaded = true
	}

	if s.cached.AccessToken != "" && time.Now().Unix() < s.cached.ExpiresAt-int64(_tokenExpirySlack.Seconds()) {
		return s.cached.AccessToken, nil
	}

	if err := s.refresh(ctx); err != nil {
		return "", err
	}
	return s.cached.AccessToken, nil
}

func (s *FileTokenSource) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(exception.ErrBrokerAuth, "read token file: "+err.Error())
	}
	if err := sonic.ConfigFastest.Unmarshal(data, &s.cached); err != nil {
		return errors.Wrap(exception.ErrBrokerAuth, "parse token file: "+err.Error())
	}
	if s.cached.RefreshToken == "" {
		return errors.Wrap(exception.ErrBrokerAuth, "token file has no refresh token")
	}
	return nil
}

// refresh exchanges the refresh token for a new access token and persists
// the result. A rejected refresh token means the weekly manual authorization
// lapsed; that is an auth failure, not a transient one.
func (s *FileTokenSource) refresh(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.cached.RefreshToken)

	ctx, cancel := context.WithTimeout(ctx, _requestTimeout)
	defer cancel()
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, _schwabOAuthTokenUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build token request")
	}
	basic := base64.StdEncoding.EncodeToString([]byte(s.appKey + ":" + s.appSecret))
	r.Header.Set("Authorization", "Basic "+basic)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(r)
	if err != nil {
		return errors.Wrap(exception.ErrBrokerTransport, err.Error())
	}
	defer resp.Body.Close()

	var payload tokenRefreshResponse
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return errors.Wrap(err, "decode token response")
	}

	if resp.StatusCode >= 400 || payload.AccessToken == "" {
		return errors.Wrapf(exception.ErrBrokerAuth, "token refresh rejected, status %d: %s", resp.StatusCode, payload.Error)
	}

	s.cached.AccessToken = payload.AccessToken
	s.cached.ExpiresAt = time.Now().Unix() + payload.ExpiresIn
	if payload.RefreshToken != "" {
		s.cached.RefreshToken = payload.RefreshToken
	}

	if err := s.persist(); err != nil {
		// The in-memory token still works for this run.
		logs.Errorf("schwab: persist refreshed token, err: %+v", err)
	}
	return nil
}

func (s *FileTokenSource) persist() error {
	data, err := sonic.ConfigFastest.MarshalIndent(s.cached, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal token file")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write token temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replace token file")
	}
	return nil
}
