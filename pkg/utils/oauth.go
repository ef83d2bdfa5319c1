package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bandstand/rehearsal-scheduler/internal/config"
)

const (
	AuthPort       = 3000
	authTimeout    = 5 * time.Minute
	callbackPath   = "/oauth/callback"
	tokenDirName   = ".rehearsal-scheduler/tokens"
	tokenFilePerms = 0600
	tokenDirPerms  = 0700
)

// ScopeCalendarFreeBusy lets the app read free/busy blocks without seeing event details
const ScopeCalendarFreeBusy = "https://www.googleapis.com/auth/calendar.freebusy"

func requiredScopes() []string {
	return []string{ScopeCalendarFreeBusy}
}

// GetOAuthConfig creates an OAuth2 config from the client file, redirecting to
// the local callback server
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	raw, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(raw, requiredScopes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)
	return googleConfig, nil
}

// TokenStore persists one OAuth token per environment under Dir
type TokenStore struct {
	Dir string

	mu    sync.Mutex
	cache *oauth2.Token
}

// NewTokenStore stores tokens in ~/.rehearsal-scheduler/tokens
func NewTokenStore() (*TokenStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &TokenStore{Dir: filepath.Join(home, tokenDirName)}, nil
}

func (s *TokenStore) path(env string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("token-%s.json", env))
}

// Load returns the stored token for env, or nil when none has been saved
func (s *TokenStore) Load(env string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path(env))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

// Save writes the token for env with owner-only permissions
func (s *TokenStore) Save(env string, token *oauth2.Token) error {
	if err := os.MkdirAll(s.Dir, tokenDirPerms); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(s.path(env), data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes the token for env
func (s *TokenStore) Delete(env string) error {
	if err := os.Remove(s.path(env)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// missingScopes lists required scopes the token was not granted. Tokens that
// do not report their scopes are trusted.
func missingScopes(token *oauth2.Token) []string {
	granted, _ := token.Extra("scope").(string)
	if granted == "" {
		return nil
	}
	have := strings.Fields(granted)

	var missing []string
	for _, scope := range requiredScopes() {
		if !slices.Contains(have, scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// Token returns a usable token for env. A cached or stored token is reused
// and refreshed when possible; otherwise the browser consent flow runs.
func (s *TokenStore) Token(ctx context.Context, oauthConfig *oauth2.Config, env string, logger *zap.Logger) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil && s.cache.Valid() {
		return s.cache, nil
	}

	stored, err := s.Load(env)
	if err != nil {
		logger.Warn("Ignoring unreadable token file", zap.Error(err))
	}

	if stored != nil {
		refreshed, err := oauthConfig.TokenSource(ctx, stored).Token()
		switch {
		case err != nil:
			logger.Warn("Stored token could not be refreshed", zap.Error(err))
		case len(missingScopes(refreshed)) > 0:
			logger.Warn("Stored token is missing scopes, re-authorizing", zap.Strings("missing", missingScopes(refreshed)))
			s.Delete(env)
		default:
			if refreshed.AccessToken != stored.AccessToken {
				if err := s.Save(env, refreshed); err != nil {
					logger.Warn("Failed to save refreshed token", zap.Error(err))
				}
			}
			s.cache = refreshed
			return refreshed, nil
		}
	}

	logger.Info("No valid token found, starting OAuth flow")

	authURL := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Printf("\nVisit this URL to authorize calendar access:\n%s\n\n", authURL)

	code, err := listenForAuthCallback(ctx, fmt.Sprintf(":%d", AuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	if missing := missingScopes(token); len(missing) > 0 {
		return nil, fmt.Errorf("token is missing required scopes: %v", missing)
	}

	if err := s.Save(env, token); err != nil {
		logger.Warn("Failed to save token", zap.Error(err))
	}
	s.cache = token

	return token, nil
}

// listenForAuthCallback serves the OAuth redirect on addr and returns the
// authorization code
func listenForAuthCallback(ctx context.Context, addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serveAuthCallback(ctx, listener, authTimeout)
}

func serveAuthCallback(ctx context.Context, listener net.Listener, timeout time.Duration) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			select {
			case errChan <- errors.New("no authorization code received"):
			default:
			}
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Authorization successful!</h1><p>You can close this window and return to the terminal.</p></body></html>`)

		select {
		case codeChan <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- fmt.Errorf("server error: %w", err):
			default:
			}
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var code string
	var authErr error
	select {
	case code = <-codeChan:
	case authErr = <-errChan:
	case <-timeoutCtx.Done():
		authErr = fmt.Errorf("authorization timeout after %v", timeout)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	if authErr != nil {
		return "", authErr
	}
	return code, nil
}
