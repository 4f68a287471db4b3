package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// ErrNoToken is returned when no saved token exists and the interactive flow
// was not requested.
var ErrNoToken = errors.New("no gmail token found, run `beantalk auth` first")

// OAuth2Config locates the installed-app credentials and the saved token.
type OAuth2Config struct {
	CredentialsFile string // Client secret JSON downloaded from Google Cloud
	TokenFile       string // Where to save the token
	CallbackAddr    string // Listen address for the interactive flow
}

func (c OAuth2Config) oauthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(c.CredentialsFile) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gmail credentials: %w", err)
	}
	addr := c.CallbackAddr
	if addr == "" {
		addr = "localhost:8080"
	}
	cfg.RedirectURL = "http://" + addr + "/callback"
	return cfg, nil
}

// HTTPClient returns a client that authorizes requests with the saved token,
// refreshing it and writing refreshed tokens back to TokenFile.
func HTTPClient(ctx context.Context, cfg OAuth2Config) (*http.Client, error) {
	oauthCfg, err := cfg.oauthConfig()
	if err != nil {
		return nil, err
	}
	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to load gmail token: %w", err)
	}

	src := &savingTokenSource{
		base: oauthCfg.TokenSource(ctx, token),
		path: cfg.TokenFile,
		last: token.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, src)), nil
}

// savingTokenSource persists every token that differs from the last one seen.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string
	last string
	mu   sync.Mutex
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := saveToken(s.path, token); err != nil {
			slog.Warn("Failed to save refreshed token", "error", err)
		} else {
			slog.Info("Gmail token refreshed")
		}
	}
	return token, nil
}

// Authenticate runs the browser consent flow and saves the resulting token.
func Authenticate(ctx context.Context, cfg OAuth2Config) (*oauth2.Token, error) {
	oauthCfg, err := cfg.oauthConfig()
	if err != nil {
		return nil, err
	}

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errorChan <- fmt.Errorf("no authorization code received")
			_, _ = fmt.Fprint(w, `<html><body>
				<h1>Authentication Failed</h1>
				<p>No authorization code received. Please try again.</p>
			</body></html>`)
			return
		}

		codeChan <- code
		_, _ = fmt.Fprint(w, `<html><body>
			<h1>Authentication Successful!</h1>
			<p>You can close this window and return to the terminal.</p>
		</body></html>`)
	})

	addr := cfg.CallbackAddr
	if addr == "" {
		addr = "localhost:8080"
	}
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChan <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()
	defer func() {
		if err := server.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Error shutting down callback server", "error", err)
		}
	}()

	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	slog.Info("Gmail authentication required")
	slog.Info("Please visit this URL to authenticate", "url", authURL)
	slog.Info("Waiting for authentication...")

	var authCode string
	select {
	case authCode = <-codeChan:
		slog.Info("Received authorization code")
	case err := <-errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authentication timeout - no response received within 5 minutes")
	}

	token, err := oauthCfg.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := saveToken(cfg.TokenFile, token); err != nil {
		return nil, err
	}
	slog.Info("Token saved successfully", "file", cfg.TokenFile)

	return token, nil
}

// LoadToken loads a token from file.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}
