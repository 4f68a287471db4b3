package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractBody_PrefersPlainText(t *testing.T) {
	payload := &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailapi.MessagePart{
			{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encode("<p>html</p>")}},
			{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: encode("Amount: SGD5.00\r\n\r\nTo:  KOPI  ")}},
		},
	}

	assert.Equal(t, "Amount: SGD5.00\nTo: KOPI", extractBody(payload))
}

func TestExtractBody_HTMLFallback(t *testing.T) {
	markup := `<html><head><style>p { color: red; }</style></head><body>
<table><tr><td>Date &amp; Time:</td><td>18 Apr 13:29 (SGT)</td></tr>
<tr><td>Amount:</td><td>USD20.00</td></tr></table>
<p>From: DBS/POSB card ending 8558<br>To: GAMMA.APP</p></body></html>`

	payload := &gmailapi.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailapi.MessagePart{{
			MimeType: "multipart/alternative",
			Parts: []*gmailapi.MessagePart{
				{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encode(markup)}},
			},
		}},
	}

	body := extractBody(payload)
	assert.Contains(t, body, "Date & Time: 18 Apr 13:29 (SGT)")
	assert.Contains(t, body, "Amount: USD20.00")
	assert.Contains(t, body, "From: DBS/POSB card ending 8558\nTo: GAMMA.APP")
	assert.NotContains(t, body, "color")
	assert.NotContains(t, body, "<")
}

func TestExtractBody_Empty(t *testing.T) {
	assert.Empty(t, extractBody(nil))
	assert.Empty(t, extractBody(&gmailapi.MessagePart{MimeType: "image/png"}))
}

type fakeGmail struct {
	modified []string
	query    string
	mu       sync.Mutex
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages")

	switch {
	case path == "" && r.Method == http.MethodGet:
		f.mu.Lock()
		f.query = r.URL.Query().Get("q")
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","threadId":"t1"},{"id":"gone","threadId":"t2"}]}`))

	case path == "/m1" && r.Method == http.MethodGet:
		msg := map[string]any{
			"id":           "m1",
			"internalDate": "1713418140000",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Card Transaction Alert"},
					{"name": "From", "value": "ibanking.alert@dbs.com"},
					{"name": "To", "value": "me@example.com"},
					{"name": "Date", "value": "Thu, 18 Apr 2024 13:29:00 +0800"},
				},
				"body": map[string]string{"data": encode("Amount: USD20.00\nTo: GAMMA.APP")},
			},
		}
		_ = json.NewEncoder(w).Encode(msg)

	case path == "/m1/modify" && r.Method == http.MethodPost:
		var req gmailapi.ModifyMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.modified = append(f.modified, strings.Join(req.RemoveLabelIds, ","))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"m1"}`))

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), server.Client(), "", option.WithEndpoint(server.URL+"/"))
	require.NoError(t, err)
	return client
}

func TestClient_ListUnread(t *testing.T) {
	fake := &fakeGmail{}
	client := newTestClient(t, fake)

	emails, err := client.ListUnread(context.Background())
	require.NoError(t, err)
	require.Len(t, emails, 1, "missing messages are skipped")

	email := emails[0]
	assert.Equal(t, "m1", email.ID)
	assert.Equal(t, "Card Transaction Alert", email.Subject)
	assert.Equal(t, "ibanking.alert@dbs.com", email.From)
	assert.Equal(t, "me@example.com", email.To)
	assert.Equal(t, "Amount: USD20.00\nTo: GAMMA.APP", email.Body)
	assert.True(t, email.Date.Equal(time.Date(2024, 4, 18, 5, 29, 0, 0, time.UTC)))
	assert.Equal(t, DefaultQuery, fake.query)
}

func TestClient_MarkAsRead(t *testing.T) {
	fake := &fakeGmail{}
	client := newTestClient(t, fake)

	require.NoError(t, client.MarkAsRead(context.Background(), "m1"))
	assert.Equal(t, []string{"UNREAD"}, fake.modified)

	require.Error(t, client.MarkAsRead(context.Background(), "unknown"))
}

func TestToEmail_InternalDateFallback(t *testing.T) {
	email := toEmail(&gmailapi.Message{Id: "x", InternalDate: 1713418140000})
	assert.Equal(t, int64(1713418140), email.Date.Unix())
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}

	require.NoError(t, saveToken(path, token))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "r", loaded.RefreshToken)
}

const credentialsJSON = `{"installed":{"client_id":"id","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func TestHTTPClient_MissingToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(credentialsJSON), 0600))

	_, err := HTTPClient(context.Background(), OAuth2Config{
		CredentialsFile: creds,
		TokenFile:       filepath.Join(dir, "token.json"),
	})
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestOAuthConfig_RedirectURL(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(credentialsJSON), 0600))

	cfg, err := OAuth2Config{CredentialsFile: creds, CallbackAddr: "localhost:9999"}.oauthConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/callback", cfg.RedirectURL)
	assert.Equal(t, []string{gmailapi.GmailModifyScope}, cfg.Scopes)

	_, err = OAuth2Config{CredentialsFile: filepath.Join(dir, "missing.json")}.oauthConfig()
	require.Error(t, err)
}

type countingSource struct {
	tokens []*oauth2.Token
	calls  int
}

func (c *countingSource) Token() (*oauth2.Token, error) {
	tok := c.tokens[c.calls]
	c.calls++
	return tok, nil
}

func TestSavingTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	src := &savingTokenSource{
		base: &countingSource{tokens: []*oauth2.Token{{AccessToken: "old"}, {AccessToken: "new"}}},
		path: path,
		last: "old",
	}

	_, err := src.Token()
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "unchanged token is not written")

	_, err = src.Token()
	require.NoError(t, err)
	saved, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
}
