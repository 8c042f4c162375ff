package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegate/telegate/internal/fanout"
	"github.com/telegate/telegate/internal/ingest"
	"github.com/telegate/telegate/internal/lifecycle"
	"github.com/telegate/telegate/internal/provider"
	"github.com/telegate/telegate/internal/registry"
	"github.com/telegate/telegate/internal/store"
	"github.com/telegate/telegate/internal/telegram"
	"github.com/telegate/telegate/internal/transport"
	"github.com/telegate/telegate/internal/vault"
)

const (
	testToken  = "7:secret"
	testAPIKey = "k-123"
)

type noCache struct{}

func (noCache) SetStatus(context.Context, telegram.EntityRef, string) {}
func (noCache) Cursor(context.Context, telegram.EntityRef) int64 { return 0 }
func (noCache) SetCursor(context.Context, telegram.EntityRef, int64) {}

func fakeBotAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if strings.TrimPrefix(parts[0], "bot") != testToken {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 401, "description": "Unauthorized"})
			return
		}
		switch parts[1] {
		case "getMe":
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"id": 7, "username": "testbot"}})
		case "sendMessage":
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 500}})
		default:
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	server *Server
	ctl    *lifecycle.Controller
	store  store.Gateway
	bot    telegram.EntityRef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	api := fakeBotAPI(t)
	bus := fanout.NewBus()
	t.Cleanup(func() { bus.Close() })
	pipe := ingest.New(st, bus)

	ctl := lifecycle.New(lifecycle.Options{
		PublicURL:    "https://gate.example.com",
		ProbeTimeout: 2 * time.Second,
		SendTimeout:  2 * time.Second,
		QueueSize:    16,
	}, vault.Plaintext{}, st, registry.New(), provider.NewBotAPI(api.URL, 2*time.Second), pipe, noCache{}, bus)

	bot := telegram.EntityRef{Kind: telegram.EntityBot, ID: 7}
	require.NoError(t, st.CreateEntity(context.Background(), &store.Entity{
		Ref: bot, Username: "testbot", CredentialEnc: testToken, Status: "inactive",
	}))

	return &fixture{server: New(ctl, testAPIKey), ctl: ctl, store: st, bot: bot}
}

func (f *fixture) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) startBot(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctl.Start(context.Background(), f.bot))
	t.Cleanup(func() { f.ctl.Stop(context.Background(), f.bot) })
}

const updateBody = `{"update_id":1,"message":{"message_id":10,"chat":{"id":100,"type":"private","first_name":"Alice"},"from":{"id":100},"text":"hi"}}`

func TestWebhookAccepted(t *testing.T) {
	f := newFixture(t)
	f.startBot(t)

	rec := f.do(http.MethodPost, "/webhook/bot/7/"+transport.WebhookSecret(7), updateBody, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	assert.Eventually(t, func() bool {
		chat, err := f.store.UpsertChat(context.Background(), f.bot, 100, "", "")
		if err != nil || chat == nil {
			return false
		}
		n, _ := f.store.CountMessages(context.Background(), chat.RowID)
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebhookBadSecret(t *testing.T) {
	f := newFixture(t)
	f.startBot(t)

	rec := f.do(http.MethodPost, "/webhook/bot/7/wrongsecret", updateBody, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookSessionNotRunning(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/webhook/bot/7/"+transport.WebhookSecret(7), updateBody, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookUnknownKind(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/webhook/gadget/7/x", updateBody, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookMalformedBody(t *testing.T) {
	f := newFixture(t)
	f.startBot(t)

	rec := f.do(http.MethodPost, "/webhook/bot/7/"+transport.WebhookSecret(7), `{not json`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIRequiresKey(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/status", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/status", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartStopEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/entities/bot/7/start", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/entities/bot/7/stop", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/entities/bot/999/start", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/entities/bot/7/test", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var res lifecycle.TestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "@testbot", res.Detail)
}

func TestSendEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/entities/bot/7/send", `{"chat_id":100,"text":"out"}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code, "send needs a running session")

	f.startBot(t)
	rec = f.do(http.MethodPost, "/api/entities/bot/7/send", `{"chat_id":100,"text":"out"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, float64(500), res["message_id"])

	rec = f.do(http.MethodPost, "/api/entities/bot/7/send", `{"text":"no chat"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/status", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Entities []lifecycle.EntityStatus `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "inactive", res.Entities[0].Status)
}
