package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"huddle/internal/app"
	"huddle/internal/config"
	"huddle/internal/identity"
	"huddle/pkg/types"
)

const testSecret = "integration-secret"

// fakeGemini stands in for the generateContent endpoint.
type fakeGemini struct {
	server *httptest.Server

	mu      sync.Mutex
	prompts []string
	status  int // non-200 answers every call with this status
}

func newFakeGemini(t *testing.T) *fakeGemini {
	t.Helper()
	f := &fakeGemini{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGemini) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	prompt := ""
	if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		prompt = req.Contents[0].Parts[0].Text
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"error":{"message":"overloaded"}}`, status)
		return
	}

	// fenced on purpose; the room should see plain text
	text := "```text\nanswer to: " + prompt + "\n```"
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]string{{"text": text}},
			},
			"finishReason": "STOP",
		}},
	})
}

func (f *fakeGemini) setStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = code
}

func (f *fakeGemini) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.prompts...)
}

type harness struct {
	t        *testing.T
	app      *app.Application
	addr     string
	gemini   *fakeGemini
	redis    *miniredis.Miniredis
	cfg      *config.Config
	projectA *types.Project
	projectB *types.Project
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()

	gemini := newFakeGemini(t)
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "huddle.db")
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	cfg.Auth.JWTSecret = testSecret
	cfg.Assistant.APIKey = "fake-key"
	cfg.Assistant.BaseURL = gemini.server.URL
	cfg.Assistant.RetryDelay = time.Millisecond
	cfg.Assistant.RetryMaxDelay = 10 * time.Millisecond
	for _, m := range mutate {
		m(cfg)
	}

	application, err := app.NewApplication(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	projectA := &types.Project{Name: "apollo", Members: []string{"alice", "bob", "carol"}}
	projectB := &types.Project{Name: "gemini", Members: []string{"dave"}}
	require.NoError(t, application.Store().CreateProject(ctx, projectA))
	require.NoError(t, application.Store().CreateProject(ctx, projectB))

	require.NoError(t, application.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	})

	return &harness{
		t:        t,
		app:      application,
		addr:     application.GetAddr(),
		gemini:   gemini,
		redis:    mr,
		cfg:      cfg,
		projectA: projectA,
		projectB: projectB,
	}
}

func (h *harness) token(userID string) string {
	h.t.Helper()
	token, err := identity.IssueToken(testSecret, types.Identity{UserID: userID, Email: userID + "@example.com"}, time.Hour)
	require.NoError(h.t, err)
	return token
}

// dial attempts a handshake and returns the body of a rejected one.
func (h *harness) dial(projectID, token string, header http.Header) (*websocket.Conn, int, string) {
	h.t.Helper()

	target := "ws://" + h.addr + "/ws?projectId=" + projectID
	if token != "" {
		target += "&token=" + token
	}

	conn, resp, err := websocket.DefaultDialer.Dial(target, header)
	if err != nil {
		require.NotNil(h.t, resp, "handshake failed without a response: %v", err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, strings.TrimSpace(string(body))
	}
	h.t.Cleanup(func() { _ = conn.Close() })
	return conn, resp.StatusCode, ""
}

// join dials and waits until the room reports the new member.
func (h *harness) join(projectID, userID string) *websocket.Conn {
	h.t.Helper()
	before := h.roomSize(projectID)

	conn, status, body := h.dial(projectID, h.token(userID), nil)
	require.NotNil(h.t, conn, "join rejected: %d %s", status, body)

	require.Eventually(h.t, func() bool {
		return h.roomSize(projectID) == before+1
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func (h *harness) roomSize(projectID string) int {
	h.t.Helper()

	req, err := http.NewRequest(http.MethodGet, "http://"+h.addr+"/api/rooms/"+projectID, nil)
	require.NoError(h.t, err)
	req.Header.Set("Authorization", "Bearer "+h.token("observer"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	require.Equal(h.t, http.StatusOK, resp.StatusCode)

	var room struct {
		MemberCount int `json:"member_count"`
	}
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&room))
	return room.MemberCount
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func receive(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func receiveJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(receive(t, conn), &v))
	return v
}

// expectSilence fails if conn receives anything within d. The connection
// is unusable for reads afterwards, gorilla treats a deadline as fatal.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}
