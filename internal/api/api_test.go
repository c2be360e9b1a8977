package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/lorekeeper/internal/archive"
	"github.com/starford/lorekeeper/internal/chat"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/ratelimit"
	"github.com/starford/lorekeeper/internal/sse"
	"github.com/starford/lorekeeper/internal/store"
	"github.com/starford/lorekeeper/internal/testutil"
)

type env struct {
	db     *store.DB
	router http.Handler
}

func testEnv(t *testing.T, auth AuthConfig, limiter func(*store.DB) *ratelimit.Limiter) env {
	t.Helper()
	db := testutil.TestDB(t)
	svc := archive.NewService(db)
	deps := Deps{
		Archive: svc,
		Chat:    chat.New(db, svc),
		Agents:  db,
	}
	if limiter != nil {
		deps.Limiter = limiter(db)
	}
	return env{db: db, router: NewRouter(deps, auth)}
}

var openAuth = AuthConfig{Mode: AuthDisabled, DefaultUser: "local"}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateAndGetEntry(t *testing.T) {
	e := testEnv(t, openAuth, nil)

	w := do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "Ada Lovelace", "body": "Math", "tags": []string{"People"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[CreateEntryResponse](t, w)
	if created.Slug != "ada-lovelace" || created.SlugAdjusted {
		t.Errorf("created = %+v", created)
	}

	w = do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "Ada Lovelace"})
	if got := decode[CreateEntryResponse](t, w); got.Slug != "ada-lovelace-2" || !got.SlugAdjusted {
		t.Errorf("second create = %+v", got)
	}

	w = do(t, e.router, http.MethodGet, "/entries/ada-lovelace?links=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[EntryDetail](t, w)
	if got.Entity != "Ada Lovelace" || len(got.Tags) != 1 || got.Tags[0] != "people" {
		t.Errorf("entry = %+v", got)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+got.Checksum+`"` {
		t.Errorf("etag = %q", etag)
	}
}

func TestCreateValidation(t *testing.T) {
	e := testEnv(t, openAuth, nil)
	w := do(t, e.router, http.MethodPost, "/entries", map[string]any{"body": "no entity"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decode[errResponse](t, w)
	if _, ok := body.Fields["entity"]; !ok {
		t.Errorf("fields = %v", body.Fields)
	}

	w = do(t, e.router, http.MethodPost, "/entries", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	e := testEnv(t, openAuth, nil)
	do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "Lock", "body": "v1"})
	w := do(t, e.router, http.MethodGet, "/entries/lock", nil)
	etag := w.Header().Get("ETag")

	w = do(t, e.router, http.MethodPatch, "/entries/lock", map[string]any{"body": "v2"}, "If-Match", `"stale"`)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update = %d, want 409", w.Code)
	}
	w = do(t, e.router, http.MethodPatch, "/entries/lock", map[string]any{"body": "v2", "addTags": []string{"x"}}, "If-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[EntryDetail](t, w); got.Body != "v2" || len(got.Tags) != 1 {
		t.Errorf("updated = %+v", got)
	}

	w = do(t, e.router, http.MethodPatch, "/entries/missing", map[string]any{"body": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing update = %d, want 404", w.Code)
	}
}

func TestEditsLinksAndDelete(t *testing.T) {
	e := testEnv(t, openAuth, nil)
	do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "A", "body": "hello world"})
	do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "B"})

	w := do(t, e.router, http.MethodPost, "/entries/a/edits", map[string]any{
		"edits": []map[string]string{{"mode": "replace", "target": "world", "text": "there"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("edits = %d: %s", w.Code, w.Body.String())
	}
	edited := decode[ApplyEditsResponse](t, w)
	if !edited.Updated || edited.AppliedEdits != 1 || !strings.Contains(edited.Diff, "+hello there") {
		t.Errorf("edits = %+v", edited)
	}

	w = do(t, e.router, http.MethodPost, "/links", map[string]any{"sourceSlug": "a", "targetSlug": "b"})
	if w.Code != http.StatusCreated {
		t.Fatalf("link = %d: %s", w.Code, w.Body.String())
	}
	w = do(t, e.router, http.MethodPost, "/links", map[string]any{"sourceSlug": "a", "targetSlug": "a"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self link = %d, want 400", w.Code)
	}

	w = do(t, e.router, http.MethodDelete, "/entries/a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if got := decode[map[string]any](t, w); got["removedLinks"] != float64(1) {
		t.Errorf("delete = %v", got)
	}
	w = do(t, e.router, http.MethodGet, "/entries/a", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d", w.Code)
	}
}

func TestSearchPagination(t *testing.T) {
	e := testEnv(t, openAuth, nil)
	for _, name := range []string{"One", "Two", "Three"} {
		do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": name})
	}
	w := do(t, e.router, http.MethodGet, "/entries?limit=2", nil)
	page := decode[archive.SearchResult](t, w)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("page 1 = %+v", page)
	}
	w = do(t, e.router, http.MethodGet, "/entries?limit=2&cursor="+page.NextCursor, nil)
	page = decode[archive.SearchResult](t, w)
	if len(page.Items) != 1 || page.NextCursor != "" {
		t.Errorf("page 2 = %+v", page)
	}
	w = do(t, e.router, http.MethodGet, "/entries?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", w.Code)
	}
}

func TestPinsAndSystemPrompt(t *testing.T) {
	e := testEnv(t, openAuth, nil)
	do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "Ada", "body": "Prefers tea."})

	w := do(t, e.router, http.MethodPut, "/chats/c1/pins/ada", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pin = %d: %s", w.Code, w.Body.String())
	}
	w = do(t, e.router, http.MethodPost, "/chats/c1/system-prompt", map[string]any{"requestHints": map[string]string{"city": "Paris"}})
	if w.Code != http.StatusOK {
		t.Fatalf("prompt = %d: %s", w.Code, w.Body.String())
	}
	p := decode[chat.Prompt](t, w)
	if !strings.Contains(p.Text, "Prefers tea.") || !strings.Contains(p.Text, "City: Paris") || p.Pinned != 1 {
		t.Errorf("prompt = %q", p.Text)
	}

	w = do(t, e.router, http.MethodDelete, "/chats/c1/pins", nil)
	if got := decode[map[string]int](t, w); got["removed"] != 1 {
		t.Errorf("clear = %v", got)
	}
}

func TestAgentPromptOverride(t *testing.T) {
	e := testEnv(t, openAuth, nil)
	ctx := context.Background()
	if err := e.db.UpsertAgent(ctx, models.Agent{ID: "coach", Name: "Coach"}); err != nil {
		t.Fatal(err)
	}

	w := do(t, e.router, http.MethodPut, "/agents/coach/prompt", map[string]any{
		"mode":   "REPLACE",
		"blocks": []map[string]any{{"template": "Be brief."}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", w.Code, w.Body.String())
	}
	a := decode[AgentDetail](t, w)
	if !a.Custom || a.Prompt.Mode != "replace" || a.Prompt.Blocks[0].ID != "block-1" {
		t.Errorf("agent = %+v", a)
	}

	w = do(t, e.router, http.MethodPost, "/chats/c1/system-prompt", map[string]any{"agentId": "coach"})
	if p := decode[chat.Prompt](t, w); p.Text != "Be brief." {
		t.Errorf("prompt = %q", p.Text)
	}

	w = do(t, e.router, http.MethodPut, "/agents/coach/prompt", map[string]any{"blocks": []any{}})
	if a := decode[AgentDetail](t, w); a.Custom {
		t.Errorf("default config should clear the override: %+v", a)
	}
	stored, _ := e.db.Agent(ctx, "coach")
	if stored.PromptConfig != nil {
		t.Errorf("stored = %q, want NULL", stored.PromptConfig)
	}

	w = do(t, e.router, http.MethodPut, "/agents/ghost/prompt", map[string]any{})
	if w.Code != http.StatusNotFound {
		t.Errorf("ghost = %d, want 404", w.Code)
	}
}

func TestAuthTokenMode(t *testing.T) {
	e := testEnv(t, AuthConfig{Mode: AuthToken, Tokens: map[string]string{"s3cret": "alice", "other": "bob"}}, nil)

	w := do(t, e.router, http.MethodGet, "/entries", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	w = do(t, e.router, http.MethodGet, "/entries", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "Private"}, "Authorization", "Bearer s3cret")
	w = do(t, e.router, http.MethodGet, "/entries/private", nil, "Authorization", "Bearer other")
	if w.Code != http.StatusNotFound {
		t.Errorf("cross-user read = %d, want 404", w.Code)
	}
	w = do(t, e.router, http.MethodGet, "/entries/private", nil, "Authorization", "Bearer s3cret")
	if w.Code != http.StatusOK {
		t.Errorf("owner read = %d", w.Code)
	}
}

func TestAuthDisabledUsesHeaderOrDefault(t *testing.T) {
	e := testEnv(t, openAuth, nil)
	do(t, e.router, http.MethodPost, "/entries", map[string]any{"entity": "Mine"}, UserHeader, "carol")
	if w := do(t, e.router, http.MethodGet, "/entries/mine", nil); w.Code != http.StatusNotFound {
		t.Errorf("default user sees carol's entry: %d", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/entries/mine", nil, UserHeader, "carol"); w.Code != http.StatusOK {
		t.Errorf("carol read = %d", w.Code)
	}

	noDefault := testEnv(t, AuthConfig{Mode: AuthDisabled}, nil)
	if w := do(t, noDefault.router, http.MethodGet, "/entries", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no identity = %d, want 401", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := ratelimit.Config{Capacity: 2, RefillAmount: 1, Interval: time.Hour}
	e := testEnv(t, openAuth, func(db *store.DB) *ratelimit.Limiter {
		return ratelimit.New(cfg, db.Buckets())
	})

	for i, want := range []string{"1", "0"} {
		w := do(t, e.router, http.MethodGet, "/entries", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Errorf("remaining = %q, want %q", got, want)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("limit = %q", got)
		}
	}
	w := do(t, e.router, http.MethodGet, "/entries", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	if w := do(t, e.router, http.MethodGet, "/entries", nil, UserHeader, "someone-else"); w.Code != http.StatusOK {
		t.Errorf("buckets are per user: %d", w.Code)
	}
}

func TestEventsRoute(t *testing.T) {
	db := testutil.TestDB(t)
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	svc := archive.NewService(db, archive.WithNotifier(broker))
	router := NewRouter(Deps{Archive: svc, Chat: chat.New(db, svc), Agents: db, Events: broker}, openAuth)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for broker.ClientCount("local") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	do(t, router, http.MethodPost, "/entries", map[string]any{"entity": "Live"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.Body.String(), "event: entry.created") {
		t.Errorf("stream = %q", w.Body.String())
	}
}
