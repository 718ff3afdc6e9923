package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/service"
	"github.com/odvcencio/codehub/internal/storage"
)

type apiEnv struct {
	server *Server
	dbPath string
}

func setupAPITest(t *testing.T, opts ServerOptions) *apiEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "api.db")
	db, err := database.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	blobs, err := storage.NewLocalBackend(filepath.Join(dir, "assets"))
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	authSvc := auth.NewService("api-test-secret-0123456789", time.Hour)
	svc := service.New(db, authSvc, blobs, nil)
	reg := prometheus.NewRegistry()
	opts.Registerer = reg
	opts.Gatherer = reg
	server := NewServer(db, authSvc, svc, opts)
	t.Cleanup(server.Close)
	return &apiEnv{server: server, dbPath: dbPath}
}

// do sends a request from the loopback address. token may be a session JWT or
// a "token <pat>" header value.
func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:5000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case token == "":
	case strings.HasPrefix(token, "token "):
		req.Header.Set("Authorization", token)
	default:
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) register(t *testing.T, username string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatalf("register %s: empty token", username)
	}
	return resp.Token
}

func (e *apiEnv) createRepo(t *testing.T, token, name string, private bool) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{"name": name, "private": private})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create repo %s: expected 201, got %d: %s", name, rec.Code, rec.Body.String())
	}
}

// push records n commits with sequential shas starting at start.
func (e *apiEnv) push(t *testing.T, token, repoPath, branch string, start, n int) {
	t.Helper()
	commits := make([]map[string]any, 0, n)
	for i := start; i < start+n; i++ {
		c := map[string]any{
			"sha":          testSHA(i),
			"message":      fmt.Sprintf("commit %d", i),
			"author_name":  "tester",
			"author_email": "tester@example.com",
			"committed_at": time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		}
		if i > start {
			c["parent_shas"] = []string{testSHA(i - 1)}
		}
		commits = append(commits, c)
	}
	rec := e.do(t, http.MethodPost, "/api/v1/repos/"+repoPath+"/push", token, map[string]any{
		"branch":  branch,
		"commits": commits,
		"files":   []map[string]any{{"path": "README.md", "size": 12, "sha": testSHA(100 + start)}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("push %s: expected 200, got %d: %s", branch, rec.Code, rec.Body.String())
	}
}

func testSHA(n int) string {
	return fmt.Sprintf("%040x", n)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestRegisterLoginAndCurrentUser(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	token := env.register(t, "alice")

	rec := env.do(t, http.MethodGet, "/api/v1/user", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var me map[string]any
	decodeBody(t, rec, &me)
	if me["username"] != "alice" {
		t.Fatalf("expected username alice, got %v", me["username"])
	}
	if _, leaked := me["password_hash"]; leaked {
		t.Fatal("password hash must not be serialized")
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse-battery",
	})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "correct-horse-battery",
	})
	expectStatus(t, rec, http.StatusConflict)

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/user", "", nil), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/user", "not-a-jwt", nil), http.StatusUnauthorized)
}

func TestPrivateRepositoryIsHiddenFromOutsiders(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.createRepo(t, alice, "secret", true)

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/secret", alice, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/secret", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/secret", bob, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/repos/alice/secret/star", bob, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/secret/issues", bob, nil), http.StatusNotFound)

	var repos []map[string]any
	rec := env.do(t, http.MethodGet, "/api/v1/users/alice/repos", bob, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &repos)
	if len(repos) != 0 {
		t.Fatalf("expected private repo to be filtered, got %d repos", len(repos))
	}

	rec = env.do(t, http.MethodPut, "/api/v1/repos/alice/secret/collaborators/bob", alice, map[string]string{"permission": "read"})
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/secret", bob, nil), http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/v1/repos/alice/secret/permission", bob, nil)
	expectStatus(t, rec, http.StatusOK)
	var perm map[string]string
	decodeBody(t, rec, &perm)
	if perm["permission"] != "read" {
		t.Fatalf("expected read permission, got %q", perm["permission"])
	}
	expectStatus(t, env.do(t, http.MethodPatch, "/api/v1/repos/alice/secret", bob, map[string]any{"description": "x"}), http.StatusForbidden)
}

func TestStarToggleUpdatesCounter(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.createRepo(t, alice, "hello", false)

	rec := env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/star/toggle", bob, nil)
	expectStatus(t, rec, http.StatusOK)
	var status starStatusResponse
	decodeBody(t, rec, &status)
	if !status.Starred {
		t.Fatal("expected first toggle to star")
	}

	var repo map[string]any
	rec = env.do(t, http.MethodGet, "/api/v1/repos/alice/hello", "", nil)
	decodeBody(t, rec, &repo)
	if repo["stars_count"] != float64(1) {
		t.Fatalf("expected stars_count 1, got %v", repo["stars_count"])
	}

	// Star and unstar are idempotent.
	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/repos/alice/hello/star", bob, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/repos/alice/hello/star", bob, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/repos/alice/hello/star", bob, nil), http.StatusNoContent)

	rec = env.do(t, http.MethodGet, "/api/v1/repos/alice/hello", "", nil)
	decodeBody(t, rec, &repo)
	if repo["stars_count"] != float64(0) {
		t.Fatalf("expected stars_count 0, got %v", repo["stars_count"])
	}
}

func TestFollowEndpoints(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	env.register(t, "bob")

	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/user/following/bob", alice, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/user/following/alice", alice, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users/alice/following/bob", "", nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users/bob/following/alice", "", nil), http.StatusNotFound)

	var followers []map[string]any
	rec := env.do(t, http.MethodGet, "/api/v1/users/bob/followers", "", nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &followers)
	if len(followers) != 1 || followers[0]["username"] != "alice" {
		t.Fatalf("expected alice as only follower, got %v", followers)
	}
}

func TestAccessTokenScopes(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	session := env.register(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/v1/user/tokens", session, map[string]any{
		"name":   "ci",
		"scopes": []string{"read"},
	})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &created)
	if !strings.HasPrefix(created.Token, auth.AccessTokenPrefix) {
		t.Fatalf("expected token with prefix %q, got %q", auth.AccessTokenPrefix, created.Token)
	}
	pat := "token " + created.Token

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/user", pat, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos", pat, map[string]any{"name": "nope"}), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/auth/refresh", created.Token, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/user", "token chp_unknown", nil), http.StatusUnauthorized)

	rec = env.do(t, http.MethodPost, "/api/v1/user/tokens", session, map[string]any{"name": "bad", "expires_in": "soon"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestRateLimiterRejectsBurstButNotHealthz(t *testing.T) {
	env := setupAPITest(t, ServerOptions{RateLimitRPS: 0.001, RateLimitBurst: 2})

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users", "", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users", "", nil), http.StatusOK)
	rec := env.do(t, http.MethodGet, "/api/v1/users", "", nil)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
	expectStatus(t, env.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	env := setupAPITest(t, ServerOptions{MaxBodyBytes: 256})
	token := env.register(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/v1/repos", token, map[string]any{
		"name":        "big",
		"description": strings.Repeat("x", 1024),
	})
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
}

func TestOrganizationRepositoryFlow(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/orgs", alice, map[string]string{"name": "acme"}), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/orgs", alice, map[string]string{"name": "bob"}), http.StatusConflict)

	rec := env.do(t, http.MethodPost, "/api/v1/repos", alice, map[string]any{"name": "tools", "org": "acme", "private": true})
	expectStatus(t, rec, http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/acme/tools", bob, nil), http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/orgs/acme/members/bob", bob, map[string]string{"role": "member"}), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/orgs/acme/members/bob", alice, map[string]string{"role": "member"}), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/acme/tools", bob, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, "/api/v1/orgs/acme/members/bob", alice, map[string]string{"role": "admin"}), http.StatusNoContent)

	var members []map[string]any
	rec = env.do(t, http.MethodGet, "/api/v1/orgs/acme/members", "", nil)
	decodeBody(t, rec, &members)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/orgs/acme", alice, nil), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/repos/acme/tools", alice, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/orgs/acme", alice, nil), http.StatusNoContent)
}

func TestBranchesCommitsAndFiles(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	env.createRepo(t, alice, "hello", false)
	env.push(t, alice, "alice/hello", "main", 1, 3)

	var commits []map[string]any
	rec := env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/commits", "", nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &commits)
	if len(commits) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(commits))
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/commits/"+testSHA(2), "", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/commits/"+testSHA(9), "", nil), http.StatusNotFound)

	rec = env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/branches", alice, map[string]string{"name": "feature/x", "from": "main"})
	expectStatus(t, rec, http.StatusCreated)

	var branch map[string]any
	rec = env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/branches/feature/x", "", nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &branch)
	if branch["commit_sha"] != testSHA(3) {
		t.Fatalf("expected branch head %s, got %v", testSHA(3), branch["commit_sha"])
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/contents/README.md", "", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/contents/missing.txt", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/repos/alice/hello/branches/main", alice, nil), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/repos/alice/hello/branches/feature/x", alice, nil), http.StatusNoContent)
}

func TestReleaseAssetRoundTrip(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	env.createRepo(t, alice, "hello", false)
	env.push(t, alice, "alice/hello", "main", 1, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/releases", alice, map[string]any{"tag_name": "v1.0.0", "name": "First"})
	expectStatus(t, rec, http.StatusCreated)

	payload := "release payload"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/repos/alice/hello/releases/tags/v1.0.0/assets?name=app.tar.gz", strings.NewReader(payload))
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("Authorization", "Bearer "+alice)
	req.Header.Set("Content-Type", "application/gzip")
	upload := httptest.NewRecorder()
	env.server.ServeHTTP(upload, req)
	expectStatus(t, upload, http.StatusCreated)
	var asset map[string]any
	decodeBody(t, upload, &asset)
	id := int64(asset["id"].(float64))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/repos/alice/hello/releases/tags/v1.0.0/assets/%d", id), "", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Body.String(); got != payload {
		t.Fatalf("expected payload %q, got %q", payload, got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/gzip" {
		t.Fatalf("expected stored content type, got %q", got)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "app.tar.gz") {
		t.Fatalf("expected attachment filename, got %q", rec.Header().Get("Content-Disposition"))
	}

	expectStatus(t, env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/repos/alice/hello/releases/tags/v1.0.0/assets/%d", id), alice, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/repos/alice/hello/releases/tags/v1.0.0/assets/%d", id), "", nil), http.StatusNotFound)
}

func TestNotificationsEndpoints(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.createRepo(t, alice, "hello", false)

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/issues", bob, map[string]string{"title": "Bug"}), http.StatusCreated)

	rec := env.do(t, http.MethodGet, "/api/v1/notifications/count", alice, nil)
	expectStatus(t, rec, http.StatusOK)
	var count map[string]int
	decodeBody(t, rec, &count)
	if count["unread"] != 1 {
		t.Fatalf("expected 1 unread notification, got %d", count["unread"])
	}

	rec = env.do(t, http.MethodPut, "/api/v1/notifications/read", alice, nil)
	expectStatus(t, rec, http.StatusOK)

	var unread []map[string]any
	rec = env.do(t, http.MethodGet, "/api/v1/notifications?unread=true", alice, nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &unread)
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(unread))
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/notifications?unread=perhaps", alice, nil), http.StatusBadRequest)
}

func TestImportWithoutGitHubClientIsNotImplemented(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	token := env.register(t, "alice")
	rec := env.do(t, http.MethodPost, "/api/v1/admin/import", token, map[string]string{"source": "upstream/widget"})
	expectStatus(t, rec, http.StatusNotImplemented)
}
