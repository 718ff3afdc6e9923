package api

import (
	"fmt"
	"net/http"
	"testing"
)

// setupPullRequest creates alice/hello with main and feature branches and
// opens pull request #1 from feature, authored by author.
func setupPullRequest(t *testing.T, env *apiEnv, alice, author string) {
	t.Helper()
	env.createRepo(t, alice, "hello", false)
	env.push(t, alice, "alice/hello", "main", 1, 1)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/branches", alice, map[string]string{"name": "feature", "from": "main"}), http.StatusCreated)
	env.push(t, alice, "alice/hello", "feature", 2, 2)

	rec := env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls", author, map[string]any{
		"title": "Add feature",
		"head":  "feature",
	})
	expectStatus(t, rec, http.StatusCreated)
}

func TestMergePullRequestIsOwnerOnlyAndTerminal(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	setupPullRequest(t, env, alice, bob)

	var pr map[string]any
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/pulls/1", "", nil), &pr)
	if pr["head_sha"] != testSHA(3) || pr["state"] != "open" {
		t.Fatalf("unexpected pull request %v", pr)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/merge", bob, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/merge", alice, map[string]string{"sha": testSHA(2)}), http.StatusConflict)

	rec := env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/merge", alice, map[string]string{"sha": testSHA(3)})
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &pr)
	if pr["state"] != "merged" || pr["merged_at"] == nil {
		t.Fatalf("expected merged pull request, got %v", pr)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/merge", alice, nil), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPatch, "/api/v1/repos/alice/hello/pulls/1", alice, map[string]string{"state": "closed"}), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPatch, "/api/v1/repos/alice/hello/pulls/1", alice, map[string]string{"state": "open"}), http.StatusConflict)
}

func TestPullRequestNumbersShareNothingWithIssues(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/issues", alice, map[string]string{"title": "x"}), http.StatusNotFound)
	env.createRepo(t, alice, "other", false)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/other/issues", alice, map[string]string{"title": "first issue"}), http.StatusCreated)

	setupPullRequest(t, env, alice, alice)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/issues", alice, map[string]string{"title": "first issue"}), http.StatusCreated)

	var issue map[string]any
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/issues/1", "", nil), &issue)
	if issue["title"] != "first issue" {
		t.Fatalf("expected issue #1 to be the issue, got %v", issue["title"])
	}
	var pr map[string]any
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/pulls/1", "", nil), &pr)
	if pr["title"] != "Add feature" {
		t.Fatalf("expected pull #1 to be the pull request, got %v", pr["title"])
	}
}

func TestCreatePullRequestValidatesBranches(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	env.createRepo(t, alice, "hello", false)
	env.push(t, alice, "alice/hello", "main", 1, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls", alice, map[string]any{"title": "x", "head": "missing"})
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing head to be rejected, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls", alice, map[string]any{"title": "x", "head": "main"})
	if rec.Code < 400 {
		t.Fatalf("expected head == base to be rejected, got %d", rec.Code)
	}
}

func TestReviewsOverHTTP(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	setupPullRequest(t, env, alice, bob)

	var reviewers []map[string]any
	rec := env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/requested_reviewers", alice, map[string]any{"reviewers": []string{"carol"}})
	expectStatus(t, rec, http.StatusCreated)
	decodeBody(t, rec, &reviewers)
	if len(reviewers) != 1 || reviewers[0]["username"] != "carol" {
		t.Fatalf("expected carol requested, got %v", reviewers)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/reviews", bob, map[string]string{"event": "approve"}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/reviews", carol, map[string]string{"event": "shrug"}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/reviews", carol, map[string]string{"event": "approve"}), http.StatusCreated)

	rec = env.do(t, http.MethodPost, "/api/v1/repos/alice/hello/pulls/1/reviews", bob, map[string]string{"body": "draft notes"})
	expectStatus(t, rec, http.StatusCreated)
	var pending map[string]any
	decodeBody(t, rec, &pending)
	if pending["state"] != "pending" {
		t.Fatalf("expected pending review, got %v", pending["state"])
	}
	pendingID := int64(pending["id"].(float64))

	var reviews []map[string]any
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/pulls/1/reviews", alice, nil), &reviews)
	if len(reviews) != 1 {
		t.Fatalf("expected pending review hidden from others, got %d reviews", len(reviews))
	}
	decodeBody(t, env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/pulls/1/reviews", bob, nil), &reviews)
	if len(reviews) != 2 {
		t.Fatalf("expected author to see own pending review, got %d reviews", len(reviews))
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/repos/alice/hello/pulls/1/reviews/%d/comments", pendingID), bob, map[string]any{
		"body": "nit", "path": "README.md", "line": 3,
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/repos/alice/hello/pulls/1/reviews/%d/events", pendingID), bob, map[string]string{"event": "comment", "body": "left notes"})
	expectStatus(t, rec, http.StatusOK)
	var submitted map[string]any
	decodeBody(t, rec, &submitted)
	if submitted["state"] != "commented" {
		t.Fatalf("expected commented review, got %v", submitted["state"])
	}
	expectStatus(t, env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/repos/alice/hello/pulls/1/reviews/%d/events", pendingID), bob, map[string]string{"event": "comment", "body": "again"}), http.StatusConflict)

	var comments []map[string]any
	rec = env.do(t, http.MethodGet, "/api/v1/repos/alice/hello/pulls/1/review-comments", "", nil)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &comments)
	if len(comments) != 1 {
		t.Fatalf("expected one review comment, got %d", len(comments))
	}
}
