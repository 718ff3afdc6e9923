package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestParseOptionalQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	value, ok := parseOptionalQueryBool(rec, req, "unread", true)
	if !ok || !value {
		t.Fatalf("expected fallback true, got value=%v ok=%v", value, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/?unread=false", nil)
	rec = httptest.NewRecorder()
	value, ok = parseOptionalQueryBool(rec, req, "unread", true)
	if !ok || value {
		t.Fatalf("expected explicit false, got value=%v ok=%v", value, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/?unread=maybe", nil)
	rec = httptest.NewRecorder()
	if _, ok := parseOptionalQueryBool(rec, req, "unread", false); ok {
		t.Fatal("expected invalid bool to fail")
	}
	assertJSONError(t, rec, http.StatusBadRequest, "invalid unread query parameter")
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query       string
		wantPage    int
		wantPerPage int
	}{
		{query: "", wantPage: 1, wantPerPage: 30},
		{query: "page=3&per_page=10", wantPage: 3, wantPerPage: 10},
		{query: "page=0&per_page=-5", wantPage: 1, wantPerPage: 30},
		{query: "page=abc&per_page=1000", wantPage: 1, wantPerPage: 100},
		{query: "page=" + strconv.Itoa(1<<31), wantPage: 1, wantPerPage: 30},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
			page, perPage := parsePagination(req)
			if page != tc.wantPage || perPage != tc.wantPerPage {
				t.Fatalf("parsePagination(%q) = (%d, %d), want (%d, %d)", tc.query, page, perPage, tc.wantPage, tc.wantPerPage)
			}
		})
	}
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	body := strings.NewReader(`{"title":"` + strings.Repeat("x", 64) + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 16)

	var dst struct {
		Title string `json:"title"`
	}
	if decodeJSON(rec, req, &dst) {
		t.Fatal("expected oversized body to fail")
	}
	assertJSONError(t, rec, http.StatusRequestEntityTooLarge, "request body too large")
}

func TestDecodeJSONAcceptsEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	var dst map[string]any
	if !decodeJSON(rec, req, &dst) {
		t.Fatalf("expected empty body to decode, got status %d", rec.Code)
	}
}

func TestParsePathPositiveInt64(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if _, ok := parsePathPositiveInt64(rec, req, "id", "webhook id"); ok {
		t.Fatal("expected missing path value to fail")
	}
	assertJSONError(t, rec, http.StatusBadRequest, "webhook id is required")

	for _, raw := range []string{"abc", "0", "-1", "9223372036854775808"} {
		t.Run("invalid_"+raw, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.SetPathValue("id", raw)
			rec := httptest.NewRecorder()
			if _, ok := parsePathPositiveInt64(rec, req, "id", "webhook id"); ok {
				t.Fatalf("expected invalid path value %q to fail", raw)
			}
			assertJSONError(t, rec, http.StatusBadRequest, "invalid webhook id")
		})
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("id", " 42 ")
	rec = httptest.NewRecorder()
	id, ok := parsePathPositiveInt64(rec, req, "id", "webhook id")
	if !ok {
		t.Fatal("expected valid path value to parse")
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
}

func assertJSONError(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantError string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("expected status %d, got %d", wantStatus, rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if got := body["error"]; got != wantError {
		t.Fatalf("expected error %q, got %q", wantError, got)
	}
}
