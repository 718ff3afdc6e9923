package api

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/odvcencio/codehub/internal/service"
)

func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	releases, err := s.svc.Releases.List(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, releases)
}

func (s *Server) handleCreateRelease(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.ReleaseInput
	if !decodeJSON(w, r, &req) {
		return
	}
	rel, err := s.svc.Releases.Create(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, rel)
}

func (s *Server) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	rel, err := s.svc.Releases.Get(r.Context(), r.PathValue("owner"), r.PathValue("repo"), r.PathValue("tag"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rel)
}

func (s *Server) handleUpdateRelease(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.ReleaseUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	rel, err := s.svc.Releases.Update(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("tag"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rel)
}

func (s *Server) handleDeleteRelease(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Releases.Delete(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("tag")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadReleaseAsset stores the raw request body as an asset named by
// ?name=. Content-Length is required so the blob store can stream it.
func (s *Server) handleUploadReleaseAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if r.ContentLength < 0 {
		jsonError(w, "Content-Length is required", http.StatusLengthRequired)
		return
	}
	q := r.URL.Query()
	in := service.AssetInput{
		Name:        q.Get("name"),
		Label:       q.Get("label"),
		ContentType: r.Header.Get("Content-Type"),
		Size:        r.ContentLength,
	}
	asset, err := s.svc.Releases.UploadAsset(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("tag"), in, r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, asset)
}

func (s *Server) handleDownloadReleaseAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "asset id")
	if !ok {
		return
	}
	asset, body, err := s.svc.Releases.DownloadAsset(r.Context(), r.PathValue("owner"), r.PathValue("repo"), r.PathValue("tag"), id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := asset.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(asset.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": asset.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("stream release asset", "asset_id", asset.ID, "error", err)
	}
}

func (s *Server) handleDeleteReleaseAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "asset id")
	if !ok {
		return
	}
	if err := s.svc.Releases.DeleteAsset(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("tag"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
