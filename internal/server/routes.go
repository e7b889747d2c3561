package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/zsiec/ndikit/internal/directory"
	apperrors "github.com/zsiec/ndikit/internal/errors"
	"github.com/zsiec/ndikit/pkg/ndi"
	"github.com/zsiec/ndikit/pkg/version"
)

// RuntimeResponse is served at /api/v1/runtime.
type RuntimeResponse struct {
	Version      string `json:"version,omitempty"`
	SupportedCPU bool   `json:"supported_cpu"`
	Running      bool   `json:"running"`
}

// SourcesResponse is served at /api/v1/sources.
type SourcesResponse struct {
	Sources     []directory.Entry `json:"sources"`
	Count       int               `json:"count"`
	LastRefresh *time.Time        `json:"last_refresh,omitempty"`
}

// handleVersion handles the /version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, r, http.StatusOK, version.GetInfo())
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runtime == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("ndi runtime"))
		return
	}
	resp := RuntimeResponse{
		SupportedCPU: s.deps.Runtime.IsSupportedCPU(),
		Running:      s.deps.Runtime.IsRunning(),
	}
	if v, err := s.deps.Runtime.Version(); err == nil {
		resp.Version = v
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sources == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("discovery"))
		return
	}
	last := s.deps.Sources.LastRefresh()
	sources := s.deps.Sources.Sources()

	resp := SourcesResponse{Sources: make([]directory.Entry, 0, len(sources)), Count: len(sources)}
	for _, src := range sources {
		resp.Sources = append(resp.Sources, directory.NewEntry(src, last))
	}
	if !last.IsZero() {
		resp.LastRefresh = &last
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, directory.NewEntry(src, s.deps.Sources.LastRefresh()))
}

// handleSnapshot serves a still of the source. Query parameters:
// format (png, jpeg or jpg; default png) and quality (1-100, JPEG only).
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("snapshot"))
		return
	}

	query := r.URL.Query()
	format, err := ndi.ParseImageFormat(query.Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quality := 0
	if q := query.Get("quality"); q != "" {
		quality, err = strconv.Atoi(q)
		if err != nil || quality < 1 || quality > 100 {
			s.writeError(w, r, apperrors.NewValidationError("quality must be an integer between 1 and 100").
				WithDetails(map[string]interface{}{"quality": q}))
			return
		}
	}

	img, err := s.deps.Snapshots.Capture(r.Context(), mux.Vars(r)["name"], format, quality)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Width", strconv.Itoa(img.Width))
	w.Header().Set("X-Frame-Height", strconv.Itoa(img.Height))
	w.Header().Set("Last-Modified", img.CapturedAt.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		s.logger.WithError(err).Debug("Failed to write snapshot")
	}
}

func (s *Server) handleSourceStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("snapshot"))
		return
	}
	status, err := s.deps.Snapshots.Status(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, status)
}

// lookup resolves the {name} route variable, answering 404 or 503
// itself when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (ndi.Source, bool) {
	if s.deps.Sources == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("discovery"))
		return ndi.Source{}, false
	}
	name := mux.Vars(r)["name"]
	src, ok := s.deps.Sources.Lookup(name)
	if !ok {
		s.writeError(w, r, apperrors.NewNotFoundError("source").WithDetails(map[string]interface{}{"name": name}))
		return ndi.Source{}, false
	}
	return src, true
}

// writeJSON is a helper to write JSON responses
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Failed to encode response")
	}
}

// writeError is a helper to write error responses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, err)
}
