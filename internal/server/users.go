package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"bookshelf/internal/app"
	"bookshelf/pkg/domain"
)

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	user, err := s.app.GetUser(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicProfile{
		ID:             user.ID,
		Username:       user.Username,
		Bio:            user.Bio,
		Avatar:         user.Avatar,
		FavoriteGenres: user.FavoriteGenres,
		CreatedAt:      user.CreatedAt,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req profileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := s.app.UpdateProfile(user.ID, app.ProfileUpdate{
		Username:       req.Username,
		Bio:            req.Bio,
		Avatar:         req.Avatar,
		FavoriteGenres: req.FavoriteGenres,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var status domain.ReadingStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, ok := domain.ParseReadingStatus(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid reading status", "field": "status"})
			return
		}
		status = parsed
	}
	items, err := s.app.Library(user.ID, status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleLibraryBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	bookID := strings.TrimPrefix(r.URL.Path, "/api/library/")
	if bookID == "" || strings.Contains(bookID, "/") {
		http.NotFound(w, r)
		return
	}
	var req progressRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	upd := app.ProgressUpdate{
		CurrentPage: req.CurrentPage,
		Note:        req.Note,
		Highlight:   req.Highlight,
	}
	if req.Status != nil {
		status, ok := domain.ParseReadingStatus(*req.Status)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid reading status", "field": "status"})
			return
		}
		upd.Status = &status
	}
	progress, err := s.app.UpsertProgress(user.ID, bookID, upd)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type publicProfile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Bio            string    `json:"bio,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	FavoriteGenres []string  `json:"favoriteGenres,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type profileRequest struct {
	Username       *string   `json:"username"`
	Bio            *string   `json:"bio"`
	Avatar         *string   `json:"avatar"`
	FavoriteGenres *[]string `json:"favoriteGenres"`
}

type progressRequest struct {
	Status      *string           `json:"status"`
	CurrentPage *int              `json:"currentPage"`
	Note        *domain.Note      `json:"note"`
	Highlight   *domain.Highlight `json:"highlight"`
}
