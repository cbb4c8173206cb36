package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"bookshelf/internal/app"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListReviews(w, r)
	case http.MethodPost:
		s.authenticated(s.handleCreateReview).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	q := store.ReviewQuery{
		BookID: strings.TrimSpace(r.URL.Query().Get("bookId")),
		UserID: strings.TrimSpace(r.URL.Query().Get("userId")),
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := domain.ParseReviewStatus(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid review status", "field": "status"})
			return
		}
		q.Status = status
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 10
	}
	reviews, total, err := s.app.ListReviews(q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.ReviewWithRefs]{
		Items: reviews,
		Total: total,
		Page:  q.Page,
		Limit: q.Limit,
	})
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request, user domain.User) {
	req, ok := decodeReviewRequest(w, r)
	if !ok {
		return
	}
	review, err := s.app.CreateReview(user.ID, req.toInput())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) handleFeaturedReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reviews, err := s.app.FeaturedReviews()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": reviews,
		"count": len(reviews),
	})
}

func (s *Server) handleReviewByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/reviews/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "":
	case "like":
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			review, err := s.app.ToggleLike(user.ID, id)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, likeResponse{
				Review:   review,
				HasLiked: app.HasLiked(review.Review, user.ID),
			})
		}).ServeHTTP(w, r)
		return
	default:
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		review, err := s.app.GetReview(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, review)
	case http.MethodPut:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			req, ok := decodeReviewRequest(w, r)
			if !ok {
				return
			}
			review, err := s.app.UpdateReview(user.ID, id, req.toInput())
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, review)
		}).ServeHTTP(w, r)
	case http.MethodDelete:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			if err := s.app.DeleteReview(user.ID, id); err != nil {
				writeAppError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func decodeReviewRequest(w http.ResponseWriter, r *http.Request) (reviewRequest, bool) {
	var req reviewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return reviewRequest{}, false
	}
	if req.Status != "" {
		if _, ok := domain.ParseReviewStatus(req.Status); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid review status", "field": "status"})
			return reviewRequest{}, false
		}
	}
	return req, true
}

type reviewRequest struct {
	BookID    string `json:"bookId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Rating    int    `json:"rating"`
	IsSpoiler bool   `json:"isSpoiler"`
	Status    string `json:"status"`
}

func (req reviewRequest) toInput() app.ReviewInput {
	status, _ := domain.ParseReviewStatus(req.Status)
	return app.ReviewInput{
		BookID:    req.BookID,
		Title:     req.Title,
		Content:   req.Content,
		Rating:    req.Rating,
		IsSpoiler: req.IsSpoiler,
		Status:    status,
	}
}

type likeResponse struct {
	Review   domain.ReviewWithRefs `json:"review"`
	HasLiked bool                  `json:"hasLiked"`
}
