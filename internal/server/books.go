package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bookshelf/internal/app"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r)
	case http.MethodPost:
		s.authenticated(s.handleCreateBook).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := store.BookQuery{
		Genre:  strings.TrimSpace(r.URL.Query().Get("genre")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Sort:   strings.TrimSpace(r.URL.Query().Get("sort")),
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 12
	}
	books, total, err := s.app.ListBooks(q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Book]{
		Items: books,
		Total: total,
		Page:  q.Page,
		Limit: q.Limit,
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req bookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	book, err := s.app.CreateBook(user.ID, req.toInput())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleFeaturedBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.FeaturedBooks()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/books/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "":
		// fallthrough to the per-book methods below
	case "download":
		s.authenticated(func(w http.ResponseWriter, r *http.Request, _ domain.User) {
			s.handleDownloadBook(w, r, id)
		}).ServeHTTP(w, r)
		return
	default:
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			var req bookRequest
			if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			book, err := s.app.UpdateBook(user.ID, id, req.toInput())
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, book)
		}).ServeHTTP(w, r)
	case http.MethodDelete:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			if err := s.app.DeleteBook(r.Context(), user.ID, id); err != nil {
				writeAppError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDownloadBook(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, err := s.app.DownloadURL(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/covers/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	data, err := s.app.CoverData(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}
	result, err := s.app.Upload(r.Context(), header.Filename, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func queryInt(r *http.Request, key string) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

type bookRequest struct {
	Title            string   `json:"title"`
	Author           string   `json:"author"`
	Description      string   `json:"description"`
	Genres           []string `json:"genres"`
	Pages            int      `json:"pages"`
	PublishedYear    int      `json:"publishedYear"`
	Language         string   `json:"language"`
	Publisher        string   `json:"publisher"`
	ISBN             string   `json:"isbn"`
	CoverKey         string   `json:"coverKey"`
	EbookKey         string   `json:"ebookKey"`
	OriginalFilename string   `json:"originalFilename"`
	SizeBytes        int64    `json:"sizeBytes"`
}

func (req bookRequest) toInput() app.BookInput {
	return app.BookInput{
		Title:            req.Title,
		Author:           req.Author,
		Description:      req.Description,
		Genres:           req.Genres,
		Pages:            req.Pages,
		PublishedYear:    req.PublishedYear,
		Language:         req.Language,
		Publisher:        req.Publisher,
		ISBN:             req.ISBN,
		CoverKey:         req.CoverKey,
		EbookKey:         req.EbookKey,
		OriginalFilename: req.OriginalFilename,
		SizeBytes:        req.SizeBytes,
	}
}
