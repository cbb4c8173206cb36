package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookshelf/internal/util"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

const downloadURLExpiry = 15 * time.Minute

// BookInput carries the client-supplied fields for creating or updating a
// catalog entry.
type BookInput struct {
	Title            string
	Author           string
	Description      string
	Genres           []string
	Pages            int
	PublishedYear    int
	Language         string
	Publisher        string
	ISBN             string
	CoverKey         string
	EbookKey         string
	OriginalFilename string
	SizeBytes        int64
}

// CreateBook adds a catalog entry owned by the given user.
func (a *App) CreateBook(userID string, in BookInput) (domain.Book, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Book{}, validationErr("title", "required")
	}
	if in.Pages < 0 {
		return domain.Book{}, validationErr("pages", "must not be negative")
	}
	now := time.Now().UTC()
	book := domain.Book{
		ID:               util.NewID(),
		OwnerID:          userID,
		Title:            strings.TrimSpace(in.Title),
		Author:           strings.TrimSpace(in.Author),
		Description:      in.Description,
		Genres:           in.Genres,
		Pages:            in.Pages,
		PublishedYear:    in.PublishedYear,
		Language:         in.Language,
		Publisher:        in.Publisher,
		ISBN:             in.ISBN,
		CoverKey:         in.CoverKey,
		EbookKey:         in.EbookKey,
		OriginalFilename: in.OriginalFilename,
		SizeBytes:        in.SizeBytes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// GetBook fetches one catalog entry.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// ListBooks returns a filtered catalog page plus the total match count.
func (a *App) ListBooks(q store.BookQuery) ([]domain.Book, int64, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 12
	}
	return a.store.ListBooks(q)
}

// FeaturedBooks returns the newest catalog entries for the landing page.
func (a *App) FeaturedBooks() ([]domain.Book, error) {
	return a.store.FeaturedBooks(5)
}

// UpdateBook applies client changes to an owned catalog entry.
func (a *App) UpdateBook(userID, bookID string, in BookInput) (domain.Book, error) {
	book, err := a.GetBook(bookID)
	if err != nil {
		return domain.Book{}, err
	}
	if err := a.requireOwner(userID, book.OwnerID); err != nil {
		return domain.Book{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Book{}, validationErr("title", "required")
	}
	if in.Pages < 0 {
		return domain.Book{}, validationErr("pages", "must not be negative")
	}
	book.Title = strings.TrimSpace(in.Title)
	book.Author = strings.TrimSpace(in.Author)
	book.Description = in.Description
	book.Genres = in.Genres
	book.Pages = in.Pages
	book.PublishedYear = in.PublishedYear
	book.Language = in.Language
	book.Publisher = in.Publisher
	book.ISBN = in.ISBN
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a book, its reviews and progress records, and its
// stored objects. Object deletion failures are logged, not surfaced: the
// catalog entry is already gone.
func (a *App) DeleteBook(ctx context.Context, userID, bookID string) error {
	book, err := a.GetBook(bookID)
	if err != nil {
		return err
	}
	if err := a.requireOwner(userID, book.OwnerID); err != nil {
		return err
	}
	if err := a.store.DeleteBook(bookID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if a.objects != nil {
		logger := util.LoggerFromContext(ctx)
		for _, key := range []string{book.EbookKey, book.CoverKey} {
			if key == "" {
				continue
			}
			if err := a.objects.Delete(ctx, key); err != nil {
				logger.Warn("object_delete_failed", "key", key, "error", err.Error())
			}
		}
	}
	return nil
}

// DownloadURL returns a short-lived pre-signed URL for the stored ebook.
func (a *App) DownloadURL(ctx context.Context, bookID string) (string, error) {
	book, err := a.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if book.EbookKey == "" || a.objects == nil {
		return "", ErrBookNotFound
	}
	url, err := a.objects.PresignGet(ctx, book.EbookKey, downloadURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

// CoverData streams the stored cover JPEG for a book.
func (a *App) CoverData(ctx context.Context, bookID string) ([]byte, error) {
	book, err := a.GetBook(bookID)
	if err != nil {
		return nil, err
	}
	if book.CoverKey == "" || a.objects == nil {
		return nil, ErrCoverNotFound
	}
	rc, err := a.objects.Get(ctx, book.CoverKey)
	if err != nil {
		return nil, ErrCoverNotFound
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	return data, nil
}

// UploadResult is what the client needs to seed a catalog entry after an
// ebook upload: the storage keys plus whatever metadata extraction produced.
type UploadResult struct {
	Key              string                    `json:"key"`
	CoverKey         string                    `json:"coverKey,omitempty"`
	OriginalFilename string                    `json:"originalFilename"`
	SizeBytes        int64                     `json:"sizeBytes"`
	Metadata         *domain.ExtractedMetadata `json:"metadata"`
}

// Upload stores the ebook in object storage and extracts catalog metadata
// from it. The two run concurrently; extraction failures never fail the
// upload, but a failed object write does.
func (a *App) Upload(ctx context.Context, filename string, data []byte) (UploadResult, error) {
	filename = sanitizeFilename(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := a.allowedExtensions[ext]; !ok {
		return UploadResult{}, validationErr("file", fmt.Sprintf("unsupported file type %q", ext))
	}
	if int64(len(data)) > a.maxUploadBytes {
		return UploadResult{}, validationErr("file", fmt.Sprintf("exceeds the %d byte upload limit", a.maxUploadBytes))
	}
	if len(data) == 0 {
		return UploadResult{}, validationErr("file", "empty upload")
	}
	if a.objects == nil {
		return UploadResult{}, fmt.Errorf("object storage not configured")
	}

	uploadID := util.NewID()
	ebookKey := fmt.Sprintf("books/%s/%s", uploadID, filename)
	coverKey := fmt.Sprintf("covers/%s.jpg", uploadID)

	var meta *domain.ExtractedMetadata
	var coverStored bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.objects.Put(gctx, ebookKey, bytes.NewReader(data), int64(len(data)), contentTypeFor(ext))
	})
	g.Go(func() error {
		extracted, err := a.extractor.Extract(gctx, data, filename)
		if err != nil {
			// The extractor chain never fails, but guard anyway.
			return nil
		}
		meta = extracted
		if len(extracted.Cover) == 0 {
			return nil
		}
		putErr := a.objects.Put(gctx, coverKey, bytes.NewReader(extracted.Cover), int64(len(extracted.Cover)), "image/jpeg")
		if putErr != nil {
			util.LoggerFromContext(ctx).Warn("cover_store_failed", "key", coverKey, "error", putErr.Error())
			return nil
		}
		coverStored = true
		return nil
	})
	if err := g.Wait(); err != nil {
		return UploadResult{}, fmt.Errorf("store upload: %w", err)
	}

	result := UploadResult{
		Key:              ebookKey,
		OriginalFilename: filename,
		SizeBytes:        int64(len(data)),
		Metadata:         meta,
	}
	if coverStored {
		result.CoverKey = coverKey
	}
	return result, nil
}

func (a *App) requireOwner(userID, ownerID string) error {
	if userID == ownerID {
		return nil
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err == nil && ok && user.Role == domain.RoleAdmin {
		return nil
	}
	return ErrNotOwner
}

// sanitizeFilename keeps only the base name and strips characters that have
// no business in an object key.
func sanitizeFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".epub":
		return "application/epub+zip"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
