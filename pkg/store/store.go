package store

import (
	"errors"
	"time"

	"bookshelf/pkg/domain"
)

// ErrDuplicate reports a uniqueness-constraint violation. Callers that can
// convert a lost creation race into an update (progress upserts) handle it
// locally; review creation surfaces it as "already reviewed".
var ErrDuplicate = errors.New("duplicate record")

// BookQuery filters and paginates catalog listings.
type BookQuery struct {
	Genre  string
	Search string
	Sort   string // "-created_at" (default), "created_at", "rating", "title"
	Page   int
	Limit  int
}

// ReviewQuery filters and paginates review listings.
type ReviewQuery struct {
	BookID string
	UserID string
	Status domain.ReviewStatus
	Page   int
	Limit  int
}

// Store is the persistence boundary for catalog, review and progress data.
type Store interface {
	SaveUser(u domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	SaveBook(b domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks(q BookQuery) ([]domain.Book, int64, error)
	FeaturedBooks(limit int) ([]domain.Book, error)
	// DeleteBook removes the book together with its reviews and progress
	// records in one transaction.
	DeleteBook(id string) error

	CreateReview(r domain.Review) error
	GetReview(id string) (domain.Review, bool, error)
	UpdateReview(r domain.Review) error
	DeleteReview(id string) error
	ListReviews(q ReviewQuery) ([]domain.Review, int64, error)
	FeaturedReviews(limit int) ([]domain.Review, error)
	// RecalcBookRating recomputes averageRating/totalReviews over published
	// reviews and writes them onto the book, in one transaction.
	RecalcBookRating(bookID string) error

	CreateProgress(p domain.ReadingProgress) error
	GetProgress(userID, bookID string) (domain.ReadingProgress, bool, error)
	UpdateProgress(p domain.ReadingProgress) error
	ListProgressByUser(userID string, status domain.ReadingStatus) ([]domain.ReadingProgress, error)
}

// SessionStore issues and verifies access tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// RefreshTokenStore persists refresh tokens for rotation and replay
// detection.
type RefreshTokenStore interface {
	NewToken(userID string, ttl time.Duration) (string, error)
	RotateToken(token string, ttl time.Duration) (userID string, newToken string, err error)
	DeleteToken(token string) error
}
