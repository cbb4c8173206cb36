package domain

import (
	"strings"
	"time"
)

type ReadingStatus string

const (
	StatusWantToRead       ReadingStatus = "want-to-read"
	StatusCurrentlyReading ReadingStatus = "currently-reading"
	StatusFinished         ReadingStatus = "finished"
)

// ParseReadingStatus validates a client-supplied status value.
func ParseReadingStatus(raw string) (ReadingStatus, bool) {
	switch ReadingStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusWantToRead:
		return StatusWantToRead, true
	case StatusCurrentlyReading:
		return StatusCurrentlyReading, true
	case StatusFinished:
		return StatusFinished, true
	default:
		return "", false
	}
}

type ReviewStatus string

const (
	ReviewPublished ReviewStatus = "published"
	ReviewDraft     ReviewStatus = "draft"
	ReviewArchived  ReviewStatus = "archived"
)

func ParseReviewStatus(raw string) (ReviewStatus, bool) {
	switch ReviewStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case ReviewPublished:
		return ReviewPublished, true
	case ReviewDraft:
		return ReviewDraft, true
	case ReviewArchived:
		return ReviewArchived, true
	default:
		return "", false
	}
}

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Bio            string    `json:"bio,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	FavoriteGenres []string  `json:"favoriteGenres,omitempty"`
	Role           UserRole  `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Book struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	Description      string    `json:"description,omitempty"`
	Genres           []string  `json:"genres,omitempty"`
	Pages            int       `json:"pages"`
	PublishedYear    int       `json:"publishedYear,omitempty"`
	Language         string    `json:"language,omitempty"`
	Publisher        string    `json:"publisher,omitempty"`
	ISBN             string    `json:"isbn,omitempty"`
	CoverKey         string    `json:"coverKey,omitempty"`
	EbookKey         string    `json:"-"`
	OriginalFilename string    `json:"originalFilename,omitempty"`
	SizeBytes        int64     `json:"sizeBytes,omitempty"`
	AverageRating    float64   `json:"averageRating"`
	TotalReviews     int       `json:"totalReviews"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// BookSummary is the read-only book projection joined onto progress and
// review responses.
type BookSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	CoverKey string `json:"coverKey,omitempty"`
	Pages    int    `json:"pages"`
}

func (b Book) Summary() BookSummary {
	return BookSummary{
		ID:       b.ID,
		Title:    b.Title,
		Author:   b.Author,
		CoverKey: b.CoverKey,
		Pages:    b.Pages,
	}
}

// UserSummary is the public author projection joined onto reviews.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

type Review struct {
	ID          string       `json:"id"`
	BookID      string       `json:"bookId"`
	UserID      string       `json:"userId"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Rating      int          `json:"rating"`
	IsSpoiler   bool         `json:"isSpoiler"`
	Likes       []string     `json:"-"`
	TotalLikes  int          `json:"totalLikes"`
	ReadingTime int          `json:"readingTime"`
	Status      ReviewStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ReviewWithRefs joins a review with display projections of its author and
// subject book.
type ReviewWithRefs struct {
	Review
	User UserSummary `json:"user"`
	Book BookSummary `json:"book"`
}

type Note struct {
	Page      int       `json:"page"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Highlight struct {
	Text      string    `json:"text"`
	Page      int       `json:"page"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadingProgress is the single persistent record per (user, book) pair.
// Notes and highlights are append-only.
type ReadingProgress struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	BookID      string        `json:"bookId"`
	Status      ReadingStatus `json:"status"`
	CurrentPage int           `json:"currentPage"`
	Percent     float64       `json:"percent"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
	LastReadAt  time.Time     `json:"lastReadAt"`
	Notes       []Note        `json:"notes,omitempty"`
	Highlights  []Highlight   `json:"highlights,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ProgressWithBook is the upsert/list result shape: the progress record plus
// a minimal book projection for display.
type ProgressWithBook struct {
	ReadingProgress
	Book BookSummary `json:"book"`
}

// ExtractedMetadata is the output of the upload metadata extractor. Cover is
// an encoded JPEG that always matches the configured card size, or nil when
// no cover could be derived.
type ExtractedMetadata struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Pages         int    `json:"pages"`
	PublishedYear int    `json:"publishedYear"`
	Cover         []byte `json:"-"`
}
