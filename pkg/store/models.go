package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Slice-valued fields (genres, likes,
// notes, highlights) persist as jsonb.
type UserModel struct {
	ID             string `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex;not null"`
	Username       string `gorm:"not null"`
	PasswordHash   string `gorm:"not null"`
	Bio            string
	Avatar         string
	FavoriteGenres datatypes.JSON `gorm:"type:jsonb"`
	Role           string         `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time
}

type BookModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Author           string
	Description      string         `gorm:"type:text"`
	Genres           datatypes.JSON `gorm:"type:jsonb"`
	Pages            int            `gorm:"not null;default:0"`
	PublishedYear    int
	Language         string
	Publisher        string
	ISBN             string
	CoverKey         string
	EbookKey         string
	OriginalFilename string
	SizeBytes        int64
	AverageRating    float64   `gorm:"not null;default:0"`
	TotalReviews     int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type ReviewModel struct {
	ID          string         `gorm:"primaryKey"`
	BookID      string         `gorm:"not null;uniqueIndex:idx_reviews_book_user"`
	UserID      string         `gorm:"not null;uniqueIndex:idx_reviews_book_user"`
	Title       string         `gorm:"not null"`
	Content     string         `gorm:"type:text;not null"`
	Rating      int            `gorm:"not null"`
	IsSpoiler   bool           `gorm:"not null;default:false"`
	Likes       datatypes.JSON `gorm:"type:jsonb"`
	TotalLikes  int            `gorm:"not null;default:0"`
	ReadingTime int
	Status      string    `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type ProgressModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;uniqueIndex:idx_progress_user_book"`
	BookID      string `gorm:"not null;uniqueIndex:idx_progress_user_book"`
	Status      string `gorm:"not null"`
	CurrentPage int    `gorm:"not null;default:0"`
	Percent     float64
	StartedAt   *time.Time
	FinishedAt  *time.Time
	LastReadAt  time.Time      `gorm:"not null;index"`
	Notes       datatypes.JSON `gorm:"type:jsonb"`
	Highlights  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}
