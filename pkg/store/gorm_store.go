package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bookshelf/pkg/domain"
)

const migrateLockID int64 = 52615261

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &ReviewModel{}, &ProgressModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// SaveUser creates or updates a user record.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return translateErr(s.db.Save(&model).Error)
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return translateErr(s.db.Save(&model).Error)
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns one catalog page and the total match count.
func (s *GormStore) ListBooks(q BookQuery) ([]domain.Book, int64, error) {
	tx := s.db.Model(&BookModel{})
	if q.Genre != "" {
		tx = tx.Where("genres @> ?", genreJSON(q.Genre))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		tx = tx.Where("title ILIKE ? OR author ILIKE ? OR description ILIKE ?", pattern, pattern, pattern)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 12
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	var models []BookModel
	if err := tx.Order(bookSortOrder(q.Sort)).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, total, nil
}

// FeaturedBooks returns the newest books.
func (s *GormStore) FeaturedBooks(limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = 5
	}
	var models []BookModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, m := range models {
		books = append(books, bookFromModel(m))
	}
	return books, nil
}

// DeleteBook removes the book and its dependent reviews and progress records.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReviewModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ProgressModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&BookModel{}, "id = ?", id).Error
	})
}

// CreateReview inserts a review; ErrDuplicate when the (book, user) pair
// already has one.
func (s *GormStore) CreateReview(r domain.Review) error {
	model := reviewToModel(r)
	return translateErr(s.db.Create(&model).Error)
}

// GetReview returns one review by ID.
func (s *GormStore) GetReview(id string) (domain.Review, bool, error) {
	var model ReviewModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

// UpdateReview overwrites a review record.
func (s *GormStore) UpdateReview(r domain.Review) error {
	model := reviewToModel(r)
	return translateErr(s.db.Save(&model).Error)
}

// DeleteReview removes one review.
func (s *GormStore) DeleteReview(id string) error {
	return s.db.Delete(&ReviewModel{}, "id = ?", id).Error
}

// ListReviews returns one page of reviews and the total match count.
func (s *GormStore) ListReviews(q ReviewQuery) ([]domain.Review, int64, error) {
	tx := s.db.Model(&ReviewModel{})
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	if q.BookID != "" {
		tx = tx.Where("book_id = ?", q.BookID)
	}
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	var models []ReviewModel
	if err := tx.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	reviews := make([]domain.Review, 0, len(models))
	for _, m := range models {
		reviews = append(reviews, reviewFromModel(m))
	}
	return reviews, total, nil
}

// FeaturedReviews returns the most liked published reviews.
func (s *GormStore) FeaturedReviews(limit int) ([]domain.Review, error) {
	if limit <= 0 {
		limit = 5
	}
	var models []ReviewModel
	if err := s.db.Where("status = ?", string(domain.ReviewPublished)).
		Order("total_likes DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	reviews := make([]domain.Review, 0, len(models))
	for _, m := range models {
		reviews = append(reviews, reviewFromModel(m))
	}
	return reviews, nil
}

// RecalcBookRating recomputes the aggregate over published reviews and writes
// it onto the book.
func (s *GormStore) RecalcBookRating(bookID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var agg struct {
			Avg   sql.NullFloat64
			Count int64
		}
		if err := tx.Model(&ReviewModel{}).
			Select("AVG(rating) AS avg, COUNT(*) AS count").
			Where("book_id = ? AND status = ?", bookID, string(domain.ReviewPublished)).
			Scan(&agg).Error; err != nil {
			return err
		}
		return tx.Model(&BookModel{}).
			Where("id = ?", bookID).
			Updates(map[string]any{
				"average_rating": agg.Avg.Float64,
				"total_reviews":  agg.Count,
				"updated_at":     time.Now().UTC(),
			}).Error
	})
}

// CreateProgress inserts a progress record; ErrDuplicate when the
// (user, book) pair already has one.
func (s *GormStore) CreateProgress(p domain.ReadingProgress) error {
	model := progressToModel(p)
	return translateErr(s.db.Create(&model).Error)
}

// GetProgress returns the single record for a (user, book) pair.
func (s *GormStore) GetProgress(userID, bookID string) (domain.ReadingProgress, bool, error) {
	var model ProgressModel
	if err := s.db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReadingProgress{}, false, nil
		}
		return domain.ReadingProgress{}, false, err
	}
	return progressFromModel(model), true, nil
}

// UpdateProgress overwrites a progress record. Last write wins.
func (s *GormStore) UpdateProgress(p domain.ReadingProgress) error {
	model := progressToModel(p)
	return translateErr(s.db.Save(&model).Error)
}

// ListProgressByUser returns a user's library ordered by recency of reading.
func (s *GormStore) ListProgressByUser(userID string, status domain.ReadingStatus) ([]domain.ReadingProgress, error) {
	tx := s.db.Where("user_id = ?", userID)
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	var models []ProgressModel
	if err := tx.Order("last_read_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.ReadingProgress, 0, len(models))
	for _, m := range models {
		items = append(items, progressFromModel(m))
	}
	return items, nil
}

func bookSortOrder(sort string) string {
	switch strings.TrimSpace(sort) {
	case "created_at":
		return "created_at ASC"
	case "rating", "-rating":
		return "average_rating DESC"
	case "title":
		return "title ASC"
	default:
		return "created_at DESC"
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func genreJSON(genre string) string {
	raw, _ := json.Marshal([]string{genre})
	return string(raw)
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		PasswordHash:   u.PasswordHash,
		Bio:            u.Bio,
		Avatar:         u.Avatar,
		FavoriteGenres: marshalJSON(u.FavoriteGenres),
		Role:           string(u.Role),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	var genres []string
	unmarshalJSON(m.FavoriteGenres, &genres)
	role := domain.UserRole(m.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:             m.ID,
		Email:          m.Email,
		Username:       m.Username,
		PasswordHash:   m.PasswordHash,
		Bio:            m.Bio,
		Avatar:         m.Avatar,
		FavoriteGenres: genres,
		Role:           role,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:               b.ID,
		OwnerID:          b.OwnerID,
		Title:            b.Title,
		Author:           b.Author,
		Description:      b.Description,
		Genres:           marshalJSON(b.Genres),
		Pages:            b.Pages,
		PublishedYear:    b.PublishedYear,
		Language:         b.Language,
		Publisher:        b.Publisher,
		ISBN:             b.ISBN,
		CoverKey:         b.CoverKey,
		EbookKey:         b.EbookKey,
		OriginalFilename: b.OriginalFilename,
		SizeBytes:        b.SizeBytes,
		AverageRating:    b.AverageRating,
		TotalReviews:     b.TotalReviews,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	var genres []string
	unmarshalJSON(m.Genres, &genres)
	return domain.Book{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Title:            m.Title,
		Author:           m.Author,
		Description:      m.Description,
		Genres:           genres,
		Pages:            m.Pages,
		PublishedYear:    m.PublishedYear,
		Language:         m.Language,
		Publisher:        m.Publisher,
		ISBN:             m.ISBN,
		CoverKey:         m.CoverKey,
		EbookKey:         m.EbookKey,
		OriginalFilename: m.OriginalFilename,
		SizeBytes:        m.SizeBytes,
		AverageRating:    m.AverageRating,
		TotalReviews:     m.TotalReviews,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:          r.ID,
		BookID:      r.BookID,
		UserID:      r.UserID,
		Title:       r.Title,
		Content:     r.Content,
		Rating:      r.Rating,
		IsSpoiler:   r.IsSpoiler,
		Likes:       marshalJSON(r.Likes),
		TotalLikes:  r.TotalLikes,
		ReadingTime: r.ReadingTime,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	var likes []string
	unmarshalJSON(m.Likes, &likes)
	return domain.Review{
		ID:          m.ID,
		BookID:      m.BookID,
		UserID:      m.UserID,
		Title:       m.Title,
		Content:     m.Content,
		Rating:      m.Rating,
		IsSpoiler:   m.IsSpoiler,
		Likes:       likes,
		TotalLikes:  m.TotalLikes,
		ReadingTime: m.ReadingTime,
		Status:      domain.ReviewStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func progressToModel(p domain.ReadingProgress) ProgressModel {
	return ProgressModel{
		ID:          p.ID,
		UserID:      p.UserID,
		BookID:      p.BookID,
		Status:      string(p.Status),
		CurrentPage: p.CurrentPage,
		Percent:     p.Percent,
		StartedAt:   p.StartedAt,
		FinishedAt:  p.FinishedAt,
		LastReadAt:  p.LastReadAt,
		Notes:       marshalJSON(p.Notes),
		Highlights:  marshalJSON(p.Highlights),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func progressFromModel(m ProgressModel) domain.ReadingProgress {
	var notes []domain.Note
	var highlights []domain.Highlight
	unmarshalJSON(m.Notes, &notes)
	unmarshalJSON(m.Highlights, &highlights)
	return domain.ReadingProgress{
		ID:          m.ID,
		UserID:      m.UserID,
		BookID:      m.BookID,
		Status:      domain.ReadingStatus(m.Status),
		CurrentPage: m.CurrentPage,
		Percent:     m.Percent,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		LastReadAt:  m.LastReadAt,
		Notes:       notes,
		Highlights:  highlights,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func marshalJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func unmarshalJSON(raw []byte, out any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, out)
}
