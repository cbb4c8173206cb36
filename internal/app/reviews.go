package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bookshelf/internal/util"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

const readingWordsPerMinute = 200

// ReviewInput carries the client-supplied fields of a review.
type ReviewInput struct {
	BookID    string
	Title     string
	Content   string
	Rating    int
	IsSpoiler bool
	Status    domain.ReviewStatus
}

// CreateReview adds a review for a book. One review per (book, user).
func (a *App) CreateReview(userID string, in ReviewInput) (domain.ReviewWithRefs, error) {
	if err := validateReviewInput(in); err != nil {
		return domain.ReviewWithRefs{}, err
	}
	book, err := a.GetBook(in.BookID)
	if err != nil {
		return domain.ReviewWithRefs{}, err
	}
	now := time.Now().UTC()
	status := in.Status
	if status == "" {
		status = domain.ReviewPublished
	}
	review := domain.Review{
		ID:          util.NewID(),
		BookID:      in.BookID,
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		Rating:      in.Rating,
		IsSpoiler:   in.IsSpoiler,
		ReadingTime: readingTime(in.Content),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateReview(review); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ReviewWithRefs{}, ErrAlreadyReviewed
		}
		return domain.ReviewWithRefs{}, fmt.Errorf("create review: %w", err)
	}
	if err := a.store.RecalcBookRating(in.BookID); err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("recalc rating: %w", err)
	}
	return a.joinReview(review, &book)
}

// GetReview fetches one review joined with its author and book projections.
func (a *App) GetReview(id string) (domain.ReviewWithRefs, error) {
	review, ok, err := a.store.GetReview(id)
	if err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.ReviewWithRefs{}, ErrReviewNotFound
	}
	return a.joinReview(review, nil)
}

// UpdateReview applies changes to an owned review.
func (a *App) UpdateReview(userID, reviewID string, in ReviewInput) (domain.ReviewWithRefs, error) {
	review, ok, err := a.store.GetReview(reviewID)
	if err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.ReviewWithRefs{}, ErrReviewNotFound
	}
	if err := a.requireOwner(userID, review.UserID); err != nil {
		return domain.ReviewWithRefs{}, err
	}
	in.BookID = review.BookID
	if err := validateReviewInput(in); err != nil {
		return domain.ReviewWithRefs{}, err
	}
	review.Title = strings.TrimSpace(in.Title)
	review.Content = in.Content
	review.Rating = in.Rating
	review.IsSpoiler = in.IsSpoiler
	if in.Status != "" {
		review.Status = in.Status
	}
	review.ReadingTime = readingTime(in.Content)
	review.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateReview(review); err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("update review: %w", err)
	}
	if err := a.store.RecalcBookRating(review.BookID); err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("recalc rating: %w", err)
	}
	return a.joinReview(review, nil)
}

// DeleteReview removes an owned review and refreshes the book's aggregates.
func (a *App) DeleteReview(userID, reviewID string) error {
	review, ok, err := a.store.GetReview(reviewID)
	if err != nil {
		return fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return ErrReviewNotFound
	}
	if err := a.requireOwner(userID, review.UserID); err != nil {
		return err
	}
	if err := a.store.DeleteReview(reviewID); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if err := a.store.RecalcBookRating(review.BookID); err != nil {
		return fmt.Errorf("recalc rating: %w", err)
	}
	return nil
}

// ToggleLike adds or removes the user's like on a review.
func (a *App) ToggleLike(userID, reviewID string) (domain.ReviewWithRefs, error) {
	review, ok, err := a.store.GetReview(reviewID)
	if err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.ReviewWithRefs{}, ErrReviewNotFound
	}
	liked := false
	for i, id := range review.Likes {
		if id == userID {
			review.Likes = append(review.Likes[:i], review.Likes[i+1:]...)
			liked = true
			break
		}
	}
	if !liked {
		review.Likes = append(review.Likes, userID)
	}
	review.TotalLikes = len(review.Likes)
	review.UpdatedAt = time.Now().UTC()
	if err := a.store.UpdateReview(review); err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("update review: %w", err)
	}
	return a.joinReview(review, nil)
}

// ListReviews returns a filtered review page joined with author and book
// projections, plus the total match count.
func (a *App) ListReviews(q store.ReviewQuery) ([]domain.ReviewWithRefs, int64, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 10
	}
	reviews, total, err := a.store.ListReviews(q)
	if err != nil {
		return nil, 0, err
	}
	joined, err := a.joinReviews(reviews)
	if err != nil {
		return nil, 0, err
	}
	return joined, total, nil
}

// FeaturedReviews returns the most liked published reviews.
func (a *App) FeaturedReviews() ([]domain.ReviewWithRefs, error) {
	reviews, err := a.store.FeaturedReviews(3)
	if err != nil {
		return nil, err
	}
	return a.joinReviews(reviews)
}

// HasLiked reports whether the given user has liked the review.
func HasLiked(review domain.Review, userID string) bool {
	for _, id := range review.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

func (a *App) joinReviews(reviews []domain.Review) ([]domain.ReviewWithRefs, error) {
	joined := make([]domain.ReviewWithRefs, 0, len(reviews))
	for _, r := range reviews {
		item, err := a.joinReview(r, nil)
		if err != nil {
			return nil, err
		}
		joined = append(joined, item)
	}
	return joined, nil
}

func (a *App) joinReview(review domain.Review, book *domain.Book) (domain.ReviewWithRefs, error) {
	out := domain.ReviewWithRefs{Review: review}
	if book == nil {
		b, ok, err := a.store.GetBook(review.BookID)
		if err != nil {
			return domain.ReviewWithRefs{}, fmt.Errorf("fetch book: %w", err)
		}
		if ok {
			out.Book = b.Summary()
		}
	} else {
		out.Book = book.Summary()
	}
	user, ok, err := a.store.GetUserByID(review.UserID)
	if err != nil {
		return domain.ReviewWithRefs{}, fmt.Errorf("fetch user: %w", err)
	}
	if ok {
		out.User = user.Summary()
	}
	return out, nil
}

func validateReviewInput(in ReviewInput) error {
	if strings.TrimSpace(in.BookID) == "" {
		return validationErr("bookId", "required")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return validationErr("rating", "must be between 1 and 5")
	}
	if strings.TrimSpace(in.Content) == "" {
		return validationErr("content", "required")
	}
	return nil
}

// readingTime estimates the minutes needed to read the content, rounded up.
func readingTime(content string) int {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	return (words + readingWordsPerMinute - 1) / readingWordsPerMinute
}
