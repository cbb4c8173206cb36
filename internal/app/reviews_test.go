package app

import (
	"errors"
	"strings"
	"testing"

	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

func TestCreateReviewComputesReadingTimeAndRating(t *testing.T) {
	a, st, _ := newTestApp(t)
	user := seedUser(t, st, "reader@example.com")
	book := seedBook(t, st, user.ID, 100)

	content := strings.Repeat("word ", 450)
	review, err := a.CreateReview(user.ID, ReviewInput{
		BookID:  book.ID,
		Title:   "Loved it",
		Content: content,
		Rating:  4,
	})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if review.ReadingTime != 3 {
		t.Fatalf("450 words at 200 wpm should round up to 3 minutes, got %d", review.ReadingTime)
	}
	if review.Status != domain.ReviewPublished {
		t.Fatalf("status should default to published, got %q", review.Status)
	}
	if review.User.Username != user.Username || review.Book.Title != book.Title {
		t.Fatalf("missing joined projections: %+v", review)
	}

	updated, err := a.GetBook(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if updated.TotalReviews != 1 || updated.AverageRating != 4 {
		t.Fatalf("book aggregates not refreshed: reviews=%d rating=%v", updated.TotalReviews, updated.AverageRating)
	}
}

func TestCreateReviewOncePerBookAndUser(t *testing.T) {
	a, st, _ := newTestApp(t)
	user := seedUser(t, st, "reader@example.com")
	book := seedBook(t, st, user.ID, 100)

	input := ReviewInput{BookID: book.ID, Content: "fine", Rating: 3}
	if _, err := a.CreateReview(user.ID, input); err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, err := a.CreateReview(user.ID, input); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
	}
}

func TestCreateReviewValidation(t *testing.T) {
	a, st, _ := newTestApp(t)
	user := seedUser(t, st, "reader@example.com")
	book := seedBook(t, st, user.ID, 100)

	tests := []struct {
		name  string
		input ReviewInput
		field string
	}{
		{"rating too low", ReviewInput{BookID: book.ID, Content: "x", Rating: 0}, "rating"},
		{"rating too high", ReviewInput{BookID: book.ID, Content: "x", Rating: 6}, "rating"},
		{"empty content", ReviewInput{BookID: book.ID, Content: "  ", Rating: 3}, "content"},
		{"missing book id", ReviewInput{Content: "x", Rating: 3}, "bookId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateReview(user.ID, tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected validation error on %q, got %v", tt.field, err)
			}
		})
	}

	if _, err := a.CreateReview(user.ID, ReviewInput{BookID: "missing", Content: "x", Rating: 3}); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestAverageRatingOverPublishedReviews(t *testing.T) {
	a, st, _ := newTestApp(t)
	owner := seedUser(t, st, "owner@example.com")
	book := seedBook(t, st, owner.ID, 100)
	alice := seedUser(t, st, "alice@example.com")
	bob := seedUser(t, st, "bob@example.com")

	if _, err := a.CreateReview(alice.ID, ReviewInput{BookID: book.ID, Content: "great", Rating: 5}); err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, err := a.CreateReview(bob.ID, ReviewInput{BookID: book.ID, Content: "meh", Rating: 2, Status: domain.ReviewDraft}); err != nil {
		t.Fatalf("create review: %v", err)
	}

	updated, err := a.GetBook(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if updated.TotalReviews != 1 || updated.AverageRating != 5 {
		t.Fatalf("draft reviews must not count: reviews=%d rating=%v", updated.TotalReviews, updated.AverageRating)
	}
}

func TestDeleteReviewRefreshesAggregates(t *testing.T) {
	a, st, _ := newTestApp(t)
	user := seedUser(t, st, "reader@example.com")
	book := seedBook(t, st, user.ID, 100)

	review, err := a.CreateReview(user.ID, ReviewInput{BookID: book.ID, Content: "great", Rating: 5})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	other := seedUser(t, st, "other@example.com")
	if err := a.DeleteReview(other.ID, review.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if err := a.DeleteReview(user.ID, review.ID); err != nil {
		t.Fatalf("delete review: %v", err)
	}
	updated, err := a.GetBook(book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if updated.TotalReviews != 0 || updated.AverageRating != 0 {
		t.Fatalf("aggregates should reset: reviews=%d rating=%v", updated.TotalReviews, updated.AverageRating)
	}
}

func TestToggleLike(t *testing.T) {
	a, st, _ := newTestApp(t)
	author := seedUser(t, st, "author@example.com")
	liker := seedUser(t, st, "liker@example.com")
	book := seedBook(t, st, author.ID, 100)

	review, err := a.CreateReview(author.ID, ReviewInput{BookID: book.ID, Content: "great", Rating: 5})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	liked, err := a.ToggleLike(liker.ID, review.ID)
	if err != nil {
		t.Fatalf("toggle like: %v", err)
	}
	if liked.TotalLikes != 1 || !HasLiked(liked.Review, liker.ID) {
		t.Fatalf("like not recorded: %+v", liked.Review)
	}

	unliked, err := a.ToggleLike(liker.ID, review.ID)
	if err != nil {
		t.Fatalf("toggle like: %v", err)
	}
	if unliked.TotalLikes != 0 || HasLiked(unliked.Review, liker.ID) {
		t.Fatalf("second toggle should remove the like: %+v", unliked.Review)
	}
}

func TestListReviewsByBook(t *testing.T) {
	a, st, _ := newTestApp(t)
	owner := seedUser(t, st, "owner@example.com")
	book := seedBook(t, st, owner.ID, 100)
	other := seedBook(t, st, owner.ID, 50)
	alice := seedUser(t, st, "alice@example.com")

	if _, err := a.CreateReview(owner.ID, ReviewInput{BookID: book.ID, Content: "great", Rating: 5}); err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, err := a.CreateReview(alice.ID, ReviewInput{BookID: other.ID, Content: "fine", Rating: 3}); err != nil {
		t.Fatalf("create review: %v", err)
	}

	reviews, total, err := a.ListReviews(store.ReviewQuery{BookID: book.ID})
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if total != 1 || len(reviews) != 1 || reviews[0].BookID != book.ID {
		t.Fatalf("unexpected listing: total=%d items=%+v", total, reviews)
	}
}
