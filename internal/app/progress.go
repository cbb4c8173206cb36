package app

import (
	"errors"
	"fmt"
	"time"

	"bookshelf/internal/util"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

// ProgressUpdate is a partial update to a reading-progress record. Nil
// fields leave the stored value untouched; Note and Highlight append.
type ProgressUpdate struct {
	Status      *domain.ReadingStatus
	CurrentPage *int
	Note        *domain.Note
	Highlight   *domain.Highlight
}

// statusEntryRules lists the timestamp side effects of entering a status.
// Each stamp fires only on first entry: once the field is set it stays.
var statusEntryRules = []struct {
	status domain.ReadingStatus
	get    func(p *domain.ReadingProgress) *time.Time
	set    func(p *domain.ReadingProgress, t time.Time)
}{
	{
		status: domain.StatusCurrentlyReading,
		get:    func(p *domain.ReadingProgress) *time.Time { return p.StartedAt },
		set:    func(p *domain.ReadingProgress, t time.Time) { p.StartedAt = &t },
	},
	{
		status: domain.StatusFinished,
		get:    func(p *domain.ReadingProgress) *time.Time { return p.FinishedAt },
		set:    func(p *domain.ReadingProgress, t time.Time) { p.FinishedAt = &t },
	},
}

// UpsertProgress creates or updates the single progress record for
// (user, book) and returns it joined with a book projection. A lost creation
// race against a concurrent first call is retried as an update.
func (a *App) UpsertProgress(userID, bookID string, upd ProgressUpdate) (domain.ProgressWithBook, error) {
	if upd.CurrentPage != nil && *upd.CurrentPage < 0 {
		return domain.ProgressWithBook{}, validationErr("currentPage", "must not be negative")
	}
	book, err := a.GetBook(bookID)
	if err != nil {
		return domain.ProgressWithBook{}, err
	}
	if _, ok, err := a.store.GetUserByID(userID); err != nil {
		return domain.ProgressWithBook{}, fmt.Errorf("fetch user: %w", err)
	} else if !ok {
		return domain.ProgressWithBook{}, ErrUserNotFound
	}

	now := time.Now().UTC()
	progress, found, err := a.store.GetProgress(userID, bookID)
	if err != nil {
		return domain.ProgressWithBook{}, fmt.Errorf("fetch progress: %w", err)
	}
	if !found {
		progress = domain.ReadingProgress{
			ID:        util.NewID(),
			UserID:    userID,
			BookID:    bookID,
			Status:    domain.StatusWantToRead,
			CreatedAt: now,
		}
		applyProgressUpdate(&progress, book, upd, now)
		err = a.store.CreateProgress(progress)
		if err == nil {
			return joinProgress(progress, book), nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return domain.ProgressWithBook{}, fmt.Errorf("create progress: %w", err)
		}
		// Lost the creation race: reload the winner and fall through to the
		// update path.
		progress, found, err = a.store.GetProgress(userID, bookID)
		if err != nil {
			return domain.ProgressWithBook{}, fmt.Errorf("fetch progress: %w", err)
		}
		if !found {
			return domain.ProgressWithBook{}, fmt.Errorf("progress record vanished after duplicate key")
		}
	}

	applyProgressUpdate(&progress, book, upd, now)
	if err := a.store.UpdateProgress(progress); err != nil {
		return domain.ProgressWithBook{}, fmt.Errorf("update progress: %w", err)
	}
	return joinProgress(progress, book), nil
}

// Library lists the user's progress records, newest activity first, joined
// with their book projections. Records whose book has vanished are skipped.
func (a *App) Library(userID string, status domain.ReadingStatus) ([]domain.ProgressWithBook, error) {
	records, err := a.store.ListProgressByUser(userID, status)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	items := make([]domain.ProgressWithBook, 0, len(records))
	for _, p := range records {
		book, ok, err := a.store.GetBook(p.BookID)
		if err != nil {
			return nil, fmt.Errorf("fetch book: %w", err)
		}
		if !ok {
			continue
		}
		items = append(items, joinProgress(p, book))
	}
	return items, nil
}

func applyProgressUpdate(p *domain.ReadingProgress, book domain.Book, upd ProgressUpdate, now time.Time) {
	if upd.Status != nil {
		p.Status = *upd.Status
		for _, rule := range statusEntryRules {
			if p.Status == rule.status && rule.get(p) == nil {
				rule.set(p, now)
			}
		}
	}
	if upd.CurrentPage != nil {
		page := *upd.CurrentPage
		if book.Pages > 0 && page > book.Pages {
			page = book.Pages
		}
		p.CurrentPage = page
	}
	if book.Pages > 0 {
		p.Percent = float64(p.CurrentPage) / float64(book.Pages) * 100
	}
	if upd.Note != nil {
		note := *upd.Note
		if note.CreatedAt.IsZero() {
			note.CreatedAt = now
		}
		p.Notes = append(p.Notes, note)
	}
	if upd.Highlight != nil {
		hl := *upd.Highlight
		if hl.CreatedAt.IsZero() {
			hl.CreatedAt = now
		}
		p.Highlights = append(p.Highlights, hl)
	}
	p.LastReadAt = now
	p.UpdatedAt = now
}

func joinProgress(p domain.ReadingProgress, book domain.Book) domain.ProgressWithBook {
	return domain.ProgressWithBook{ReadingProgress: p, Book: book.Summary()}
}
