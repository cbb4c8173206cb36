package store

import (
	"sort"
	"strings"
	"sync"

	"bookshelf/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests and local development. It
// enforces the same uniqueness constraints as the Postgres schema, including
// the one-progress-record-per-(user, book) invariant.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	books    map[string]domain.Book
	reviews  map[string]domain.Review
	progress map[string]domain.ReadingProgress // keyed by userID+"|"+bookID
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		books:    make(map[string]domain.Book),
		reviews:  make(map[string]domain.Review),
		progress: make(map[string]domain.ReadingProgress),
	}
}

func progressKey(userID, bookID string) string {
	return userID + "|" + bookID
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.users {
		if existing.Email == u.Email && id != u.ID {
			return ErrDuplicate
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) SaveBook(b domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[b.ID] = b
	return nil
}

func (s *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	return b, ok, nil
}

func (s *MemoryStore) ListBooks(q BookQuery) ([]domain.Book, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Book
	for _, b := range s.books {
		if q.Genre != "" && !containsFold(b.Genres, q.Genre) {
			continue
		}
		if q.Search != "" && !bookMatches(b, q.Search) {
			continue
		}
		matched = append(matched, b)
	}
	sortBooks(matched, q.Sort)
	total := int64(len(matched))
	limit := q.Limit
	if limit <= 0 {
		limit = 12
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []domain.Book{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) FeaturedBooks(limit int) ([]domain.Book, error) {
	books, _, err := s.ListBooks(BookQuery{Limit: limit})
	return books, err
}

func (s *MemoryStore) DeleteBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	for rid, r := range s.reviews {
		if r.BookID == id {
			delete(s.reviews, rid)
		}
	}
	for key, p := range s.progress {
		if p.BookID == id {
			delete(s.progress, key)
		}
	}
	return nil
}

func (s *MemoryStore) CreateReview(r domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews {
		if existing.BookID == r.BookID && existing.UserID == r.UserID {
			return ErrDuplicate
		}
	}
	s.reviews[r.ID] = r
	return nil
}

func (s *MemoryStore) GetReview(id string) (domain.Review, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	return r, ok, nil
}

func (s *MemoryStore) UpdateReview(r domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.ID] = r
	return nil
}

func (s *MemoryStore) DeleteReview(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reviews, id)
	return nil
}

func (s *MemoryStore) ListReviews(q ReviewQuery) ([]domain.Review, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Review
	for _, r := range s.reviews {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.BookID != "" && r.BookID != q.BookID {
			continue
		}
		if q.UserID != "" && r.UserID != q.UserID {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []domain.Review{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) FeaturedReviews(limit int) ([]domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Review
	for _, r := range s.reviews {
		if r.Status == domain.ReviewPublished {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].TotalLikes != matched[j].TotalLikes {
			return matched[i].TotalLikes > matched[j].TotalLikes
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 5
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) RecalcBookRating(bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return nil
	}
	var sum, count int
	for _, r := range s.reviews {
		if r.BookID == bookID && r.Status == domain.ReviewPublished {
			sum += r.Rating
			count++
		}
	}
	book.TotalReviews = count
	if count > 0 {
		book.AverageRating = float64(sum) / float64(count)
	} else {
		book.AverageRating = 0
	}
	s.books[bookID] = book
	return nil
}

func (s *MemoryStore) CreateProgress(p domain.ReadingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey(p.UserID, p.BookID)
	if _, exists := s.progress[key]; exists {
		return ErrDuplicate
	}
	s.progress[key] = p
	return nil
}

func (s *MemoryStore) GetProgress(userID, bookID string) (domain.ReadingProgress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[progressKey(userID, bookID)]
	return p, ok, nil
}

func (s *MemoryStore) UpdateProgress(p domain.ReadingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progressKey(p.UserID, p.BookID)] = p
	return nil
}

func (s *MemoryStore) ListProgressByUser(userID string, status domain.ReadingStatus) ([]domain.ReadingProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ReadingProgress
	for _, p := range s.progress {
		if p.UserID != userID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].LastReadAt.After(items[j].LastReadAt)
	})
	return items, nil
}

// ProgressCount reports how many progress records exist, for race tests.
func (s *MemoryStore) ProgressCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.progress)
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func bookMatches(b domain.Book, search string) bool {
	search = strings.ToLower(search)
	return strings.Contains(strings.ToLower(b.Title), search) ||
		strings.Contains(strings.ToLower(b.Author), search) ||
		strings.Contains(strings.ToLower(b.Description), search)
}

func sortBooks(books []domain.Book, order string) {
	switch strings.TrimSpace(order) {
	case "created_at":
		sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.Before(books[j].CreatedAt) })
	case "rating", "-rating":
		sort.Slice(books, func(i, j int) bool { return books[i].AverageRating > books[j].AverageRating })
	case "title":
		sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	default:
		sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.After(books[j].CreatedAt) })
	}
}
