package app

import (
	"strings"
	"testing"
	"time"

	"bookshelf/internal/util"
	"bookshelf/pkg/auth"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/storage"
	"bookshelf/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *storage.MemoryObjectStore) {
	t.Helper()
	st := store.NewMemoryStore()
	objects := storage.NewMemoryObjectStore()
	sessions, err := store.NewJWTSessionStore(strings.Repeat("s", 32), time.Minute, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := New(Config{
		Store:         st,
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
		Objects:       objects,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st, objects
}

func seedUser(t *testing.T, st *store.MemoryStore, email string) domain.User {
	t.Helper()
	hash, err := auth.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Username:     strings.SplitN(email, "@", 2)[0],
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := st.SaveUser(user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedBook(t *testing.T, st *store.MemoryStore, ownerID string, pages int) domain.Book {
	t.Helper()
	book := domain.Book{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		Title:     "Seeded Book",
		Author:    "Seed Author",
		Pages:     pages,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := st.SaveBook(book); err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return book
}
