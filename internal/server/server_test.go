package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookshelf/internal/app"
	"bookshelf/pkg/domain"
	"bookshelf/pkg/storage"
	"bookshelf/pkg/store"
)

type testEnv struct {
	srv     *httptest.Server
	store   *store.MemoryStore
	objects *storage.MemoryObjectStore
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	redis := miniredis.RunT(t)
	st := store.NewMemoryStore()
	objects := storage.NewMemoryObjectStore()
	sessions, err := store.NewJWTSessionStore(strings.Repeat("s", 32), time.Minute, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	appCore, err := app.New(app.Config{
		Store:         st,
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
		Objects:       objects,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		App:                        appCore,
		RedisAddr:                  redis.Addr(),
		RegisterRateLimitPerMinute: 100,
		LoginRateLimitPerMinute:    100,
		RefreshRateLimitPerMinute:  100,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, objects: objects}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

type authResp struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         domain.User `json:"user"`
}

func registerUser(t *testing.T, e *testEnv, email string) authResp {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": strings.SplitN(email, "@", 2)[0],
		"email":    email,
		"password": "correct horse battery",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register returned %d", resp.StatusCode)
	}
	return decodeBody[authResp](t, resp)
}

func createBook(t *testing.T, e *testEnv, token string, title string, pages int) domain.Book {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/books", token, map[string]any{
		"title": title,
		"pages": pages,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create book returned %d", resp.StatusCode)
	}
	return decodeBody[domain.Book](t, resp)
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t)
	resp := e.do(t, http.MethodGet, "/healthz", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz returned %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing, X-Content-Type-Options=%q", got)
	}
	if got := resp.Header.Get("X-Request-Id"); got == "" {
		t.Fatalf("request id header missing")
	}
}

func TestAuthEndpoints(t *testing.T) {
	e := newTestServer(t)
	auth := registerUser(t, e, "reader@example.com")
	if auth.Token == "" || auth.RefreshToken == "" {
		t.Fatalf("register should return both tokens")
	}

	me := e.do(t, http.MethodGet, "/api/auth/me", auth.Token, nil)
	if me.StatusCode != http.StatusOK {
		t.Fatalf("me returned %d", me.StatusCode)
	}
	user := decodeBody[domain.User](t, me)
	if user.Email != "reader@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	refreshed := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": auth.RefreshToken})
	if refreshed.StatusCode != http.StatusOK {
		t.Fatalf("refresh returned %d", refreshed.StatusCode)
	}
	next := decodeBody[authResp](t, refreshed)
	if next.RefreshToken == auth.RefreshToken {
		t.Fatalf("refresh token should rotate")
	}

	replay := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": auth.RefreshToken})
	defer replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh should be 401, got %d", replay.StatusCode)
	}

	logout := e.do(t, http.MethodPost, "/api/auth/logout", next.Token, map[string]string{"refreshToken": next.RefreshToken})
	defer logout.Body.Close()
	if logout.StatusCode != http.StatusNoContent {
		t.Fatalf("logout returned %d", logout.StatusCode)
	}
	after := e.do(t, http.MethodGet, "/api/auth/me", next.Token, nil)
	defer after.Body.Close()
	if after.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token should be dead after logout, got %d", after.StatusCode)
	}
}

func TestRegisterRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore(strings.Repeat("s", 32), time.Minute, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	appCore, err := app.New(app.Config{
		Store:         st,
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
		Objects:       storage.NewMemoryObjectStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		App:                        appCore,
		RedisAddr:                  redis.Addr(),
		RegisterRateLimitPerMinute: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body := `{"username":"u","email":"u@example.com","password":"correct horse battery"}`
	resp1, err := http.Post(srv.URL+"/api/auth/register", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusCreated {
		t.Fatalf("first register expected 201, got %d", resp1.StatusCode)
	}
	resp2, err := http.Post(srv.URL+"/api/auth/register", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("second register failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second register expected 429, got %d", resp2.StatusCode)
	}
}

func TestServerRequiresRedisForLimiters(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected limiter initialization to fail without redis addr")
	}
}

func TestBookLifecycle(t *testing.T) {
	e := newTestServer(t)
	owner := registerUser(t, e, "owner@example.com")
	stranger := registerUser(t, e, "stranger@example.com")

	book := createBook(t, e, owner.Token, "The Go Programming Language", 380)

	got := e.do(t, http.MethodGet, "/api/books/"+book.ID, "", nil)
	if got.StatusCode != http.StatusOK {
		t.Fatalf("get book returned %d", got.StatusCode)
	}
	fetched := decodeBody[domain.Book](t, got)
	if fetched.Title != "The Go Programming Language" {
		t.Fatalf("unexpected book %+v", fetched)
	}

	denied := e.do(t, http.MethodPut, "/api/books/"+book.ID, stranger.Token, map[string]any{"title": "Hijacked", "pages": 1})
	defer denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger update expected 403, got %d", denied.StatusCode)
	}

	updated := e.do(t, http.MethodPut, "/api/books/"+book.ID, owner.Token, map[string]any{"title": "Renamed", "pages": 400})
	if updated.StatusCode != http.StatusOK {
		t.Fatalf("update returned %d", updated.StatusCode)
	}
	renamed := decodeBody[domain.Book](t, updated)
	if renamed.Title != "Renamed" {
		t.Fatalf("update not applied: %+v", renamed)
	}

	missing := e.do(t, http.MethodGet, "/api/books/does-not-exist", "", nil)
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing book expected 404, got %d", missing.StatusCode)
	}

	deleted := e.do(t, http.MethodDelete, "/api/books/"+book.ID, owner.Token, nil)
	defer deleted.Body.Close()
	if deleted.StatusCode != http.StatusNoContent {
		t.Fatalf("delete returned %d", deleted.StatusCode)
	}
}

func TestListBooksFilters(t *testing.T) {
	e := newTestServer(t)
	owner := registerUser(t, e, "owner@example.com")
	for i := 0; i < 3; i++ {
		createBook(t, e, owner.Token, fmt.Sprintf("Go Book %d", i), 100)
	}
	createBook(t, e, owner.Token, "Cooking at Home", 50)

	resp := e.do(t, http.MethodGet, "/api/books?search=go+book", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list returned %d", resp.StatusCode)
	}
	list := decodeBody[listResponse[domain.Book]](t, resp)
	if list.Total != 3 {
		t.Fatalf("search should match 3 books, got %d", list.Total)
	}

	featured := e.do(t, http.MethodGet, "/api/books/featured", "", nil)
	defer featured.Body.Close()
	if featured.StatusCode != http.StatusOK {
		t.Fatalf("featured returned %d", featured.StatusCode)
	}
}

func TestUploadEndpoint(t *testing.T) {
	e := newTestServer(t)
	owner := registerUser(t, e, "owner@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "deep_work.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("focus without distraction")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+owner.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload returned %d", resp.StatusCode)
	}
	result := decodeBody[app.UploadResult](t, resp)
	if result.Metadata == nil || result.Metadata.Title != "deep work" {
		t.Fatalf("unexpected metadata %+v", result.Metadata)
	}
	if !e.objects.Has(result.Key) {
		t.Fatalf("ebook not stored under %q", result.Key)
	}

	// Unauthenticated upload is rejected.
	anon, err := http.Post(e.srv.URL+"/api/upload", "application/octet-stream", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("anon upload: %v", err)
	}
	anon.Body.Close()
	if anon.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous upload expected 401, got %d", anon.StatusCode)
	}
}

func TestReviewEndpoints(t *testing.T) {
	e := newTestServer(t)
	owner := registerUser(t, e, "owner@example.com")
	liker := registerUser(t, e, "liker@example.com")
	book := createBook(t, e, owner.Token, "Some Book", 200)

	created := e.do(t, http.MethodPost, "/api/reviews", owner.Token, map[string]any{
		"bookId":  book.ID,
		"title":   "Solid",
		"content": "A fine read overall.",
		"rating":  4,
	})
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create review returned %d", created.StatusCode)
	}
	review := decodeBody[domain.ReviewWithRefs](t, created)
	if review.User.Username != "owner" || review.Book.Title != "Some Book" {
		t.Fatalf("review projections missing: %+v", review)
	}

	dup := e.do(t, http.MethodPost, "/api/reviews", owner.Token, map[string]any{
		"bookId":  book.ID,
		"content": "again",
		"rating":  5,
	})
	defer dup.Body.Close()
	if dup.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate review expected 400, got %d", dup.StatusCode)
	}

	invalid := e.do(t, http.MethodPost, "/api/reviews", liker.Token, map[string]any{
		"bookId":  book.ID,
		"content": "meh",
		"rating":  9,
	})
	body := decodeBody[map[string]string](t, invalid)
	if invalid.StatusCode != http.StatusBadRequest || body["field"] != "rating" {
		t.Fatalf("invalid rating should 400 naming the field, got %d %v", invalid.StatusCode, body)
	}

	liked := e.do(t, http.MethodPost, "/api/reviews/"+review.ID+"/like", liker.Token, nil)
	if liked.StatusCode != http.StatusOK {
		t.Fatalf("like returned %d", liked.StatusCode)
	}
	likeBody := decodeBody[likeResponse](t, liked)
	if !likeBody.HasLiked || likeBody.Review.TotalLikes != 1 {
		t.Fatalf("unexpected like response %+v", likeBody)
	}

	listed := e.do(t, http.MethodGet, "/api/reviews?bookId="+book.ID, "", nil)
	if listed.StatusCode != http.StatusOK {
		t.Fatalf("list reviews returned %d", listed.StatusCode)
	}
	page := decodeBody[listResponse[domain.ReviewWithRefs]](t, listed)
	if page.Total != 1 {
		t.Fatalf("expected 1 review, got %d", page.Total)
	}
}

func TestLibraryEndpoints(t *testing.T) {
	e := newTestServer(t)
	reader := registerUser(t, e, "reader@example.com")
	book := createBook(t, e, reader.Token, "Some Book", 100)

	upserted := e.do(t, http.MethodPost, "/api/library/"+book.ID, reader.Token, map[string]any{
		"status":      "currently-reading",
		"currentPage": 30,
	})
	if upserted.StatusCode != http.StatusOK {
		t.Fatalf("upsert returned %d", upserted.StatusCode)
	}
	progress := decodeBody[domain.ProgressWithBook](t, upserted)
	if progress.Status != domain.StatusCurrentlyReading || progress.StartedAt == nil {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if progress.Percent != 30 {
		t.Fatalf("unexpected percent %v", progress.Percent)
	}

	badStatus := e.do(t, http.MethodPost, "/api/library/"+book.ID, reader.Token, map[string]any{"status": "devoured"})
	fields := decodeBody[map[string]string](t, badStatus)
	if badStatus.StatusCode != http.StatusBadRequest || fields["field"] != "status" {
		t.Fatalf("invalid status should 400 naming the field, got %d %v", badStatus.StatusCode, fields)
	}

	library := e.do(t, http.MethodGet, "/api/library?status=currently-reading", reader.Token, nil)
	if library.StatusCode != http.StatusOK {
		t.Fatalf("library returned %d", library.StatusCode)
	}
	items := decodeBody[struct {
		Items []domain.ProgressWithBook `json:"items"`
		Count int                       `json:"count"`
	}](t, library)
	if items.Count != 1 || items.Items[0].Book.Title != "Some Book" {
		t.Fatalf("unexpected library payload %+v", items)
	}
}

func TestPublicProfileAndUpdate(t *testing.T) {
	e := newTestServer(t)
	reader := registerUser(t, e, "reader@example.com")

	updated := e.do(t, http.MethodPut, "/api/users/profile", reader.Token, map[string]any{
		"bio": "reads a lot",
	})
	if updated.StatusCode != http.StatusOK {
		t.Fatalf("profile update returned %d", updated.StatusCode)
	}

	public := e.do(t, http.MethodGet, "/api/users/"+reader.User.ID, "", nil)
	if public.StatusCode != http.StatusOK {
		t.Fatalf("public profile returned %d", public.StatusCode)
	}
	profile := decodeBody[publicProfile](t, public)
	if profile.Username != "reader" || profile.Bio != "reads a lot" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}
