package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"lensfeed/internal/lens"
)

// Credentials and secrets understood by FakeBackend.
const (
	FakePassword    = "secret"
	FakeAdminSecret = "admin-secret"
	fakeJWTSecret   = "fake-backend-signing-key"
	fakePageSize    = 10
)

// Seeded accounts.
var (
	FakeConsumer = lens.User{ID: "2", Username: "alex_shots", Email: "u@x.com", AvatarURL: "https://i.pravatar.cc/150?u=alex", Role: lens.RoleConsumer}
	FakeCreator  = lens.User{ID: "3", Username: "outdoor_life", Email: "c@x.com", AvatarURL: "https://i.pravatar.cc/150?u=outdoors", Role: lens.RoleCreator}
)

// RecordedRequest is a request seen by FakeBackend.
type RecordedRequest struct {
	Route         string
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	AdminSecret   string
}

// FakeUpload is a media upload received by FakeBackend.
type FakeUpload struct {
	FileName string
	Content  []byte
	Title    string
	Caption  string
	Location string
	Tags     string
}

type fakeAccount struct {
	user     lens.User
	password string
}

// FakeBackend is an in-process HTTP implementation of the photo-sharing API.
// It issues HS256 JWTs and keeps all state in memory.
type FakeBackend struct {
	Server *httptest.Server

	mu          sync.Mutex
	accounts    map[string]*fakeAccount // by email
	posts       []*lens.Post
	likes       map[string]map[string]bool // post id -> user id
	revoked     map[string]bool
	failures    map[string]int
	omitComment bool
	requests    []RecordedRequest
	uploads     []FakeUpload
	nextID      int
	tokenSeq    atomic.Int64
}

// NewFakeBackend starts a FakeBackend seeded with FakeConsumer, FakeCreator
// and three posts. The server is closed when the test completes.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		accounts: map[string]*fakeAccount{
			FakeConsumer.Email: {user: FakeConsumer, password: FakePassword},
			FakeCreator.Email:  {user: FakeCreator, password: FakePassword},
		},
		likes:    make(map[string]map[string]bool),
		revoked:  make(map[string]bool),
		failures: make(map[string]int),
		nextID:   100,
	}
	b.posts = []*lens.Post{
		{
			ID: "201", MediaType: lens.MediaImage, URL: "https://cdn.example.com/201.jpg",
			Title: "Morning Fog", Caption: "Fog rolling over the lake", Location: "Lake Bled",
			Tags: []string{"lake", "fog"}, Creator: FakeCreator, Stats: lens.PostStats{Likes: 10},
			CreatedAt: "2025-12-20T08:00:00Z",
		},
		{
			ID: "202", MediaType: lens.MediaVideo, URL: "https://cdn.example.com/202.mp4",
			Title: "Night Market", Caption: "Street food after dark", Location: "Taipei",
			Tags: []string{"street", "food"}, Creator: FakeCreator, Stats: lens.PostStats{Likes: 3},
			CreatedAt: "2025-12-19T21:00:00Z",
		},
		{
			ID: "203", MediaType: lens.MediaImage, URL: "https://cdn.example.com/203.jpg",
			Title: "Last Light", Caption: "Sunset over the lake", Location: "Lake Bled",
			Tags: []string{"lake", "sunset"}, Creator: FakeCreator,
			CreatedAt: "2025-12-19T17:00:00Z",
		},
	}

	b.Server = httptest.NewServer(b.router())
	t.Cleanup(b.Server.Close)
	return b
}

// BaseURL is the API root to configure clients with.
func (b *FakeBackend) BaseURL() string {
	return b.Server.URL + "/api"
}

func (b *FakeBackend) router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", b.handleLogin).Methods(http.MethodPost).Name("login")
	api.HandleFunc("/auth/signup", b.handleSignup).Methods(http.MethodPost).Name("signup")
	api.HandleFunc("/auth/me", b.handleMe).Methods(http.MethodGet).Name("me")
	api.HandleFunc("/feed", b.handleFeed).Methods(http.MethodGet).Name("feed")
	api.HandleFunc("/posts/{id}/like", b.handleLike).Methods(http.MethodPost).Name("like")
	api.HandleFunc("/posts/{id}/comments", b.handleComment).Methods(http.MethodPost).Name("comment")
	api.HandleFunc("/media/upload", b.handleUpload).Methods(http.MethodPost).Name("upload")
	api.HandleFunc("/admin/create-creator", b.handleCreateCreator).Methods(http.MethodPost).Name("create-creator")
	api.Use(b.recordAndInject)
	return r
}

// recordAndInject records every routed request and answers with an
// injected failure status when one is set for the route.
func (b *FakeBackend) recordAndInject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Route:         name,
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			AdminSecret:   r.Header.Get("X-Admin-Secret"),
		})
		status := b.failures[name]
		b.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail makes every request to route answer with status until Recover.
func (b *FakeBackend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = status
}

// Recover clears an injected failure.
func (b *FakeBackend) Recover(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// OmitComment makes the comment endpoint acknowledge without the comment.
func (b *FakeBackend) OmitComment(omit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.omitComment = omit
}

// Revoke makes the backend reject token with 401.
func (b *FakeBackend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

// IssueToken signs a token for userID that expires after ttl.
func (b *FakeBackend) IssueToken(userID string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": strconv.FormatInt(b.tokenSeq.Add(1), 10),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(fakeJWTSecret))
	if err != nil {
		panic(fmt.Sprintf("signing fake token: %v", err))
	}
	return signed
}

// Requests returns a copy of the recorded requests.
func (b *FakeBackend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// Count returns how many requests hit route.
func (b *FakeBackend) Count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Route == route {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request to route.
func (b *FakeBackend) LastRequest(route string) (RecordedRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].Route == route {
			return b.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

// Uploads returns the uploads received so far.
func (b *FakeBackend) Uploads() []FakeUpload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]FakeUpload(nil), b.uploads...)
}

// Post returns the server-side copy of a post as seen by userID.
func (b *FakeBackend) Post(id, userID string) (lens.Post, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.posts {
		if p.ID == id {
			return b.viewLocked(p, userID), true
		}
	}
	return lens.Post{}, false
}

func (b *FakeBackend) viewLocked(p *lens.Post, userID string) lens.Post {
	v := p.Clone()
	v.Stats.HasLiked = userID != "" && b.likes[p.ID][userID]
	return v
}

func (b *FakeBackend) newIDLocked(prefix string) string {
	b.nextID++
	return prefix + strconv.Itoa(b.nextID)
}

var errNoToken = errors.New("no bearer token")

// authenticate resolves the bearer token to an account.
func (b *FakeBackend) authenticate(r *http.Request) (*fakeAccount, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, errNoToken
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(fakeJWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revoked[raw] {
		return nil, errors.New("token revoked")
	}
	for _, acct := range b.accounts {
		if acct.user.ID == sub {
			return acct, nil
		}
	}
	return nil, fmt.Errorf("unknown subject %q", sub)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (b *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	acct, ok := b.accounts[req.Email]
	b.mu.Unlock()
	if !ok || acct.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, lens.AuthResult{Token: b.IssueToken(acct.user.ID, time.Hour), User: &acct.user})
}

func (b *FakeBackend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	b.mu.Lock()
	if _, exists := b.accounts[req.Email]; exists {
		b.mu.Unlock()
		writeError(w, http.StatusConflict, "User already exists")
		return
	}
	acct := &fakeAccount{
		user:     lens.User{ID: b.newIDLocked("u"), Username: req.Username, Email: req.Email, Role: lens.RoleConsumer},
		password: req.Password,
	}
	b.accounts[req.Email] = acct
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, lens.AuthResult{Token: b.IssueToken(acct.user.ID, time.Hour), User: &acct.user})
}

func (b *FakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, err := b.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct.user})
}

// handleFeed serves anonymous requests, but a token that is present must be
// valid.
func (b *FakeBackend) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID := ""
	acct, err := b.authenticate(r)
	switch {
	case err == nil:
		userID = acct.user.ID
	case !errors.Is(err, errNoToken):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []lens.Post
	for _, p := range b.posts {
		if matchesFeedQuery(p, q) {
			matched = append(matched, b.viewLocked(p, userID))
		}
	}

	start := (page - 1) * fakePageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+fakePageSize, len(matched))
	writeJSON(w, http.StatusOK, map[string]any{"posts": append([]lens.Post{}, matched[start:end]...)})
}

func matchesFeedQuery(p *lens.Post, q url.Values) bool {
	if s := strings.ToLower(q.Get("q")); s != "" {
		hay := strings.ToLower(strings.Join(append([]string{p.Title, p.Caption, p.Creator.Username}, p.Tags...), " "))
		if !strings.Contains(hay, s) {
			return false
		}
	}
	if s := q.Get("location"); s != "" && !strings.Contains(strings.ToLower(p.Location), strings.ToLower(s)) {
		return false
	}
	if s := q.Get("tag"); s != "" {
		found := false
		for _, tag := range p.Tags {
			if strings.EqualFold(tag, s) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s := q.Get("type"); s != "" && string(p.MediaType) != s {
		return false
	}
	if s := q.Get("username"); s != "" && p.Creator.Username != s {
		return false
	}
	return true
}

func (b *FakeBackend) findPostLocked(id string) *lens.Post {
	for _, p := range b.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (b *FakeBackend) handleLike(w http.ResponseWriter, r *http.Request) {
	acct, err := b.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.findPostLocked(mux.Vars(r)["id"])
	if p == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if b.likes[p.ID] == nil {
		b.likes[p.ID] = make(map[string]bool)
	}
	if b.likes[p.ID][acct.user.ID] {
		delete(b.likes[p.ID], acct.user.ID)
		p.Stats.Likes--
	} else {
		b.likes[p.ID][acct.user.ID] = true
		p.Stats.Likes++
	}
	writeJSON(w, http.StatusOK, map[string]any{"likes": p.Stats.Likes, "hasLiked": b.likes[p.ID][acct.user.ID]})
}

func (b *FakeBackend) handleComment(w http.ResponseWriter, r *http.Request) {
	acct, err := b.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.findPostLocked(mux.Vars(r)["id"])
	if p == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	c := lens.Comment{
		ID:        b.newIDLocked("cm"),
		User:      acct.user.Username,
		Text:      req.Text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	p.Comments = append(p.Comments, c)

	if b.omitComment {
		writeJSON(w, http.StatusCreated, map[string]any{"success": true})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"comment": c})
}

func (b *FakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	acct, err := b.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !acct.user.IsCreator() {
		writeError(w, http.StatusForbidden, "Creators only")
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading file")
		return
	}

	up := FakeUpload{
		FileName: hdr.Filename,
		Content:  content,
		Title:    r.FormValue("title"),
		Caption:  r.FormValue("caption"),
		Location: r.FormValue("location"),
		Tags:     r.FormValue("tags"),
	}

	var tags []string
	for _, tag := range strings.Split(up.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	mediaType := lens.MediaImage
	if strings.HasSuffix(strings.ToLower(up.FileName), ".mp4") {
		mediaType = lens.MediaVideo
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, up)
	p := &lens.Post{
		ID:        b.newIDLocked("p"),
		MediaType: mediaType,
		URL:       "https://cdn.example.com/" + up.FileName,
		Title:     up.Title,
		Caption:   up.Caption,
		Location:  up.Location,
		Tags:      tags,
		Creator:   acct.user,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	b.posts = append([]*lens.Post{p}, b.posts...)
	view := p.Clone()
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"post": view})
}

func (b *FakeBackend) handleCreateCreator(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Admin-Secret") != FakeAdminSecret {
		writeError(w, http.StatusUnauthorized, "Invalid admin secret")
		return
	}
	var req lens.CreatorAccount
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[req.Email]; exists {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}
	acct := &fakeAccount{
		user:     lens.User{ID: b.newIDLocked("u"), Username: req.Username, Email: req.Email, Role: lens.RoleCreator},
		password: req.Password,
	}
	b.accounts[req.Email] = acct
	writeJSON(w, http.StatusCreated, map[string]any{"user": acct.user})
}
