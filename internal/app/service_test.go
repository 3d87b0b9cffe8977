package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"changespage/api/internal/authpw"
	"changespage/api/internal/config"
	"changespage/api/internal/roadmap"
	"changespage/api/internal/search"
	"changespage/api/internal/store"
)

type positionWrite struct {
	ItemID   string
	Position int
	ColumnID *string
}

// fakeStore is an in-memory stand-in for the Postgres store. It also
// serves as the session store and the password-auth user store so one
// fixture backs the whole service.
type fakeStore struct {
	mu sync.Mutex

	users         map[string]store.User
	pages         map[string]store.Page
	posts         map[string]store.Post
	boards        map[string]store.Board
	columns       map[string]store.BoardColumn
	items         map[string]store.RoadmapItem
	categories    map[string]store.Category
	triage        map[string]store.TriageItem
	subscribers   map[string]store.Subscriber
	installations map[string]store.GitHubInstallation
	refresh       map[string]string
	revoked       map[string]time.Time
	votes         map[string]map[string]bool

	listItemCalls      int
	positionWrites     []positionWrite
	failPositionWrites bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]store.User),
		pages:         make(map[string]store.Page),
		posts:         make(map[string]store.Post),
		boards:        make(map[string]store.Board),
		columns:       make(map[string]store.BoardColumn),
		items:         make(map[string]store.RoadmapItem),
		categories:    make(map[string]store.Category),
		triage:        make(map[string]store.TriageItem),
		subscribers:   make(map[string]store.Subscriber),
		installations: make(map[string]store.GitHubInstallation),
		refresh:       make(map[string]string),
		revoked:       make(map[string]time.Time),
		votes:         make(map[string]map[string]bool),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return errors.New("invalid or expired verification token")
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }

// Session store

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[userID], nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = exp
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.revoked[jti]
	return ok, nil
}

// Pages

func (f *fakeStore) ListPagesByOwner(_ context.Context, ownerID string) ([]store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pages []store.Page
	for _, page := range f.pages {
		if page.OwnerID == ownerID {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

func (f *fakeStore) GetPage(_ context.Context, pageID string) (store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[pageID]
	if !ok {
		return store.Page{}, sql.ErrNoRows
	}
	return page, nil
}

func (f *fakeStore) GetPageBySlug(_ context.Context, slug string) (store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, page := range f.pages {
		if page.Slug == slug {
			return page, nil
		}
	}
	return store.Page{}, sql.ErrNoRows
}

func (f *fakeStore) InsertPage(_ context.Context, page store.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[page.ID] = page
	return nil
}

func (f *fakeStore) UpdatePage(_ context.Context, pageID, title, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := f.pages[pageID]
	page.Title = title
	page.Description = description
	f.pages[pageID] = page
	return nil
}

func (f *fakeStore) DeletePage(_ context.Context, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, pageID)
	return nil
}

// Posts

func (f *fakeStore) ListPosts(_ context.Context, pageID string, publishedOnly bool) ([]store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var posts []store.Post
	for _, post := range f.posts {
		if post.PageID != pageID {
			continue
		}
		if publishedOnly && post.Status != "published" {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (f *fakeStore) GetPost(_ context.Context, postID string) (store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return store.Post{}, sql.ErrNoRows
	}
	return post, nil
}

func (f *fakeStore) InsertPost(_ context.Context, post store.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) UpdatePost(_ context.Context, postID, title, content string, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post := f.posts[postID]
	post.Title = title
	post.Content = content
	post.Tags = tags
	f.posts[postID] = post
	return nil
}

func (f *fakeStore) PublishPost(_ context.Context, postID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if post.Status == "published" {
		return false, nil
	}
	now := time.Now()
	post.Status = "published"
	post.PublishedAt = &now
	f.posts[postID] = post
	return true, nil
}

func (f *fakeStore) DeletePost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, postID)
	return nil
}

// Subscribers

func (f *fakeStore) InsertSubscriber(_ context.Context, subscriber store.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.subscribers {
		if existing.PageID == subscriber.PageID && strings.EqualFold(existing.Email, subscriber.Email) {
			return nil
		}
	}
	f.subscribers[subscriber.ID] = subscriber
	return nil
}

func (f *fakeStore) ListSubscribers(_ context.Context, pageID string, confirmedOnly bool) ([]store.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var subscribers []store.Subscriber
	for _, subscriber := range f.subscribers {
		if subscriber.PageID != pageID {
			continue
		}
		if confirmedOnly && !subscriber.Confirmed {
			continue
		}
		subscribers = append(subscribers, subscriber)
	}
	return subscribers, nil
}

func (f *fakeStore) ConfirmSubscriber(_ context.Context, subscriberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	subscriber := f.subscribers[subscriberID]
	subscriber.Confirmed = true
	f.subscribers[subscriberID] = subscriber
	return nil
}

func (f *fakeStore) DeleteSubscriber(_ context.Context, pageID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, subscriber := range f.subscribers {
		if subscriber.PageID == pageID && strings.EqualFold(subscriber.Email, email) {
			delete(f.subscribers, id)
		}
	}
	return nil
}

func (f *fakeStore) DeleteSubscriberByID(_ context.Context, subscriberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, subscriberID)
	return nil
}

// Boards

func (f *fakeStore) ListBoardsByPage(_ context.Context, pageID string) ([]store.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var boards []store.Board
	for _, board := range f.boards {
		if board.PageID == pageID {
			boards = append(boards, board)
		}
	}
	return boards, nil
}

func (f *fakeStore) GetBoard(_ context.Context, boardID string) (store.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	board, ok := f.boards[boardID]
	if !ok {
		return store.Board{}, sql.ErrNoRows
	}
	return board, nil
}

func (f *fakeStore) InsertBoard(_ context.Context, board store.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[board.ID] = board
	return nil
}

func (f *fakeStore) UpdateBoard(_ context.Context, boardID, title string, isPublic bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	board := f.boards[boardID]
	board.Title = title
	board.IsPublic = isPublic
	f.boards[boardID] = board
	return nil
}

func (f *fakeStore) DeleteBoard(_ context.Context, boardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.boards, boardID)
	return nil
}

// Columns

func (f *fakeStore) ListColumns(_ context.Context, boardID string) ([]store.BoardColumn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var columns []store.BoardColumn
	for _, column := range f.columns {
		if column.BoardID == boardID {
			columns = append(columns, column)
		}
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].SortOrder < columns[j].SortOrder })
	return columns, nil
}

func (f *fakeStore) GetColumn(_ context.Context, columnID string) (store.BoardColumn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	column, ok := f.columns[columnID]
	if !ok {
		return store.BoardColumn{}, sql.ErrNoRows
	}
	return column, nil
}

func (f *fakeStore) FirstColumn(ctx context.Context, boardID string) (store.BoardColumn, error) {
	columns, _ := f.ListColumns(ctx, boardID)
	if len(columns) == 0 {
		return store.BoardColumn{}, sql.ErrNoRows
	}
	return columns[0], nil
}

func (f *fakeStore) InsertColumn(_ context.Context, column store.BoardColumn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns[column.ID] = column
	return nil
}

func (f *fakeStore) UpdateColumn(_ context.Context, columnID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	column := f.columns[columnID]
	column.Name = name
	f.columns[columnID] = column
	return nil
}

func (f *fakeStore) DeleteColumn(_ context.Context, columnID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.columns, columnID)
	return nil
}

// Items

func (f *fakeStore) ListItems(_ context.Context, boardID string) ([]store.RoadmapItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listItemCalls++
	var items []store.RoadmapItem
	for _, item := range f.items {
		if item.BoardID == boardID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

func (f *fakeStore) GetItem(_ context.Context, itemID string) (store.RoadmapItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return store.RoadmapItem{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) InsertItem(_ context.Context, item store.RoadmapItem) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	position := 1
	for _, existing := range f.items {
		if existing.ColumnID == item.ColumnID && existing.Position >= position {
			position = existing.Position + 1
		}
	}
	item.Position = position
	f.items[item.ID] = item
	return position, nil
}

func (f *fakeStore) UpdateItem(_ context.Context, itemID, title, description string, categoryID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[itemID]
	item.Title = title
	item.Description = description
	item.CategoryID = categoryID
	f.items[itemID] = item
	return nil
}

func (f *fakeStore) DeleteItem(_ context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemID)
	return nil
}

func (f *fakeStore) UpdateItemPosition(_ context.Context, itemID string, position int, columnID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionWrites = append(f.positionWrites, positionWrite{ItemID: itemID, Position: position, ColumnID: columnID})
	if f.failPositionWrites {
		return fmt.Errorf("write rejected")
	}
	item, ok := f.items[itemID]
	if !ok {
		return sql.ErrNoRows
	}
	item.Position = position
	if columnID != nil {
		item.ColumnID = *columnID
	}
	f.items[itemID] = item
	return nil
}

// Categories

func (f *fakeStore) ListCategories(_ context.Context, boardID string) ([]store.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var categories []store.Category
	for _, category := range f.categories {
		if category.BoardID == boardID {
			categories = append(categories, category)
		}
	}
	return categories, nil
}

func (f *fakeStore) InsertCategory(_ context.Context, category store.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories[category.ID] = category
	return nil
}

func (f *fakeStore) DeleteCategory(_ context.Context, categoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.categories, categoryID)
	return nil
}

// Votes

func (f *fakeStore) ToggleItemVote(_ context.Context, itemID, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votes[itemID] == nil {
		f.votes[itemID] = make(map[string]bool)
	}
	if f.votes[itemID][fingerprint] {
		delete(f.votes[itemID], fingerprint)
		return false, nil
	}
	f.votes[itemID][fingerprint] = true
	return true, nil
}

// Triage

func (f *fakeStore) InsertTriageItem(_ context.Context, item store.TriageItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triage[item.ID] = item
	return nil
}

func (f *fakeStore) GetTriageItem(_ context.Context, triageID string) (store.TriageItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.triage[triageID]
	if !ok {
		return store.TriageItem{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListTriageItems(_ context.Context, boardID, status string) ([]store.TriageItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []store.TriageItem
	for _, item := range f.triage {
		if item.BoardID != boardID {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *fakeStore) UpdateTriageStatus(_ context.Context, triageID, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.triage[triageID]
	if !ok || item.Status != "pending" {
		return false, nil
	}
	item.Status = status
	f.triage[triageID] = item
	return true, nil
}

// GitHub

func (f *fakeStore) InsertGitHubInstallation(_ context.Context, installation store.GitHubInstallation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installations[installation.ID] = installation
	return nil
}

func (f *fakeStore) DeleteGitHubInstallation(_ context.Context, installationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, installation := range f.installations {
		if installation.InstallationID == installationID {
			delete(f.installations, id)
		}
	}
	return nil
}

// --- Fixtures ---

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		PublicBaseURL: "https://changes.test",
	}
	return &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		authpw:   authpw.NewService(fs, cfg.JWTSecret),
		movers:   make(map[string]*roadmap.Mover),
	}
}

func ownerSession() Session {
	return Session{
		UserID:      "usr-1",
		Email:       "avery@changes.test",
		DisplayName: "Avery",
		Plan:        "free",
		JTI:         "jti-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func seedOwnerAndPage(fs *fakeStore) {
	fs.users["usr-1"] = store.User{
		ID:              "usr-1",
		DisplayName:     "Avery",
		Email:           "avery@changes.test",
		IsEmailVerified: true,
	}
	fs.pages["page-1"] = store.Page{
		ID:      "page-1",
		OwnerID: "usr-1",
		Slug:    "acme",
		Title:   "Acme Changelog",
	}
}

// seedBoard creates a two-column board on page-1 with three items in the
// first column and one in the second.
func seedBoard(fs *fakeStore) {
	fs.boards["brd-1"] = store.Board{ID: "brd-1", PageID: "page-1", Title: "Roadmap", IsPublic: true}
	fs.columns["col-a"] = store.BoardColumn{ID: "col-a", BoardID: "brd-1", Name: "Planned", SortOrder: 1}
	fs.columns["col-b"] = store.BoardColumn{ID: "col-b", BoardID: "brd-1", Name: "Shipped", SortOrder: 2}
	fs.items["itm-1"] = store.RoadmapItem{ID: "itm-1", BoardID: "brd-1", ColumnID: "col-a", Position: 1, Title: "One"}
	fs.items["itm-2"] = store.RoadmapItem{ID: "itm-2", BoardID: "brd-1", ColumnID: "col-a", Position: 2, Title: "Two"}
	fs.items["itm-3"] = store.RoadmapItem{ID: "itm-3", BoardID: "brd-1", ColumnID: "col-a", Position: 3, Title: "Three"}
	fs.items["itm-4"] = store.RoadmapItem{ID: "itm-4", BoardID: "brd-1", ColumnID: "col-b", Position: 1, Title: "Four"}
}

// --- Tests ---

func TestCreatePageRejectsBadSlug(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	svc := newTestService(fs)

	_, err := svc.CreatePage(context.Background(), ownerSession(), "Bad Slug!", "Title", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCreatePageRejectsDuplicateSlug(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	svc := newTestService(fs)

	_, err := svc.CreatePage(context.Background(), ownerSession(), "acme", "Another", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate slug, got %v", err)
	}
}

func TestForeignPageAnswersNotFound(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	fs.pages["page-2"] = store.Page{ID: "page-2", OwnerID: "usr-other", Slug: "other", Title: "Other"}
	svc := newTestService(fs)

	_, err := svc.GetPageForOwner(context.Background(), ownerSession(), "page-2")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign page, got %v", err)
	}
}

func TestPublishPostIsOneShot(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	fs.posts["post-1"] = store.Post{ID: "post-1", PageID: "page-1", Title: "v1.0", Status: "draft"}
	svc := newTestService(fs)

	payload, err := svc.PublishPost(context.Background(), ownerSession(), "post-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if payload["status"] != "published" {
		t.Fatalf("expected published status, got %v", payload["status"])
	}

	_, err = svc.PublishPost(context.Background(), ownerSession(), "post-1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "ALREADY_PUBLISHED" {
		t.Fatalf("expected ALREADY_PUBLISHED on second publish, got %v", err)
	}
}

func TestSessionRoundTripAndRevocation(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	svc := newTestService(fs)

	session, err := svc.issueSession(context.Background(), fs.users["usr-1"])
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	restored, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if restored.UserID != "usr-1" || restored.Email != "avery@changes.test" {
		t.Fatalf("unexpected session identity: %+v", restored)
	}

	if err := svc.Logout(context.Background(), session, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), session.Token); err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); err == nil {
		t.Fatalf("expected revoked refresh token to be rejected")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	svc := newTestService(fs)

	first, err := svc.issueSession(context.Background(), fs.users["usr-1"])
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected refresh token rotation")
	}
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatalf("expected old refresh token to be single-use")
	}
}

func TestPromoteTriageAppendsToFirstColumn(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	seedBoard(fs)
	fs.triage["tri-1"] = store.TriageItem{ID: "tri-1", BoardID: "brd-1", Title: "Dark mode", Status: "pending"}
	svc := newTestService(fs)

	payload, err := svc.PromoteTriage(context.Background(), ownerSession(), "tri-1")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if payload["columnId"] != "col-a" {
		t.Fatalf("expected promotion into first column, got %v", payload["columnId"])
	}
	if payload["position"] != 4 {
		t.Fatalf("expected appended position 4, got %v", payload["position"])
	}

	_, err = svc.PromoteTriage(context.Background(), ownerSession(), "tri-1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "ALREADY_RESOLVED" {
		t.Fatalf("expected second promotion to fail, got %v", err)
	}
}

func TestDeleteColumnRefusesWhenOccupied(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	seedBoard(fs)
	svc := newTestService(fs)

	err := svc.DeleteColumn(context.Background(), ownerSession(), "col-a")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "COLUMN_NOT_EMPTY" {
		t.Fatalf("expected COLUMN_NOT_EMPTY, got %v", err)
	}
}

func TestToggleVoteRequiresPublicBoard(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	seedBoard(fs)
	board := fs.boards["brd-1"]
	board.IsPublic = false
	fs.boards["brd-1"] = board
	svc := newTestService(fs)

	_, err := svc.ToggleVote(context.Background(), "itm-1", "198.51.100.7", "test-agent")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 on private board, got %v", err)
	}
}

func TestSearchPayloadNamesBackend(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	svc := newTestService(fs)
	svc.search = search.NewService(nil, search.NewPgFTS(nil))

	payload, err := svc.Search(context.Background(), ownerSession(), "", "post", "", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if payload["backend"] != "pgfts" {
		t.Fatalf("expected pgfts backend, got %v", payload["backend"])
	}
	if results, ok := payload["results"].([]search.Result); !ok || len(results) != 0 {
		t.Fatalf("expected an empty result list, got %#v", payload["results"])
	}

	payload, err = svc.PublicSearch(context.Background(), "acme", "", "item", 10, 0)
	if err != nil {
		t.Fatalf("public search: %v", err)
	}
	if payload["backend"] != "pgfts" {
		t.Fatalf("expected pgfts backend, got %v", payload["backend"])
	}
}

func TestToggleVoteFlips(t *testing.T) {
	fs := newFakeStore()
	seedOwnerAndPage(fs)
	seedBoard(fs)
	svc := newTestService(fs)

	payload, err := svc.ToggleVote(context.Background(), "itm-1", "198.51.100.7", "test-agent")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if payload["voted"] != true {
		t.Fatalf("expected first toggle to add the vote")
	}
	payload, err = svc.ToggleVote(context.Background(), "itm-1", "198.51.100.7", "test-agent")
	if err != nil {
		t.Fatalf("unvote: %v", err)
	}
	if payload["voted"] != false {
		t.Fatalf("expected second toggle to remove the vote")
	}
}
