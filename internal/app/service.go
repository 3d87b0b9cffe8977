package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"changespage/api/internal/ai"
	"changespage/api/internal/auth"
	"changespage/api/internal/authpw"
	"changespage/api/internal/billing"
	"changespage/api/internal/config"
	"changespage/api/internal/email"
	"changespage/api/internal/export"
	"changespage/api/internal/github"
	"changespage/api/internal/gitrepo"
	"changespage/api/internal/jobs"
	"changespage/api/internal/roadmap"
	"changespage/api/internal/search"
	"changespage/api/internal/storage"
	"changespage/api/internal/store"
	"changespage/api/internal/util"
)

// Session is an authenticated caller, reconstructed per request from the
// bearer token.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	Plan         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)

	ListPagesByOwner(context.Context, string) ([]store.Page, error)
	GetPage(context.Context, string) (store.Page, error)
	GetPageBySlug(context.Context, string) (store.Page, error)
	InsertPage(context.Context, store.Page) error
	UpdatePage(context.Context, string, string, string) error
	DeletePage(context.Context, string) error

	ListPosts(context.Context, string, bool) ([]store.Post, error)
	GetPost(context.Context, string) (store.Post, error)
	InsertPost(context.Context, store.Post) error
	UpdatePost(context.Context, string, string, string, []string) error
	PublishPost(context.Context, string) (bool, error)
	DeletePost(context.Context, string) error

	InsertSubscriber(context.Context, store.Subscriber) error
	ListSubscribers(context.Context, string, bool) ([]store.Subscriber, error)
	ConfirmSubscriber(context.Context, string) error
	DeleteSubscriber(context.Context, string, string) error
	DeleteSubscriberByID(context.Context, string) error

	ListBoardsByPage(context.Context, string) ([]store.Board, error)
	GetBoard(context.Context, string) (store.Board, error)
	InsertBoard(context.Context, store.Board) error
	UpdateBoard(context.Context, string, string, bool) error
	DeleteBoard(context.Context, string) error

	ListColumns(context.Context, string) ([]store.BoardColumn, error)
	GetColumn(context.Context, string) (store.BoardColumn, error)
	FirstColumn(context.Context, string) (store.BoardColumn, error)
	InsertColumn(context.Context, store.BoardColumn) error
	UpdateColumn(context.Context, string, string) error
	DeleteColumn(context.Context, string) error

	ListItems(context.Context, string) ([]store.RoadmapItem, error)
	GetItem(context.Context, string) (store.RoadmapItem, error)
	InsertItem(context.Context, store.RoadmapItem) (int, error)
	UpdateItem(context.Context, string, string, string, *string) error
	DeleteItem(context.Context, string) error
	UpdateItemPosition(ctx context.Context, itemID string, position int, columnID *string) error

	ListCategories(context.Context, string) ([]store.Category, error)
	InsertCategory(context.Context, store.Category) error
	DeleteCategory(context.Context, string) error

	ToggleItemVote(context.Context, string, string) (bool, error)

	InsertTriageItem(context.Context, store.TriageItem) error
	GetTriageItem(context.Context, string) (store.TriageItem, error)
	ListTriageItems(context.Context, string, string) ([]store.TriageItem, error)
	UpdateTriageStatus(context.Context, string, string) (bool, error)

	InsertGitHubInstallation(context.Context, store.GitHubInstallation) error
	DeleteGitHubInstallation(context.Context, int64) error
}

// SessionStore persists refresh sessions and the access-token denylist.
// Both the Postgres store and the Redis store satisfy it; Redis is
// preferred when configured so revocation survives without table scans.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

// Dependencies are the optional services wired in from main. Any nil
// field disables the corresponding feature; handlers answer 503 for it.
type Dependencies struct {
	Sessions SessionStore
	AuthPW   *authpw.Service
	Mail     *email.Service
	Search   *search.Service
	Archive  *gitrepo.Service
	Export   *export.Service
	Billing  *billing.Service
	AI       *ai.Client
	Assets   *storage.Service
	Queue    *jobs.Queue
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	authpw   *authpw.Service
	mail     *email.Service
	search   *search.Service
	archive  *gitrepo.Service
	export   *export.Service
	billing  *billing.Service
	ai       *ai.Client
	assets   *storage.Service
	queue    *jobs.Queue

	boardMu sync.Mutex
	movers  map[string]*roadmap.Mover
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   deps.AuthPW,
		mail:     deps.Mail,
		search:   deps.Search,
		archive:  deps.Archive,
		export:   deps.Export,
		billing:  deps.Billing,
		ai:       deps.AI,
		assets:   deps.Assets,
		queue:    deps.Queue,
		movers:   make(map[string]*roadmap.Mover),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// --- Authentication ---

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (map[string]any, error) {
	if s.authpw == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	result, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	if s.mail != nil && s.mail.IsConfigured() {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), result.VerificationToken)
		if err := s.mail.SendVerificationEmail(email, displayName, verifyURL); err != nil {
			log.Printf("app: send verification email to %s: %v", email, err)
		}
	}

	return map[string]any{
		"userId":              result.UserID,
		"requiresEmailVerify": result.RequiresEmailVerify,
	}, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	if s.authpw == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	result, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if result.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Email address is not verified", nil)
	}
	return s.issueSession(ctx, result.User)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.Email == "" {
		// The Redis store carries a snapshot; refresh it from Postgres so
		// plan and display name stay current.
		full, err := s.store.GetUserByID(ctx, user.ID)
		if err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	plan := s.userPlan(ctx, user.ID)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Plan:  plan,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Plan:         plan,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Plan:        claims.Plan,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) userPlan(ctx context.Context, userID string) string {
	if s.billing != nil && s.billing.HasActiveSubscription(ctx, userID) {
		return "pro"
	}
	return "free"
}

// --- Pages ---

func (s *Service) ListPages(ctx context.Context, session Session) ([]map[string]any, error) {
	pages, err := s.store.ListPagesByOwner(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		payload = append(payload, pagePayload(page))
	}
	return payload, nil
}

func (s *Service) CreatePage(ctx context.Context, session Session, slug, title, description string) (map[string]any, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if !validSlug(slug) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "slug must be lowercase letters, digits and hyphens", nil)
	}
	if _, err := s.store.GetPageBySlug(ctx, slug); err == nil {
		return nil, domainError(http.StatusConflict, "SLUG_TAKEN", "A page with this slug already exists", nil)
	}

	page := store.Page{
		ID:          util.NewID("page"),
		OwnerID:     session.UserID,
		Slug:        slug,
		Title:       title,
		Description: strings.TrimSpace(description),
	}
	if err := s.store.InsertPage(ctx, page); err != nil {
		return nil, err
	}
	if s.archive != nil {
		if err := s.archive.EnsurePageRepo(page.ID, session.DisplayName); err != nil {
			log.Printf("app: init archive repo for page %s: %v", page.ID, err)
		}
	}
	return pagePayload(page), nil
}

func (s *Service) GetPageForOwner(ctx context.Context, session Session, pageID string) (map[string]any, error) {
	page, err := s.ownedPage(ctx, session, pageID)
	if err != nil {
		return nil, err
	}
	return pagePayload(page), nil
}

func (s *Service) UpdatePage(ctx context.Context, session Session, pageID, title, description string) (map[string]any, error) {
	page, err := s.ownedPage(ctx, session, pageID)
	if err != nil {
		return nil, err
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.UpdatePage(ctx, pageID, title, strings.TrimSpace(description)); err != nil {
		return nil, err
	}
	page.Title = title
	page.Description = strings.TrimSpace(description)
	return pagePayload(page), nil
}

func (s *Service) DeletePage(ctx context.Context, session Session, pageID string) error {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return err
	}
	return s.store.DeletePage(ctx, pageID)
}

// ownedPage loads a page and enforces that the caller owns it. A page
// owned by someone else answers 404, not 403, so slugs and ids are not
// probeable.
func (s *Service) ownedPage(ctx context.Context, session Session, pageID string) (store.Page, error) {
	page, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return store.Page{}, domainError(http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	}
	if page.OwnerID != session.UserID {
		return store.Page{}, domainError(http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	}
	return page, nil
}

// --- Posts ---

func (s *Service) ListPagePosts(ctx context.Context, session Session, pageID string) ([]map[string]any, error) {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	posts, err := s.store.ListPosts(ctx, pageID, false)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		payload = append(payload, postPayload(post))
	}
	return payload, nil
}

func (s *Service) CreatePost(ctx context.Context, session Session, pageID, title, content string, tags []string) (map[string]any, error) {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	post := store.Post{
		ID:      util.NewID("post"),
		PageID:  pageID,
		Title:   title,
		Content: content,
		Tags:    tags,
		Status:  "draft",
	}
	if err := s.store.InsertPost(ctx, post); err != nil {
		return nil, err
	}
	return postPayload(post), nil
}

func (s *Service) UpdatePost(ctx context.Context, session Session, postID, title, content string, tags []string) (map[string]any, error) {
	post, err := s.ownedPost(ctx, session, postID)
	if err != nil {
		return nil, err
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.UpdatePost(ctx, postID, title, content, tags); err != nil {
		return nil, err
	}
	post.Title = title
	post.Content = content
	post.Tags = tags

	if post.Status == "published" {
		if s.archive != nil {
			s.archivePost(post, session.DisplayName, "Edit "+post.Title)
		}
		if s.search != nil {
			s.search.IndexPost(searchRecord(post))
		}
	}
	return postPayload(post), nil
}

func (s *Service) PublishPost(ctx context.Context, session Session, postID string) (map[string]any, error) {
	post, err := s.ownedPost(ctx, session, postID)
	if err != nil {
		return nil, err
	}
	changed, err := s.store.PublishPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "ALREADY_PUBLISHED", "Post is already published", nil)
	}
	post, err = s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		s.archivePost(post, session.DisplayName, "Publish "+post.Title)
	}
	if s.search != nil {
		s.search.IndexPost(searchRecord(post))
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, jobs.NotifyQueue, jobs.NotifyTask{PostID: post.ID}); err != nil {
			log.Printf("app: enqueue notification for post %s: %v", post.ID, err)
		}
	}
	return postPayload(post), nil
}

func (s *Service) DeletePost(ctx context.Context, session Session, postID string) error {
	if _, err := s.ownedPost(ctx, session, postID); err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePost(postID)
	}
	return nil
}

func (s *Service) ownedPost(ctx context.Context, session Session, postID string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
	}
	if _, err := s.ownedPage(ctx, session, post.PageID); err != nil {
		return store.Post{}, domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
	}
	return post, nil
}

func (s *Service) archivePost(post store.Post, author, message string) {
	if err := s.archive.EnsurePageRepo(post.PageID, author); err != nil {
		log.Printf("app: ensure archive repo for page %s: %v", post.PageID, err)
		return
	}
	_, err := s.archive.CommitPost(post.PageID, post.ID, gitrepo.PostContent{
		Title:   post.Title,
		Content: post.Content,
		Tags:    post.Tags,
		Status:  post.Status,
	}, author, message)
	if err != nil {
		log.Printf("app: archive post %s: %v", post.ID, err)
	}
}

// --- Post history (archive) ---

func (s *Service) PostHistory(ctx context.Context, session Session, postID string, limit int) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Post archive not configured", nil)
	}
	post, err := s.ownedPost(ctx, session, postID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	revisions, err := s.archive.PostHistory(post.PageID, post.ID, limit)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(revisions))
	for _, rev := range revisions {
		payload = append(payload, map[string]any{
			"hash":      rev.Hash,
			"message":   rev.Message,
			"author":    rev.Author,
			"createdAt": rev.CreatedAt,
		})
	}
	return map[string]any{"revisions": payload}, nil
}

func (s *Service) PostAtRevision(ctx context.Context, session Session, postID, hash string) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Post archive not configured", nil)
	}
	post, err := s.ownedPost(ctx, session, postID)
	if err != nil {
		return nil, err
	}
	content, err := s.archive.PostAtRevision(post.PageID, post.ID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return map[string]any{
		"hash":    hash,
		"title":   content.Title,
		"content": content.Content,
		"tags":    content.Tags,
		"status":  content.Status,
	}, nil
}

// --- Export ---

func (s *Service) ExportPDF(ctx context.Context, session Session, pageID, postID string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export not configured", nil)
	}
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	result, err := s.export.Export(ctx, export.Request{PageID: pageID, PostID: postID})
	if err != nil {
		if err == export.ErrContentUnavailable {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Nothing to export", nil)
		}
		if err == export.ErrPDFDependencyMissing {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer not available", nil)
		}
		return nil, err
	}
	return result, nil
}

// --- Search ---

func (s *Service) Search(ctx context.Context, session Session, text, filterType, pageID string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search not configured", nil)
	}
	if pageID != "" {
		if _, err := s.ownedPage(ctx, session, pageID); err != nil {
			return nil, err
		}
	}
	response := s.search.Search(search.Query{
		Text:         text,
		FilterType:   search.ResultType(filterType),
		FilterPageID: pageID,
		Limit:        limit,
		Offset:       offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"backend": response.Backend,
	}, nil
}

// --- Assets ---

func (s *Service) UploadAsset(ctx context.Context, session Session, pageID, filename, contentType string, size int64, r io.Reader) (map[string]any, error) {
	if s.assets == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Asset storage not configured", nil)
	}
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	asset, err := s.assets.Upload(ctx, pageID, filename, contentType, size, r)
	if err != nil {
		return nil, err
	}
	url, err := s.assets.PresignedURL(ctx, asset.Key, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"key":         asset.Key,
		"size":        asset.Size,
		"contentType": asset.ContentType,
		"url":         url,
	}, nil
}

func (s *Service) ListAssets(ctx context.Context, session Session, pageID string) (map[string]any, error) {
	if s.assets == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Asset storage not configured", nil)
	}
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	assets, err := s.assets.ListPageAssets(ctx, pageID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(assets))
	for _, asset := range assets {
		payload = append(payload, map[string]any{
			"key":         asset.Key,
			"size":        asset.Size,
			"contentType": asset.ContentType,
		})
	}
	return map[string]any{"assets": payload}, nil
}

func (s *Service) DeleteAsset(ctx context.Context, session Session, pageID, key string) error {
	if s.assets == nil {
		return domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Asset storage not configured", nil)
	}
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return err
	}
	if !strings.HasPrefix(key, pageID+"/") {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Asset not found", nil)
	}
	return s.assets.Delete(ctx, key)
}

// --- AI assistance ---

func (s *Service) aiClient() (*ai.Client, error) {
	if s.ai == nil || !s.ai.IsConfigured() {
		return nil, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI assistance not configured", nil)
	}
	return s.ai, nil
}

func (s *Service) ProofreadPost(ctx context.Context, content string) (map[string]any, error) {
	client, err := s.aiClient()
	if err != nil {
		return nil, err
	}
	result, err := client.Proofread(ctx, content)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "AI_ERROR", "AI request failed", nil)
	}
	return map[string]any{"content": result}, nil
}

func (s *Service) SuggestPostTitle(ctx context.Context, content string) (map[string]any, error) {
	client, err := s.aiClient()
	if err != nil {
		return nil, err
	}
	title, err := client.SuggestTitle(ctx, content)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "AI_ERROR", "AI request failed", nil)
	}
	return map[string]any{"title": title}, nil
}

func (s *Service) StreamDraft(ctx context.Context, notes string, onChunk func(string) error) error {
	client, err := s.aiClient()
	if err != nil {
		return err
	}
	if err := client.DraftChangelog(ctx, notes, onChunk); err != nil {
		return domainError(http.StatusBadGateway, "AI_ERROR", "AI request failed", nil)
	}
	return nil
}

// --- Billing ---

func (s *Service) CreateCheckout(ctx context.Context, session Session) (map[string]any, error) {
	if s.billing == nil || !s.billing.IsConfigured() {
		return nil, domainError(http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "Billing not configured", nil)
	}
	url, err := s.billing.CreateCheckoutSession(ctx, session.UserID, session.Email)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

func (s *Service) CreatePortal(ctx context.Context, session Session) (map[string]any, error) {
	if s.billing == nil || !s.billing.IsConfigured() {
		return nil, domainError(http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "Billing not configured", nil)
	}
	url, err := s.billing.CreatePortalSession(ctx, session.UserID, s.cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.billing == nil || !s.billing.IsConfigured() {
		return domainError(http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "Billing not configured", nil)
	}
	return s.billing.HandleWebhook(ctx, payload, signature)
}

// --- GitHub integration ---

func (s *Service) ConnectGitHubRepo(ctx context.Context, session Session, pageID string, installationID int64, repoFullName string) (map[string]any, error) {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	repoFullName = strings.TrimSpace(repoFullName)
	if installationID == 0 || repoFullName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "installationId and repoFullName are required", nil)
	}
	installation := store.GitHubInstallation{
		ID:             util.NewID("ghi"),
		PageID:         pageID,
		InstallationID: installationID,
		RepoFullName:   repoFullName,
	}
	if err := s.store.InsertGitHubInstallation(ctx, installation); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":             installation.ID,
		"installationId": installation.InstallationID,
		"repoFullName":   installation.RepoFullName,
	}, nil
}

func (s *Service) DisconnectGitHubRepo(ctx context.Context, session Session, pageID string, installationID int64) error {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return err
	}
	return s.store.DeleteGitHubInstallation(ctx, installationID)
}

// HandleGitHubWebhook verifies and parses a webhook delivery. Merged pull
// requests are queued for the background drafter; everything else is
// acknowledged and dropped.
func (s *Service) HandleGitHubWebhook(ctx context.Context, body []byte, signature string) error {
	if !github.VerifySignature(body, s.cfg.GitHubWebhookSecret, signature) {
		return domainError(http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed", nil)
	}
	pr, merged, err := github.ParsePullRequestEvent(body)
	if err != nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", "Malformed webhook payload", nil)
	}
	if !merged {
		return nil
	}
	if s.queue == nil {
		log.Printf("app: dropping merged PR %s#%d, no job queue configured", pr.RepoFullName, pr.Number)
		return nil
	}
	return s.queue.Enqueue(ctx, jobs.GitHubQueue, pr)
}

// --- Payload mapping ---

func pagePayload(page store.Page) map[string]any {
	return map[string]any{
		"id":          page.ID,
		"slug":        page.Slug,
		"title":       page.Title,
		"description": page.Description,
		"createdAt":   page.CreatedAt,
		"updatedAt":   page.UpdatedAt,
	}
}

func postPayload(post store.Post) map[string]any {
	return map[string]any{
		"id":          post.ID,
		"pageId":      post.PageID,
		"title":       post.Title,
		"content":     post.Content,
		"tags":        post.Tags,
		"status":      post.Status,
		"publishedAt": post.PublishedAt,
		"createdAt":   post.CreatedAt,
		"updatedAt":   post.UpdatedAt,
	}
}

func searchRecord(post store.Post) search.PostRecord {
	return search.PostRecord{
		ID:      post.ID,
		Title:   post.Title,
		Content: post.Content,
		PageID:  post.PageID,
		Status:  post.Status,
	}
}

func validSlug(slug string) bool {
	if len(slug) < 2 || len(slug) > 63 {
		return false
	}
	for _, r := range slug {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return slug[0] != '-' && slug[len(slug)-1] != '-'
}

func visitorFingerprint(ip, userAgent string) string {
	sum := sha1.Sum([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}
