package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"changespage/api/internal/github"
	"changespage/api/internal/store"
	"changespage/api/internal/util"
)

// NotifyTask asks the notification worker to email a post's subscribers.
type NotifyTask struct {
	PostID string `json:"postId"`
}

// Store is the persistence surface the workers need.
type Store interface {
	GetPost(ctx context.Context, postID string) (store.Post, error)
	GetPage(ctx context.Context, pageID string) (store.Page, error)
	ListSubscribers(ctx context.Context, pageID string, confirmedOnly bool) ([]store.Subscriber, error)
	GetGitHubInstallationByRepo(ctx context.Context, repoFullName string) (store.GitHubInstallation, error)
	InsertPost(ctx context.Context, post store.Post) error
	DeleteDanglingVotes(ctx context.Context) (int64, error)
}

// Mailer sends subscriber notifications.
type Mailer interface {
	IsConfigured() bool
	SendPostNotification(to, pageTitle, postTitle, postURL, unsubscribeURL string) error
}

// Drafter generates changelog drafts from merged-PR notes.
type Drafter interface {
	IsConfigured() bool
	DraftChangelog(ctx context.Context, notes string, onChunk func(string) error) error
}

// Runner consumes the task queues.
type Runner struct {
	queue   *Queue
	store   Store
	mailer  Mailer
	drafter Drafter
	baseURL string
}

func NewRunner(queue *Queue, st Store, mailer Mailer, drafter Drafter, baseURL string) *Runner {
	return &Runner{
		queue:   queue,
		store:   st,
		mailer:  mailer,
		drafter: drafter,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Start launches the worker loops. They stop when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx, NotifyQueue, func(ctx context.Context) error {
		var task NotifyTask
		if err := r.queue.Dequeue(ctx, NotifyQueue, 5*time.Second, &task); err != nil {
			return err
		}
		return r.HandleNotifyTask(ctx, task)
	})
	go r.loop(ctx, GitHubQueue, func(ctx context.Context) error {
		var pr github.MergedPR
		if err := r.queue.Dequeue(ctx, GitHubQueue, 5*time.Second, &pr); err != nil {
			return err
		}
		return r.HandleMergedPR(ctx, pr)
	})
}

func (r *Runner) loop(ctx context.Context, name string, step func(context.Context) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		err := step(ctx)
		if err == nil || errors.Is(err, ErrQueueEmpty) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		log.Printf("jobs: %s worker: %v", name, err)
	}
}

// HandleNotifyTask emails every confirmed subscriber of the post's page.
func (r *Runner) HandleNotifyTask(ctx context.Context, task NotifyTask) error {
	if !r.mailer.IsConfigured() {
		return nil
	}

	post, err := r.store.GetPost(ctx, task.PostID)
	if err != nil {
		return fmt.Errorf("load post %s: %w", task.PostID, err)
	}
	if post.Status != "published" {
		// Unpublished between enqueue and delivery; drop silently.
		return nil
	}

	page, err := r.store.GetPage(ctx, post.PageID)
	if err != nil {
		return fmt.Errorf("load page %s: %w", post.PageID, err)
	}

	subscribers, err := r.store.ListSubscribers(ctx, page.ID, true)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	postURL := fmt.Sprintf("%s/%s/posts/%s", r.baseURL, page.Slug, post.ID)
	for _, sub := range subscribers {
		unsubscribeURL := fmt.Sprintf("%s/%s/unsubscribe?id=%s", r.baseURL, page.Slug, sub.ID)
		if err := r.mailer.SendPostNotification(sub.Email, page.Title, post.Title, postURL, unsubscribeURL); err != nil {
			log.Printf("jobs: notify %s about post %s: %v", sub.Email, post.ID, err)
		}
	}
	return nil
}

// HandleMergedPR turns a merged pull request into a draft post on the
// page linked to the repository.
func (r *Runner) HandleMergedPR(ctx context.Context, pr github.MergedPR) error {
	installation, err := r.store.GetGitHubInstallationByRepo(ctx, pr.RepoFullName)
	if err != nil {
		return fmt.Errorf("no installation for %s: %w", pr.RepoFullName, err)
	}

	content := r.draftContent(ctx, pr)
	post := store.Post{
		ID:      util.NewID("post"),
		PageID:  installation.PageID,
		Title:   pr.Title,
		Content: content,
		Tags:    []string{"github"},
		Status:  "draft",
	}
	if err := r.store.InsertPost(ctx, post); err != nil {
		return fmt.Errorf("insert draft post: %w", err)
	}
	log.Printf("jobs: drafted post %s from %s#%d", post.ID, pr.RepoFullName, pr.Number)
	return nil
}

func (r *Runner) draftContent(ctx context.Context, pr github.MergedPR) string {
	notes := fmt.Sprintf("PR #%d in %s by %s: %s\n\n%s", pr.Number, pr.RepoFullName, pr.Author, pr.Title, pr.Body)

	if r.drafter != nil && r.drafter.IsConfigured() {
		var b strings.Builder
		err := r.drafter.DraftChangelog(ctx, notes, func(chunk string) error {
			b.WriteString(chunk)
			return nil
		})
		if err == nil && strings.TrimSpace(b.String()) != "" {
			return b.String()
		}
		if err != nil {
			log.Printf("jobs: draft generation for %s#%d failed, using PR body: %v", pr.RepoFullName, pr.Number, err)
		}
	}

	// Fallback: the PR body plus a reference link.
	body := strings.TrimSpace(pr.Body)
	if body == "" {
		body = pr.Title
	}
	return fmt.Sprintf("%s\n\n[%s#%d](%s)", body, pr.RepoFullName, pr.Number, pr.URL)
}

// CleanupDanglingVotes removes votes whose items are gone.
func (r *Runner) CleanupDanglingVotes(ctx context.Context) {
	removed, err := r.store.DeleteDanglingVotes(ctx)
	if err != nil {
		log.Printf("jobs: cleanup dangling votes: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("jobs: removed %d dangling votes", removed)
	}
}
