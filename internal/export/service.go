package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"changespage/api/internal/store"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// DataStore defines the data access the exporter needs.
type DataStore interface {
	GetPage(ctx context.Context, id string) (store.Page, error)
	GetPost(ctx context.Context, id string) (store.Post, error)
	ListPosts(ctx context.Context, pageID string, publishedOnly bool) ([]store.Post, error)
}

// Service renders changelog exports.
type Service struct {
	store    DataStore
	markdown goldmark.Markdown
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{
		store: store,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// Export generates a PDF of a page's published changelog, or of one post.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	pageInfo, err := s.store.GetPage(ctx, req.PageID)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}

	var posts []store.Post
	if req.PostID != "" {
		post, err := s.store.GetPost(ctx, req.PostID)
		if err != nil {
			return nil, fmt.Errorf("get post: %w", err)
		}
		if post.PageID != req.PageID {
			return nil, ErrContentUnavailable
		}
		posts = []store.Post{post}
	} else {
		posts, err = s.store.ListPosts(ctx, req.PageID, true)
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
	}

	data := TemplateData{
		PageTitle:       pageInfo.Title,
		PageDescription: pageInfo.Description,
		GeneratedAt:     time.Now(),
	}
	for _, post := range posts {
		body, err := s.renderMarkdown(post.Content)
		if err != nil {
			return nil, fmt.Errorf("render post %s: %w", post.ID, err)
		}
		publishedAt := post.CreatedAt
		if post.PublishedAt != nil {
			publishedAt = *post.PublishedAt
		}
		data.Posts = append(data.Posts, TemplatePost{
			Title:       post.Title,
			BodyHTML:    body,
			Tags:        post.Tags,
			PublishedAt: publishedAt,
		})
	}

	html, err := RenderChangelogHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := pageInfo.Title
	if req.PostID != "" && len(posts) == 1 {
		title = posts[0].Title
	}
	return exportPDF(html, title)
}

func (s *Service) renderMarkdown(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
