package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"strings"

	"changespage/api/internal/search"
	"changespage/api/internal/store"
	"changespage/api/internal/util"
)

// --- Public changelog ---

// PublicPage returns a page and its published posts by slug. Draft posts
// never appear here.
func (s *Service) PublicPage(ctx context.Context, slug string) (map[string]any, error) {
	page, err := s.store.GetPageBySlug(ctx, slug)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	}
	posts, err := s.store.ListPosts(ctx, page.ID, true)
	if err != nil {
		return nil, err
	}
	boards, err := s.store.ListBoardsByPage(ctx, page.ID)
	if err != nil {
		return nil, err
	}

	postsPayload := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		postsPayload = append(postsPayload, postPayload(post))
	}
	boardsPayload := make([]map[string]any, 0)
	for _, board := range boards {
		if board.IsPublic {
			boardsPayload = append(boardsPayload, boardPayload(board))
		}
	}

	payload := pagePayload(page)
	payload["posts"] = postsPayload
	payload["boards"] = boardsPayload
	return payload, nil
}

func (s *Service) PublicPost(ctx context.Context, slug, postID string) (map[string]any, error) {
	page, err := s.store.GetPageBySlug(ctx, slug)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil || post.PageID != page.ID || post.Status != "published" {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
	}
	return postPayload(post), nil
}

// --- Public roadmap ---

func (s *Service) PublicBoard(ctx context.Context, boardID string) (map[string]any, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil || !board.IsPublic {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Board not found", nil)
	}
	return s.boardView(ctx, board)
}

// ToggleVote flips a visitor's vote on an item. Visitors are identified
// by a fingerprint of address and user agent, not an account.
func (s *Service) ToggleVote(ctx context.Context, itemID, ip, userAgent string) (map[string]any, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}
	board, err := s.store.GetBoard(ctx, item.BoardID)
	if err != nil || !board.IsPublic {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Item not found", nil)
	}

	added, err := s.store.ToggleItemVote(ctx, itemID, visitorFingerprint(ip, userAgent))
	if err != nil {
		return nil, err
	}
	s.invalidateBoard(item.BoardID)
	return map[string]any{"itemId": itemID, "voted": added}, nil
}

// SubmitTriage files a visitor idea for the board owner to review.
func (s *Service) SubmitTriage(ctx context.Context, boardID, title, description, ip string) (map[string]any, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil || !board.IsPublic {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Board not found", nil)
	}
	if title = strings.TrimSpace(title); title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	item := store.TriageItem{
		ID:          util.NewID("tri"),
		BoardID:     board.ID,
		Title:       title,
		Description: strings.TrimSpace(description),
		SubmitterIP: ip,
		Status:      "pending",
	}
	if err := s.store.InsertTriageItem(ctx, item); err != nil {
		return nil, err
	}
	return triagePayload(item), nil
}

// --- Public search ---

func (s *Service) PublicSearch(ctx context.Context, slug, text, filterType string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search not configured", nil)
	}
	page, err := s.store.GetPageBySlug(ctx, slug)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	}
	response := s.search.Search(search.Query{
		Text:         text,
		FilterType:   search.ResultType(filterType),
		FilterPageID: page.ID,
		Limit:        limit,
		Offset:       offset,
		PublicOnly:   true,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"backend": response.Backend,
	}, nil
}

// --- Subscriptions ---

// Subscribe files an unconfirmed subscriber and sends a confirmation
// link. Re-subscribing an existing address resends the link instead of
// duplicating the row.
func (s *Service) Subscribe(ctx context.Context, slug, address string) (map[string]any, error) {
	page, err := s.store.GetPageBySlug(ctx, slug)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	}
	address = strings.ToLower(strings.TrimSpace(address))
	if _, err := mail.ParseAddress(address); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a valid email address is required", nil)
	}

	subscriber, err := s.findSubscriber(ctx, page.ID, address)
	if err != nil {
		return nil, err
	}
	if subscriber == nil {
		created := store.Subscriber{
			ID:     util.NewID("sub"),
			PageID: page.ID,
			Email:  address,
		}
		if err := s.store.InsertSubscriber(ctx, created); err != nil {
			return nil, err
		}
		subscriber = &created
	}

	if !subscriber.Confirmed && s.mail != nil && s.mail.IsConfigured() {
		confirmURL := fmt.Sprintf("%s/api/public/subscribers/%s/confirm", strings.TrimRight(s.cfg.PublicBaseURL, "/"), subscriber.ID)
		if err := s.mail.SendSubscribeConfirmation(address, page.Title, confirmURL); err != nil {
			log.Printf("app: send subscribe confirmation to %s: %v", address, err)
		}
	}
	return map[string]any{"subscribed": true, "confirmed": subscriber.Confirmed}, nil
}

func (s *Service) ConfirmSubscriber(ctx context.Context, subscriberID string) error {
	return s.store.ConfirmSubscriber(ctx, subscriberID)
}

func (s *Service) Unsubscribe(ctx context.Context, subscriberID string) error {
	return s.store.DeleteSubscriberByID(ctx, subscriberID)
}

func (s *Service) ListSubscribers(ctx context.Context, session Session, pageID string) ([]map[string]any, error) {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return nil, err
	}
	subscribers, err := s.store.ListSubscribers(ctx, pageID, false)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(subscribers))
	for _, subscriber := range subscribers {
		payload = append(payload, map[string]any{
			"id":        subscriber.ID,
			"email":     subscriber.Email,
			"confirmed": subscriber.Confirmed,
			"createdAt": subscriber.CreatedAt,
		})
	}
	return payload, nil
}

// RemoveSubscriber lets the page owner drop an address directly, e.g.
// after a bounce report.
func (s *Service) RemoveSubscriber(ctx context.Context, session Session, pageID, address string) error {
	if _, err := s.ownedPage(ctx, session, pageID); err != nil {
		return err
	}
	return s.store.DeleteSubscriber(ctx, pageID, address)
}

func (s *Service) findSubscriber(ctx context.Context, pageID, address string) (*store.Subscriber, error) {
	subscribers, err := s.store.ListSubscribers(ctx, pageID, false)
	if err != nil {
		return nil, err
	}
	for _, subscriber := range subscribers {
		if strings.EqualFold(subscriber.Email, address) {
			return &subscriber, nil
		}
	}
	return nil, nil
}
