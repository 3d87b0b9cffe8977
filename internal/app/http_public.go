package app

import (
	"net/http"
	"strconv"
	"strings"
)

// handlePublic routes everything under /api/public/. No bearer token is
// required; visibility rules live in the service layer.
func (s *HTTPServer) handlePublic(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "public" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	rest := parts[2:]

	switch rest[0] {
	case "pages":
		s.handlePublicPages(w, r, rest[1:])
	case "boards":
		s.handlePublicBoards(w, r, rest[1:])
	case "items":
		if len(rest) == 3 && rest[2] == "vote" && r.Method == http.MethodPost {
			payload, err := s.service.ToggleVote(r.Context(), rest[1], clientIP(r), r.UserAgent())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case "subscribers":
		s.handlePublicSubscribers(w, r, rest[1:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePublicPages(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	slug := rest[0]

	if len(rest) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		payload, err := s.service.PublicPage(r.Context(), slug)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	switch rest[1] {
	case "posts":
		if len(rest) == 3 && r.Method == http.MethodGet {
			payload, err := s.service.PublicPost(r.Context(), slug, rest[2])
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	case "search":
		if len(rest) == 2 && r.Method == http.MethodGet {
			query := r.URL.Query()
			limit, offset, ok := paging(w, query.Get("limit"), query.Get("offset"))
			if !ok {
				return
			}
			payload, err := s.service.PublicSearch(r.Context(), slug, strings.TrimSpace(query.Get("q")), strings.TrimSpace(query.Get("type")), limit, offset)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	case "subscribe":
		if len(rest) == 2 && r.Method == http.MethodPost {
			var body struct {
				Email string `json:"email"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.Subscribe(r.Context(), slug, body.Email)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePublicBoards(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 1 && r.Method == http.MethodGet {
		payload, err := s.service.PublicBoard(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}
	if len(rest) == 2 && rest[1] == "triage" && r.Method == http.MethodPost {
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SubmitTriage(r.Context(), rest[0], body.Title, body.Description, clientIP(r))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Confirm and unsubscribe accept GET as well as POST because they are
// followed from email links.
func (s *HTTPServer) handlePublicSubscribers(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 2 || (r.Method != http.MethodGet && r.Method != http.MethodPost) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	subscriberID := rest[0]
	switch rest[1] {
	case "confirm":
		if err := s.service.ConfirmSubscriber(r.Context(), subscriberID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"confirmed": true})
	case "unsubscribe":
		if err := s.service.Unsubscribe(r.Context(), subscriberID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"unsubscribed": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// paging parses optional limit/offset query params, writing a validation
// error itself when they are malformed.
func paging(w http.ResponseWriter, rawLimit, rawOffset string) (limit, offset int, ok bool) {
	limit = 20
	if raw := strings.TrimSpace(rawLimit); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return 0, 0, false
		}
		limit = parsed
	}
	if raw := strings.TrimSpace(rawOffset); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}
