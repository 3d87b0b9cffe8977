// Package github receives GitHub webhooks and turns merged pull
// requests into queued draft-post candidates.
package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// PullRequestEvent is the subset of the GitHub pull_request payload we
// consume.
type PullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Title   string `json:"title"`
		Body    string `json:"body"`
		Merged  bool   `json:"merged"`
		HTMLURL string `json:"html_url"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
}

// MergedPR is the normalized record queued for draft generation.
type MergedPR struct {
	InstallationID int64  `json:"installationId"`
	RepoFullName   string `json:"repoFullName"`
	Number         int    `json:"number"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	Author         string `json:"author"`
	URL            string `json:"url"`
}

// VerifySignature checks a GitHub X-Hub-Signature-256 header against the
// raw request body using HMAC-SHA256.
func VerifySignature(body []byte, secret, signature string) bool {
	if signature == "" || secret == "" {
		return false
	}

	// GitHub prefixes the hex digest with "sha256="
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// ParsePullRequestEvent decodes a pull_request webhook payload and
// returns the merged-PR record, or ok=false when the event is not a
// merge we care about.
func ParsePullRequestEvent(body []byte) (MergedPR, bool, error) {
	var event PullRequestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return MergedPR{}, false, fmt.Errorf("decode pull_request payload: %w", err)
	}

	if event.Action != "closed" || !event.PullRequest.Merged {
		return MergedPR{}, false, nil
	}

	return MergedPR{
		InstallationID: event.Installation.ID,
		RepoFullName:   event.Repository.FullName,
		Number:         event.Number,
		Title:          event.PullRequest.Title,
		Body:           event.PullRequest.Body,
		Author:         event.PullRequest.User.Login,
		URL:            event.PullRequest.HTMLURL,
	}, true, nil
}
