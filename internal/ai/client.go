// Package ai drafts and polishes changelog copy via an OpenAI-compatible
// chat completions API.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const draftSystemPrompt = `You are a changelog writing assistant. Given rough notes about a software release, write a clear, friendly changelog post in Markdown. Lead with the most user-visible change. Keep it under 300 words. Do not invent features that are not in the notes.`

const proofreadSystemPrompt = `You are a copy editor for changelog posts. Fix grammar, spelling, and awkward phrasing in the text you are given. Preserve the author's voice and all Markdown formatting. Return only the corrected text.`

const titleSystemPrompt = `Suggest a short, concrete title for this changelog post. Return only the title, no quotes, at most 8 words.`

// Config holds the LLM provider settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates an AI client.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		http:   &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured reports whether an LLM provider is configured.
func (c *Client) IsConfigured() bool {
	return c.config.BaseURL != "" && c.config.Model != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Proofread returns a corrected version of the given post content.
func (c *Client) Proofread(ctx context.Context, content string) (string, error) {
	return c.complete(ctx, proofreadSystemPrompt, content)
}

// SuggestTitle proposes a title for the given post content.
func (c *Client) SuggestTitle(ctx context.Context, content string) (string, error) {
	title, err := c.complete(ctx, titleSystemPrompt, content)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(title), `"`), nil
}

// DraftChangelog streams a generated changelog draft, invoking onChunk
// for each piece of content as the model produces it.
func (c *Client) DraftChangelog(ctx context.Context, notes string, onChunk func(string) error) error {
	if !c.IsConfigured() {
		return fmt.Errorf("ai not configured")
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []message{
			{Role: "system", Content: draftSystemPrompt},
			{Role: "user", Content: notes},
		},
		Stream:      true,
		Temperature: 0.7,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llm error (status %d): %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onChunk(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("ai not configured")
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return apiResponse.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	return resp, nil
}
