// Package llmsvc talks to an OpenAI compatible chat completions API.
package llmsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/ai"
)

const (
	tutorPrompt = "You are a patient tutor for secondary school students. " +
		"Answer the question clearly and briefly, explaining the reasoning step by step."
	quizPrompt = "You write multiple choice quizzes for secondary school teachers. " +
		`Reply with JSON only, shaped as {"questions": [{"prompt": "...", "choices": ["...", "...", "...", "..."], "answer": 0}]} ` +
		"where answer is the index of the correct choice."
)

var (
	// errors
	ErrNotConfigured = errors.New("llm: API key is missing")
	ErrEmptyResponse = errors.New("llm: empty response")
)

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

var _ ai.Assistant = (*Client)(nil) // interface compliance check

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      opts.Model,
	}
}

// NewAssistant returns the configured LLM client, or the offline assistant when no API key is set.
func NewAssistant(conf *core.Config, logger core.Logger) ai.Assistant {
	if strings.TrimSpace(conf.LLM.APIKey) == "" {
		logger.Warn("LLM API key not set, AI features answer offline")
		return Offline{}
	}
	return NewClient(Options{
		BaseURL: conf.LLM.BaseURL,
		APIKey:  conf.LLM.APIKey,
		Model:   conf.LLM.Model,
		Timeout: conf.LLM.Timeout,
	})
}

type (
	message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model          string            `json:"model"`
		Messages       []message         `json:"messages"`
		Temperature    float64           `json:"temperature"`
		ResponseFormat map[string]string `json:"response_format,omitempty"`
	}

	chatResponse struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
)

func (c *Client) chat(ctx context.Context, payload chatRequest) (string, error) {
	if c.token == "" {
		return "", ErrNotConfigured
	}
	payload.Model = c.model

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "encoding chat request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "creating chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "calling llm")
	}
	defer func() { _ = resp.Body.Close() }()

	var out chatResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("llm: http %d", resp.StatusCode)
		}
		return "", errors.Wrap(err, "decoding chat response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("llm error: %s (%s)", out.Error.Message, out.Error.Type)
		}
		return "", fmt.Errorf("llm: http %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *Client) Tutor(ctx context.Context, question string) (string, error) {
	return c.chat(ctx, chatRequest{
		Messages: []message{
			{Role: "system", Content: tutorPrompt},
			{Role: "user", Content: question},
		},
		Temperature: 0.3,
	})
}

func (c *Client) GenerateQuiz(ctx context.Context, topic string, n int) (ai.Quiz, error) {
	content, err := c.chat(ctx, chatRequest{
		Messages: []message{
			{Role: "system", Content: quizPrompt},
			{Role: "user", Content: fmt.Sprintf("Write %d questions about: %s", n, topic)},
		},
		Temperature:    0.7,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return ai.Quiz{}, err
	}

	quiz := ai.Quiz{Topic: topic}
	if err = json.Unmarshal([]byte(stripFences(content)), &quiz); err != nil {
		return ai.Quiz{}, errors.Wrap(err, "decoding quiz")
	}
	if len(quiz.Questions) > n {
		quiz.Questions = quiz.Questions[:n]
	}
	return quiz, nil
}

// stripFences removes the markdown code fences models sometimes wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
