package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const systemPrompt = `You are a professional medical AI assistant. Follow these rules strictly:
1. Ask one focused medical question at a time to gather necessary information
2. Structure questions in logical sequence: onset, characteristics, associated symptoms, severity
3. Consider differential diagnoses with ICD-10 codes (include 3-5 possibilities)
4. Recommend OTC medications (e.g., ibuprofen, loperamide, antacids) with dosage guidelines when appropriate
5. Always clarify: "When did this start?" "Has this happened before?" "What makes it better/worse?"
6. Use only English and maintain professional tone
7. For serious symptoms (chest pain, difficulty breathing), advise immediate emergency care
8. Explain medical terms in simple language between parentheses
9. End with "Preliminary Assessment:" when sufficient data is collected`

// ErrAllModelsFailed is returned when no model in the fallback list produced
// a usable completion.
var ErrAllModelsFailed = errors.New("all models failed to respond")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	BaseURL string
	APIKey  string
	// Models is tried in order; the first model that returns a non-empty
	// completion wins.
	Models  []string
	Referer string
	Title   string
}

// Client talks to an OpenRouter-compatible chat completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{
			"google/gemini-2.0-flash-thinking-exp:free",
			"anthropic/claude-3-haiku:free",
			"google/gemini-pro:free",
		}
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete prepends the medical system prompt, walks the model fallback list,
// and returns the first completion with ICD-10 codes bracketed.
func (c *Client) Complete(ctx context.Context, history []Message) (string, error) {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)

	for _, model := range c.cfg.Models {
		content, err := c.complete(ctx, model, messages)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("model completion failed", "model", model, "err", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			c.logger.Warn("model returned empty completion", "model", model)
			continue
		}
		return AnnotateICDCodes(content), nil
	}
	return "", ErrAllModelsFailed
}

func (c *Client) complete(ctx context.Context, model string, messages []Message) (string, error) {
	raw, err := json.Marshal(completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completions returned %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	return parsed.Choices[0].Message.Content, nil
}

var icdCodePattern = regexp.MustCompile(`\b([A-Z]\d{2})\b`)

// AnnotateICDCodes wraps bare ICD-10 category codes (letter plus two digits)
// in brackets so the client can highlight them.
func AnnotateICDCodes(text string) string {
	return icdCodePattern.ReplaceAllString(text, "[$1]")
}
