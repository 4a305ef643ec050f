package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/milanglacier/aichat/internal/logging"
	"github.com/milanglacier/aichat/internal/message"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 10 * time.Minute
	maxRetries     = 3
	// Minimum spacing between requests; cheap client-side protection
	// against provider rate limits.
	requestSpacing = 100 * time.Millisecond
)

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
// over plain HTTP with SSE streaming.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIClient builds a client from config, applying defaults for the
// base URL and timeout.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Request/response wire shapes for /chat/completions.

type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SendMessage performs a blocking, non-streaming exchange.
func (c *OpenAIClient) SendMessage(ctx context.Context, messages []message.Message, opts Options) (string, error) {
	body, err := c.roundTrip(ctx, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", fmt.Errorf("response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// SendMessageStreaming performs an SSE exchange, forwarding content deltas
// to onDelta. Cancellation mid-stream returns ctx.Err() together with the
// partial text accumulated so far.
func (c *OpenAIClient) SendMessageStreaming(ctx context.Context, messages []message.Message, opts Options, onDelta func(string)) (string, error) {
	body, err := c.roundTrip(ctx, messages, opts, true)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var reply strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return reply.String(), nil
		}

		var chunk apiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return reply.String(), fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				reply.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return reply.String(), ctx.Err()
		}
		return reply.String(), fmt.Errorf("stream error: %w", err)
	}
	if ctx.Err() != nil {
		return reply.String(), ctx.Err()
	}
	return reply.String(), nil
}

// roundTrip issues the request with bounded retries for transient failures
// (connection errors, 429, 5xx). The caller owns the returned body.
func (c *OpenAIClient) roundTrip(ctx context.Context, messages []message.Message, opts Options, stream bool) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	reqID := uuid.NewString()[:8]
	logging.APIDebug("[%s] request model=%s stream=%v messages=%d", reqID, opts.Model, stream, len(messages))

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < requestSpacing {
		time.Sleep(requestSpacing - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := apiRequest{
		Model:       opts.Model,
		Messages:    convertMessages(messages),
		Temperature: opts.Temperature,
		Stream:      stream,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			logging.APIWarn("[%s] retry %d after: %v", reqID, attempt, lastErr)
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if stream {
			req.Header.Set("Accept", "text/event-stream")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			logging.APIDebug("[%s] response status=200", reqID)
			return resp.Body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		default:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			logging.APIError("[%s] request rejected status=%d", reqID, resp.StatusCode)
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	logging.APIError("[%s] max retries exceeded: %v", reqID, lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// convertMessages maps internal messages onto the OpenAI wire shape: plain
// strings for text content, part lists for mixed content.
func convertMessages(messages []message.Message) []apiMessage {
	out := make([]apiMessage, 0, len(messages))
	for _, msg := range messages {
		var content any
		if msg.Content.IsText() {
			content = msg.Content.Text
		} else {
			content = msg.Content.Parts
		}
		out = append(out, apiMessage{Role: string(msg.Role), Content: content})
	}
	return out
}
