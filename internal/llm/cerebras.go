package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/engine"
)

// CerebrasClient is the hosted alternative to the local Ollama client. It
// streams replies from an OpenAI-compatible chat completions endpoint over
// server-sent events.
type CerebrasClient struct {
	cfg  config.LLMConfig
	log  zerolog.Logger
	http *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stop      []string      `json:"stop,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewCerebrasClient builds a hosted dialogue client.
func NewCerebrasClient(cfg config.LLMConfig, log zerolog.Logger) *CerebrasClient {
	return &CerebrasClient{
		cfg: cfg,
		log: log.With().Str("component", "llm").Str("provider", "cerebras").Logger(),
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Generate streams one reply. The prompt pieces map onto chat roles: safety
// rules, session state, and guidance travel as system messages so the model
// never treats them as something the child said.
func (c *CerebrasClient) Generate(ctx context.Context, req engine.GenerateRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if c.cfg.APIKey == "" {
			errs <- fmt.Errorf("cerebras: api key missing")
			return
		}

		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = c.cfg.MaxTokens
		}
		body, err := json.Marshal(chatRequest{
			Model:     c.cfg.Model,
			Messages:  chatMessages(req),
			Stream:    true,
			MaxTokens: maxTokens,
			Stop:      []string{"User:", "User says:"},
		})
		if err != nil {
			errs <- fmt.Errorf("marshal chat request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			errs <- fmt.Errorf("build chat request: %w", err)
			return
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("dialogue request: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			errs <- fmt.Errorf("dialogue server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			payload := bytes.TrimSpace(line[len("data:"):])
			if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
				if len(payload) != 0 {
					return
				}
				continue
			}
			var chunk chatStreamChunk
			if err := json.Unmarshal(payload, &chunk); err != nil {
				errs <- fmt.Errorf("decode stream event: %w", err)
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case chunks <- choice.Delta.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("read stream: %w", err)
		}
	}()

	return chunks, errs
}

func chatMessages(req engine.GenerateRequest) []chatMessage {
	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	msgs := []chatMessage{{Role: "system", Content: system}}
	if req.SessionSummary != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.SessionSummary})
	}
	for _, g := range req.Guidance {
		if g == "" {
			continue
		}
		msgs = append(msgs, chatMessage{Role: "system", Content: "[Internal guidance, never say this aloud] " + g})
	}

	var user strings.Builder
	if req.History != "" {
		user.WriteString(req.History)
		user.WriteString("\n")
	}
	user.WriteString("User says: ")
	user.WriteString(req.UserText)
	msgs = append(msgs, chatMessage{Role: "user", Content: user.String()})
	return msgs
}
