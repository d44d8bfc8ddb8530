// Package llm streams replies from a local Ollama-compatible dialogue
// server.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/engine"
)

// Fallback is spoken whenever the dialogue engine fails. Fixed wording so a
// failure never produces surprising speech.
const Fallback = "I am sorry, I am having trouble thinking right now. Let us try again."

// DefaultSystemPrompt encodes the behavioral rules. It always precedes any
// user-supplied text in the assembled prompt.
const DefaultSystemPrompt = "You are Petal, a gentle and encouraging companion for children who need " +
	"predictable, calm interaction. Follow these rules strictly:\n" +
	"1. Use very short sentences.\n" +
	"2. Use simple, clear vocabulary.\n" +
	"3. Be calm, patient, and non-judgmental.\n" +
	"4. Provide only one instruction or thought at a time.\n" +
	"5. Avoid sarcasm, metaphors, or ambiguous language.\n" +
	"6. Always be encouraging and positive.\n" +
	"7. Do not make medical or psychological claims.\n"

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Client talks to the dialogue server over its line-JSON streaming API.
type Client struct {
	cfg  config.LLMConfig
	log  zerolog.Logger
	http *http.Client
}

// NewClient builds a dialogue client.
func NewClient(cfg config.LLMConfig, log zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		log: log.With().Str("component", "llm").Logger(),
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Generate streams one reply. The chunk channel closes when generation
// completes; a transport or server failure arrives on the error channel.
func (c *Client) Generate(ctx context.Context, req engine.GenerateRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = c.cfg.MaxTokens
		}
		body, err := json.Marshal(generateRequest{
			Model:  c.cfg.Model,
			Prompt: BuildPrompt(req),
			Stream: true,
			Options: generateOptions{
				// Low temperature keeps phrasing predictable.
				Temperature: 0.4,
				TopP:        0.9,
				NumPredict:  maxTokens,
				Stop:        []string{"User:", "User says:"},
			},
		})
		if err != nil {
			errs <- fmt.Errorf("marshal generate request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			errs <- fmt.Errorf("build generate request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.http.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("dialogue request: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			errs <- fmt.Errorf("dialogue server returned status %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		total := 0
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				errs <- fmt.Errorf("decode stream chunk: %w", err)
				return
			}
			if chunk.Response != "" {
				total += len(chunk.Response)
				select {
				case chunks <- chunk.Response:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if chunk.Done {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("read stream: %w", err)
			return
		}
		c.log.Debug().
			Int("chars", total).
			Dur("elapsed", time.Since(start)).
			Msg("generation complete")
	}()

	return chunks, errs
}

// BuildPrompt assembles the full prompt. Structural order is fixed: safety
// rules first, then the structured session block, internal guidance, rolling
// history, and the user's words last.
func BuildPrompt(req engine.GenerateRequest) string {
	var b strings.Builder

	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	b.WriteString(system)

	if req.SessionSummary != "" {
		b.WriteString("\n")
		b.WriteString(req.SessionSummary)
		b.WriteString("\n")
	}
	for _, g := range req.Guidance {
		if g == "" {
			continue
		}
		b.WriteString("\n[Internal guidance, never say this aloud] ")
		b.WriteString(g)
	}
	if req.History != "" {
		b.WriteString("\n")
		b.WriteString(req.History)
	}
	b.WriteString("\nUser says: ")
	b.WriteString(req.UserText)
	b.WriteString("\nPetal says:")
	return b.String()
}
