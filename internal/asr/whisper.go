// Package asr is a websocket client for a local whisper-stream speech
// recognition server. Each utterance is sent as binary PCM followed by an
// end marker; the server answers with a single transcript message.
package asr

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
)

// Binary audio is written in chunks of this many bytes (100ms at 16kHz).
const pcmChunkBytes = 3200

type endMessage struct {
	Type string `json:"type"`
}

type resultMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Client is a streaming transcriber. Requests are serialized: the wake-word
// spotter and the utterance path never interleave audio on the wire.
type Client struct {
	cfg    config.ASRConfig
	log    zerolog.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient builds a client for the configured whisper-stream endpoint. The
// connection is established lazily on first use.
func NewClient(cfg config.ASRConfig, log zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		log:    log.With().Str("component", "asr").Logger(),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Connect dials the recognition server. Safe to call repeatedly.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, resp, err := c.dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			c.log.Error().Int("status", resp.StatusCode).Msg("recognition server handshake failed")
		}
		return fmt.Errorf("connect to recognition server: %w", err)
	}
	c.conn = conn
	c.log.Info().Str("url", c.cfg.URL).Msg("connected to recognition server")
	return nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Transcribe sends one utterance and waits for its transcript. Inaudible
// audio yields an empty string from the server, which is passed through
// unchanged. A transport failure drops the connection so the next call can
// redial.
func (c *Client) Transcribe(ctx context.Context, samples []float32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.send(samples, deadline); err != nil {
		c.drop()
		return "", err
	}

	text, err := c.awaitResult(deadline)
	if err != nil {
		c.drop()
		return "", err
	}
	return text, nil
}

func (c *Client) send(samples []float32, deadline time.Time) error {
	pcm := encodePCM16LE(samples)
	c.conn.SetWriteDeadline(deadline)
	for off := 0; off < len(pcm); off += pcmChunkBytes {
		end := off + pcmChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
	if err := c.conn.WriteJSON(endMessage{Type: "end"}); err != nil {
		return fmt.Errorf("send end marker: %w", err)
	}
	return nil
}

func (c *Client) awaitResult(deadline time.Time) (string, error) {
	c.conn.SetReadDeadline(deadline)
	for {
		var msg resultMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return "", fmt.Errorf("read transcript: %w", err)
		}
		switch msg.Type {
		case "transcript":
			return msg.Text, nil
		case "error":
			return "", fmt.Errorf("recognition server: %s", msg.Error)
		default:
			// Status messages between requests are ignored.
		}
	}
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// encodePCM16LE converts [-1,1] float samples to 16-bit little-endian PCM.
func encodePCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		}
		if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
