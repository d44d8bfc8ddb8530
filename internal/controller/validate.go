package controller

import (
	"regexp"
	"strings"
)

// Replies are never longer than this many sentences, whatever the strategy
// allows.
const maxReplySentences = 3

var (
	connectorAndThen = regexp.MustCompile(`(?i),\s*and then\b`)
	connectorThen    = regexp.MustCompile(`(?i),\s*then\b`)
)

// splitSentences splits a reply into sentence-like chunks on '.', '!', '?'
// and newlines, retaining the punctuation. Used both for validation and for
// chunk-wise playback so interrupted replies are recorded per sentence.
func splitSentences(text string) []string {
	txt := strings.TrimSpace(text)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			if chunk := strings.TrimSpace(b.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			if chunk := strings.TrimSpace(b.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if tail := strings.TrimSpace(b.String()); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// ValidateResponse simplifies a generated reply before it is spoken: at most
// maxSentences sentences (hard cap 3), multi-step connectors broken into
// separate statements, and any sentence with more than two commas truncated
// at its second comma. One instruction at a time, always.
func ValidateResponse(text string, maxSentences int) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if maxSentences < 1 || maxSentences > maxReplySentences {
		maxSentences = maxReplySentences
	}

	sentences := splitSentences(text)
	if len(sentences) > maxSentences {
		sentences = sentences[:maxSentences]
	}

	validated := make([]string, 0, len(sentences))
	for _, s := range sentences {
		s = connectorAndThen.ReplaceAllString(s, ".")
		s = connectorThen.ReplaceAllString(s, ".")

		if parts := strings.Split(s, ","); len(parts) > 3 {
			s = strings.TrimRight(strings.Join(parts[:3], ","), " ") + "."
		}
		validated = append(validated, strings.TrimSpace(s))
	}
	return strings.Join(validated, " ")
}
