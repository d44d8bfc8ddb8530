package mood

import "strings"

// Per-mood keyword sets for text-based detection. Built once; never mutated
// at runtime. Multi-word entries match as phrases.
var moodKeywords = map[Mood][]string{
	Happy: {
		"happy", "fun", "love", "yay", "great", "like", "good", "nice",
		"wow", "cool", "awesome", "play", "laugh", "smile", "friend",
		"thank", "yes", "okay", "sure", "excited", "best", "enjoy",
	},
	Sad: {
		"sad", "cry", "hurt", "miss", "don't want", "go away", "alone",
		"tired", "sorry", "bad", "hate", "lost", "gone", "never", "nobody",
		"leave", "boring", "wish", "why",
	},
	Frustrated: {
		"can't", "stupid", "hate", "no", "stop", "don't", "wrong",
		"hard", "impossible", "ugh", "again", "not fair", "annoying",
		"shut up", "dumb", "break", "angry", "mad",
	},
	Anxious: {
		"scared", "afraid", "don't know", "help", "nervous", "worried",
		"what if", "maybe", "um", "uh", "panic", "dark", "monster",
		"loud", "too much", "can't do",
	},
}

// Short acknowledgments that read as positive engagement rather than
// disengagement.
var positiveShorts = map[string]bool{
	"yes": true, "yeah": true, "okay": true, "ok": true, "good": true,
	"sure": true, "yay": true, "hi": true, "hello": true,
}

// Hesitation fillers carry no mood signal on their own.
var fillerWords = map[string]bool{
	"um": true, "uh": true, "hmm": true, "hm": true, "mm": true, "er": true,
}

func allFiller(words []string) bool {
	for _, w := range words {
		if !fillerWords[w] {
			return false
		}
	}
	return len(words) > 0
}

// normalizeText lowercases and strips punctuation (apostrophes kept so
// contractions like "can't" survive), collapsing everything else to spaces.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsKeyword matches kw against normalized text on word boundaries, so
// "no" does not fire inside "know".
func containsKeyword(norm, kw string) bool {
	return strings.Contains(" "+norm+" ", " "+kw+" ")
}

// keywordScore returns the matched-keyword fraction for one mood's set.
func keywordScore(norm string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matches := 0
	for _, kw := range keywords {
		if containsKeyword(norm, kw) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}
