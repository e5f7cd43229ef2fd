package orchestrator

import "strings"

// PhraseSegmenter accumulates LLM output tokens and yields prosodically
// plausible phrase-sized spans for TTS. One segmenter is scoped to a single
// turn: code-fence state does not carry over to the next turn.
type PhraseSegmenter struct {
	buf     strings.Builder
	inFence bool
}

func NewPhraseSegmenter() *PhraseSegmenter {
	return &PhraseSegmenter{}
}

// Push appends a token and reports a phrase if a trigger fired: a newline in
// the buffer, the buffer ending in terminal punctuation, or the buffer
// reaching the 140-character hard cap that bounds TTS latency on long
// unpunctuated runs.
func (p *PhraseSegmenter) Push(token string) (string, bool) {
	p.buf.WriteString(token)
	s := p.buf.String()

	trigger := strings.Contains(s, "\n") ||
		strings.HasSuffix(s, ".") ||
		strings.HasSuffix(s, "!") ||
		strings.HasSuffix(s, "?") ||
		len(s) >= 140

	if !trigger {
		return "", false
	}
	return p.Flush()
}

// Flush yields and clears whatever remains in the buffer, used both on a
// normal trigger and at end-of-turn to drain a trailing partial phrase.
func (p *PhraseSegmenter) Flush() (string, bool) {
	out := strings.TrimSpace(p.buf.String())
	p.buf.Reset()
	if out == "" {
		return "", false
	}
	return p.stripForTTS(out), true
}

// stripPunct is punctuation that reads badly when spoken by TTS but is
// harmless once the text has served its LLM-output-parsing purpose.
const stripPunct = ".~*&-,;:()[]{}\"'"

// stripForTTS removes stripPunct characters from phrase, except inside
// fenced code blocks delimited by triple-backticks. Fence state is tracked
// on the segmenter so a fence opened in one phrase and closed in a later
// one within the same turn is still respected.
func (p *PhraseSegmenter) stripForTTS(phrase string) string {
	var out strings.Builder
	runes := []rune(phrase)
	for i := 0; i < len(runes); i++ {
		if i+2 < len(runes) && runes[i] == '`' && runes[i+1] == '`' && runes[i+2] == '`' {
			p.inFence = !p.inFence
			out.WriteString("```")
			i += 2
			continue
		}
		if p.inFence || !strings.ContainsRune(stripPunct, runes[i]) {
			out.WriteRune(runes[i])
		}
	}
	return out.String()
}
