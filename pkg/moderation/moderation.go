// Package moderation redacts profanity, phone numbers and links from
// user supplied text. Every function here is pure and total.
package moderation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaskChar         = "*"
	PhonePlaceholder = "[nomor telepon dihapus]"
	URLPlaceholder   = "[tautan dihapus]"
)

// DefaultBlockList holds the Indonesian and English tokens masked by default.
// Matching is by substring, so longer words containing a token are masked
// as well (e.g. "dickens").
var DefaultBlockList = []string{
	"anjing", "bangsat", "bajingan", "kontol", "memek", "jembut", "ngentot", "ngewe", "pepek",
	"pantek", "puki", "bego", "goblok", "idiot", "tolol", "kirek", "jancok", "jancuk", "fuck",
	"shit", "asshole", "bitch", "cunt", "dick", "pussy", "bastard", "motherfucker", "whore", "slut",
}

var (
	phonePattern = regexp.MustCompile(`(\+?\d{1,3}[- ]?)?\(?\d{2,3}\)?[- ]?\d{3,4}[- ]?\d{3,4}`)
	urlPattern   = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)
)

// Report counts what a single pass redacted.
type Report struct {
	Profanity int
	Phones    int
	URLs      int
}

// Total is the number of redactions of any kind.
func (r Report) Total() int { return r.Profanity + r.Phones + r.URLs }

// Moderator applies the redaction pipeline: profanity, then phone numbers,
// then URLs.
type Moderator struct {
	words []*regexp.Regexp
}

// New compiles a moderator for the given block-list. Empty tokens are ignored.
func New(blockList []string) *Moderator {
	m := &Moderator{}
	for _, w := range blockList {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		m.words = append(m.words, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(w)))
	}
	return m
}

var std = New(DefaultBlockList)

// Moderate runs the default pipeline over text.
func Moderate(text string) string {
	out, _ := std.Redact(text)
	return out
}

// Redact runs the default pipeline and reports what changed.
func Redact(text string) (string, Report) {
	return std.Redact(text)
}

// Moderate runs the pipeline over text.
func (m *Moderator) Moderate(text string) string {
	out, _ := m.Redact(text)
	return out
}

// Redact runs the pipeline over text and reports the number of replacements
// made by each stage.
func (m *Moderator) Redact(text string) (string, Report) {
	var rep Report
	if text == "" {
		return text, rep
	}
	out := text
	for _, re := range m.words {
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			rep.Profanity++
			return strings.Repeat(MaskChar, utf8.RuneCountInString(match))
		})
	}
	out = phonePattern.ReplaceAllStringFunc(out, func(string) string {
		rep.Phones++
		return PhonePlaceholder
	})
	out = urlPattern.ReplaceAllStringFunc(out, func(string) string {
		rep.URLs++
		return URLPlaceholder
	})
	return out, rep
}
