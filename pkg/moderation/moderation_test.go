package moderation

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"
)

func TestModerate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "Hello world", "Hello world"},
		{"empty", "", ""},
		{"phone", "call me at 0812-3456-7890", "call me at [nomor telepon dihapus]"},
		{"phone country code", "wa +62 812 3456 7890 ya", "wa [nomor telepon dihapus] ya"},
		{"url", "lihat https://example.com/x?y=1 ok", "lihat [tautan dihapus] ok"},
		{"www", "WWW.Example.com", "[tautan dihapus]"},
		{"profanity case-insensitive", "dasar GOBLOK", "dasar ******"},
		{"profanity substring", "dickens", "****ens"},
		{"concatenated", "anjingbangsat", "*************"},
		{"all stages", "shit 021-555-1234 www.x.y", "**** [nomor telepon dihapus] [tautan dihapus]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Moderate(tc.in); got != tc.want {
				t.Fatalf("Moderate(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMaskKeepsRuneLength(t *testing.T) {
	m := New([]string{"jalan", "é"})
	if got := m.Moderate("café JALAN"); got != "caf* *****" {
		t.Fatalf("got %q", got)
	}
}

func TestRedactReport(t *testing.T) {
	out, rep := Redact("bego bego 0812-3456-7890 http://a.b")
	if rep.Profanity != 2 || rep.Phones != 1 || rep.URLs != 1 || rep.Total() != 4 {
		t.Fatalf("unexpected report %+v for %q", rep, out)
	}
}

func TestEmptyBlockListTokensIgnored(t *testing.T) {
	m := New([]string{"", "  ", "bad"})
	if got := m.Moderate("not bad"); got != "not ***" {
		t.Fatalf("got %q", got)
	}
}

var alphabet = []string{
	"a", "b", "x", " ", "-", "+", "(", ")", ".", "/", ":", "0", "1", "8", "9",
	"www.", "http://", "https://", "fuck", "Bego", "anjing", "0812", "3456",
	"[", "]", "*", "é", "日本", "\n", "\t",
	PhonePlaceholder, URLPlaceholder,
}

func randomText(r *rand.Rand) string {
	var b strings.Builder
	n := r.Intn(24)
	for i := 0; i < n; i++ {
		b.WriteString(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}

func TestModerateIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		in := randomText(r)
		once := Moderate(in)
		if twice := Moderate(once); twice != once {
			t.Fatalf("not idempotent for %q:\n once  %q\n twice %q", in, once, twice)
		}
	}
}

func TestModerateRemovesRawPatterns(t *testing.T) {
	words := make([]*regexp.Regexp, 0, len(DefaultBlockList))
	for _, w := range DefaultBlockList {
		words = append(words, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(w)))
	}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		out := Moderate(randomText(r))
		for _, re := range words {
			if re.MatchString(out) {
				t.Fatalf("blocked token %s survived in %q", re, out)
			}
		}
		if phonePattern.MatchString(out) {
			t.Fatalf("phone survived in %q", out)
		}
		if urlPattern.MatchString(out) {
			t.Fatalf("url survived in %q", out)
		}
	}
}
