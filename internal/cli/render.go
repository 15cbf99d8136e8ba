package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"communitychat/pkg/chat"
	"communitychat/pkg/models"
	"communitychat/pkg/present"
)

// ansi colors for the avatar palette
var avatarANSI = map[string]string{
	"bg-blue-500":   "34",
	"bg-purple-500": "35",
	"bg-pink-500":   "95",
	"bg-red-500":    "31",
	"bg-orange-500": "38;5;208",
	"bg-yellow-500": "93",
	"bg-green-500":  "32",
	"bg-teal-500":   "36",
	"bg-indigo-500": "94",
}

var avatarGlyph = map[string]string{
	"rounded-full":                    "●",
	"rounded-lg":                      "■",
	"rounded-2xl":                     "◆",
	"rounded-tl-full rounded-br-full": "◣",
	"rounded-tr-full rounded-bl-full": "◢",
}

// renderer writes a View as plain text.
type renderer struct {
	out   io.Writer
	color bool
	width int
	clock func(models.Message) string
}

func (r *renderer) avatar(a present.Avatar) string {
	g := avatarGlyph[a.Shape]
	if g == "" {
		g = "●"
	}
	if !r.color {
		return g
	}
	return "\x1b[" + avatarANSI[a.Color] + "m" + g + "\x1b[0m"
}

func (r *renderer) header(label string) string {
	w := r.width
	if w <= 0 {
		w = 60
	}
	text := " " + label + " "
	pad := w - utf8.RuneCountInString(text)
	if pad < 4 {
		pad = 4
	}
	left := pad / 2
	return strings.Repeat("─", left) + text + strings.Repeat("─", pad-left)
}

// View prints day groups oldest first, each message on one line.
func (r *renderer) View(v chat.View) {
	if v.Visible == 0 {
		fmt.Fprintln(r.out, "(no messages yet)")
		return
	}
	for _, d := range v.Days {
		fmt.Fprintln(r.out, r.header(d.Label))
		for _, m := range d.Messages {
			name := m.AuthorName
			if v.Mine(m) {
				name += " (you)"
			}
			fmt.Fprintf(r.out, "%s %s %s  %s\n", r.clock(m), r.avatar(v.Avatar(m)), name, m.Text)
		}
	}
}

// IDs prints one message per line with its key, for use with unsend.
func (r *renderer) IDs(v chat.View) {
	for _, d := range v.Days {
		for _, m := range d.Messages {
			mark := " "
			if v.Mine(m) {
				mark = "*"
			}
			fmt.Fprintf(r.out, "%s %s %s %s: %s\n", mark, m.ID, r.clock(m), m.AuthorName, m.Text)
		}
	}
}
