package chat

import (
	"communitychat/pkg/models"
	"communitychat/pkg/present"
)

// View is one render of the feed.
type View struct {
	Days []present.DayGroup
	// Visible counts messages across Days; Total includes deleted ones.
	Visible int
	Total   int
	me      string
}

// Mine reports whether the local participant wrote m.
func (v View) Mine(m models.Message) bool { return v.me != "" && m.AuthorID == v.me }

// Avatar returns the badge style for m's author.
func (v View) Avatar(m models.Message) present.Avatar { return present.AvatarFor(m.AuthorID) }
