package present

import "unicode/utf16"

// Avatar is a pair of style tokens for an author's badge.
type Avatar struct {
	Color string
	Shape string
}

var (
	AvatarColors = []string{
		"bg-blue-500", "bg-purple-500", "bg-pink-500",
		"bg-red-500", "bg-orange-500", "bg-yellow-500",
		"bg-green-500", "bg-teal-500", "bg-indigo-500",
	}
	AvatarShapes = []string{
		"rounded-full",
		"rounded-lg",
		"rounded-2xl",
		"rounded-tl-full rounded-br-full",
		"rounded-tr-full rounded-bl-full",
	}
)

// AvatarFor picks a color and shape from the sum of the UTF-16 code units
// of id. The result depends only on id.
func AvatarFor(id string) Avatar {
	var sum int
	for _, u := range utf16.Encode([]rune(id)) {
		sum += int(u)
	}
	return Avatar{
		Color: AvatarColors[sum%len(AvatarColors)],
		Shape: AvatarShapes[sum%len(AvatarShapes)],
	}
}
