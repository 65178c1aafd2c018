package chat

import "strings"

// channelSeparator joins the two participant PINs. It is not a valid PIN
// character, so channel ids split unambiguously.
const channelSeparator = "_"

// ChannelID returns the canonical channel identifier for two participants.
// The id is order independent: ChannelID(a, b) == ChannelID(b, a).
func ChannelID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + channelSeparator + b
}

// SplitChannelID recovers the two participant PINs from a channel id. ok is
// false if the id does not have exactly two parts.
func SplitChannelID(id string) (a, b string, ok bool) {
	parts := strings.Split(id, channelSeparator)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
