package assistant

import "strings"

// calendarKeywords are matched as substrings of each word, so "meetings"
// and "rescheduled" both count.
var calendarKeywords = []string{
	"calendar",
	"schedule",
	"event",
	"appointment",
	"meeting",
	"reminder",
	"agenda",
}

// IsCalendarQuery reports whether text talks about the user's calendar and
// returns the keywords that matched, in keyword order.
func IsCalendarQuery(text string) (bool, []string) {
	words := strings.Fields(strings.ToLower(text))

	var matched []string
	for _, keyword := range calendarKeywords {
		for _, word := range words {
			if strings.Contains(word, keyword) {
				matched = append(matched, keyword)
				break
			}
		}
	}
	return len(matched) > 0, matched
}
