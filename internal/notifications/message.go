package notifications

import (
	"html"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatCount renders a count with thousands separators
func FormatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

// MilestoneHTML builds the HTML milestone message used by chat channels
func MilestoneHTML(handle string, threshold, count int64, at time.Time) string {
	return printer.Sprintf("🎉 <b>Milestone Achieved!</b>\n\n"+
		"Your Instagram account <b>@%s</b> has reached <b>%d</b> followers!\n\n"+
		"📊 Current count: <b>%d</b> followers\n"+
		"⏰ Achieved at: %s\n",
		html.EscapeString(handle), threshold, count, at.UTC().Format("2006-01-02 15:04 UTC"))
}

// MilestoneSubject is the e-mail subject for a milestone
func MilestoneSubject(handle string, threshold int64) string {
	return printer.Sprintf("@%s reached %d followers", handle, threshold)
}

// MilestoneText is the plain text milestone body
func MilestoneText(handle string, threshold, count int64, at time.Time) string {
	return printer.Sprintf("Milestone achieved!\n\n"+
		"Your Instagram account @%s has reached %d followers.\n"+
		"Current count: %d followers\n"+
		"Achieved at: %s\n",
		handle, threshold, count, at.UTC().Format("2006-01-02 15:04 UTC"))
}
