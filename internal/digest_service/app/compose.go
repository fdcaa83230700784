package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/digest_service/domain"
)

// sectionOrder puts the systemic category first, then failures, then successes.
var sectionOrder = []struct {
	Type  domain.NotificationType
	Title string
}{
	{domain.TypeProviderError, "PROVIDER ERRORS (no sends possible until fixed)"},
	{domain.TypeNetworkingFailed, "LinkedIn failures"},
	{domain.TypeMessageFailed, "Email failures"},
	{domain.TypeNetworkingSuccess, "LinkedIn sent"},
	{domain.TypeMessageSuccess, "Email sent"},
}

// Compose renders one digest from the queued entries and today's stats.
func Compose(entries []domain.Entry, stats core_domain.DayStats, slot time.Time, next *time.Time) (subject, body string) {
	grouped := make(map[domain.NotificationType][]domain.Entry, len(sectionOrder))
	var sent, failed int
	for _, e := range entries {
		grouped[e.Type] = append(grouped[e.Type], e)
		switch e.Type {
		case domain.TypeNetworkingSuccess, domain.TypeMessageSuccess:
			sent++
		case domain.TypeNetworkingFailed, domain.TypeMessageFailed:
			failed++
		}
	}
	subject = fmt.Sprintf("Message Digest: %d sent, %d failed", sent, failed)

	var b strings.Builder
	fmt.Fprintf(&b, "Outreach digest for %s\n", slot.Format("Mon Jan 2, 3:04 PM MST"))
	for _, sec := range sectionOrder {
		items := grouped[sec.Type]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", sec.Title, len(items))
		for _, e := range items {
			b.WriteString("- ")
			b.WriteString(entryLine(e, slot.Location()))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nToday\n")
	fmt.Fprintf(&b, "- Sent today: %d\n", stats.SentToday)
	fmt.Fprintf(&b, "- Pending today: %d\n", stats.PendingToday)
	if stats.LastScheduled != nil {
		fmt.Fprintf(&b, "- Last scheduled: %s\n", stats.LastScheduled.In(slot.Location()).Format("Mon Jan 2, 3:04 PM"))
	} else {
		b.WriteString("- Last scheduled: nothing pending\n")
	}
	if next != nil {
		fmt.Fprintf(&b, "\nNext digest: %s\n", next.In(slot.Location()).Format("Mon Jan 2, 3:04 PM MST"))
	}
	return subject, b.String()
}

func entryLine(e domain.Entry, loc *time.Location) string {
	parts := make([]string, 0, 3)
	if e.Recipient != "" {
		parts = append(parts, e.Recipient)
	}
	if e.Channel != "" {
		parts = append(parts, "["+e.Channel+"]")
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return e.CreatedAt.In(loc).Format("3:04 PM") + " " + strings.Join(parts, " ")
}
