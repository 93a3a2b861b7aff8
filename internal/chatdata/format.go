package chatdata

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout renders activity and message times, e.g. "Mar 07, 14:05".
const TimestampLayout = "Jan 02, 15:04"

// pageFooter is the pagination summary shared by every listing. total is nil
// when the page was not full and no count query was needed.
func pageFooter(b *strings.Builder, noun string, offset, n int, total *int) {
	if total != nil {
		fmt.Fprintf(b, "Showing %d-%d of %d total %ss\n", offset+1, offset+n, *total, noun)
		if offset+n < *total {
			fmt.Fprintf(b, "Use offset=%d to get the next page\n", offset+n)
		}
		return
	}
	plural := ""
	if n != 1 {
		plural = "s"
	}
	fmt.Fprintf(b, "Showing %d %s%s (page complete)\n", n, noun, plural)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// FormatChats renders a page of chats as the block handed to the LLM.
func FormatChats(chats []Chat, offset int, total *int, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Beeper Chats:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")

	if len(chats) == 0 {
		b.WriteString("\nNo chats found matching the specified criteria.\n")
		if offset > 0 {
			b.WriteString("This page is empty - try a smaller offset value.\n")
		}
		return b.String()
	}

	for i, c := range chats {
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		chatType := "Group Chat"
		if c.OneToOne {
			chatType = "Direct Message"
		}
		network := c.Protocol
		if network == "" {
			network = "beeper"
		}

		fmt.Fprintf(&b, "\nChat #%d:\n", offset+i+1)
		fmt.Fprintf(&b, " Title: %s\n", title)
		fmt.Fprintf(&b, " Room ID: %s\n", c.RoomID)
		fmt.Fprintf(&b, " Type: %s\n", chatType)
		fmt.Fprintf(&b, " Network: %s\n", network)
		fmt.Fprintf(&b, " Unread: %d messages\n", c.UnreadCount)
		fmt.Fprintf(&b, " Muted: %s\n", yesNo(c.Muted))
		fmt.Fprintf(&b, " Last Activity: %s\n", c.LastActivity.In(loc).Format(TimestampLayout))
		if c.Preview != "" {
			fmt.Fprintf(&b, " Preview: %s\n", truncateRunes(c.Preview, previewMaxLen))
			if c.PreviewSenderID != "" {
				fmt.Fprintf(&b, " Preview Sender: %s\n", c.PreviewSenderID)
			}
		}
	}

	b.WriteString("\n")
	pageFooter(&b, "chat", offset, len(chats), total)
	return b.String()
}

// FormatContacts renders a page of contacts.
func FormatContacts(contacts []Contact, offset int, total *int) string {
	var b strings.Builder
	b.WriteString("Beeper Contacts:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")

	if len(contacts) == 0 {
		b.WriteString("\nNo contacts found matching the specified criteria.\n")
		if offset > 0 {
			b.WriteString("This page is empty - try a smaller offset value.\n")
		}
		return b.String()
	}

	for i, c := range contacts {
		name := c.DisplayName
		if name == "" {
			name = "Unknown"
		}
		network := c.Protocol
		if network == "" {
			network = "beeper"
		}
		fmt.Fprintf(&b, "\nContact #%d:\n", offset+i+1)
		fmt.Fprintf(&b, " Name: %s\n", name)
		fmt.Fprintf(&b, " Sender ID: %s\n", c.SenderID)
		fmt.Fprintf(&b, " Network: %s\n", network)
		if len(c.RoomIDs) > 0 {
			fmt.Fprintf(&b, " Rooms: %s\n", strings.Join(c.RoomIDs, ", "))
		}
	}

	b.WriteString("\n")
	pageFooter(&b, "contact", offset, len(contacts), total)
	return b.String()
}

// MessagePage is everything FormatMessages needs to render one listing.
type MessagePage struct {
	Filter   MessageFilter
	Messages []Message
	Total    *int
	Unread   *UnreadMarker
}

func formatReactions(raw string) string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, reaction := range parts {
		fields := strings.Split(reaction, "|")
		if len(fields) >= 3 {
			who := "Someone"
			if fields[2] == "1" {
				who = "You"
			}
			out = append(out, fmt.Sprintf("%s (%s)", fields[0], who))
			continue
		}
		out = append(out, reaction)
	}
	return strings.Join(out, ", ")
}

func formatMessage(m Message, f MessageFilter, loc *time.Location) string {
	var b strings.Builder
	if !m.IsSearchMatch && (f.ContextBefore > 0 || f.ContextAfter > 0) {
		b.WriteString(" [Context]\n")
	}
	prefix := ""
	if f.Query != "" && m.IsSearchMatch {
		prefix = "🔍 "
	}
	name := m.DisplayName
	if name == "" {
		name = "Unknown"
	}
	you := ""
	if m.SentByMe {
		you = " (You)"
	}
	fmt.Fprintf(&b, " %s[%s] %s%s: \n", prefix, m.Timestamp.In(loc).Format(TimestampLayout), name, you)

	msgType := m.Type
	if msgType == "" {
		msgType = "TEXT"
	}
	switch {
	case m.Deleted:
		b.WriteString(" [Message deleted]\n")
	case msgType == "TEXT" && m.Text != "":
		for _, line := range strings.Split(m.Text, "\n") {
			fmt.Fprintf(&b, " %s\n", line)
		}
	default:
		fmt.Fprintf(&b, " [%s message]\n", msgType)
	}
	if m.Reactions != "" {
		fmt.Fprintf(&b, " Reactions: %s\n", formatReactions(m.Reactions))
	}
	return b.String()
}

// FormatMessages renders a message listing. Messages are grouped under a room
// heading unless the filter names exactly one room.
func FormatMessages(p MessagePage, loc *time.Location) string {
	f := p.Filter
	rooms := strings.Join(f.RoomIDs, ",")
	grouped := len(f.RoomIDs) != 1

	var b strings.Builder
	switch {
	case f.Query != "":
		fmt.Fprintf(&b, "Message Search Results for: \"%s\"\n", f.Query)
	case rooms != "":
		fmt.Fprintf(&b, "Messages in Rooms: %s\n", rooms)
	case f.SenderID != "":
		fmt.Fprintf(&b, "Messages from Sender: %s\n", f.SenderID)
	default:
		b.WriteString("Messages:\n")
	}
	if rooms != "" && f.Query == "" && f.SenderID == "" {
		fmt.Fprintf(&b, "Filtered to rooms: %s\n", rooms)
	}
	if f.SenderID != "" && f.Query == "" {
		fmt.Fprintf(&b, "Filtered to sender: %s\n", f.SenderID)
	}
	b.WriteString(strings.Repeat("=", 60) + "\n")

	matches := 0
	for _, m := range p.Messages {
		if m.IsSearchMatch {
			matches++
		}
	}

	if len(p.Messages) == 0 {
		switch {
		case f.Query != "":
			fmt.Fprintf(&b, "\nNo messages found matching \"%s\"\n", f.Query)
		case rooms != "":
			b.WriteString("\nNo messages found in the specified rooms\n")
		case f.SenderID != "":
			b.WriteString("\nNo messages found from the specified sender\n")
		default:
			b.WriteString("\nNo messages found\n")
		}
		if f.Offset > 0 {
			b.WriteString("This page is empty - try a smaller offset value.\n")
		}
		return b.String()
	}

	currentRoom := ""
	for i, m := range p.Messages {
		if grouped && (i == 0 || m.RoomID != currentRoom) {
			if i > 0 {
				b.WriteString("\n")
			}
			currentRoom = m.RoomID
			fmt.Fprintf(&b, "\n📍 Room: %s\n", m.RoomID)
			b.WriteString(strings.Repeat("=", 50) + "\n")
		}
		b.WriteString(formatMessage(m, f, loc))
		if !grouped {
			b.WriteString("\n")
		}
	}

	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	pageFooter(&b, "message", f.Offset, matches, p.Total)
	if f.OpenAtUnread && p.Unread != nil {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Paging offset: %d\n", p.Unread.PagingOffset)
		if p.Unread.LastRead != "" {
			fmt.Fprintf(&b, "Last read message: %s\n", p.Unread.LastRead)
		}
	}
	return b.String()
}

// FormatSendResult renders the outcome of a send.
func FormatSendResult(roomID, text string, ok bool) string {
	if ok {
		return fmt.Sprintf("Message sent successfully to room: %s\n\nMessage content: %s", roomID, text)
	}
	return fmt.Sprintf("Failed to send message to room: %s\n\nThis could be due to:\n"+
		" - Invalid room ID\n - Network connectivity issues\n - Insufficient permissions\n"+
		" - Beeper app not running", roomID)
}
