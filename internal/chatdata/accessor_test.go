package chatdata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFixture = `
chats:
  - room_id: "!rasmus:beeper.com"
    title: Rasmus
    protocol: whatsapp
    unread_count: 2
    one_to_one: true
    last_activity: 2025-03-07T14:05:00Z
  - room_id: "!family:beeper.com"
    title: Family
    protocol: imessage
    muted: true
    last_activity: 2025-03-07T13:00:00Z
  - room_id: "!work:beeper.com"
    title: Work
    protocol: slack
    unread_count: 5
    last_activity: 2025-03-06T09:30:00Z
  - room_id: "!anna:beeper.com"
    title: Anna
    one_to_one: true
    archived: true
    last_activity: 2025-03-05T20:00:00Z
  - room_id: "!old:beeper.com"
    title: Old Group
    low_priority: true
    last_activity: 2025-02-01T08:00:00Z
contacts:
  - sender_id: "@rasmus:beeper.com"
    display_name: Rasmus
    protocol: whatsapp
    rooms: ["!rasmus:beeper.com", "!family:beeper.com"]
  - sender_id: "@anna:beeper.com"
    display_name: Anna
    rooms: ["!anna:beeper.com"]
messages:
  - id: m1
    room_id: "!rasmus:beeper.com"
    sender_id: "@rasmus:beeper.com"
    display_name: Rasmus
    timestamp: 2025-03-07T14:00:00Z
    text: Are you coming to dinner?
  - id: m2
    room_id: "!rasmus:beeper.com"
    sender_id: "@me"
    display_name: Me
    sent_by_me: true
    timestamp: 2025-03-07T14:02:00Z
    text: "Yes!\nOn my way"
    reactions: "👍|@rasmus:beeper.com|0"
  - id: m3
    room_id: "!rasmus:beeper.com"
    sender_id: "@rasmus:beeper.com"
    display_name: Rasmus
    timestamp: 2025-03-07T14:05:00Z
    deleted: true
  - id: m4
    room_id: "!family:beeper.com"
    sender_id: "@mom"
    display_name: Mom
    timestamp: 2025-03-07T13:00:00Z
    text: Dinner is at seven
  - id: m5
    room_id: "!family:beeper.com"
    sender_id: "@dad"
    display_name: Dad
    timestamp: 2025-03-07T12:00:00Z
    type: IMAGE
`

func newTestAccessor(t *testing.T) (*Accessor, *Store) {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fixture, err := ParseFixture([]byte(testFixture))
	require.NoError(t, err)
	require.NoError(t, store.Seed(context.Background(), fixture))

	clock := func() time.Time { return time.Date(2025, 3, 7, 15, 0, 0, 0, time.UTC) }
	a := NewAccessor(store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithLocation(time.UTC),
		WithClock(clock))
	return a, store
}

func TestListChats_Pagination(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListChats(context.Background(), ChatFilter{Limit: 2, Offset: 0})
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, "Chat #"))
	assert.Contains(t, out, "Chat #1:\n Title: Rasmus\n")
	assert.Contains(t, out, "Chat #2:\n Title: Family\n")
	assert.Contains(t, out, "Showing 1-2 of 5 total chats")
	assert.Contains(t, out, "Use offset=2 to get the next page")
}

func TestListChats_LastPage(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListChats(context.Background(), ChatFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)

	assert.Contains(t, out, "Chat #5:\n Title: Old Group\n")
	assert.Contains(t, out, "Showing 1 chat (page complete)")
	assert.NotContains(t, out, "Use offset=")
}

func TestListChats_RecordLayout(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListChats(context.Background(), ChatFilter{RoomIDs: []string{"!rasmus:beeper.com"}})
	require.NoError(t, err)

	want := "Beeper Chats:\n" + strings.Repeat("=", 50) + "\n" +
		"\nChat #1:\n" +
		" Title: Rasmus\n" +
		" Room ID: !rasmus:beeper.com\n" +
		" Type: Direct Message\n" +
		" Network: whatsapp\n" +
		" Unread: 2 messages\n" +
		" Muted: No\n" +
		" Last Activity: Mar 07, 14:05\n" +
		"\nShowing 1 chat (page complete)\n"
	// the newest message is deleted and empty, so no preview line is rendered
	assert.Equal(t, want, out)
}

func TestListChats_Filters(t *testing.T) {
	a, _ := newTestAccessor(t)
	ctx := context.Background()
	yes := true

	out, err := a.ListChats(ctx, ChatFilter{IsUnread: &yes})
	require.NoError(t, err)
	assert.Contains(t, out, "Title: Rasmus")
	assert.Contains(t, out, "Title: Work")
	assert.NotContains(t, out, "Title: Family")

	out, err = a.ListChats(ctx, ChatFilter{Protocol: "imessage"})
	require.NoError(t, err)
	assert.Contains(t, out, "Title: Family")
	assert.Contains(t, out, "Muted: Yes")
	assert.Contains(t, out, "Type: Group Chat")

	out, err = a.ListChats(ctx, ChatFilter{IsArchived: &yes})
	require.NoError(t, err)
	assert.Contains(t, out, "Title: Anna")
	assert.Contains(t, out, "Network: beeper")
}

func TestListChats_EmptyPage(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListChats(context.Background(), ChatFilter{Offset: 50})
	require.NoError(t, err)
	assert.Contains(t, out, "No chats found matching the specified criteria.")
	assert.Contains(t, out, "This page is empty - try a smaller offset value.")
}

func TestListChats_Idempotent(t *testing.T) {
	a, _ := newTestAccessor(t)
	f := ChatFilter{Limit: 3, Offset: 1}

	first, err := a.ListChats(context.Background(), f)
	require.NoError(t, err)
	second, err := a.ListChats(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListChats_PreviewTruncated(t *testing.T) {
	a, store := newTestAccessor(t)
	long := strings.Repeat("x", 150)
	require.NoError(t, store.InsertMessage(context.Background(), Message{
		OriginalID: "long", RoomID: "!work:beeper.com", SenderID: "@boss",
		Timestamp: time.Date(2025, 3, 7, 16, 0, 0, 0, time.UTC), Text: long,
	}))

	out, err := a.ListChats(context.Background(), ChatFilter{RoomIDs: []string{"!work:beeper.com"}})
	require.NoError(t, err)
	assert.Contains(t, out, " Preview: "+strings.Repeat("x", 100)+"...\n")
	assert.Contains(t, out, " Preview Sender: @boss\n")
}

func TestListMessages_SingleRoom(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListMessages(context.Background(), MessageFilter{RoomIDs: []string{"!rasmus:beeper.com"}})
	require.NoError(t, err)

	assert.Contains(t, out, "Messages in Rooms: !rasmus:beeper.com\n")
	assert.Contains(t, out, "Filtered to rooms: !rasmus:beeper.com\n")
	assert.NotContains(t, out, "📍 Room:")
	assert.Contains(t, out, " [Mar 07, 14:02] Me (You): \n Yes!\n On my way\n")
	assert.Contains(t, out, " Reactions: 👍 (Someone)\n")
	assert.Contains(t, out, " [Mar 07, 14:05] Rasmus: \n [Message deleted]\n")
	assert.Contains(t, out, "Showing 3 messages (page complete)")

	// oldest first within the room
	assert.Less(t, strings.Index(out, "Are you coming"), strings.Index(out, "On my way"))
}

func TestListMessages_GroupedByRoom(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListMessages(context.Background(), MessageFilter{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Messages:\n"))
	assert.Contains(t, out, "📍 Room: !family:beeper.com")
	assert.Contains(t, out, "📍 Room: !rasmus:beeper.com")
	assert.Contains(t, out, " [IMAGE message]\n")
	assert.Contains(t, out, "Showing 5 messages (page complete)")
}

func TestListMessages_NewestAcrossRooms(t *testing.T) {
	a, _ := newTestAccessor(t)
	ctx := context.Background()

	out, err := a.ListMessages(ctx, MessageFilter{Limit: 2})
	require.NoError(t, err)
	assert.Contains(t, out, " [Mar 07, 14:05] Rasmus: \n [Message deleted]\n")
	assert.Contains(t, out, " [Mar 07, 14:02] Me (You): ")
	assert.NotContains(t, out, "📍 Room: !family:beeper.com")
	assert.NotContains(t, out, "Dinner is at seven")
	assert.Contains(t, out, "Showing 1-2 of 5 total messages\n")
	assert.Contains(t, out, "Use offset=2 to get the next page\n")

	out, err = a.ListMessages(ctx, MessageFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Contains(t, out, "Are you coming to dinner?")
	assert.Contains(t, out, "Dinner is at seven")
	assert.NotContains(t, out, "On my way")
	// rooms follow recency: the room holding the newest message on the page leads
	assert.Less(t, strings.Index(out, "📍 Room: !rasmus:beeper.com"), strings.Index(out, "📍 Room: !family:beeper.com"))
}

func TestListMessages_QueryWildcardsAreLiteral(t *testing.T) {
	a, store := newTestAccessor(t)
	ctx := context.Background()
	for i, text := range []string{"50% off today", "500 off today", "use a_b here", "use axb here"} {
		require.NoError(t, store.InsertMessage(ctx, Message{
			OriginalID: fmt.Sprintf("w%d", i), RoomID: "!work:beeper.com", SenderID: "@boss",
			DisplayName: "Boss", Timestamp: time.Date(2025, 3, 6, 9, i, 0, 0, time.UTC), Text: text,
		}))
	}

	out, err := a.ListMessages(ctx, MessageFilter{Query: "50%"})
	require.NoError(t, err)
	assert.Contains(t, out, "50% off today")
	assert.NotContains(t, out, "500 off today")

	out, err = a.ListMessages(ctx, MessageFilter{Query: "a_b"})
	require.NoError(t, err)
	assert.Contains(t, out, "use a_b here")
	assert.NotContains(t, out, "use axb here")

	out, err = a.ListContacts(ctx, ContactFilter{Query: "R_smus"})
	require.NoError(t, err)
	assert.Contains(t, out, "No contacts found matching the specified criteria.")
}

func TestListMessages_SearchWithContext(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListMessages(context.Background(), MessageFilter{Query: "dinner", ContextAfter: 1})
	require.NoError(t, err)

	assert.Contains(t, out, "Message Search Results for: \"dinner\"")
	assert.Contains(t, out, "🔍 [Mar 07, 14:00] Rasmus: ")
	assert.Contains(t, out, "🔍 [Mar 07, 13:00] Mom: ")
	assert.Contains(t, out, " [Context]\n [Mar 07, 14:02] Me (You): ")
	assert.Contains(t, out, "Showing 2 messages (page complete)")
}

func TestListMessages_NoResults(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListMessages(context.Background(), MessageFilter{Query: "nothing like this"})
	require.NoError(t, err)
	assert.Contains(t, out, "No messages found matching \"nothing like this\"")
}

func TestListMessages_OpenAtUnread(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListMessages(context.Background(), MessageFilter{
		RoomIDs: []string{"!rasmus:beeper.com"}, OpenAtUnread: true,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Paging offset: 2\n")
	assert.Contains(t, out, "Last read message: m1\n")
}

func TestListContacts(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.ListContacts(context.Background(), ContactFilter{RoomIDs: []string{"!family:beeper.com"}})
	require.NoError(t, err)
	assert.Contains(t, out, " Name: Rasmus\n Sender ID: @rasmus:beeper.com\n Network: whatsapp\n")
	assert.Contains(t, out, " Rooms: !family:beeper.com, !rasmus:beeper.com\n")
	assert.NotContains(t, out, "Anna")

	out, err = a.ListContacts(context.Background(), ContactFilter{Query: "ann"})
	require.NoError(t, err)
	assert.Contains(t, out, " Name: Anna\n")
	assert.Contains(t, out, "Showing 1 contact (page complete)")
}

func TestSendMessage(t *testing.T) {
	a, _ := newTestAccessor(t)
	ctx := context.Background()

	out, err := a.SendMessage(ctx, "!rasmus:beeper.com", "I'll be 10 minutes late")
	require.NoError(t, err)
	assert.Equal(t, "Message sent successfully to room: !rasmus:beeper.com\n\nMessage content: I'll be 10 minutes late", out)

	chats, err := a.ListChats(ctx, ChatFilter{Limit: 1})
	require.NoError(t, err)
	assert.Contains(t, chats, " Preview: I'll be 10 minutes late\n")
	assert.Contains(t, chats, " Last Activity: Mar 07, 15:00\n")

	msgs, err := a.ListMessages(ctx, MessageFilter{RoomIDs: []string{"!rasmus:beeper.com"}})
	require.NoError(t, err)
	assert.Contains(t, msgs, "Me (You): \n I'll be 10 minutes late\n")
}

func TestSendMessage_UnknownRoom(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.SendMessage(context.Background(), "!nope:beeper.com", "hi")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Failed to send message to room: !nope:beeper.com"))
	assert.Contains(t, out, " - Invalid room ID")
}

func TestSendMessage_MissingArguments(t *testing.T) {
	a, _ := newTestAccessor(t)

	out, err := a.SendMessage(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, MissingSendArgs, out)

	out, err = a.SendMessage(context.Background(), "!rasmus:beeper.com", "")
	require.NoError(t, err)
	assert.Equal(t, MissingSendArgs, out)
}
