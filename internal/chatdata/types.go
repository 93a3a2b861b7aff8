package chatdata

import "time"

const (
	// DefaultLimit is the page size used when a filter leaves Limit unset.
	DefaultLimit = 100

	previewMaxLen = 100
)

// Chat is one room as seen in the chat list.
type Chat struct {
	RoomID          string
	Title           string
	Preview         string
	PreviewSenderID string
	Protocol        string
	UnreadCount     int
	LastActivity    time.Time
	OneToOne        bool
	Muted           bool
	LowPriority     bool
	Archived        bool
	ShowInAllChats  bool
}

// Contact is a sender known to the chat store.
type Contact struct {
	SenderID    string
	DisplayName string
	Protocol    string
	RoomIDs     []string
}

// Message is a single chat message. Reactions keep the provider encoding:
// comma separated "emoji|senderId|isMe" triples.
type Message struct {
	ID            int64
	OriginalID    string
	RoomID        string
	SenderID      string
	DisplayName   string
	Timestamp     time.Time
	SentByMe      bool
	Deleted       bool
	Type          string
	Text          string
	Reactions     string
	IsSearchMatch bool
}

// ChatFilter narrows a chat listing. Nil pointers mean "don't filter".
type ChatFilter struct {
	RoomIDs        []string
	IsLowPriority  *bool
	IsArchived     *bool
	IsUnread       *bool
	ShowInAllChats *bool
	Protocol       string
	Limit          int
	Offset         int
}

// ContactFilter narrows a contact listing.
type ContactFilter struct {
	SenderIDs []string
	RoomIDs   []string
	Query     string
	Protocol  string
	Limit     int
	Offset    int
}

// MessageFilter narrows a message listing.
type MessageFilter struct {
	RoomIDs       []string
	SenderID      string
	Query         string
	ContextBefore int
	ContextAfter  int
	OpenAtUnread  bool
	Limit         int
	Offset        int
}

// UnreadMarker locates the first unread message of a room.
type UnreadMarker struct {
	PagingOffset int
	LastRead     string
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
