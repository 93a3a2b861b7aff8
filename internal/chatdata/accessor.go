package chatdata

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MissingSendArgs is returned to the caller when a send lacks a room or text.
const MissingSendArgs = "Error: both 'room_id' and 'text' are required"

// Identity is the local user sends are attributed to.
type Identity struct {
	SenderID    string
	DisplayName string
}

// Accessor exposes the store as the formatted list/send operations the tools use.
type Accessor struct {
	store  *Store
	logger *slog.Logger
	loc    *time.Location
	self   Identity
	now    func() time.Time
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Accessor) { a.logger = l }
}

// WithLocation sets the time zone timestamps are rendered in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(a *Accessor) { a.loc = loc }
}

// WithIdentity sets who sent messages are attributed to.
func WithIdentity(id Identity) Option {
	return func(a *Accessor) { a.self = id }
}

// WithClock overrides the time source used for sent messages.
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) { a.now = now }
}

func NewAccessor(store *Store, opts ...Option) *Accessor {
	a := &Accessor{
		store:  store,
		logger: slog.Default(),
		loc:    time.Local,
		self:   Identity{SenderID: "@me", DisplayName: "Me"},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ListChats renders one page of chats. The total is only counted when the page
// is full, which is when a next page may exist.
func (a *Accessor) ListChats(ctx context.Context, f ChatFilter) (string, error) {
	start := time.Now()
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)
	a.logger.Info("chat data request", "op", "get_chats",
		"room_ids", f.RoomIDs, "protocol", f.Protocol, "limit", f.Limit, "offset", f.Offset)

	chats, err := a.store.Chats(ctx, f)
	if err != nil {
		a.logFailure("get_chats", start, err)
		return "", err
	}

	var total *int
	if len(chats) == f.Limit {
		n, err := a.store.CountChats(ctx, f)
		if err != nil {
			a.logFailure("get_chats", start, err)
			return "", err
		}
		total = &n
	}

	result := FormatChats(chats, f.Offset, total, a.loc)
	a.logSuccess("get_chats", start, len(chats), total, result)
	return result, nil
}

// ListContacts renders one page of contacts.
func (a *Accessor) ListContacts(ctx context.Context, f ContactFilter) (string, error) {
	start := time.Now()
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)
	a.logger.Info("chat data request", "op", "get_contacts",
		"sender_ids", f.SenderIDs, "room_ids", f.RoomIDs, "query", f.Query, "limit", f.Limit, "offset", f.Offset)

	contacts, err := a.store.Contacts(ctx, f)
	if err != nil {
		a.logFailure("get_contacts", start, err)
		return "", err
	}

	var total *int
	if len(contacts) == f.Limit {
		n, err := a.store.CountContacts(ctx, f)
		if err != nil {
			a.logFailure("get_contacts", start, err)
			return "", err
		}
		total = &n
	}

	result := FormatContacts(contacts, f.Offset, total)
	a.logSuccess("get_contacts", start, len(contacts), total, result)
	return result, nil
}

// ListMessages renders one page of messages, with surrounding context for
// search hits when requested.
func (a *Accessor) ListMessages(ctx context.Context, f MessageFilter) (string, error) {
	start := time.Now()
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)
	f.Query = strings.TrimSpace(f.Query)
	a.logger.Info("chat data request", "op", "get_messages",
		"room_ids", f.RoomIDs, "sender_id", f.SenderID, "query", f.Query,
		"context_before", f.ContextBefore, "context_after", f.ContextAfter,
		"open_at_unread", f.OpenAtUnread, "limit", f.Limit, "offset", f.Offset)

	matches, err := a.store.Messages(ctx, f)
	if err != nil {
		a.logFailure("get_messages", start, err)
		return "", err
	}

	page := MessagePage{Filter: f}
	if len(matches) == f.Limit {
		n, err := a.store.CountMessages(ctx, f)
		if err != nil {
			a.logFailure("get_messages", start, err)
			return "", err
		}
		page.Total = &n
	}

	msgs := matches
	if f.Query != "" && (f.ContextBefore > 0 || f.ContextAfter > 0) {
		msgs, err = a.withContext(ctx, matches, f.ContextBefore, f.ContextAfter)
		if err != nil {
			a.logFailure("get_messages", start, err)
			return "", err
		}
	}
	page.Messages = chronological(msgs)

	if f.OpenAtUnread && len(f.RoomIDs) == 1 && len(matches) > 0 {
		marker, err := a.store.Unread(ctx, f.RoomIDs[0])
		if err != nil && !errors.Is(err, ErrRoomNotFound) {
			a.logFailure("get_messages", start, err)
			return "", err
		}
		if err == nil {
			page.Unread = &marker
		}
	}

	result := FormatMessages(page, a.loc)
	a.logSuccess("get_messages", start, len(matches), page.Total, result)
	return result, nil
}

func (a *Accessor) withContext(ctx context.Context, matches []Message, before, after int) ([]Message, error) {
	seen := make(map[int64]bool, len(matches))
	out := make([]Message, 0, len(matches))
	for _, m := range matches {
		seen[m.ID] = true
		out = append(out, m)
	}
	for _, m := range matches {
		around, err := a.store.Surrounding(ctx, m, before, after)
		if err != nil {
			return nil, err
		}
		for _, c := range around {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// chronological keeps rooms in the order they first appear and sorts each
// room's messages oldest first.
func chronological(msgs []Message) []Message {
	roomOrder := make(map[string]int)
	for _, m := range msgs {
		if _, ok := roomOrder[m.RoomID]; !ok {
			roomOrder[m.RoomID] = len(roomOrder)
		}
	}
	out := append([]Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := roomOrder[out[i].RoomID], roomOrder[out[j].RoomID]
		if ri != rj {
			return ri < rj
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SendMessage posts text to a room as the local user.
func (a *Accessor) SendMessage(ctx context.Context, roomID, text string) (string, error) {
	start := time.Now()
	if roomID == "" || text == "" {
		a.logger.Error("chat data request rejected", "op", "send_message",
			"error", "missing required parameters - need both room_id and text")
		return MissingSendArgs, nil
	}
	a.logger.Info("chat data request", "op", "send_message", "room_id", roomID, "text_length", len(text))

	err := a.store.InsertMessage(ctx, Message{
		OriginalID:  uuid.NewString(),
		RoomID:      roomID,
		SenderID:    a.self.SenderID,
		DisplayName: a.self.DisplayName,
		Timestamp:   a.now(),
		SentByMe:    true,
		Type:        "TEXT",
		Text:        text,
	})
	switch {
	case errors.Is(err, ErrRoomNotFound):
		a.logger.Warn("chat data response", "op", "send_message", "duration", time.Since(start),
			"room_id", roomID, "status", "FAILED")
		return FormatSendResult(roomID, text, false), nil
	case err != nil:
		a.logFailure("send_message", start, err)
		return "", err
	}

	a.logger.Info("chat data response", "op", "send_message", "duration", time.Since(start),
		"room_id", roomID, "status", "SUCCESS")
	return FormatSendResult(roomID, text, true), nil
}

func (a *Accessor) logSuccess(op string, start time.Time, n int, total *int, result string) {
	attrs := []any{"op", op, "duration", time.Since(start), "retrieved", n,
		"result_length", len(result), "status", "SUCCESS"}
	if total != nil {
		attrs = append(attrs, "total", *total)
	}
	a.logger.Info("chat data response", attrs...)
}

func (a *Accessor) logFailure(op string, start time.Time, err error) {
	a.logger.Error("chat data request failed", "op", op, "duration", time.Since(start), "error", err)
}
