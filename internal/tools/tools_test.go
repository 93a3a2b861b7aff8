package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtavarasmus/TextAndDrive/internal/chatdata"
)

const fixture = `
chats:
  - room_id: "!rasmus:beeper.com"
    title: Rasmus
    protocol: whatsapp
    unread_count: 1
    one_to_one: true
    last_activity: 2025-03-07T14:05:00Z
  - room_id: "!family:beeper.com"
    title: Family
    protocol: imessage
    last_activity: 2025-03-07T13:00:00Z
messages:
  - id: m1
    room_id: "!rasmus:beeper.com"
    sender_id: "@rasmus:beeper.com"
    display_name: Rasmus
    timestamp: 2025-03-07T14:05:00Z
    text: Are you coming to dinner?
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newChatClient(t *testing.T) *LocalClient {
	t.Helper()
	store, err := chatdata.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f, err := chatdata.ParseFixture([]byte(fixture))
	require.NoError(t, err)
	require.NoError(t, store.Seed(context.Background(), f))

	a := chatdata.NewAccessor(store,
		chatdata.WithLogger(quietLogger()),
		chatdata.WithLocation(time.UTC),
		chatdata.WithClock(func() time.Time { return time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC) }))
	return NewLocalClient(NewChatCatalog(a), quietLogger())
}

func TestRegistry_KeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "b"}))
	require.NoError(t, r.Register(Definition{Name: "a"}))
	assert.Error(t, r.Register(Definition{Name: "a"}))
	assert.Error(t, r.Register(Definition{}))

	defs := r.ListAll()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
}

func TestChatCatalog_Definitions(t *testing.T) {
	defs, err := newChatClient(t).List()
	require.NoError(t, err)

	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{GetChats, GetContacts, GetMessages, SendMessage}, names)
}

func TestCoerce(t *testing.T) {
	def := Definition{
		Name: "t",
		Params: []Parameter{
			{Name: "n", Type: TypeInteger, Default: 100},
			{Name: "flag", Type: TypeBoolean},
			{Name: "s", Type: TypeString},
			{Name: "req", Type: TypeString, Required: true},
		},
	}

	got, err := def.Coerce(Arguments{"n": "25", "flag": "true", "s": 42.0, "req": "x", "extra": 1})
	require.NoError(t, err)
	assert.Equal(t, Arguments{"n": 25, "flag": true, "s": "42", "req": "x"}, got)

	got, err = def.Coerce(Arguments{"n": 3.0, "flag": 0.0, "req": "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, got["n"])
	assert.Equal(t, false, got["flag"])

	got, err = def.Coerce(Arguments{"req": "x", "n": ""})
	require.NoError(t, err)
	assert.Equal(t, 100, got["n"], "blank optional integer falls back to its default")

	_, err = def.Coerce(Arguments{"req": "  "})
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, []string{"req"}, argErr.Missing)

	_, err = def.Coerce(Arguments{"req": "x", "n": "many", "flag": 2.0})
	require.ErrorAs(t, err, &argErr)
	assert.Len(t, argErr.Problems, 2)
}

func TestOpenAIFunction(t *testing.T) {
	def := Definition{
		Name:        SendMessage,
		Description: "Send a text message to a specific chat room.",
		Params: []Parameter{
			{Name: "room_id", Type: TypeString, Required: true, Description: "Required Matrix room ID"},
			{Name: "limit", Type: TypeInteger, Description: "Page size", Default: 100},
		},
	}

	data, err := json.Marshal(def.OpenAIFunction())
	require.NoError(t, err)

	var wire struct {
		Name       string `json:"name"`
		Parameters struct {
			Type       string `json:"type"`
			Properties map[string]struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			} `json:"properties"`
			Required []string `json:"required"`
		} `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, SendMessage, wire.Name)
	assert.Equal(t, "object", wire.Parameters.Type)
	assert.Equal(t, []string{"room_id"}, wire.Parameters.Required)
	assert.Equal(t, "integer", wire.Parameters.Properties["limit"].Type)
	assert.Equal(t, "Page size (default: 100)", wire.Parameters.Properties["limit"].Description)
}

func TestDispatch_UnknownTool(t *testing.T) {
	out, err := newChatClient(t).Call(context.Background(), "launch_rockets", Arguments{})
	require.NoError(t, err)
	assert.Equal(t, "Error: Unknown tool launch_rockets", out)
}

func TestDispatch_GetChats(t *testing.T) {
	c := newChatClient(t)

	out, err := c.Call(context.Background(), GetChats, Arguments{"limit": "1"})
	require.NoError(t, err)
	assert.Contains(t, out, "Chat #1:")
	assert.Contains(t, out, " Title: Rasmus\n")
	assert.NotContains(t, out, "Family")
	assert.Contains(t, out, "Showing 1-1 of 2 total chats")

	out, err = c.Call(context.Background(), GetChats, Arguments{"isUnread": 1})
	require.NoError(t, err)
	assert.Contains(t, out, "Rasmus")
	assert.NotContains(t, out, "Family")
}

func TestDispatch_InvalidArguments(t *testing.T) {
	c := newChatClient(t)

	out, err := c.Call(context.Background(), GetChats, Arguments{"limit": "lots"})
	require.NoError(t, err)
	assert.Contains(t, out, "Error: invalid arguments for get_chats: limit")

	out, err = c.Call(context.Background(), GetChats, Arguments{"limit": -5})
	require.NoError(t, err)
	assert.Equal(t, "Error: invalid arguments for get_chats: limit must be at least 1", out)

	out, err = c.Call(context.Background(), GetChats, Arguments{"isArchived": 7})
	require.NoError(t, err)
	assert.Equal(t, "Error: invalid arguments for get_chats: isArchived must be one of [0 1]", out)
}

func TestDispatch_SendMessage(t *testing.T) {
	c := newChatClient(t)

	out, err := c.Call(context.Background(), SendMessage, Arguments{"room_id": "!rasmus:beeper.com", "text": "On my way"})
	require.NoError(t, err)
	assert.Equal(t, "Message sent successfully to room: !rasmus:beeper.com\n\nMessage content: On my way", out)

	out, err = c.Call(context.Background(), GetMessages, Arguments{"roomIds": "!rasmus:beeper.com"})
	require.NoError(t, err)
	assert.Contains(t, out, "On my way")
}

func TestDispatch_SendMessageMissingArguments(t *testing.T) {
	c := newChatClient(t)

	for _, args := range []Arguments{
		{},
		{"room_id": "!rasmus:beeper.com"},
		{"text": "hi"},
		{"room_id": "", "text": "hi"},
	} {
		out, err := c.Call(context.Background(), SendMessage, args)
		require.NoError(t, err)
		assert.Equal(t, chatdata.MissingSendArgs, out)
	}
}

func TestDispatch_HandlerPanicIsContained(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "boom",
		Handler: func(ctx context.Context, args Arguments) (string, error) {
			panic("kaboom")
		},
	}))

	out := Dispatch(context.Background(), r, quietLogger(), "boom", nil)
	assert.Equal(t, "Error: boom failed: kaboom", out)
}

func TestNoopClient(t *testing.T) {
	var c Client = &NoopClient{}
	_, err := c.Call(context.Background(), GetChats, nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
	defs, err := c.List()
	assert.NoError(t, err)
	assert.Empty(t, defs)
}
