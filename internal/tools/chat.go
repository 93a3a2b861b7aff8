package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahtavarasmus/TextAndDrive/internal/chatdata"
)

// Chat tool names.
const (
	GetChats    = "get_chats"
	GetContacts = "get_contacts"
	GetMessages = "get_messages"
	SendMessage = "send_message"
)

var pageParams = []Parameter{
	{Name: "limit", Type: TypeInteger, Description: "Maximum number of results", Default: chatdata.DefaultLimit},
	{Name: "offset", Type: TypeInteger, Description: "Number of results to skip", Default: 0},
}

type getChatsArgs struct {
	RoomIDs        string `json:"roomIds"`
	IsLowPriority  *int   `json:"isLowPriority" validate:"omitempty,oneof=0 1"`
	IsArchived     *int   `json:"isArchived" validate:"omitempty,oneof=0 1"`
	IsUnread       *int   `json:"isUnread" validate:"omitempty,oneof=0 1"`
	ShowInAllChats *int   `json:"showInAllChats" validate:"omitempty,oneof=0 1"`
	Protocol       string `json:"protocol"`
	Limit          int    `json:"limit" validate:"gte=1,lte=1000"`
	Offset         int    `json:"offset" validate:"gte=0"`
}

type getContactsArgs struct {
	SenderIDs string `json:"senderIds"`
	RoomIDs   string `json:"roomIds"`
	Query     string `json:"query"`
	Protocol  string `json:"protocol"`
	Limit     int    `json:"limit" validate:"gte=1,lte=1000"`
	Offset    int    `json:"offset" validate:"gte=0"`
}

type getMessagesArgs struct {
	RoomIDs       string `json:"roomIds"`
	SenderID      string `json:"senderId"`
	Query         string `json:"query"`
	ContextBefore int    `json:"contextBefore" validate:"gte=0,lte=50"`
	ContextAfter  int    `json:"contextAfter" validate:"gte=0,lte=50"`
	OpenAtUnread  bool   `json:"openAtUnread"`
	Limit         int    `json:"limit" validate:"gte=1,lte=1000"`
	Offset        int    `json:"offset" validate:"gte=0"`
}

type sendMessageArgs struct {
	RoomID string `json:"room_id" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// NewChatCatalog registers the four chat tools backed by the accessor.
func NewChatCatalog(a *chatdata.Accessor) *Registry {
	r := NewRegistry()
	mustRegister(r, Definition{
		Name:        GetChats,
		Description: "Retrieves chats/conversations with optional filtering.",
		Params: append([]Parameter{
			{Name: "roomIds", Type: TypeString, Description: "Optional comma-separated room IDs"},
			{Name: "isLowPriority", Type: TypeInteger, Description: "Optional 0/1"},
			{Name: "isArchived", Type: TypeInteger, Description: "Optional 0/1"},
			{Name: "isUnread", Type: TypeInteger, Description: "Optional 0/1"},
			{Name: "showInAllChats", Type: TypeInteger, Description: "Optional 0/1"},
			{Name: "protocol", Type: TypeString, Description: "Optional network filter"},
		}, pageParams...),
		Handler: func(ctx context.Context, args Arguments) (string, error) {
			var in getChatsArgs
			if err := Decode(args, &in); err != nil {
				return "", err
			}
			out, err := a.ListChats(ctx, chatdata.ChatFilter{
				RoomIDs:        splitIDs(in.RoomIDs),
				IsLowPriority:  flag(in.IsLowPriority),
				IsArchived:     flag(in.IsArchived),
				IsUnread:       flag(in.IsUnread),
				ShowInAllChats: flag(in.ShowInAllChats),
				Protocol:       in.Protocol,
				Limit:          in.Limit,
				Offset:         in.Offset,
			})
			if err != nil {
				return "", fmt.Errorf("retrieving chats: %w", err)
			}
			return out, nil
		},
	})

	mustRegister(r, Definition{
		Name:        GetContacts,
		Description: "Retrieves contacts/senders with optional filtering.",
		Params: append([]Parameter{
			{Name: "senderIds", Type: TypeString, Description: "Optional comma-separated sender IDs"},
			{Name: "roomIds", Type: TypeString, Description: "Optional comma-separated room IDs"},
			{Name: "query", Type: TypeString, Description: "Optional full-text search"},
			{Name: "protocol", Type: TypeString, Description: "Optional network filter"},
		}, pageParams...),
		Handler: func(ctx context.Context, args Arguments) (string, error) {
			var in getContactsArgs
			if err := Decode(args, &in); err != nil {
				return "", err
			}
			out, err := a.ListContacts(ctx, chatdata.ContactFilter{
				SenderIDs: splitIDs(in.SenderIDs),
				RoomIDs:   splitIDs(in.RoomIDs),
				Query:     in.Query,
				Protocol:  in.Protocol,
				Limit:     in.Limit,
				Offset:    in.Offset,
			})
			if err != nil {
				return "", fmt.Errorf("retrieving contacts: %w", err)
			}
			return out, nil
		},
	})

	mustRegister(r, Definition{
		Name:        GetMessages,
		Description: "Get messages from chats with optional filtering.",
		Params: append([]Parameter{
			{Name: "roomIds", Type: TypeString, Description: "Optional comma-separated room IDs"},
			{Name: "senderId", Type: TypeString, Description: "Optional sender filter"},
			{Name: "query", Type: TypeString, Description: "Optional full-text search"},
			{Name: "contextBefore", Type: TypeInteger, Description: "Optional number of messages before each match"},
			{Name: "contextAfter", Type: TypeInteger, Description: "Optional number of messages after each match"},
			{Name: "openAtUnread", Type: TypeBoolean, Description: "Optional boolean"},
		}, pageParams...),
		Handler: func(ctx context.Context, args Arguments) (string, error) {
			var in getMessagesArgs
			if err := Decode(args, &in); err != nil {
				return "", err
			}
			out, err := a.ListMessages(ctx, chatdata.MessageFilter{
				RoomIDs:       splitIDs(in.RoomIDs),
				SenderID:      in.SenderID,
				Query:         in.Query,
				ContextBefore: in.ContextBefore,
				ContextAfter:  in.ContextAfter,
				OpenAtUnread:  in.OpenAtUnread,
				Limit:         in.Limit,
				Offset:        in.Offset,
			})
			if err != nil {
				return "", fmt.Errorf("getting room messages: %w", err)
			}
			return out, nil
		},
	})

	mustRegister(r, Definition{
		Name:        SendMessage,
		Description: "Send a text message to a specific chat room.",
		Params: []Parameter{
			{Name: "room_id", Type: TypeString, Required: true, Description: "Required Matrix room ID"},
			{Name: "text", Type: TypeString, Required: true, Description: "Required message content"},
		},
		RequiredHint: "both 'room_id' and 'text' are required",
		Handler: func(ctx context.Context, args Arguments) (string, error) {
			var in sendMessageArgs
			if err := Decode(args, &in); err != nil {
				return chatdata.MissingSendArgs, nil
			}
			out, err := a.SendMessage(ctx, in.RoomID, in.Text)
			if err != nil {
				return "", fmt.Errorf("sending message: %w", err)
			}
			return out, nil
		},
	})
	return r
}

func mustRegister(r *Registry, def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func flag(v *int) *bool {
	if v == nil {
		return nil
	}
	b := *v == 1
	return &b
}
