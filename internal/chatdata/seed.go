package chatdata

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixture is a YAML description of chats, contacts and messages used to seed a store.
type Fixture struct {
	Chats []struct {
		RoomID         string    `yaml:"room_id"`
		Title          string    `yaml:"title"`
		Protocol       string    `yaml:"protocol"`
		UnreadCount    int       `yaml:"unread_count"`
		LastActivity   time.Time `yaml:"last_activity"`
		OneToOne       bool      `yaml:"one_to_one"`
		Muted          bool      `yaml:"muted"`
		LowPriority    bool      `yaml:"low_priority"`
		Archived       bool      `yaml:"archived"`
		HideInAllChats bool      `yaml:"hide_in_all_chats"`
	} `yaml:"chats"`

	Contacts []struct {
		SenderID    string   `yaml:"sender_id"`
		DisplayName string   `yaml:"display_name"`
		Protocol    string   `yaml:"protocol"`
		Rooms       []string `yaml:"rooms"`
	} `yaml:"contacts"`

	Messages []struct {
		ID          string    `yaml:"id"`
		RoomID      string    `yaml:"room_id"`
		SenderID    string    `yaml:"sender_id"`
		DisplayName string    `yaml:"display_name"`
		Timestamp   time.Time `yaml:"timestamp"`
		SentByMe    bool      `yaml:"sent_by_me"`
		Deleted     bool      `yaml:"deleted"`
		Type        string    `yaml:"type"`
		Text        string    `yaml:"text"`
		Reactions   string    `yaml:"reactions"`
	} `yaml:"messages"`
}

// LoadFixture reads a YAML fixture from disk.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Seed writes every chat, contact and message of the fixture into the store.
// Chats are written first so messages always land in a known room; the chat's
// preview ends up being its newest seeded message.
func (s *Store) Seed(ctx context.Context, f *Fixture) error {
	for _, c := range f.Chats {
		err := s.UpsertChat(ctx, Chat{
			RoomID:         c.RoomID,
			Title:          c.Title,
			Protocol:       c.Protocol,
			UnreadCount:    c.UnreadCount,
			LastActivity:   c.LastActivity,
			OneToOne:       c.OneToOne,
			Muted:          c.Muted,
			LowPriority:    c.LowPriority,
			Archived:       c.Archived,
			ShowInAllChats: !c.HideInAllChats,
		})
		if err != nil {
			return err
		}
	}

	for _, c := range f.Contacts {
		err := s.UpsertContact(ctx, Contact{
			SenderID:    c.SenderID,
			DisplayName: c.DisplayName,
			Protocol:    c.Protocol,
			RoomIDs:     c.Rooms,
		})
		if err != nil {
			return err
		}
	}

	for _, m := range f.Messages {
		err := s.InsertMessage(ctx, Message{
			OriginalID:  m.ID,
			RoomID:      m.RoomID,
			SenderID:    m.SenderID,
			DisplayName: m.DisplayName,
			Timestamp:   m.Timestamp,
			SentByMe:    m.SentByMe,
			Deleted:     m.Deleted,
			Type:        m.Type,
			Text:        m.Text,
			Reactions:   m.Reactions,
		})
		if err != nil {
			return fmt.Errorf("seed message %s: %w", m.ID, err)
		}
	}
	return nil
}
