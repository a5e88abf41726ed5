// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package imcore

import (
	"github.com/lrhodin/imcore/pkg/imdaemon"
)

// EventType tags an aggregate-stream event variant.
type EventType string

const (
	EventTypeUnreadCount      EventType = "unread_count"
	EventTypeTyping           EventType = "typing"
	EventTypeChatName         EventType = "chat_name"
	EventTypeChatParticipants EventType = "chat_participants"
	EventTypeBlocklist        EventType = "blocklist"
	EventTypeMessagesDeleted  EventType = "messages_deleted"
	EventTypeChatsDeleted     EventType = "chats_deleted"
	EventTypeChatJoinState    EventType = "chat_join_state"
	EventTypeMessage          EventType = "message"
	EventTypeTranscript       EventType = "transcript"
	EventTypeMessageStatus    EventType = "message_status"
	EventTypeConfiguration    EventType = "configuration"
)

// Event is the tagged union flowing on the listener's aggregate pipeline.
// The concrete types below are the complete set; consumers dispatch with a
// type switch.
type Event interface {
	EventType() EventType
}

// UnreadCountEvent reports a chat's unread count changing.
type UnreadCountEvent struct {
	Chat  string
	Count int
}

func (UnreadCountEvent) EventType() EventType { return EventTypeUnreadCount }

// TypingEvent reports a typing edge transition for a chat.
type TypingEvent struct {
	Chat    string
	Service imdaemon.ServiceStyle
	Typing  bool
}

func (TypingEvent) EventType() EventType { return EventTypeTyping }

// ChatNameEvent reports a chat display-name change. Name is empty when the
// group name was removed.
type ChatNameEvent struct {
	Chat string
	Name string
}

func (ChatNameEvent) EventType() EventType { return EventTypeChatName }

// ChatParticipantsEvent reports the chat's full membership after a change.
type ChatParticipantsEvent struct {
	Chat         string
	Participants []string
}

func (ChatParticipantsEvent) EventType() EventType { return EventTypeChatParticipants }

// BlocklistEvent carries the full blocklist after an update.
type BlocklistEvent struct {
	Entries []string
}

func (BlocklistEvent) EventType() EventType { return EventTypeBlocklist }

// MessagesDeletedEvent lists message GUIDs deleted from history.
type MessagesDeletedEvent struct {
	GUIDs []string
}

func (MessagesDeletedEvent) EventType() EventType { return EventTypeMessagesDeleted }

// ChatsDeletedEvent lists chat GUIDs deleted from history.
type ChatsDeletedEvent struct {
	ChatGUIDs []string
}

func (ChatsDeletedEvent) EventType() EventType { return EventTypeChatsDeleted }

// JoinState is the daemon's chat membership state for the local user.
type JoinState int

const (
	JoinStateRemoved JoinState = iota
	JoinStateInvited
	JoinStateJoined
)

// ChatJoinStateEvent reports the local user's join state for a chat.
type ChatJoinStateEvent struct {
	Chat      string
	JoinState JoinState
}

func (ChatJoinStateEvent) EventType() EventType { return EventTypeChatJoinState }

// Message is a normalized message event: one transcript message tagged with
// the chat it belongs to and the service it arrived on.
type Message struct {
	Item    *imdaemon.MessageItem
	ChatID  string
	Service imdaemon.ServiceStyle
}

func (Message) EventType() EventType { return EventTypeMessage }

// TranscriptEvent wraps a non-message transcript item (participant change,
// group title change, group action, or an unclassified phantom item).
type TranscriptEvent struct {
	Item    imdaemon.Item
	ChatID  string
	Service imdaemon.ServiceStyle
	// AdditionalFileTransferGUIDs lists transfers that became relevant
	// through this item, e.g. a freshly set group photo.
	AdditionalFileTransferGUIDs []string
}

func (TranscriptEvent) EventType() EventType { return EventTypeTranscript }

// ChatConfiguration is the per-chat daemon configuration snapshot.
type ChatConfiguration struct {
	GUID         string
	ReadReceipts bool
	Muted        bool
}

// ConfigurationEvent reports a chat's configuration bits changing.
type ConfigurationEvent struct {
	Configuration ChatConfiguration
}

func (ConfigurationEvent) EventType() EventType { return EventTypeConfiguration }

func (c MessageStatusChange) EventType() EventType { return EventTypeMessageStatus }
