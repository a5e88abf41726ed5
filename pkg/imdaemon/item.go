// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package imdaemon

import (
	"time"
)

// ItemType classifies a transcript item as the daemon reports it.
type ItemType int

const (
	ItemTypeMessage ItemType = iota
	ItemTypeParticipantChange
	ItemTypeGroupTitleChange
	ItemTypeGroupAction
	ItemTypeUnknown
)

// Item is the closed set of transcript item variants delivered by daemon
// callbacks. Each daemon item class maps to exactly one concrete type below;
// consumers dispatch with a type switch. Implementations outside this
// package are not expected.
type Item interface {
	// GUID is the item's globally unique identifier.
	GUID() string
	// RowID is the daemon-internal numeric message ID, or 0 if unknown.
	RowID() int64
	// Service is the raw service string the item arrived on, possibly empty.
	Service() string
	// Sender is the handle that authored the item, empty for self.
	Sender() string
	// FromMe reports whether the item was authored by the local user.
	FromMe() bool
	// Time is the daemon timestamp for the item.
	Time() time.Time
	// Type is the daemon's item classification.
	Type() ItemType
}

// ItemBase carries the fields common to every item variant.
type ItemBase struct {
	ItemGUID  string
	MessageID int64
	ServiceID string
	SenderID  string
	IsFromMe  bool
	Timestamp time.Time
}

func (b *ItemBase) GUID() string    { return b.ItemGUID }
func (b *ItemBase) RowID() int64    { return b.MessageID }
func (b *ItemBase) Service() string { return b.ServiceID }
func (b *ItemBase) Sender() string  { return b.SenderID }
func (b *ItemBase) FromMe() bool    { return b.IsFromMe }
func (b *ItemBase) Time() time.Time { return b.Timestamp }

// MessageItem is a proper message in the transcript: text, attachments,
// tapbacks, and typing indicators all arrive as message items.
type MessageItem struct {
	ItemBase

	Body                  string
	Subject               string
	AssociatedMessageGUID string

	ErrorCode    ErrorCode
	Flags        MessageFlags
	SendProgress SendProgress

	// Typing indicators flow through the message callbacks but are never
	// part of the permanent transcript.
	IsTyping       bool
	IsCancelTyping bool

	IsSpam bool

	// Zero time means the corresponding receipt has not been observed.
	TimeDelivered time.Time
	TimeRead      time.Time
	TimePlayed    time.Time

	// ClientSendTime is when the sending client stamped the message, used
	// for sent receipts in preference to the daemon timestamp.
	ClientSendTime time.Time

	// Account is the daemon account unique ID the message was sent from.
	Account string

	FileTransferGUIDs []string
}

func (m *MessageItem) Type() ItemType { return ItemTypeMessage }

// WasDowngraded reports whether the message carries the downgraded flag,
// meaning it was re-sent over SMS after an iMessage failure.
func (m *MessageItem) WasDowngraded() bool {
	return m.Flags.Has(FlagDowngraded)
}

// IsIncomingTyping reports whether this item is a typing-start signal from
// the remote party.
func (m *MessageItem) IsIncomingTyping() bool {
	return m.IsTyping && !m.IsFromMe
}

// ParticipantChangeItem records a member joining or leaving a group chat.
type ParticipantChangeItem struct {
	ItemBase

	TargetID    string
	InitiatorID string
	ChangeType  ParticipantChangeType
}

func (p *ParticipantChangeItem) Type() ItemType { return ItemTypeParticipantChange }

type ParticipantChangeType int

const (
	ParticipantAdded   ParticipantChangeType = 0
	ParticipantRemoved ParticipantChangeType = 1
)

// GroupTitleChangeItem records a group display-name change.
type GroupTitleChangeItem struct {
	ItemBase

	Title string
}

func (g *GroupTitleChangeItem) Type() ItemType { return ItemTypeGroupTitleChange }

// GroupActionItem records group-level actions such as photo changes.
type GroupActionItem struct {
	ItemBase

	ActionType GroupActionType
}

func (g *GroupActionItem) Type() ItemType { return ItemTypeGroupAction }

type GroupActionType int

const (
	GroupActionRemovePhoto GroupActionType = 0
	GroupActionSetPhoto    GroupActionType = 1
)

// RawItem wraps an item the daemon delivered in a shape the core does not
// model. It is passed through as a phantom event so downstream consumers can
// at least observe that something happened.
type RawItem struct {
	ItemBase

	Payload map[string]any
}

func (r *RawItem) Type() ItemType { return ItemTypeUnknown }
