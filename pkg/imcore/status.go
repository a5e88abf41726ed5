// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package imcore

import (
	"time"

	"github.com/lrhodin/imcore/pkg/imdaemon"
)

// MessageStatusType is the kind of status transition observed for a message.
type MessageStatusType string

const (
	StatusDelivered    MessageStatusType = "delivered"
	StatusRead         MessageStatusType = "read"
	StatusPlayed       MessageStatusType = "played"
	StatusDowngraded   MessageStatusType = "downgraded"
	StatusNotDelivered MessageStatusType = "notDelivered"
	StatusSent         MessageStatusType = "sent"
)

// MessageStatusChange records one observed status transition for a message.
// Each emitted change is a fresh fact: two changes are never considered
// identical, and the optional full-message payload is excluded from identity.
type MessageStatusChange struct {
	Type    MessageStatusType
	Service imdaemon.ServiceStyle
	Time    time.Time
	// Sender is the handle the receipt is attributed to. Empty whenever the
	// change is attributed to the local user.
	Sender    string
	FromMe    bool
	ChatID    string
	MessageID string

	message *imdaemon.MessageItem
}

// HasFullMessage reports whether the originating message item is attached.
func (c *MessageStatusChange) HasFullMessage() bool {
	return c.message != nil
}

// Message returns the originating message item, or an empty item when the
// change was derived without one.
func (c *MessageStatusChange) Message() *imdaemon.MessageItem {
	if c.message == nil {
		return &imdaemon.MessageItem{}
	}
	return c.message
}

// statusPayload picks the highest-priority status a message item currently
// expresses: error beats played beats read beats delivered beats downgrade.
func statusPayload(msg *imdaemon.MessageItem) (MessageStatusType, time.Time, bool) {
	switch {
	case msg.ErrorCode > 0:
		return StatusNotDelivered, msg.Timestamp, true
	case !msg.TimePlayed.IsZero():
		return StatusPlayed, msg.TimePlayed, true
	case !msg.TimeRead.IsZero():
		return StatusRead, msg.TimeRead, true
	case !msg.TimeDelivered.IsZero():
		return StatusDelivered, msg.TimeDelivered, true
	case msg.WasDowngraded():
		return StatusDowngraded, msg.Timestamp, true
	default:
		return "", time.Time{}, false
	}
}

// DeriveStatusChange turns a service-originated item update into at most one
// status change. Returns nil when the item expresses no status transition or
// arrived on an unknown service.
//
// Direction and sender follow a fixed table: in group chats every kind except
// played is treated as from-self; in one-to-one chats a read receipt is
// from-self only when the underlying message was not originally ours (the
// counterpart read it). The receipt sender is the chat's handle for DMs and
// the per-message sender for groups, omitted entirely when from-self.
func DeriveStatusChange(msg *imdaemon.MessageItem, chatID string, style imdaemon.ChatStyle) *MessageStatusChange {
	statusType, statusTime, ok := statusPayload(msg)
	if !ok {
		return nil
	}
	service, ok := imdaemon.ParseServiceStyle(msg.ServiceID)
	if !ok {
		return nil
	}

	var fromMe bool
	if style == imdaemon.ChatStyleGroup {
		fromMe = statusType != StatusPlayed
	} else {
		switch statusType {
		case StatusRead:
			// Other user read our message vs. we read the chat.
			fromMe = !msg.IsFromMe
		case StatusDelivered, StatusPlayed:
			fromMe = false
		default:
			fromMe = true
		}
	}

	var sender string
	if !fromMe {
		if style == imdaemon.ChatStyleGroup {
			sender = msg.SenderID
		} else {
			// The chat identifier of a DM is just the counterpart's handle.
			sender = chatID
		}
	}

	return &MessageStatusChange{
		Type:      statusType,
		Service:   service,
		Time:      statusTime,
		Sender:    sender,
		FromMe:    fromMe,
		ChatID:    chatID,
		MessageID: msg.ItemGUID,
		message:   msg,
	}
}
