// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package imdaemon

import (
	"context"
	"time"
)

// Chat is the daemon-owned chat object. The core holds at most one in-process
// entity per Chat; everything stateful about the conversation (participants,
// downgrade markers, service targeting) stays on the daemon side and is
// reached through this interface.
type Chat interface {
	// GUID is the canonical cross-service chat GUID ("iMessage;-;+15551234567").
	GUID() string
	// GroupID is the daemon-internal group identifier, empty for DMs that
	// never got one.
	GroupID() string
	// ChatIdentifier is the service-local identifier (handle or group chat id).
	ChatIdentifier() string
	// Style reports whether this is a DM or a group chat.
	Style() ChatStyle
	// Participants returns the current member handles.
	Participants() []string
	// GroupPhotoGUID is the file-transfer GUID of the current group photo,
	// empty if the chat has none.
	GroupPhotoGUID() string
	// OnService reports whether the chat is reachable on the given service.
	OnService(service ServiceStyle) bool

	// ConsecutiveDowngradeAttempts returns the daemon's counter of back-to-back
	// downgrade attempts (manual or automatic).
	ConsecutiveDowngradeAttempts(manual bool) int
	// IncrementDowngradeMarkers bumps the daemon's downgrade counter.
	IncrementDowngradeMarkers(manual bool)
	// PersistDowngrade records a sticky "prefer SMS" decision, re-evaluated
	// by the daemon after checkAgain.
	PersistDowngrade(checkAgain time.Duration)
	// TargetToService re-points the chat at another service for future sends.
	TargetToService(service ServiceStyle) error
	// Send submits a message item to the daemon for delivery on this chat.
	Send(msg *MessageItem) error
}

// Daemon is the command surface the core issues against the messaging daemon.
// The core only ever materializes chats and asks about the active SMS
// identity; all other traffic is inbound callbacks.
type Daemon interface {
	// ChatForGUID materializes the chat with the given canonical GUID.
	// Returns nil with no error when the daemon does not know the chat.
	ChatForGUID(ctx context.Context, guid string) (Chat, error)
	// ChatForGroupID materializes the chat with the given group ID.
	ChatForGroupID(ctx context.Context, groupID string) (Chat, error)
	// ChatForIdentifier looks up a chat by its service-local identifier.
	// An empty service means any service. Returns nil with no error when no
	// such chat exists.
	ChatForIdentifier(ctx context.Context, chatIdentifier string, service ServiceStyle) (Chat, error)
	// LoadChats asks the daemon to enumerate chats for a chat identifier.
	// Results arrive through the ChatLoaded listener callback.
	LoadChats(ctx context.Context, chatIdentifier string) error
	// ActiveSMSAccount returns the unique ID of the signed-in SMS relay
	// account, if any.
	ActiveSMSAccount() (string, bool)
}

// ChatDetails is the typed form of the serialized chat dictionaries the
// daemon attaches to lifecycle callbacks. Any field may be missing; the
// registry works off whichever identifiers are present.
type ChatDetails struct {
	GUID           string
	GroupID        string
	ChatIdentifier string
	Style          ChatStyle
	Service        string

	DisplayName  string
	UnreadCount  *int
	Participants []string
}
