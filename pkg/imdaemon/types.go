// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package imdaemon defines the boundary with the external messaging daemon:
// the payload types its callbacks carry and the small set of commands the
// core is allowed to issue back (materialize chat, register/accept transfer,
// re-target chat). Nothing in this package talks to a real daemon; concrete
// implementations live with whoever hosts the core.
package imdaemon

// ServiceStyle identifies the messaging service a chat or message lives on.
type ServiceStyle string

const (
	ServiceIMessage ServiceStyle = "iMessage"
	ServiceSMS      ServiceStyle = "SMS"
	ServiceFaceTime ServiceStyle = "FaceTime"
)

// ParseServiceStyle maps a raw daemon service string to a known style.
func ParseServiceStyle(raw string) (ServiceStyle, bool) {
	switch ServiceStyle(raw) {
	case ServiceIMessage, ServiceSMS, ServiceFaceTime:
		return ServiceStyle(raw), true
	default:
		return "", false
	}
}

// ChatStyle distinguishes one-to-one chats from group chats. The values are
// the literal characters the daemon embeds in chat GUIDs.
type ChatStyle byte

const (
	ChatStyleInstantMessage ChatStyle = '-'
	ChatStyleGroup          ChatStyle = '+'
)

func (s ChatStyle) String() string {
	return string(rune(s))
}

// ErrorCode is the daemon's per-message error code. Zero means no error.
type ErrorCode int

const (
	ErrorNone ErrorCode = 0
	// ErrorRemoteUserDoesNotExist is raised when the recipient is not
	// registered on the service the message was sent on. This is the only
	// code the core attempts automatic recovery for.
	ErrorRemoteUserDoesNotExist ErrorCode = 22
	ErrorNetworkFailure         ErrorCode = 3
	ErrorTimedOut               ErrorCode = 4
)

// SendProgress tracks where a self-sent message is in its delivery attempt.
type SendProgress int

const (
	SendProgressNone SendProgress = iota
	SendProgressSending
	SendProgressFailed
)

// MessageFlags mirror the daemon's message flag bitfield. Only the bits the
// core reads or writes are named.
type MessageFlags uint64

const (
	FlagFromMe     MessageFlags = 1 << 0
	FlagDelivered  MessageFlags = 1 << 12
	FlagDowngraded MessageFlags = 1 << 14
)

// Has reports whether all bits in other are set.
func (f MessageFlags) Has(other MessageFlags) bool {
	return f&other == other
}

// With returns the flags with the given bits set.
func (f MessageFlags) With(other MessageFlags) MessageFlags {
	return f | other
}
