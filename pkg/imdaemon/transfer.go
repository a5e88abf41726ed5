// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package imdaemon

import "os"

// TransferState is the daemon's file-transfer lifecycle state.
type TransferState int

const (
	TransferUnknown TransferState = iota
	TransferWaitingForAccept
	TransferAccepted
	TransferTransferring
	TransferFinished
	TransferError
	TransferRecoverableError
)

// FileTransfer is a snapshot of a daemon file transfer. Snapshots are not
// live; poll TransferCenter.Transfer for fresh state.
type FileTransfer struct {
	GUID       string
	State      TransferState
	IsIncoming bool
	// NeedsUnpurging is set when the transfer's payload was deferred by the
	// daemon and has to be explicitly accepted before the bytes exist locally.
	NeedsUnpurging bool
	LocalPath      string
	MIMEType       string
	Filename       string
	TotalBytes     int64
	Error          int
}

// IsFinished reports whether the transfer reached a terminal successful state.
func (t *FileTransfer) IsFinished() bool {
	return t.State == TransferFinished
}

// IsTrulyFinished reports whether the transfer is finished and its payload is
// actually present on disk. The daemon posts finish notifications slightly
// before the file lands.
func (t *FileTransfer) IsTrulyFinished() bool {
	if !t.IsFinished() || t.LocalPath == "" {
		return false
	}
	_, err := os.Stat(t.LocalPath)
	return err == nil
}

// TransferCenter is the daemon's file-transfer subsystem.
type TransferCenter interface {
	// Transfer returns a snapshot of the transfer with the given GUID.
	Transfer(guid string) (*FileTransfer, bool)
	// RegisterTransfer makes the daemon track the transfer for this client.
	RegisterTransfer(guid string)
	// AcceptTransfer asks the daemon to start materializing the payload.
	AcceptTransfer(guid string)
	// SubscribeFinish returns a channel that is closed (or receives) when the
	// daemon posts a finish notification for the GUID, plus a cancel func
	// that must be called to release the subscription.
	SubscribeFinish(guid string) (<-chan struct{}, func())
}
