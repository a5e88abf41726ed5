// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package imcore

import (
	"context"
	"errors"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/lrhodin/imcore/pkg/imdaemon"
)

var (
	// ErrTransferNotFound is returned when the daemon has no record of a
	// transfer GUID.
	ErrTransferNotFound = errors.New("file transfer not found")
	// ErrTransferTimeout is returned when a purged transfer did not
	// materialize within the acquisition deadline.
	ErrTransferTimeout = errors.New("timed out waiting for file transfer")
	// ErrTransferFailed is returned when the daemon reports a terminal error
	// for a transfer.
	ErrTransferFailed = errors.New("file transfer failed")
	// ErrTransferTooLarge is returned when a transfer exceeds the configured
	// size ceiling and acquisition is skipped.
	ErrTransferTooLarge = errors.New("file transfer too large")
)

const (
	defaultUnpurgeTimeout      = 30 * time.Second
	defaultUnpurgePollInterval = 200 * time.Millisecond
)

// PurgedTransferDelegate is notified per transfer as a batch settles.
type PurgedTransferDelegate interface {
	// TransferResolved is called when a transfer's payload exists locally.
	TransferResolved(transfer *imdaemon.FileTransfer)
	// TransferFailed is called when a transfer cannot be acquired.
	TransferFailed(guid string, err error)
}

// PurgedAttachmentController acquires attachment payloads the daemon has
// purged from local storage. Each acquisition races a finish notification
// against a hard deadline.
type PurgedAttachmentController struct {
	// Enabled gates acquisition; when false, purged transfers fail fast.
	Enabled bool
	// MaxBytes caps acquisition by reported size, zero for no limit.
	MaxBytes int64
	// Timeout bounds a single transfer's acquisition.
	Timeout time.Duration
	// PollInterval is the on-disk re-check cadence after a finish
	// notification arrives before the payload does.
	PollInterval time.Duration

	center   imdaemon.TransferCenter
	delegate PurgedTransferDelegate
	log      zerolog.Logger
}

// NewPurgedAttachmentController builds an enabled controller with the
// default 30 second deadline. delegate may be nil.
func NewPurgedAttachmentController(center imdaemon.TransferCenter, delegate PurgedTransferDelegate, log zerolog.Logger) *PurgedAttachmentController {
	return &PurgedAttachmentController{
		Enabled:      true,
		Timeout:      defaultUnpurgeTimeout,
		PollInterval: defaultUnpurgePollInterval,

		center:   center,
		delegate: delegate,
		log:      log.With().Str("component", "purged-attachments").Logger(),
	}
}

// Process settles a batch of transfer GUIDs sequentially. Each transfer is
// resolved, acquired, skipped, or failed independently; one failure never
// aborts the rest of the batch. The returned error is the first failure,
// if any.
func (c *PurgedAttachmentController) Process(ctx context.Context, guids []string) error {
	var firstErr error
	for _, guid := range guids {
		transfer, err := c.processOne(ctx, guid)
		if err != nil {
			c.log.Warn().Err(err).Str("transfer_guid", guid).Msg("Failed to acquire file transfer")
			if c.delegate != nil {
				c.delegate.TransferFailed(guid, err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if transfer == nil {
			continue
		}
		if c.delegate != nil {
			c.delegate.TransferResolved(transfer)
		}
	}
	return firstErr
}

// processOne returns (nil, nil) for transfers that are not ours to acquire,
// such as an outgoing upload still in flight.
func (c *PurgedAttachmentController) processOne(ctx context.Context, guid string) (*imdaemon.FileTransfer, error) {
	transfer, ok := c.center.Transfer(guid)
	if !ok {
		return nil, ErrTransferNotFound
	}
	if transfer.IsTrulyFinished() {
		return c.resolved(transfer), nil
	}
	if transfer.State == imdaemon.TransferError {
		return nil, ErrTransferFailed
	}
	if !transfer.IsIncoming || !transfer.NeedsUnpurging {
		if transfer.IsFinished() {
			// Finish notification landed before the file did.
			return c.awaitOnDisk(ctx, guid)
		}
		c.log.Debug().Str("transfer_guid", guid).
			Bool("is_incoming", transfer.IsIncoming).
			Msg("Skipping transfer that does not need unpurging")
		return nil, nil
	}
	if c.MaxBytes > 0 && transfer.TotalBytes > c.MaxBytes {
		return nil, ErrTransferTooLarge
	}
	if !c.Enabled {
		return nil, ErrTransferFailed
	}
	return c.unpurge(ctx, guid)
}

// unpurge registers and accepts the transfer, then races the daemon's finish
// notification against the deadline. Whichever side settles first wins;
// the deadline side re-checks transfer state once before declaring a
// timeout, since the notification can be lost while the payload still lands.
func (c *PurgedAttachmentController) unpurge(ctx context.Context, guid string) (*imdaemon.FileTransfer, error) {
	finished, cancel := c.center.SubscribeFinish(guid)
	defer cancel()

	c.center.RegisterTransfer(guid)
	c.center.AcceptTransfer(guid)

	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-finished:
		return c.awaitOnDisk(ctx, guid)
	case <-timer.C:
		transfer, ok := c.center.Transfer(guid)
		if ok && transfer.IsFinished() {
			return c.awaitOnDisk(ctx, guid)
		}
		return nil, ErrTransferTimeout
	}
}

// awaitOnDisk polls until the payload actually exists on disk. The daemon
// posts finish notifications slightly before the file lands, so a finished
// transfer is not immediately usable.
func (c *PurgedAttachmentController) awaitOnDisk(ctx context.Context, guid string) (*imdaemon.FileTransfer, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(c.Timeout)
	defer deadline.Stop()

	for {
		transfer, ok := c.center.Transfer(guid)
		if !ok {
			return nil, ErrTransferNotFound
		}
		if transfer.IsTrulyFinished() {
			return c.resolved(transfer), nil
		}
		if transfer.State == imdaemon.TransferError {
			return nil, ErrTransferFailed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrTransferTimeout
		case <-ticker.C:
		}
	}
}

// resolved backfills metadata the daemon often omits on freshly landed
// payloads before handing the snapshot out.
func (c *PurgedAttachmentController) resolved(transfer *imdaemon.FileTransfer) *imdaemon.FileTransfer {
	if transfer.MIMEType == "" && transfer.LocalPath != "" {
		if mime, err := mimetype.DetectFile(transfer.LocalPath); err == nil {
			transfer.MIMEType = mime.String()
		}
	}
	return transfer
}
