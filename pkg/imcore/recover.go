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
	"time"

	"github.com/lrhodin/imcore/pkg/imdaemon"
)

// manualDowngradeThreshold is how many consecutive manual downgrade attempts
// a single-participant chat gets before the preference is persisted instead.
const manualDowngradeThreshold = 5

// downgradeRecheckInterval is how long the daemon waits before re-evaluating
// a persisted downgrade decision.
const downgradeRecheckInterval = 10 * time.Second

// recoverFailedMessage attempts an SMS downgrade for a self-sent message
// that failed with remoteUserDoesNotExist. Returns true when the message was
// resubmitted. All other failure codes are not auto-recovered.
func (l *DaemonListener) recoverFailedMessage(ctx context.Context, msg *imdaemon.MessageItem, chatIdentifier string) bool {
	if msg.ErrorCode != imdaemon.ErrorRemoteUserDoesNotExist {
		return false
	}
	if service, _ := imdaemon.ParseServiceStyle(msg.ServiceID); service != imdaemon.ServiceIMessage {
		l.log.Info().Str("guid", msg.ItemGUID).
			Msg("Message failed with remoteUserDoesNotExist but it is not on iMessage, can't fix this")
		return false
	}

	chat, err := l.daemon.ChatForIdentifier(ctx, chatIdentifier, "")
	if err != nil || chat == nil {
		l.log.Info().Str("guid", msg.ItemGUID).Err(err).
			Msg("Message failed with remoteUserDoesNotExist but its chat could not be found, won't fix this")
		return false
	}
	participants := chat.Participants()
	for _, handle := range participants {
		if !imdaemon.IsDowngradeableHandle(handle) {
			l.log.Info().Str("guid", msg.ItemGUID).Str("handle", handle).
				Msg("Message failed with remoteUserDoesNotExist but the chat is not guaranteed downgradeable, won't fix this")
			return false
		}
	}

	l.log.Info().Str("guid", msg.ItemGUID).Str("chat_identifier", chatIdentifier).
		Msg("Downgrading failed message to SMS")

	if len(participants) == 1 {
		// Counting this attempt: past the threshold, persist the preference
		// instead of incrementing forever.
		if chat.ConsecutiveDowngradeAttempts(true) >= manualDowngradeThreshold {
			l.log.Info().Str("chat_identifier", chatIdentifier).
				Msg("Chat has had five consecutive downgrade attempts, persisting the downgrade")
			chat.PersistDowngrade(downgradeRecheckInterval)
		} else {
			l.log.Info().Str("chat_identifier", chatIdentifier).Msg("Incrementing downgrade counter for chat")
			chat.IncrementDowngradeMarkers(true)
		}
	}

	if err := chat.TargetToService(imdaemon.ServiceSMS); err != nil {
		l.log.Error().Err(err).Str("chat_identifier", chatIdentifier).Msg("Failed to re-target chat to SMS")
		return false
	}

	account, ok := l.daemon.ActiveSMSAccount()
	if !ok {
		l.log.Error().Str("guid", msg.ItemGUID).Msg("No active SMS account, cannot resubmit downgraded message")
		return false
	}

	// Clear the dedupe fingerprint so the downgraded resend isn't withheld.
	l.mu.Lock()
	delete(l.nonces, ItemNonce(msg))
	l.mu.Unlock()

	msg.Flags = msg.Flags.With(imdaemon.FlagDowngraded)
	msg.ServiceID = string(imdaemon.ServiceSMS)
	msg.Account = account

	if err := chat.Send(msg); err != nil {
		l.log.Error().Err(err).Str("guid", msg.ItemGUID).Msg("Failed to resubmit downgraded message")
		return false
	}
	return true
}
