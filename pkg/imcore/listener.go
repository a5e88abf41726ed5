// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// DaemonListener is the synchronous publisher for daemon events. It does
// very minimal post-processing: dedupe, typing/status derivation, and
// classification into typed pipelines that higher-level consumers subscribe
// to. Anything it cannot resolve is dropped with a diagnostic — the stream's
// liveness always wins over completeness of a single event.

package imcore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lrhodin/imcore/pkg/imdaemon"
	"github.com/lrhodin/imcore/pkg/orderedmap"
	"github.com/lrhodin/imcore/pkg/pipeline"
)

const (
	defaultSMSReadBufferCapacity  = 15
	defaultChatIdentifierCacheCap = 100
)

// ItemRulePrewarmer is implemented by daemons that support prewarming their
// per-chat item processing rules.
type ItemRulePrewarmer interface {
	PrewarmItemRules()
}

// DaemonListener normalizes raw daemon callbacks into typed event pipelines.
// All callback methods are safe for concurrent invocation; internal caches
// are guarded by one mutex.
type DaemonListener struct {
	UnreadCount      *pipeline.Pipeline[UnreadCountEvent]
	Typing           *pipeline.Pipeline[TypingEvent]
	ChatName         *pipeline.Pipeline[ChatNameEvent]
	ChatParticipants *pipeline.Pipeline[ChatParticipantsEvent]
	Blocklist        *pipeline.Pipeline[BlocklistEvent]
	MessagesDeleted  *pipeline.Pipeline[MessagesDeletedEvent]
	ChatsDeleted     *pipeline.Pipeline[ChatsDeletedEvent]
	ChatJoinState    *pipeline.Pipeline[ChatJoinStateEvent]
	Message          *pipeline.Pipeline[Message]
	Transcript       *pipeline.Pipeline[TranscriptEvent]
	MessageStatus    *pipeline.Pipeline[MessageStatusChange]
	Configuration    *pipeline.Pipeline[ConfigurationEvent]
	Disconnect       *pipeline.Pipeline[struct{}]

	// Aggregate merges every typed pipeline above into one tagged stream.
	Aggregate *pipeline.Pipeline[Event]

	daemon    imdaemon.Daemon
	db        DBReader
	flags     *Flags
	transfers *PurgedAttachmentController
	reconnect func()

	mu sync.Mutex
	// Caches for determining whether an update notification is needed.
	unreadCounts map[string]int
	displayNames map[string]string
	participants map[string][]string

	currentlyTyping map[string]struct{}

	// Dedupe fingerprints of already-delivered items. No cleanup routine;
	// process lifetime is bounded by the host's session length.
	nonces map[uint64]struct{}

	// In the event a reflected read receipt is processed immediately before
	// an SMS relay message, the relay side would miss the read state. This
	// buffer tracks the n most recent read GUIDs to close that race.
	smsReadBuffer         []string
	smsReadBufferCapacity int

	chatIdentifierCache *orderedmap.OrderedMap[string, string]

	startOnce sync.Once
	log       zerolog.Logger
}

// NewDaemonListener builds a listener wired to the given daemon command
// surface and persistence fallback. Pass nil db to disable persistence
// fallbacks.
func NewDaemonListener(daemon imdaemon.Daemon, db DBReader, flags *Flags, log zerolog.Logger) *DaemonListener {
	l := &DaemonListener{
		UnreadCount:      pipeline.New[UnreadCountEvent](),
		Typing:           pipeline.New[TypingEvent](),
		ChatName:         pipeline.New[ChatNameEvent](),
		ChatParticipants: pipeline.New[ChatParticipantsEvent](),
		Blocklist:        pipeline.New[BlocklistEvent](),
		MessagesDeleted:  pipeline.New[MessagesDeletedEvent](),
		ChatsDeleted:     pipeline.New[ChatsDeletedEvent](),
		ChatJoinState:    pipeline.New[ChatJoinStateEvent](),
		Message:          pipeline.New[Message](),
		Transcript:       pipeline.New[TranscriptEvent](),
		MessageStatus:    pipeline.New[MessageStatusChange](),
		Configuration:    pipeline.New[ConfigurationEvent](),
		Disconnect:       pipeline.New[struct{}](),
		Aggregate:        pipeline.New[Event](),

		daemon: daemon,
		db:     db,
		flags:  flags,

		unreadCounts:          make(map[string]int),
		displayNames:          make(map[string]string),
		participants:          make(map[string][]string),
		currentlyTyping:       make(map[string]struct{}),
		nonces:                make(map[uint64]struct{}),
		smsReadBufferCapacity: defaultSMSReadBufferCapacity,
		chatIdentifierCache:   orderedmap.WithCapacity[string, string](defaultChatIdentifierCacheCap),

		log: log.With().Str("component", "daemon-listener").Logger(),
	}
	l.wireAggregate()
	return l
}

// wireAggregate fans every typed pipeline into the aggregate stream.
func (l *DaemonListener) wireAggregate() {
	l.UnreadCount.Subscribe(func(e UnreadCountEvent) { l.Aggregate.Send(e) })
	l.Typing.Subscribe(func(e TypingEvent) { l.Aggregate.Send(e) })
	l.ChatName.Subscribe(func(e ChatNameEvent) { l.Aggregate.Send(e) })
	l.ChatParticipants.Subscribe(func(e ChatParticipantsEvent) { l.Aggregate.Send(e) })
	l.Blocklist.Subscribe(func(e BlocklistEvent) { l.Aggregate.Send(e) })
	l.MessagesDeleted.Subscribe(func(e MessagesDeletedEvent) { l.Aggregate.Send(e) })
	l.ChatsDeleted.Subscribe(func(e ChatsDeletedEvent) { l.Aggregate.Send(e) })
	l.ChatJoinState.Subscribe(func(e ChatJoinStateEvent) { l.Aggregate.Send(e) })
	l.Message.Subscribe(func(e Message) { l.Aggregate.Send(e) })
	l.Transcript.Subscribe(func(e TranscriptEvent) { l.Aggregate.Send(e) })
	l.MessageStatus.Subscribe(func(e MessageStatusChange) { l.Aggregate.Send(e) })
	l.Configuration.Subscribe(func(e ConfigurationEvent) { l.Aggregate.Send(e) })
}

// SetTransferController attaches the purged-attachment acquirer invoked on
// file-transfer callbacks.
func (l *DaemonListener) SetTransferController(c *PurgedAttachmentController) {
	l.transfers = c
}

// SetReconnect installs the hook invoked when the daemon connection drops.
func (l *DaemonListener) SetReconnect(fn func()) {
	l.reconnect = fn
}

// StartListening wires the internal subscriptions that depend on feature
// flags and the reconnect hook. Safe to call more than once; only the first
// call has any effect.
func (l *DaemonListener) StartListening() {
	l.startOnce.Do(func() {
		l.Disconnect.Subscribe(func(struct{}) {
			l.log.Warn().Msg("Disconnected from daemon")
			if l.reconnect != nil {
				l.reconnect()
			}
		})

		// The flag is checked per event so a live config reload takes effect.
		l.MessageStatus.Subscribe(func(status MessageStatusChange) {
			if !l.flags.Current().UseSMSReadBuffer {
				return
			}
			if status.Type != StatusRead || !status.FromMe {
				return
			}
			// Only buffer reads for chats actually reachable over SMS.
			chat, err := l.daemon.ChatForIdentifier(context.Background(), status.ChatID, imdaemon.ServiceSMS)
			if err != nil || chat == nil {
				return
			}
			l.PushToSMSReadBuffer(status.MessageID)
		})
	})
}

// ============================================================================
// Chat events
// ============================================================================

// SetupComplete seeds the per-chat caches from the daemon's initial chat
// enumeration without emitting change events.
func (l *DaemonListener) SetupComplete(success bool, chats []imdaemon.ChatDetails) {
	l.log.Debug().Bool("success", success).Int("chats", len(chats)).Msg("Daemon setup complete")
	for _, details := range chats {
		l.applyChatDetails(details, false)
	}
	if l.flags.Current().PrewarmItemRules {
		if prewarmer, ok := l.daemon.(ItemRulePrewarmer); ok {
			go prewarmer.PrewarmItemRules()
		}
	}
}

// ChatUpdated handles a chat-properties-changed callback.
func (l *DaemonListener) ChatUpdated(details imdaemon.ChatDetails) {
	l.applyChatDetails(details, true)
}

// ChatDisplayNameUpdated handles a group-name change.
func (l *DaemonListener) ChatDisplayNameUpdated(persistentID, displayName string) {
	l.ChatName.Send(ChatNameEvent{Chat: imdaemon.MergedChatID(persistentID), Name: displayName})
}

// ChatLoaded handles a chat being loaded (created or re-materialized); no
// change events are emitted, the caches are just brought up to date.
func (l *DaemonListener) ChatLoaded(chatIdentifier string, chats []imdaemon.ChatDetails) {
	l.log.Debug().Str("chat_identifier", chatIdentifier).Int("chats", len(chats)).Msg("Chat loaded")
	for _, details := range chats {
		l.applyChatDetails(details, false)
	}
}

// LeftChat handles the local user leaving a chat.
func (l *DaemonListener) LeftChat(persistentID string) {
	l.log.Debug().Str("persistent_id", persistentID).Msg("Left chat")
}

// BlocklistUpdated handles an account privacy-settings change.
func (l *DaemonListener) BlocklistUpdated(entries []string) {
	l.Blocklist.Send(BlocklistEvent{Entries: entries})
}

// ChatJoinStateChanged handles a join-state notification.
func (l *DaemonListener) ChatJoinStateChanged(chat string, state JoinState) {
	l.ChatJoinState.Send(ChatJoinStateEvent{Chat: chat, JoinState: state})
}

// ChatConfigurationChanged handles a chat-properties notification.
func (l *DaemonListener) ChatConfigurationChanged(cfg ChatConfiguration) {
	l.Configuration.Send(ConfigurationEvent{Configuration: cfg})
}

// DaemonDisconnected handles the daemon connection dropping.
func (l *DaemonListener) DaemonDisconnected() {
	l.Disconnect.Send(struct{}{})
}

// ============================================================================
// Message events
// ============================================================================

// MessageSent is invoked when a message was sent from this account, here or
// on another device.
func (l *DaemonListener) MessageSent(chatIdentifier string, msg *imdaemon.MessageItem) {
	l.mu.Lock()
	l.chatIdentifierCache.Set(msg.ItemGUID, chatIdentifier)
	l.mu.Unlock()
	l.processNewMessage(msg, chatIdentifier)
}

// NotifySentMessage is invoked when a message was sent locally; it surfaces
// as a sent status change carrying the full message payload.
func (l *DaemonListener) NotifySentMessage(msg *imdaemon.MessageItem) {
	sentTime := msg.ClientSendTime
	if sentTime.IsZero() {
		sentTime = msg.Timestamp
	}
	if sentTime.IsZero() {
		sentTime = time.Now()
	}

	chatID, ok := l.cachedChatIdentifier(msg.ItemGUID)
	if !ok && l.db != nil {
		if dbID, err := l.db.ChatIdentifierForMessageGUID(context.Background(), msg.ItemGUID); err == nil && dbID != "" {
			chatID = dbID
			ok = true
		}
	}
	if !ok {
		l.log.Error().Str("guid", msg.ItemGUID).Msg("Failed to resolve chat identifier for sent message")
		return
	}
	service, parsed := imdaemon.ParseServiceStyle(msg.ServiceID)
	if !parsed {
		l.log.Error().Str("guid", msg.ItemGUID).Str("service", msg.ServiceID).
			Msg("Cannot process sent message: service is not a known value")
		return
	}

	l.MessageStatus.Send(MessageStatusChange{
		Type:      StatusSent,
		Service:   service,
		Time:      sentTime,
		FromMe:    true,
		ChatID:    chatID,
		MessageID: msg.ItemGUID,
		message:   msg,
	})
}

// MessageReceived handles a single incoming item.
func (l *DaemonListener) MessageReceived(chatIdentifier string, item imdaemon.Item) {
	l.processNewMessage(item, chatIdentifier)
}

// MessagesReceived handles a batch of incoming items. Failures are per item;
// one bad item never affects its siblings.
func (l *DaemonListener) MessagesReceived(chatIdentifier string, items []imdaemon.Item) {
	for _, item := range items {
		l.processNewMessage(item, chatIdentifier)
	}
}

// ServiceMessagesUpdated is invoked for status updates (read/deliver/play etc).
func (l *DaemonListener) ServiceMessagesUpdated(chatIdentifier string, style imdaemon.ChatStyle, msgs []*imdaemon.MessageItem) {
	for _, msg := range msgs {
		l.processServiceMessage(msg, chatIdentifier, style)
	}
}

// MessagesUpdated is the catch-all update callback; it only handles failed
// messages that are not otherwise caught — error-free updates flow through
// another handler.
func (l *DaemonListener) MessagesUpdated(chatIdentifier string, items []imdaemon.Item) {
	for _, item := range items {
		msg, ok := item.(*imdaemon.MessageItem)
		if !ok {
			continue
		}
		if msg.ErrorCode == imdaemon.ErrorNone {
			l.log.Debug().Str("guid", msg.ItemGUID).
				Msg("Ignoring updated message without an error, it will flow through another handler")
			continue
		}
		resolved := chatIdentifier
		if resolved == "" && l.db != nil {
			dbID, err := l.db.ChatIdentifierForMessageGUID(context.Background(), msg.ItemGUID)
			if err != nil || dbID == "" {
				continue
			}
			resolved = dbID
		}
		if resolved == "" {
			continue
		}
		l.processNewMessage(msg, resolved)
	}
}

// HistoricalMessageGUIDsDeleted handles history deletions.
func (l *DaemonListener) HistoricalMessageGUIDsDeleted(deletedGUIDs, chatGUIDs []string) {
	if len(deletedGUIDs) > 0 {
		l.MessagesDeleted.Send(MessagesDeletedEvent{GUIDs: deletedGUIDs})
	}
	if len(chatGUIDs) > 0 {
		l.ChatsDeleted.Send(ChatsDeletedEvent{ChatGUIDs: chatGUIDs})
	}
}

// HandleReflectedReadReceipt processes a read receipt reflected from another
// of the user's devices. The owning chat is only known by message GUID, so
// the persistence layer resolves it.
func (l *DaemonListener) HandleReflectedReadReceipt(ctx context.Context, guid string, service imdaemon.ServiceStyle, readAt time.Time) {
	if l.db == nil {
		return
	}
	chatID, err := l.db.ChatIdentifierForMessageGUID(ctx, guid)
	if err != nil || chatID == "" {
		l.log.Debug().Str("guid", guid).Err(err).Msg("Reflected read receipt for unknown message, dropping")
		return
	}
	l.MessageStatus.Send(MessageStatusChange{
		Type:      StatusRead,
		Service:   service,
		Time:      readAt,
		FromMe:    true,
		ChatID:    chatID,
		MessageID: guid,
	})
}

// ============================================================================
// File transfers
// ============================================================================

// FileTransferCreated handles a transfer appearing.
func (l *DaemonListener) FileTransferCreated(guid string) {
	l.processTransfer(guid)
}

// FileTransferUpdated handles a transfer's state changing.
func (l *DaemonListener) FileTransferUpdated(guid string) {
	l.processTransfer(guid)
}

func (l *DaemonListener) processTransfer(guid string) {
	if l.transfers == nil {
		return
	}
	go l.transfers.Process(context.Background(), []string{guid})
}

// ============================================================================
// Chat cache application
// ============================================================================

func (l *DaemonListener) applyChatDetails(details imdaemon.ChatDetails, emitIfNeeded bool) {
	chatIdentifier := details.ChatIdentifier
	if chatIdentifier == "" {
		l.log.Debug().Interface("details", details).Msg("Couldn't find chat identifier in serialized chat")
		return
	}

	if details.UnreadCount != nil {
		l.mu.Lock()
		previous := l.unreadCounts[chatIdentifier]
		l.unreadCounts[chatIdentifier] = *details.UnreadCount
		l.mu.Unlock()
		if emitIfNeeded && previous != *details.UnreadCount {
			l.UnreadCount.Send(UnreadCountEvent{Chat: chatIdentifier, Count: *details.UnreadCount})
		}
	}

	l.mu.Lock()
	previousName, hadName := l.displayNames[chatIdentifier]
	l.displayNames[chatIdentifier] = details.DisplayName
	l.mu.Unlock()
	if emitIfNeeded && (!hadName || previousName != details.DisplayName) {
		l.ChatName.Send(ChatNameEvent{Chat: chatIdentifier, Name: details.DisplayName})
	}

	if details.Participants != nil {
		l.applyParticipants(chatIdentifier, details.Participants, emitIfNeeded)
	}
}

func (l *DaemonListener) applyParticipants(chatIdentifier string, chatParticipants []string, emitIfNeeded bool) {
	l.mu.Lock()
	previous := l.participants[chatIdentifier]
	l.participants[chatIdentifier] = chatParticipants
	l.mu.Unlock()
	if emitIfNeeded && !slices.Equal(previous, chatParticipants) {
		l.ChatParticipants.Send(ChatParticipantsEvent{Chat: chatIdentifier, Participants: chatParticipants})
	}
}

// ============================================================================
// Message handling
// ============================================================================

// preflight decides whether an item is allowed through, recording dedupe
// state. Only failed messages may emit more than once, as a failed message
// may not first fail with its error code.
func (l *DaemonListener) preflight(item imdaemon.Item) bool {
	msg, isMessage := item.(*imdaemon.MessageItem)
	nonce := ItemNonce(item)
	flags := l.flags.Current()

	l.mu.Lock()
	defer l.mu.Unlock()

	if flags.WithholdDupes {
		if _, seen := l.nonces[nonce]; seen {
			if !isMessage || msg.SendProgress != imdaemon.SendProgressFailed {
				l.log.Debug().Str("guid", item.GUID()).Msg("Withholding item: dedupe")
				return false
			}
		}
	}

	if !item.FromMe() || !isMessage {
		// Passthrough.
		l.nonces[nonce] = struct{}{}
		return true
	}

	if msg.SendProgress == imdaemon.SendProgressFailed && msg.ErrorCode == imdaemon.ErrorNone &&
		flags.WithholdPartialFailures {
		l.log.Debug().Str("guid", msg.ItemGUID).
			Msg("Withholding message: missing error code, message is either still in progress or the error code is coming soon")
		return false
	}

	return true
}

func (l *DaemonListener) processNewMessage(item imdaemon.Item, chatIdentifier string) {
	if !l.preflight(item) {
		l.log.Warn().Str("guid", item.GUID()).Msg("Withholding item: preflight failure")
		return
	}

	service, ok := imdaemon.ParseServiceStyle(item.Service())
	if !ok {
		l.log.Warn().Str("guid", item.GUID()).Str("service", item.Service()).
			Msg("Couldn't form relevant service, ignoring item")
		return
	}

	switch typed := item.(type) {
	case *imdaemon.MessageItem:
		l.setTyping(chatIdentifier, service, typed.IsIncomingTyping() && !typed.IsCancelTyping)

		// Typing indicators are not part of the timeline.
		if typed.IsTyping || typed.IsCancelTyping {
			l.log.Debug().Str("guid", typed.ItemGUID).Msg("Ignoring typing message")
			return
		}

		flags := l.flags.Current()
		if flags.DropSpamMessages && typed.IsSpam {
			l.log.Debug().Str("guid", typed.ItemGUID).Msg("Ignoring message flagged as spam")
			return
		}

		if typed.ErrorCode == imdaemon.ErrorRemoteUserDoesNotExist {
			// Handled by recovery, never surfaced as a message event.
			if typed.IsFromMe {
				l.recoverFailedMessage(context.Background(), typed, chatIdentifier)
			}
			return
		}

		l.log.Debug().Str("guid", typed.ItemGUID).Str("service", string(service)).
			Str("chat_identifier", chatIdentifier).Msg("Sending message down the pipeline")
		l.Message.Send(Message{Item: typed, ChatID: chatIdentifier, Service: service})
	default:
		l.processTranscriptItem(item, chatIdentifier, service)
	}
}

// processTranscriptItem wraps a non-message item as a transcript action,
// applying the side effects a couple of variants imply.
func (l *DaemonListener) processTranscriptItem(item imdaemon.Item, chatIdentifier string, service imdaemon.ServiceStyle) {
	var additionalTransfers []string

	switch typed := item.(type) {
	case *imdaemon.ParticipantChangeItem:
		if typed.TargetID != "" {
			l.applyParticipantChange(chatIdentifier, typed)
		}
	case *imdaemon.GroupActionItem:
		if typed.ActionType == imdaemon.GroupActionSetPhoto {
			// A new group photo means a new attachment became relevant.
			guid := imdaemon.CreateChatGUID(string(service), imdaemon.ChatStyleGroup, chatIdentifier)
			if chat, err := l.daemon.ChatForGUID(context.Background(), guid); err == nil && chat != nil {
				if photo := chat.GroupPhotoGUID(); photo != "" {
					additionalTransfers = append(additionalTransfers, photo)
				}
			}
		}
	}

	l.Transcript.Send(TranscriptEvent{
		Item:                        item,
		ChatID:                      chatIdentifier,
		Service:                     service,
		AdditionalFileTransferGUIDs: additionalTransfers,
	})
}

// applyParticipantChange folds a participant add/remove into the cached
// membership and emits only if membership actually changed.
func (l *DaemonListener) applyParticipantChange(chatIdentifier string, change *imdaemon.ParticipantChangeItem) {
	l.mu.Lock()
	current, known := l.participants[chatIdentifier]
	l.mu.Unlock()
	if !known {
		return
	}

	contains := slices.Contains(current, change.TargetID)
	switch {
	case change.ChangeType == imdaemon.ParticipantAdded && !contains:
		updated := append(slices.Clone(current), change.TargetID)
		l.applyParticipants(chatIdentifier, updated, true)
	case change.ChangeType == imdaemon.ParticipantRemoved && contains:
		updated := slices.DeleteFunc(slices.Clone(current), func(p string) bool { return p == change.TargetID })
		l.applyParticipants(chatIdentifier, updated, true)
	}
}

func (l *DaemonListener) processServiceMessage(msg *imdaemon.MessageItem, chatIdentifier string, style imdaemon.ChatStyle) {
	status := DeriveStatusChange(msg, chatIdentifier, style)
	if status == nil {
		return
	}
	if l.flags.Current().DropSpamMessages && msg.IsSpam {
		return
	}
	l.MessageStatus.Send(*status)
}

// setTyping flips the chat's typing flag, emitting only on edge transitions.
func (l *DaemonListener) setTyping(chatIdentifier string, service imdaemon.ServiceStyle, typing bool) {
	l.mu.Lock()
	_, active := l.currentlyTyping[chatIdentifier]
	changed := typing != active
	if typing {
		l.currentlyTyping[chatIdentifier] = struct{}{}
	} else {
		delete(l.currentlyTyping, chatIdentifier)
	}
	l.mu.Unlock()

	if changed {
		l.Typing.Send(TypingEvent{Chat: chatIdentifier, Service: service, Typing: typing})
	}
}

func (l *DaemonListener) cachedChatIdentifier(messageGUID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chatIdentifierCache.Get(messageGUID)
}

// ============================================================================
// SMS read buffer
// ============================================================================

// SetSMSReadBufferCapacity resizes the buffer, keeping the newest entries.
func (l *DaemonListener) SetSMSReadBufferCapacity(capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.smsReadBufferCapacity = capacity
	if len(l.smsReadBuffer) > capacity {
		l.smsReadBuffer = append([]string(nil), l.smsReadBuffer[len(l.smsReadBuffer)-capacity:]...)
	}
}

// PushToSMSReadBuffer records a recently read message GUID, evicting the
// oldest entry on overflow.
func (l *DaemonListener) PushToSMSReadBuffer(guid string) {
	if !l.flags.Current().UseSMSReadBuffer {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.Contains(l.smsReadBuffer, guid) {
		return
	}
	l.log.Debug().Str("guid", guid).Msg("Adding GUID to SMS read buffer")
	l.smsReadBuffer = append(l.smsReadBuffer, guid)
	if len(l.smsReadBuffer) > l.smsReadBufferCapacity {
		l.smsReadBuffer = append([]string(nil), l.smsReadBuffer[len(l.smsReadBuffer)-l.smsReadBufferCapacity:]...)
	}
}

// SMSReadBufferContains reports whether the GUID was recently marked read.
func (l *DaemonListener) SMSReadBufferContains(guid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.smsReadBuffer, guid)
}

// FlushSMSReadBuffer discards all buffered read GUIDs.
func (l *DaemonListener) FlushSMSReadBuffer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.smsReadBuffer = nil
}
