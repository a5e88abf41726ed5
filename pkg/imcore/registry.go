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
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lrhodin/imcore/pkg/imdaemon"
	"github.com/lrhodin/imcore/pkg/pipeline"
)

// ChatIdentifierKind distinguishes the two identifier shapes a chat can be
// addressed by.
type ChatIdentifierKind int

const (
	KindChatGUID ChatIdentifierKind = iota
	KindGroupID
)

// ChatIdentifier addresses one chat by either its canonical GUID or its
// daemon-internal group ID. Both forms registered for a chat resolve to the
// same entity.
type ChatIdentifier struct {
	Kind  ChatIdentifierKind
	Value string
}

// GUIDIdentifier addresses a chat by canonical GUID.
func GUIDIdentifier(guid string) ChatIdentifier {
	return ChatIdentifier{Kind: KindChatGUID, Value: guid}
}

// GroupIDIdentifier addresses a chat by daemon group ID.
func GroupIDIdentifier(groupID string) ChatIdentifier {
	return ChatIdentifier{Kind: KindGroupID, Value: groupID}
}

func (id ChatIdentifier) String() string {
	switch id.Kind {
	case KindGroupID:
		return "groupID:" + id.Value
	default:
		return "guid:" + id.Value
	}
}

// RegistryChat is the in-process entity for one daemon chat. Exactly one
// exists per distinct daemon chat for the process lifetime.
type RegistryChat struct {
	chat    imdaemon.Chat
	guid    string
	groupID string
}

// GUID returns the chat's canonical GUID.
func (c *RegistryChat) GUID() string { return c.guid }

// GroupID returns the chat's group ID, empty if it has none.
func (c *RegistryChat) GroupID() string { return c.groupID }

// Daemon returns the underlying daemon chat object.
func (c *RegistryChat) Daemon() imdaemon.Chat { return c.chat }

// ItemHandler receives the items dispatched into a chat entity. Within one
// chat, invocation order mirrors daemon delivery order.
type ItemHandler func(chat *RegistryChat, item imdaemon.Item) error

// FailedMessage surfaces an item the registry could not hand off.
type FailedMessage struct {
	GUID     string
	ChatGUID string
	Service  string
	Err      error
}

// IncomingItem bundles the identifier hints a daemon message callback
// supplies alongside the item itself. Any subset may be present.
type IncomingItem struct {
	ChatIdentifier string
	ChatStyle      imdaemon.ChatStyle
	Service        string
	GroupID        string
	Properties     *imdaemon.ChatDetails
	Item           imdaemon.Item
}

// ChatRegistry is the authoritative store of chat entities and the
// multi-key index resolving any identifier shape to one entity. All mutable
// state is serialized behind one mutex; daemon materialization happens
// outside the critical section so a slow daemon call never blocks readers.
type ChatRegistry struct {
	// FailedMessages carries items whose per-chat handler returned an error.
	FailedMessages *pipeline.Pipeline[FailedMessage]

	daemon  imdaemon.Daemon
	db      DBReader
	flags   *Flags
	handler ItemHandler
	log     zerolog.Logger

	mu       sync.Mutex
	chats    map[ChatIdentifier]*RegistryChat
	allChats map[string]*RegistryChat // keyed by canonical GUID

	// First writer wins: entries are never overwritten once set, to avoid
	// identity churn (unless the repair flag allows it).
	messageIDReverseLookup map[string]ChatIdentifier

	hasLoadedChats       bool
	loadedChatsCallbacks []func()

	chatLoadedCallbacks map[string][]func([]imdaemon.Chat)
	queryCallbacks      map[string][]func()
}

// NewChatRegistry builds a registry. handler receives dispatched items; db
// may be nil to disable the numeric-message-ID resolution fallback.
func NewChatRegistry(daemon imdaemon.Daemon, db DBReader, flags *Flags, handler ItemHandler, log zerolog.Logger) *ChatRegistry {
	return &ChatRegistry{
		FailedMessages: pipeline.New[FailedMessage](),

		daemon:  daemon,
		db:      db,
		flags:   flags,
		handler: handler,
		log:     log.With().Str("component", "chat-registry").Logger(),

		chats:                  make(map[ChatIdentifier]*RegistryChat),
		allChats:               make(map[string]*RegistryChat),
		messageIDReverseLookup: make(map[string]ChatIdentifier),
		chatLoadedCallbacks:    make(map[string][]func([]imdaemon.Chat)),
		queryCallbacks:         make(map[string][]func()),
	}
}

// ============================================================================
// Resolution
// ============================================================================

// ResolveOrLoad resolves partial chat details to the identifier of an
// existing entity, or materializes the chat from the daemon (by GUID first,
// then group ID) and registers it under every identifier form it exposes.
// Returns false when the daemon does not know the chat either.
func (r *ChatRegistry) ResolveOrLoad(ctx context.Context, details imdaemon.ChatDetails) (ChatIdentifier, bool) {
	if id, ok := r.lookupDetails(details); ok {
		return id, true
	}

	// Materialize outside the lock; the daemon call is the slow part.
	var chat imdaemon.Chat
	var err error
	if details.GUID != "" {
		if chat, err = r.daemon.ChatForGUID(ctx, details.GUID); err != nil {
			r.log.Debug().Err(err).Str("guid", details.GUID).Msg("Chat materialization by GUID failed")
		}
	}
	if chat == nil && details.GroupID != "" {
		if chat, err = r.daemon.ChatForGroupID(ctx, details.GroupID); err != nil {
			r.log.Debug().Err(err).Str("group_id", details.GroupID).Msg("Chat materialization by group ID failed")
		}
	}
	if chat == nil {
		return ChatIdentifier{}, false
	}

	return r.store(chat), true
}

func (r *ChatRegistry) lookupDetails(details imdaemon.ChatDetails) (ChatIdentifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range identifiersFromDetails(details) {
		if _, ok := r.chats[id]; ok {
			return id, true
		}
	}
	return ChatIdentifier{}, false
}

func identifiersFromDetails(details imdaemon.ChatDetails) []ChatIdentifier {
	ids := make([]ChatIdentifier, 0, 3)
	if details.GUID != "" {
		ids = append(ids, GUIDIdentifier(details.GUID))
	}
	if details.GroupID != "" {
		ids = append(ids, GroupIDIdentifier(details.GroupID))
	}
	if details.ChatIdentifier != "" && details.Service != "" {
		style := details.Style
		if style == 0 {
			style = imdaemon.ChatStyleInstantMessage
		}
		ids = append(ids, GUIDIdentifier(imdaemon.CreateChatGUID(details.Service, style, details.ChatIdentifier)))
	}
	return ids
}

// store registers a materialized chat under all of its identifiers. At most
// one entity ever exists per daemon chat; a racing store returns the
// existing entity's identifier.
func (r *ChatRegistry) store(chat imdaemon.Chat) ChatIdentifier {
	r.mu.Lock()
	defer r.mu.Unlock()

	guid := chat.GUID()
	if existing, ok := r.allChats[guid]; ok {
		return GUIDIdentifier(existing.guid)
	}

	entity := &RegistryChat{chat: chat, guid: guid, groupID: chat.GroupID()}
	r.allChats[guid] = entity
	r.chats[GUIDIdentifier(guid)] = entity
	if entity.groupID != "" {
		r.chats[GroupIDIdentifier(entity.groupID)] = entity
	}
	return GUIDIdentifier(guid)
}

// Chat returns the entity registered under the identifier, if any.
func (r *ChatRegistry) Chat(id ChatIdentifier) (*RegistryChat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[id]
	return chat, ok
}

// ============================================================================
// Dispatch
// ============================================================================

// Dispatch routes an item to the chat entity registered under id, recording
// the item's GUID in the reverse lookup (first writer wins). An unregistered
// identifier is logged and dropped, never surfaced to the caller; the only
// error returned is the per-chat handler's.
func (r *ChatRegistry) Dispatch(id ChatIdentifier, item imdaemon.Item) error {
	r.mu.Lock()
	if guid := item.GUID(); guid != "" {
		if _, ok := r.messageIDReverseLookup[guid]; !ok {
			r.messageIDReverseLookup[guid] = id
		}
	}
	chat, ok := r.chats[id]
	r.mu.Unlock()

	if !ok {
		r.log.Info().Str("chat", id.String()).Str("guid", item.GUID()).Msg("Where is chat?!")
		return nil
	}
	if r.handler == nil {
		return nil
	}
	return r.handler(chat, item)
}

// HandleIncoming runs the full resolution chain for one incoming item and
// dispatches it. Resolution order, first success wins: supplied chat
// properties, message-ID reverse lookup, group ID hint, synthesized GUID
// from (service, style, chat identifier), and finally the persistence layer
// by numeric message ID. Unresolvable items are dropped with a diagnostic.
func (r *ChatRegistry) HandleIncoming(ctx context.Context, inc IncomingItem) {
	chatID, ok := r.resolveIncoming(ctx, inc)
	if !ok {
		r.log.Debug().
			Str("chat_identifier", inc.ChatIdentifier).
			Str("guid", inc.Item.GUID()).
			Msg("Dropping item because its chat cannot be found")
		return
	}
	if err := r.Dispatch(chatID, inc.Item); err != nil {
		chatGUID := imdaemon.CreateChatGUID(orNil(inc.Service), styleOrDefault(inc.ChatStyle), orNil(inc.ChatIdentifier))
		r.log.Error().Err(err).Str("guid", inc.Item.GUID()).Str("chat_guid", chatGUID).
			Msg("Could not handle item")
		r.FailedMessages.Send(FailedMessage{
			GUID:     inc.Item.GUID(),
			ChatGUID: chatGUID,
			Service:  inc.Service,
			Err:      err,
		})
	}
}

func (r *ChatRegistry) resolveIncoming(ctx context.Context, inc IncomingItem) (ChatIdentifier, bool) {
	if inc.Properties != nil {
		if id, ok := r.ResolveOrLoad(ctx, *inc.Properties); ok {
			r.maybeRepairLink(inc.Item.GUID(), id)
			return id, true
		}
	}
	if guid := inc.Item.GUID(); guid != "" {
		r.mu.Lock()
		id, ok := r.messageIDReverseLookup[guid]
		r.mu.Unlock()
		if ok {
			return id, true
		}
	}
	if inc.GroupID != "" {
		return GroupIDIdentifier(inc.GroupID), true
	}
	if inc.ChatIdentifier != "" && inc.Service != "" {
		return GUIDIdentifier(imdaemon.CreateChatGUID(inc.Service, styleOrDefault(inc.ChatStyle), inc.ChatIdentifier)), true
	}
	if rowID := inc.Item.RowID(); rowID != 0 && r.db != nil {
		chatGUID, err := r.db.ChatGUIDForMessageRowID(ctx, rowID)
		if err != nil {
			r.log.Debug().Err(err).Int64("row_id", rowID).Msg("Persistence fallback failed")
		} else if chatGUID != "" {
			return GUIDIdentifier(chatGUID), true
		}
	}
	return ChatIdentifier{}, false
}

// maybeRepairLink re-points a reverse-lookup entry that disagrees with an
// authoritative properties-based resolution, but only when the repair flag
// is on — otherwise first writer wins unconditionally.
func (r *ChatRegistry) maybeRepairLink(itemGUID string, resolved ChatIdentifier) {
	if itemGUID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.messageIDReverseLookup[itemGUID]
	if !ok || existing == resolved {
		return
	}
	if r.flags != nil && r.flags.Current().RepairCorruptedLinks {
		r.log.Warn().Str("guid", itemGUID).Str("old", existing.String()).Str("new", resolved.String()).
			Msg("Repairing corrupted message link")
		r.messageIDReverseLookup[itemGUID] = resolved
	} else {
		r.log.Debug().Str("guid", itemGUID).Str("old", existing.String()).Str("new", resolved.String()).
			Msg("Reverse lookup disagrees with properties resolution, keeping first writer")
	}
}

func orNil(s string) string {
	if s == "" {
		return "nil"
	}
	return s
}

func styleOrDefault(style imdaemon.ChatStyle) imdaemon.ChatStyle {
	if style != imdaemon.ChatStyleGroup {
		return imdaemon.ChatStyleInstantMessage
	}
	return style
}

// ============================================================================
// Daemon lifecycle callbacks
// ============================================================================

// SetupComplete stores the chats included in the daemon's setup payload.
func (r *ChatRegistry) SetupComplete(ctx context.Context, chats []imdaemon.ChatDetails) {
	if len(chats) == 0 {
		r.log.Warn().Msg("Did not receive chats in setup info")
		return
	}
	for _, details := range chats {
		r.ResolveOrLoad(ctx, details)
	}
}

// ChatUpdated stores a chat whose properties changed.
func (r *ChatRegistry) ChatUpdated(ctx context.Context, details imdaemon.ChatDetails) {
	r.ResolveOrLoad(ctx, details)
}

// LoadedChats crosses the initial chat-enumeration barrier. Queued
// OnLoadedChats callbacks fire exactly once, in registration order; the
// barrier crosses once per process lifetime.
func (r *ChatRegistry) LoadedChats(ctx context.Context, chats []imdaemon.ChatDetails) {
	r.mu.Lock()
	if r.hasLoadedChats {
		r.mu.Unlock()
		return
	}
	r.hasLoadedChats = true
	r.mu.Unlock()

	for _, details := range chats {
		r.ResolveOrLoad(ctx, details)
	}

	r.mu.Lock()
	callbacks := r.loadedChatsCallbacks
	r.loadedChatsCallbacks = nil
	r.mu.Unlock()

	r.log.Info().Int("chats", len(chats)).Int("callbacks", len(callbacks)).Msg("Loaded chats, calling callbacks")
	for _, callback := range callbacks {
		callback()
	}
}

// OnLoadedChats invokes callback once the initial chat enumeration has
// completed — immediately if it already has.
func (r *ChatRegistry) OnLoadedChats(callback func()) {
	r.mu.Lock()
	loaded := r.hasLoadedChats
	if !loaded {
		r.loadedChatsCallbacks = append(r.loadedChatsCallbacks, callback)
	}
	r.mu.Unlock()

	if loaded {
		callback()
	}
}

// AwaitChatsLoaded asks the daemon to enumerate chats for chatIdentifier and
// registers a one-shot callback fired with the materialized result when the
// daemon answers via ChatLoaded.
func (r *ChatRegistry) AwaitChatsLoaded(ctx context.Context, chatIdentifier string, callback func([]imdaemon.Chat)) error {
	r.mu.Lock()
	r.chatLoadedCallbacks[chatIdentifier] = append(r.chatLoadedCallbacks[chatIdentifier], callback)
	r.mu.Unlock()

	if err := r.daemon.LoadChats(ctx, chatIdentifier); err != nil {
		r.mu.Lock()
		if callbacks := r.chatLoadedCallbacks[chatIdentifier]; len(callbacks) > 0 {
			r.chatLoadedCallbacks[chatIdentifier] = callbacks[:len(callbacks)-1]
		}
		r.mu.Unlock()
		return fmt.Errorf("failed to request chats for %s: %w", chatIdentifier, err)
	}
	return nil
}

// ChatLoaded completes a targeted chat-load request: it materializes the
// returned chats and fires the per-request callbacks, which are then
// discarded.
func (r *ChatRegistry) ChatLoaded(ctx context.Context, chatIdentifier string, chats []imdaemon.ChatDetails) {
	r.mu.Lock()
	callbacks := r.chatLoadedCallbacks[chatIdentifier]
	delete(r.chatLoadedCallbacks, chatIdentifier)
	r.mu.Unlock()
	if len(callbacks) == 0 {
		return
	}

	materialized := make([]imdaemon.Chat, 0, len(chats))
	for _, details := range chats {
		if id, ok := r.ResolveOrLoad(ctx, details); ok {
			if chat, found := r.Chat(id); found {
				materialized = append(materialized, chat.Daemon())
			}
		}
	}
	for _, callback := range callbacks {
		callback(materialized)
	}
}

// RegisterQuery registers a callback for a query-scoped chat enumeration and
// returns the query ID to hand to the daemon.
func (r *ChatRegistry) RegisterQuery(callback func()) string {
	queryID := uuid.NewString()
	r.mu.Lock()
	r.queryCallbacks[queryID] = append(r.queryCallbacks[queryID], callback)
	r.mu.Unlock()
	return queryID
}

// QueryFinished completes a query-scoped enumeration: the chats are stored
// and the query's callbacks fire and are discarded. Unknown query IDs are
// ignored.
func (r *ChatRegistry) QueryFinished(ctx context.Context, queryID string, chats []imdaemon.ChatDetails) {
	r.mu.Lock()
	callbacks, ok := r.queryCallbacks[queryID]
	delete(r.queryCallbacks, queryID)
	r.mu.Unlock()
	if !ok {
		return
	}

	for _, details := range chats {
		r.ResolveOrLoad(ctx, details)
	}
	for _, callback := range callbacks {
		callback()
	}
}
