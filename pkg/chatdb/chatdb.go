// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package chatdb reads the daemon's message store directly. It is a
// read-only fallback used when a live callback omits identifiers that the
// persistent store still has.
package chatdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
)

// Store reads chat/message linkage from the daemon's sqlite store.
type Store struct {
	db *dbutil.Database
}

// New opens the message store at path in read-only mode.
func New(path string, log zerolog.Logger) (*Store, error) {
	db, err := dbutil.NewWithDialect(fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path), "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}
	db.Log = dbutil.ZeroLogger(log.With().Str("db_section", "chatdb").Logger())
	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened database.
func NewWithDB(db *dbutil.Database) *Store {
	return &Store{db: db}
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ChatIdentifierForMessageGUID returns the chat identifier of the chat the
// message belongs to. Misses return empty, not an error.
func (s *Store) ChatIdentifierForMessageGUID(ctx context.Context, guid string) (string, error) {
	var chatIdentifier string
	err := s.db.QueryRow(ctx, `
		SELECT chat.chat_identifier
		FROM message
		JOIN chat_message_join ON chat_message_join.message_id = message.ROWID
		JOIN chat ON chat.ROWID = chat_message_join.chat_id
		WHERE message.guid = $1
		LIMIT 1
	`, guid).Scan(&chatIdentifier)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to query chat identifier for message %s: %w", guid, err)
	}
	return chatIdentifier, nil
}

// ChatGUIDForMessageRowID returns the GUID of the chat containing the
// message with the given numeric row ID. Misses return empty, not an error.
func (s *Store) ChatGUIDForMessageRowID(ctx context.Context, rowID int64) (string, error) {
	var chatGUID string
	err := s.db.QueryRow(ctx, `
		SELECT chat.guid
		FROM chat
		JOIN chat_message_join ON chat_message_join.chat_id = chat.ROWID
		WHERE chat_message_join.message_id = $1
		LIMIT 1
	`, rowID).Scan(&chatGUID)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to query chat guid for message row %d: %w", rowID, err)
	}
	return chatGUID, nil
}

// MessageGUIDForRowID resolves a numeric message row ID to the message GUID.
func (s *Store) MessageGUIDForRowID(ctx context.Context, rowID int64) (string, error) {
	var guid string
	err := s.db.QueryRow(ctx,
		`SELECT guid FROM message WHERE ROWID = $1`, rowID,
	).Scan(&guid)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to query guid for message row %d: %w", rowID, err)
	}
	return guid, nil
}

// RowIDForMessageGUID resolves a message GUID to its numeric row ID, zero
// when not found.
func (s *Store) RowIDForMessageGUID(ctx context.Context, guid string) (int64, error) {
	var rowID int64
	err := s.db.QueryRow(ctx,
		`SELECT ROWID FROM message WHERE guid = $1`, guid,
	).Scan(&rowID)
	if err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to query row id for message %s: %w", guid, err)
	}
	return rowID, nil
}
