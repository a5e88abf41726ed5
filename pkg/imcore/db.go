package imcore

import "context"

// DBReader is the persistence query layer the core falls back to when an
// event arrives without enough identifiers to resolve its chat. Lookup
// misses return empty strings with a nil error; errors are reserved for the
// store itself failing.
type DBReader interface {
	// ChatIdentifierForMessageGUID returns the chat identifier owning the
	// message with the given GUID.
	ChatIdentifierForMessageGUID(ctx context.Context, guid string) (string, error)
	// ChatGUIDForMessageRowID returns the GUID of the chat owning the message
	// with the given daemon-internal numeric ID.
	ChatGUIDForMessageRowID(ctx context.Context, rowID int64) (string, error)
}
