package imcore

import (
	"encoding/binary"
	"hash/fnv"
	"io"

	"github.com/lrhodin/imcore/pkg/imdaemon"
)

// ItemNonce computes the dedupe fingerprint for a transcript item. The hash
// covers exactly the stable fields {GUID, type, fromMe} plus, for message
// items, {body, numeric message ID, associated message GUID}. Two deliveries
// with equal nonces are the same logical event.
func ItemNonce(item imdaemon.Item) uint64 {
	h := fnv.New64a()
	hashField(h, item.GUID())
	binary.Write(h, binary.LittleEndian, int64(item.Type()))
	if item.FromMe() {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	if msg, ok := item.(*imdaemon.MessageItem); ok {
		hashField(h, msg.Body)
		binary.Write(h, binary.LittleEndian, msg.MessageID)
		hashField(h, msg.AssociatedMessageGUID)
	}
	return h.Sum64()
}

// hashField writes a length-prefixed string so adjacent fields can't bleed
// into each other.
func hashField(h io.Writer, s string) {
	binary.Write(h, binary.LittleEndian, int64(len(s)))
	io.WriteString(h, s)
}
