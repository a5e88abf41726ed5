package imcore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/ptr"

	"github.com/lrhodin/imcore/pkg/imdaemon"
)

func newTestListener(daemon *fakeDaemon, db DBReader) *DaemonListener {
	if daemon == nil {
		daemon = &fakeDaemon{}
	}
	return NewDaemonListener(daemon, db, NewFlags(DefaultFeatureFlags()), zerolog.Nop())
}

func incomingMsg(guid, body string) *imdaemon.MessageItem {
	return &imdaemon.MessageItem{
		ItemBase: imdaemon.ItemBase{
			ItemGUID:  guid,
			ServiceID: "iMessage",
			SenderID:  "+15550001111",
			Timestamp: time.Unix(1700000000, 0),
		},
		Body: body,
	}
}

func TestListener_DedupesRepeatedDeliveries(t *testing.T) {
	l := newTestListener(nil, nil)
	messages := &collector[Message]{}
	l.Message.Subscribe(messages.add)

	msg := incomingMsg("msg-1", "hello")
	l.MessageReceived("+15550001111", msg)
	l.MessageReceived("+15550001111", msg)

	assert.Equal(t, 1, messages.count())
}

func TestListener_FailedMessagesMayReemit(t *testing.T) {
	l := newTestListener(nil, nil)
	messages := &collector[Message]{}
	l.Message.Subscribe(messages.add)

	msg := incomingMsg("msg-1", "hello")
	l.MessageReceived("+15550001111", msg)
	require.Equal(t, 1, messages.count())

	// Same fingerprint, but now carrying a failure: not withheld.
	failed := incomingMsg("msg-1", "hello")
	failed.SendProgress = imdaemon.SendProgressFailed
	failed.ErrorCode = imdaemon.ErrorNetworkFailure
	l.MessageReceived("+15550001111", failed)
	assert.Equal(t, 2, messages.count())
}

func TestListener_WithholdsPartialFailures(t *testing.T) {
	l := newTestListener(nil, nil)
	messages := &collector[Message]{}
	l.Message.Subscribe(messages.add)

	partial := incomingMsg("msg-1", "hello")
	partial.IsFromMe = true
	partial.SendProgress = imdaemon.SendProgressFailed
	l.MessageReceived("+15550001111", partial)
	assert.Zero(t, messages.count())

	// The error code arrived: the failure is now actionable.
	final := incomingMsg("msg-1", "hello")
	final.IsFromMe = true
	final.SendProgress = imdaemon.SendProgressFailed
	final.ErrorCode = imdaemon.ErrorNetworkFailure
	l.MessageReceived("+15550001111", final)
	assert.Equal(t, 1, messages.count())
}

func TestListener_UnknownServiceDropped(t *testing.T) {
	l := newTestListener(nil, nil)
	messages := &collector[Message]{}
	l.Message.Subscribe(messages.add)

	msg := incomingMsg("msg-1", "hello")
	msg.ServiceID = "Telegraph"
	l.MessageReceived("+15550001111", msg)
	assert.Zero(t, messages.count())
}

func TestListener_TypingEdges(t *testing.T) {
	l := newTestListener(nil, nil)
	typing := &collector[TypingEvent]{}
	messages := &collector[Message]{}
	l.Typing.Subscribe(typing.add)
	l.Message.Subscribe(messages.add)

	start := incomingMsg("typ-1", "")
	start.IsTyping = true
	l.MessageReceived("+15550001111", start)

	// A second start is not an edge.
	again := incomingMsg("typ-2", "")
	again.IsTyping = true
	l.MessageReceived("+15550001111", again)

	stop := incomingMsg("typ-3", "")
	stop.IsCancelTyping = true
	l.MessageReceived("+15550001111", stop)

	events := typing.all()
	require.Len(t, events, 2)
	assert.True(t, events[0].Typing)
	assert.False(t, events[1].Typing)

	// Typing indicators never reach the message pipeline.
	assert.Zero(t, messages.count())
}

func TestListener_RealMessageStopsTyping(t *testing.T) {
	l := newTestListener(nil, nil)
	typing := &collector[TypingEvent]{}
	l.Typing.Subscribe(typing.add)

	start := incomingMsg("typ-1", "")
	start.IsTyping = true
	l.MessageReceived("+15550001111", start)

	l.MessageReceived("+15550001111", incomingMsg("msg-1", "hello"))

	events := typing.all()
	require.Len(t, events, 2)
	assert.False(t, events[1].Typing)
}

func TestListener_DropsSpam(t *testing.T) {
	l := newTestListener(nil, nil)
	messages := &collector[Message]{}
	l.Message.Subscribe(messages.add)

	spam := incomingMsg("msg-1", "you won")
	spam.IsSpam = true
	l.MessageReceived("+15550001111", spam)
	assert.Zero(t, messages.count())

	l.flags.Store(FeatureFlags{DropSpamMessages: false})
	spam2 := incomingMsg("msg-2", "you won again")
	spam2.IsSpam = true
	l.MessageReceived("+15550001111", spam2)
	assert.Equal(t, 1, messages.count())
}

func TestListener_RemoteUserDoesNotExistNeverSurfaces(t *testing.T) {
	daemon := &fakeDaemon{smsAccount: "P:+15559998888", hasSMSAccount: true}
	chat := &fakeChat{
		guid:           "iMessage;-;+15550001111",
		chatIdentifier: "+15550001111",
		style:          imdaemon.ChatStyleInstantMessage,
		participants:   []string{"+15550001111"},
	}
	daemon.addChat(chat)

	l := newTestListener(daemon, nil)
	messages := &collector[Message]{}
	l.Message.Subscribe(messages.add)

	// Incoming items with this code are dropped outright.
	theirs := incomingMsg("msg-1", "hello")
	theirs.ErrorCode = imdaemon.ErrorRemoteUserDoesNotExist
	l.MessageReceived("+15550001111", theirs)
	assert.Zero(t, messages.count())
	assert.Empty(t, chat.sentMessages)

	// Self-sent ones go through recovery instead of the pipeline.
	ours := incomingMsg("msg-2", "hello")
	ours.IsFromMe = true
	ours.ErrorCode = imdaemon.ErrorRemoteUserDoesNotExist
	l.MessageReceived("+15550001111", ours)
	assert.Zero(t, messages.count())
	require.Len(t, chat.sentMessages, 1)
	assert.Equal(t, string(imdaemon.ServiceSMS), chat.sentMessages[0].ServiceID)
}

func TestListener_ParticipantChangeFoldsMembership(t *testing.T) {
	l := newTestListener(nil, nil)
	participants := &collector[ChatParticipantsEvent]{}
	transcript := &collector[TranscriptEvent]{}
	l.ChatParticipants.Subscribe(participants.add)
	l.Transcript.Subscribe(transcript.add)

	l.SetupComplete(true, []imdaemon.ChatDetails{{
		ChatIdentifier: "chat12345",
		Participants:   []string{"+15550001111", "+15550002222"},
	}})
	require.Zero(t, participants.count())

	add := &imdaemon.ParticipantChangeItem{
		ItemBase:   imdaemon.ItemBase{ItemGUID: "pc-1", ServiceID: "iMessage"},
		TargetID:   "+15550003333",
		ChangeType: imdaemon.ParticipantAdded,
	}
	l.MessageReceived("chat12345", add)

	events := participants.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"+15550001111", "+15550002222", "+15550003333"}, events[0].Participants)
	assert.Equal(t, 1, transcript.count())

	// Adding an existing member is not a change.
	dupe := &imdaemon.ParticipantChangeItem{
		ItemBase:   imdaemon.ItemBase{ItemGUID: "pc-2", ServiceID: "iMessage"},
		TargetID:   "+15550003333",
		ChangeType: imdaemon.ParticipantAdded,
	}
	l.MessageReceived("chat12345", dupe)
	assert.Equal(t, 1, participants.count())

	remove := &imdaemon.ParticipantChangeItem{
		ItemBase:   imdaemon.ItemBase{ItemGUID: "pc-3", ServiceID: "iMessage"},
		TargetID:   "+15550002222",
		ChangeType: imdaemon.ParticipantRemoved,
	}
	l.MessageReceived("chat12345", remove)
	events = participants.all()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"+15550001111", "+15550003333"}, events[1].Participants)
}

func TestListener_GroupPhotoAttachesTransfer(t *testing.T) {
	daemon := &fakeDaemon{}
	daemon.addChat(&fakeChat{
		guid:           "iMessage;+;chat12345",
		chatIdentifier: "chat12345",
		style:          imdaemon.ChatStyleGroup,
		groupPhotoGUID: "photo-transfer-1",
	})
	l := newTestListener(daemon, nil)
	transcript := &collector[TranscriptEvent]{}
	l.Transcript.Subscribe(transcript.add)

	action := &imdaemon.GroupActionItem{
		ItemBase:   imdaemon.ItemBase{ItemGUID: "ga-1", ServiceID: "iMessage"},
		ActionType: imdaemon.GroupActionSetPhoto,
	}
	l.MessageReceived("chat12345", action)

	events := transcript.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"photo-transfer-1"}, events[0].AdditionalFileTransferGUIDs)
}

func TestListener_ChatUpdatedEmitsOnlyChanges(t *testing.T) {
	l := newTestListener(nil, nil)
	unread := &collector[UnreadCountEvent]{}
	names := &collector[ChatNameEvent]{}
	l.UnreadCount.Subscribe(unread.add)
	l.ChatName.Subscribe(names.add)

	details := imdaemon.ChatDetails{
		ChatIdentifier: "chat12345",
		DisplayName:    "Lunch Crew",
		UnreadCount:    ptr.Ptr(3),
	}
	l.ChatUpdated(details)
	assert.Equal(t, 1, unread.count())
	assert.Equal(t, 1, names.count())

	// Unchanged properties are not re-announced.
	l.ChatUpdated(details)
	assert.Equal(t, 1, unread.count())
	assert.Equal(t, 1, names.count())

	l.ChatUpdated(imdaemon.ChatDetails{
		ChatIdentifier: "chat12345",
		DisplayName:    "",
		UnreadCount:    ptr.Ptr(0),
	})
	assert.Equal(t, 2, unread.count())
	events := names.all()
	require.Len(t, events, 2)
	assert.Empty(t, events[1].Name)
}

func TestListener_ChatDisplayNameUpdatedStripsPrefix(t *testing.T) {
	l := newTestListener(nil, nil)
	names := &collector[ChatNameEvent]{}
	l.ChatName.Subscribe(names.add)

	l.ChatDisplayNameUpdated("iMessage;+;chat12345", "New Name")
	events := names.all()
	require.Len(t, events, 1)
	assert.Equal(t, "chat12345", events[0].Chat)
	assert.Equal(t, "New Name", events[0].Name)
}

func TestListener_NotifySentMessage(t *testing.T) {
	db := &fakeDB{chatIdentifiers: map[string]string{"msg-db": "+15550002222"}}
	l := newTestListener(nil, db)
	statuses := &collector[MessageStatusChange]{}
	l.MessageStatus.Subscribe(statuses.add)

	// Cached path: MessageSent recorded the chat identifier.
	sent := incomingMsg("msg-cached", "hi")
	sent.IsFromMe = true
	l.MessageSent("+15550001111", sent)
	l.NotifySentMessage(sent)

	// Fallback path: identifier only known to the persistence layer.
	fromDB := incomingMsg("msg-db", "hi again")
	fromDB.IsFromMe = true
	l.NotifySentMessage(fromDB)

	// Unresolvable: dropped.
	unknown := incomingMsg("msg-unknown", "hi?")
	unknown.IsFromMe = true
	l.NotifySentMessage(unknown)

	events := statuses.all()
	require.Len(t, events, 2)
	assert.Equal(t, StatusSent, events[0].Type)
	assert.Equal(t, "+15550001111", events[0].ChatID)
	assert.True(t, events[0].FromMe)
	assert.True(t, events[0].HasFullMessage())
	assert.Equal(t, "+15550002222", events[1].ChatID)
}

func TestListener_MessagesUpdatedOnlyHandlesFailures(t *testing.T) {
	db := &fakeDB{chatIdentifiers: map[string]string{"msg-fail": "+15550001111"}}
	l := newTestListener(nil, db)
	messages := &collector[Message]{}
	l.Message.Subscribe(messages.add)

	clean := incomingMsg("msg-ok", "fine")
	l.MessagesUpdated("", []imdaemon.Item{clean})
	assert.Zero(t, messages.count())

	failed := incomingMsg("msg-fail", "broken")
	failed.IsFromMe = true
	failed.ErrorCode = imdaemon.ErrorTimedOut
	l.MessagesUpdated("", []imdaemon.Item{failed})

	events := messages.all()
	require.Len(t, events, 1)
	assert.Equal(t, "+15550001111", events[0].ChatID)
}

func TestListener_ServiceMessagesUpdated(t *testing.T) {
	l := newTestListener(nil, nil)
	statuses := &collector[MessageStatusChange]{}
	l.MessageStatus.Subscribe(statuses.add)

	read := incomingMsg("msg-1", "hello")
	read.IsFromMe = true
	read.TimeRead = time.Unix(1700000100, 0)

	noStatus := incomingMsg("msg-2", "nothing yet")

	l.ServiceMessagesUpdated("+15550001111", imdaemon.ChatStyleInstantMessage, []*imdaemon.MessageItem{read, noStatus})

	events := statuses.all()
	require.Len(t, events, 1)
	assert.Equal(t, StatusRead, events[0].Type)
	assert.Equal(t, "msg-1", events[0].MessageID)
}

func TestListener_HandleReflectedReadReceipt(t *testing.T) {
	db := &fakeDB{chatIdentifiers: map[string]string{"msg-1": "+15550001111"}}
	l := newTestListener(nil, db)
	statuses := &collector[MessageStatusChange]{}
	l.MessageStatus.Subscribe(statuses.add)

	readAt := time.Unix(1700000100, 0)
	l.HandleReflectedReadReceipt(context.Background(), "msg-1", imdaemon.ServiceIMessage, readAt)
	l.HandleReflectedReadReceipt(context.Background(), "msg-unknown", imdaemon.ServiceIMessage, readAt)

	events := statuses.all()
	require.Len(t, events, 1)
	assert.Equal(t, StatusRead, events[0].Type)
	assert.True(t, events[0].FromMe)
	assert.Equal(t, "+15550001111", events[0].ChatID)
	assert.Equal(t, readAt, events[0].Time)
}

func TestListener_HistoricalDeletions(t *testing.T) {
	l := newTestListener(nil, nil)
	deletedMsgs := &collector[MessagesDeletedEvent]{}
	deletedChats := &collector[ChatsDeletedEvent]{}
	l.MessagesDeleted.Subscribe(deletedMsgs.add)
	l.ChatsDeleted.Subscribe(deletedChats.add)

	l.HistoricalMessageGUIDsDeleted([]string{"msg-1"}, nil)
	assert.Equal(t, 1, deletedMsgs.count())
	assert.Zero(t, deletedChats.count())

	l.HistoricalMessageGUIDsDeleted(nil, []string{"iMessage;-;+15550001111"})
	assert.Equal(t, 1, deletedChats.count())
}

func TestListener_AggregateCarriesEverything(t *testing.T) {
	l := newTestListener(nil, nil)
	aggregate := &collector[Event]{}
	l.Aggregate.Subscribe(aggregate.add)

	l.BlocklistUpdated([]string{"+15550009999"})
	l.MessageReceived("+15550001111", incomingMsg("msg-1", "hello"))

	events := aggregate.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeBlocklist, events[0].EventType())
	assert.Equal(t, EventTypeMessage, events[1].EventType())
}

func TestListener_SMSReadBuffer(t *testing.T) {
	l := newTestListener(nil, nil)
	l.SetSMSReadBufferCapacity(3)

	l.PushToSMSReadBuffer("a")
	l.PushToSMSReadBuffer("b")
	l.PushToSMSReadBuffer("b")
	l.PushToSMSReadBuffer("c")
	assert.True(t, l.SMSReadBufferContains("a"))

	l.PushToSMSReadBuffer("d")
	assert.False(t, l.SMSReadBufferContains("a"))
	assert.True(t, l.SMSReadBufferContains("b"))
	assert.True(t, l.SMSReadBufferContains("d"))

	l.SetSMSReadBufferCapacity(1)
	assert.False(t, l.SMSReadBufferContains("c"))
	assert.True(t, l.SMSReadBufferContains("d"))

	l.FlushSMSReadBuffer()
	assert.False(t, l.SMSReadBufferContains("d"))

	l.flags.Store(FeatureFlags{UseSMSReadBuffer: false})
	l.PushToSMSReadBuffer("e")
	assert.False(t, l.SMSReadBufferContains("e"))
}

func TestListener_StartListening(t *testing.T) {
	daemon := &fakeDaemon{}
	daemon.addChat(&fakeChat{
		guid:           "SMS;-;+15550001111",
		chatIdentifier: "+15550001111",
		services:       []imdaemon.ServiceStyle{imdaemon.ServiceSMS},
	})
	l := newTestListener(daemon, nil)

	reconnects := 0
	l.SetReconnect(func() { reconnects++ })
	l.StartListening()
	l.StartListening()

	l.DaemonDisconnected()
	assert.Equal(t, 1, reconnects)

	// A reflected read on an SMS-reachable chat lands in the read buffer.
	l.MessageStatus.Send(MessageStatusChange{
		Type:      StatusRead,
		FromMe:    true,
		ChatID:    "+15550001111",
		MessageID: "msg-1",
	})
	assert.True(t, l.SMSReadBufferContains("msg-1"))

	// Reads of chats with no SMS presence are not buffered.
	l.MessageStatus.Send(MessageStatusChange{
		Type:      StatusRead,
		FromMe:    true,
		ChatID:    "+15550002222",
		MessageID: "msg-2",
	})
	assert.False(t, l.SMSReadBufferContains("msg-2"))
}

// Turning the read buffer on after startup must take effect without
// restarting the listener.
func TestListener_SMSReadBufferFlagEnabledLater(t *testing.T) {
	daemon := &fakeDaemon{}
	daemon.addChat(&fakeChat{
		guid:           "SMS;-;+15550001111",
		chatIdentifier: "+15550001111",
		services:       []imdaemon.ServiceStyle{imdaemon.ServiceSMS},
	})
	l := newTestListener(daemon, nil)
	flags := DefaultFeatureFlags()
	flags.UseSMSReadBuffer = false
	l.flags.Store(flags)
	l.StartListening()

	readOf := func(id string) MessageStatusChange {
		return MessageStatusChange{
			Type:      StatusRead,
			FromMe:    true,
			ChatID:    "+15550001111",
			MessageID: id,
		}
	}

	l.MessageStatus.Send(readOf("msg-off"))
	assert.False(t, l.SMSReadBufferContains("msg-off"))

	flags.UseSMSReadBuffer = true
	l.flags.Store(flags)
	l.MessageStatus.Send(readOf("msg-on"))
	assert.True(t, l.SMSReadBufferContains("msg-on"))
}
