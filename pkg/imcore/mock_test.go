package imcore

import (
	"context"
	"sync"
	"time"

	"github.com/lrhodin/imcore/pkg/imdaemon"
)

type fakeChat struct {
	mu sync.Mutex

	guid           string
	groupID        string
	chatIdentifier string
	style          imdaemon.ChatStyle
	participants   []string
	groupPhotoGUID string
	services       []imdaemon.ServiceStyle

	downgradeAttempts int
	incrementCalls    int
	persistCalls      []time.Duration
	targetedServices  []imdaemon.ServiceStyle
	sentMessages      []*imdaemon.MessageItem
	sendErr           error
	targetErr         error
}

var _ imdaemon.Chat = (*fakeChat)(nil)

func (c *fakeChat) GUID() string              { return c.guid }
func (c *fakeChat) GroupID() string           { return c.groupID }
func (c *fakeChat) ChatIdentifier() string    { return c.chatIdentifier }
func (c *fakeChat) Style() imdaemon.ChatStyle { return c.style }
func (c *fakeChat) Participants() []string    { return c.participants }
func (c *fakeChat) GroupPhotoGUID() string    { return c.groupPhotoGUID }

func (c *fakeChat) OnService(service imdaemon.ServiceStyle) bool {
	for _, s := range c.services {
		if s == service {
			return true
		}
	}
	return false
}

func (c *fakeChat) ConsecutiveDowngradeAttempts(manual bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downgradeAttempts
}

func (c *fakeChat) IncrementDowngradeMarkers(manual bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incrementCalls++
	c.downgradeAttempts++
}

func (c *fakeChat) PersistDowngrade(checkAgain time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistCalls = append(c.persistCalls, checkAgain)
}

func (c *fakeChat) TargetToService(service imdaemon.ServiceStyle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.targetErr != nil {
		return c.targetErr
	}
	c.targetedServices = append(c.targetedServices, service)
	return nil
}

func (c *fakeChat) Send(msg *imdaemon.MessageItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sentMessages = append(c.sentMessages, msg)
	return nil
}

type fakeDaemon struct {
	mu sync.Mutex

	chats []*fakeChat

	smsAccount    string
	hasSMSAccount bool

	guidLookups   int
	loadChatCalls []string
	loadChatsHook func(ctx context.Context, chatIdentifier string) error
}

var _ imdaemon.Daemon = (*fakeDaemon)(nil)

func (d *fakeDaemon) addChat(chat *fakeChat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chats = append(d.chats, chat)
}

func (d *fakeDaemon) ChatForGUID(ctx context.Context, guid string) (imdaemon.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.guidLookups++
	for _, chat := range d.chats {
		if chat.guid == guid {
			return chat, nil
		}
	}
	return nil, nil
}

func (d *fakeDaemon) ChatForGroupID(ctx context.Context, groupID string) (imdaemon.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, chat := range d.chats {
		if chat.groupID == groupID {
			return chat, nil
		}
	}
	return nil, nil
}

func (d *fakeDaemon) ChatForIdentifier(ctx context.Context, chatIdentifier string, service imdaemon.ServiceStyle) (imdaemon.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, chat := range d.chats {
		if chat.chatIdentifier != chatIdentifier {
			continue
		}
		if service != "" && !chat.OnService(service) {
			continue
		}
		return chat, nil
	}
	return nil, nil
}

func (d *fakeDaemon) LoadChats(ctx context.Context, chatIdentifier string) error {
	d.mu.Lock()
	d.loadChatCalls = append(d.loadChatCalls, chatIdentifier)
	hook := d.loadChatsHook
	d.mu.Unlock()
	if hook != nil {
		return hook(ctx, chatIdentifier)
	}
	return nil
}

func (d *fakeDaemon) ActiveSMSAccount() (string, bool) {
	return d.smsAccount, d.hasSMSAccount
}

type fakeDB struct {
	chatIdentifiers map[string]string
	chatGUIDs       map[int64]string
}

var _ DBReader = (*fakeDB)(nil)

func (db *fakeDB) ChatIdentifierForMessageGUID(ctx context.Context, guid string) (string, error) {
	return db.chatIdentifiers[guid], nil
}

func (db *fakeDB) ChatGUIDForMessageRowID(ctx context.Context, rowID int64) (string, error) {
	return db.chatGUIDs[rowID], nil
}

// collect subscribes to a pipeline and appends everything it sees.
type collector[T any] struct {
	mu     sync.Mutex
	events []T
}

func (c *collector[T]) add(event T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.events...)
}

func (c *collector[T]) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
