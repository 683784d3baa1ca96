package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	tdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"nuclight.org/telegram-bridge/pkg/logger"
)

const historyBatchSize = 100

var (
	ErrNotConnected    = errors.New("not connected to telegram")
	ErrNotAuthorized   = errors.New("telegram session is not authorized")
	ErrCodeNotPending  = errors.New("telegram login code was not requested")
	ErrPasswordNeeded  = errors.New("telegram password is required")
	ErrEntityNotFound  = errors.New("entity not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNoMedia         = errors.New("message has no downloadable media")
)

// MessageHandler receives messages observed live through the update stream.
type MessageHandler func(ctx context.Context, msg *RawMessage)

// Client is the MTProto client adapter. It owns the session, a cache of peers
// seen during this session (dialog listings, history pages, username lookups)
// and the live update dispatcher.
type Client struct {
	Log         logger.Logger
	APIID       int
	APIHash     string
	SessionPath string

	client  *tdtelegram.Client
	manager *updates.Manager

	connected atomic.Bool
	runCancel context.CancelFunc
	runErr    chan error

	meMu sync.Mutex
	me   *User

	peerMu sync.RWMutex
	peers  map[int64]tg.InputPeerClass
	ents   map[int64]Entity

	pendMu       sync.Mutex
	pendingPhone string
	pendingHash  string

	onMessage MessageHandler
}

// OnNewMessage registers the live message handler. Must be called before
// Connect.
func (c *Client) OnNewMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Connect starts the MTProto session in the background and waits until the
// transport is up. The session stays connected until Close.
func (c *Client) Connect(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.SessionPath), 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	c.peers = make(map[int64]tg.InputPeerClass)
	c.ents = make(map[int64]Entity)

	dispatcher := tg.NewUpdateDispatcher()
	if c.onMessage != nil {
		handle := func(ctx context.Context, ents tg.Entities, msgClass tg.MessageClass) error {
			msg, ok := msgClass.(*tg.Message)
			if !ok || msg == nil {
				return nil
			}
			lk := buildLookupFromEntities(ents)
			c.registerLookup(lk)
			raw := c.convertMessage(msg, lk)
			if raw == nil {
				return nil
			}
			c.onMessage(ctx, raw)
			return nil
		}
		dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
			return handle(ctx, e, u.Message)
		})
		dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
			return handle(ctx, e, u.Message)
		})
	}
	c.manager = updates.New(updates.Config{Handler: dispatcher})

	c.client = tdtelegram.NewClient(c.APIID, c.APIHash, tdtelegram.Options{
		SessionStorage: &tdtelegram.FileSessionStorage{Path: c.SessionPath},
		UpdateHandler:  c.manager,
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.runCancel = cancel
	c.runErr = make(chan error, 1)
	ready := make(chan struct{})

	go func() {
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			c.connected.Store(true)
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		c.connected.Store(false)
		c.runErr <- err
	}()

	select {
	case <-ready:
		return nil
	case err := <-c.runErr:
		return fmt.Errorf("connecting to telegram: %w", err)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Close tears the session down and waits for the run loop to exit.
func (c *Client) Close() error {
	if c.runCancel == nil {
		return nil
	}
	c.runCancel()
	err := <-c.runErr
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	if !c.IsConnected() {
		return false, ErrNotConnected
	}
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("checking auth status: %w", err)
	}
	return status.Authorized, nil
}

// RunUpdates drives the live update stream with gap recovery. It blocks until
// ctx is cancelled; callers run it in a goroutine.
func (c *Client) RunUpdates(ctx context.Context) error {
	self, err := c.client.Self(ctx)
	if err != nil {
		return fmt.Errorf("resolving self: %w", err)
	}
	return c.manager.Run(ctx, c.client.API(), self.ID, updates.AuthOptions{IsBot: self.Bot})
}

// Me returns the authenticated account, fetched once and cached for the
// lifetime of the session.
func (c *Client) Me(ctx context.Context) (*User, error) {
	c.meMu.Lock()
	defer c.meMu.Unlock()
	if c.me != nil {
		return c.me, nil
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	self, err := c.client.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching self: %w", err)
	}
	me := convertUser(self)
	c.registerPeer(me.ID, &tg.InputPeerUser{UserID: self.ID, AccessHash: self.AccessHash}, me)
	c.me = me
	return me, nil
}

func (c *Client) cachedMe() *User {
	c.meMu.Lock()
	defer c.meMu.Unlock()
	return c.me
}

// GetDialogs fetches up to limit conversation handles, newest activity first,
// registering every peer it sees in the session cache.
func (c *Client) GetDialogs(ctx context.Context, limit int) ([]Dialog, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	res, err := c.client.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching dialogs: %w", err)
	}

	var (
		rawDialogs []tg.DialogClass
		messages   []tg.MessageClass
		users      []tg.UserClass
		chats      []tg.ChatClass
	)
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		rawDialogs, messages, users, chats = d.Dialogs, d.Messages, d.Users, d.Chats
	case *tg.MessagesDialogsSlice:
		rawDialogs, messages, users, chats = d.Dialogs, d.Messages, d.Users, d.Chats
	default:
		return nil, fmt.Errorf("unexpected dialogs result type: %T", res)
	}

	lk := buildLookup(users, chats)
	c.registerLookup(lk)

	// Top-message dates keyed by (chat, message id).
	type topKey struct {
		chatID int64
		msgID  int
	}
	topDates := make(map[topKey]time.Time, len(messages))
	for _, msgClass := range messages {
		if msg, ok := msgClass.(*tg.Message); ok && msg.PeerID != nil {
			topDates[topKey{peerID(msg.PeerID), msg.ID}] = time.Unix(int64(msg.Date), 0)
		}
	}

	result := make([]Dialog, 0, len(rawDialogs))
	for _, dialogClass := range rawDialogs {
		dialog, ok := dialogClass.(*tg.Dialog)
		if !ok || dialog.Peer == nil {
			continue
		}
		ent := lk.entityFor(dialog.Peer)
		if ent == nil {
			c.Log.Warn("skipping dialog with unresolvable peer", "peer_id", peerID(dialog.Peer))
			continue
		}
		result = append(result, Dialog{
			Entity:          ent,
			LastMessageTime: topDates[topKey{peerID(dialog.Peer), dialog.TopMessage}],
		})
	}
	return result, nil
}

// GetEntity resolves an id against the session peer cache. Peers never seen
// in this session cannot be addressed over the wire and come back as
// ErrEntityNotFound.
func (c *Client) GetEntity(_ context.Context, id int64) (Entity, error) {
	return c.cachedEntity(id)
}

func (c *Client) cachedEntity(id int64) (Entity, error) {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	if ent, ok := c.ents[id]; ok {
		return ent, nil
	}
	return nil, ErrEntityNotFound
}

// ResolveUsername looks a handle up on the server and caches the result.
func (c *Client) ResolveUsername(ctx context.Context, username string) (Entity, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	resolved, err := c.client.API().ContactsResolveUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolving username %q: %w", username, err)
	}

	lk := buildLookup(resolved.Users, resolved.Chats)
	c.registerLookup(lk)
	if ent := lk.entityFor(resolved.Peer); ent != nil {
		return ent, nil
	}
	return nil, ErrEntityNotFound
}

// GetMessage fetches one message by id from the source.
func (c *Client) GetMessage(ctx context.Context, chatID int64, messageID int64) (*RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return nil, err
	}

	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: int(messageID)}}

	var res tg.MessagesMessagesClass
	if channel, ok := peer.(*tg.InputPeerChannel); ok {
		res, err = c.client.API().ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash},
			ID:      ids,
		})
	} else {
		res, err = c.client.API().MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", messageID, err)
	}

	modified, ok := res.AsModified()
	if !ok {
		return nil, ErrMessageNotFound
	}
	lk := buildLookup(modified.GetUsers(), modified.GetChats())
	c.registerLookup(lk)

	for _, msgClass := range modified.GetMessages() {
		msg, ok := msgClass.(*tg.Message)
		if !ok || int64(msg.ID) != messageID {
			continue
		}
		if raw := c.convertMessage(msg, lk); raw != nil {
			return raw, nil
		}
	}
	return nil, ErrMessageNotFound
}

// IterMessages returns a lazy history iterator for a chat, newest first.
// limit 0 means unbounded; only messages with id > minID are yielded.
func (c *Client) IterMessages(chatID int64, limit int, minID int64) (MessageIter, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return nil, err
	}
	return &historyIter{
		client: c,
		peer:   peer,
		limit:  limit,
		minID:  minID,
		fetch: func(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error) {
			return c.client.API().MessagesGetHistory(ctx, req)
		},
	}, nil
}

// SendMessage sends text to a chat and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return nil, err
	}
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}

	upd, err := message.NewSender(c.client.API()).To(peer).Text(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	chatEnt, _ := c.cachedEntity(chatID)
	sent := &RawMessage{
		ChatID:   chatID,
		Chat:     chatEnt,
		SenderID: me.ID,
		Sender:   me,
		Text:     text,
		Date:     time.Now(),
	}

	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		sent.ID = int64(u.ID)
		sent.Date = time.Unix(int64(u.Date), 0)
	case *tg.Updates:
		lk := buildLookup(u.Users, u.Chats)
		for _, updClass := range u.Updates {
			var msgClass tg.MessageClass
			switch uu := updClass.(type) {
			case *tg.UpdateNewMessage:
				msgClass = uu.Message
			case *tg.UpdateNewChannelMessage:
				msgClass = uu.Message
			default:
				continue
			}
			if msg, ok := msgClass.(*tg.Message); ok {
				if raw := c.convertMessage(msg, lk); raw != nil {
					return raw, nil
				}
			}
		}
	}
	return sent, nil
}

// DownloadMedia fetches a message's attachment into path and returns the
// final location on disk.
func (c *Client) DownloadMedia(ctx context.Context, msg *RawMessage, path string) (string, error) {
	if !c.IsConnected() {
		return "", ErrNotConnected
	}
	if msg == nil || msg.Media == nil {
		return "", ErrNoMedia
	}

	var location tg.InputFileLocationClass
	switch media := msg.Media.(type) {
	case *Photo:
		var thumbType string
		var largest int64
		for _, size := range media.Sizes {
			if size.Size >= largest {
				largest = size.Size
				thumbType = size.Type
			}
		}
		location = &tg.InputPhotoFileLocation{
			ID:            media.ID,
			AccessHash:    media.AccessHash,
			FileReference: media.FileReference,
			ThumbSize:     thumbType,
		}
	case *Document:
		location = &tg.InputDocumentFileLocation{
			ID:            media.ID,
			AccessHash:    media.AccessHash,
			FileReference: media.FileReference,
		}
	default:
		return "", ErrNoMedia
	}

	if _, err := downloader.NewDownloader().Download(c.client.API(), location).ToPath(ctx, path); err != nil {
		return "", fmt.Errorf("downloading media: %w", err)
	}
	return path, nil
}

func (c *Client) inputPeer(id int64) (tg.InputPeerClass, error) {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	if peer, ok := c.peers[id]; ok {
		return peer, nil
	}
	return nil, ErrEntityNotFound
}

func (c *Client) registerPeer(id int64, peer tg.InputPeerClass, ent Entity) {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	c.peers[id] = peer
	c.ents[id] = ent
}

func (c *Client) registerLookup(lk lookup) {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	for id, user := range lk.users {
		c.peers[id] = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
		c.ents[id] = convertUser(user)
	}
	for id, chat := range lk.chats {
		c.peers[id] = &tg.InputPeerChat{ChatID: chat.ID}
		c.ents[id] = convertChat(chat)
	}
	for id, channel := range lk.channels {
		c.peers[id] = &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
		c.ents[id] = convertChannel(channel)
	}
}
