package telegram

import (
	"time"

	"github.com/gotd/td/tg"
)

// lookup indexes the users/chats that arrived alongside a page of messages or
// an update, so senders and chats resolve without extra round trips.
type lookup struct {
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func buildLookup(users []tg.UserClass, chats []tg.ChatClass) lookup {
	lk := lookup{
		users:    make(map[int64]*tg.User, len(users)),
		chats:    map[int64]*tg.Chat{},
		channels: map[int64]*tg.Channel{},
	}
	for _, userClass := range users {
		if user, ok := userClass.(*tg.User); ok && user != nil {
			lk.users[user.ID] = user
		}
	}
	for _, chatClass := range chats {
		switch entry := chatClass.(type) {
		case *tg.Chat:
			if entry != nil {
				lk.chats[entry.ID] = entry
			}
		case *tg.Channel:
			if entry != nil {
				lk.channels[entry.ID] = entry
			}
		}
	}
	return lk
}

func buildLookupFromEntities(entities tg.Entities) lookup {
	lk := lookup{
		users:    make(map[int64]*tg.User, len(entities.Users)),
		chats:    make(map[int64]*tg.Chat, len(entities.Chats)),
		channels: make(map[int64]*tg.Channel, len(entities.Channels)),
	}
	for id, user := range entities.Users {
		lk.users[id] = user
	}
	for id, chat := range entities.Chats {
		lk.chats[id] = chat
	}
	for id, channel := range entities.Channels {
		lk.channels[id] = channel
	}
	return lk
}

func (lk lookup) entityFor(peer tg.PeerClass) Entity {
	switch p := peer.(type) {
	case *tg.PeerUser:
		if user, ok := lk.users[p.UserID]; ok {
			return convertUser(user)
		}
	case *tg.PeerChat:
		if chat, ok := lk.chats[p.ChatID]; ok {
			return convertChat(chat)
		}
	case *tg.PeerChannel:
		if channel, ok := lk.channels[p.ChannelID]; ok {
			return convertChannel(channel)
		}
	}
	return nil
}

func convertUser(u *tg.User) *User {
	return &User{
		ID:         u.ID,
		AccessHash: u.AccessHash,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		Self:       u.Self,
	}
}

func convertChat(c *tg.Chat) *Group {
	return &Group{ID: c.ID, Title: c.Title}
}

func convertChannel(c *tg.Channel) *Channel {
	return &Channel{
		ID:         c.ID,
		AccessHash: c.AccessHash,
		Title:      c.Title,
		Username:   c.Username,
		Broadcast:  c.Broadcast,
	}
}

func peerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

// convertMessage maps a wire message to the raw shape. Returns nil for
// messages without a resolvable containing peer.
func (c *Client) convertMessage(msg *tg.Message, lk lookup) *RawMessage {
	if msg == nil || msg.PeerID == nil {
		return nil
	}

	chatID := peerID(msg.PeerID)
	raw := &RawMessage{
		ID:     int64(msg.ID),
		ChatID: chatID,
		Chat:   c.resolveFromLookup(msg.PeerID, lk),
		Text:   msg.Message,
		Date:   time.Unix(int64(msg.Date), 0),
		Media:  convertMedia(msg),
	}

	if from, ok := msg.GetFromID(); ok {
		raw.SenderID = peerID(from)
		raw.Sender = c.resolveFromLookup(from, lk)
	} else if msg.Out {
		// Outgoing messages in private dialogs omit the sender peer.
		if me := c.cachedMe(); me != nil {
			raw.SenderID = me.ID
			raw.Sender = me
		}
	} else {
		// Incoming without an explicit sender: the dialog peer sent it.
		raw.SenderID = chatID
		raw.Sender = raw.Chat
	}

	return raw
}

// resolveFromLookup prefers the entities shipped with the current page and
// falls back to the session cache.
func (c *Client) resolveFromLookup(peer tg.PeerClass, lk lookup) Entity {
	if ent := lk.entityFor(peer); ent != nil {
		return ent
	}
	if ent, err := c.cachedEntity(peerID(peer)); err == nil {
		return ent
	}
	return nil
}

func convertMedia(msg *tg.Message) Media {
	mediaClass, ok := msg.GetMedia()
	if !ok {
		return nil
	}

	switch media := mediaClass.(type) {
	case *tg.MessageMediaPhoto:
		photoClass, ok := media.GetPhoto()
		if !ok {
			return nil
		}
		photo, ok := photoClass.(*tg.Photo)
		if !ok {
			return nil
		}
		converted := &Photo{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
		}
		for _, sizeClass := range photo.Sizes {
			switch size := sizeClass.(type) {
			case *tg.PhotoSize:
				converted.Sizes = append(converted.Sizes, PhotoSize{Type: size.Type, Size: int64(size.Size)})
			case *tg.PhotoSizeProgressive:
				var largest int
				for _, s := range size.Sizes {
					if s > largest {
						largest = s
					}
				}
				converted.Sizes = append(converted.Sizes, PhotoSize{Type: size.Type, Size: int64(largest)})
			}
		}
		return converted

	case *tg.MessageMediaDocument:
		docClass, ok := media.GetDocument()
		if !ok {
			return nil
		}
		doc, ok := docClass.(*tg.Document)
		if !ok {
			return nil
		}
		converted := &Document{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
			Size:          doc.Size,
			MimeType:      doc.MimeType,
		}
		for _, attrClass := range doc.Attributes {
			switch attr := attrClass.(type) {
			case *tg.DocumentAttributeFilename:
				converted.Attributes = append(converted.Attributes, &AttributeFilename{FileName: attr.FileName})
			case *tg.DocumentAttributeAudio:
				converted.Attributes = append(converted.Attributes, &AttributeAudio{Duration: attr.Duration, Voice: attr.Voice})
			case *tg.DocumentAttributeVideo:
				converted.Attributes = append(converted.Attributes, &AttributeVideo{
					Duration:     int(attr.Duration),
					W:            attr.W,
					H:            attr.H,
					RoundMessage: attr.RoundMessage,
				})
			case *tg.DocumentAttributeSticker:
				converted.Attributes = append(converted.Attributes, &AttributeSticker{Alt: attr.Alt})
			case *tg.DocumentAttributeAnimated:
				converted.Attributes = append(converted.Attributes, &AttributeAnimated{})
			}
		}
		return converted

	case *tg.MessageMediaWebPage:
		return &WebPage{}

	default:
		return nil
	}
}
