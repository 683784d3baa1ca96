package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
)

// historyFetcher requests one page of chat history.
type historyFetcher func(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)

// historyIter pages through a chat's history with the offset-id cursor,
// newest first, holding at most one page in memory. MinID acts as the
// resumability watermark: the server only returns messages above it.
type historyIter struct {
	client *Client
	peer   tg.InputPeerClass
	limit  int // 0 = unbounded
	minID  int64
	fetch  historyFetcher

	offsetID int
	buf      []*RawMessage
	cur      *RawMessage
	count    int
	done     bool
	err      error
}

func (it *historyIter) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.limit > 0 && it.count >= it.limit {
		return false
	}

	for len(it.buf) == 0 {
		if it.done {
			return false
		}
		if err := it.fetchPage(ctx); err != nil {
			it.err = err
			return false
		}
	}

	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	it.count++
	return true
}

func (it *historyIter) Message() *RawMessage {
	return it.cur
}

func (it *historyIter) Err() error {
	return it.err
}

func (it *historyIter) fetchPage(ctx context.Context) error {
	batch := historyBatchSize
	if it.limit > 0 && it.limit-it.count < batch {
		batch = it.limit - it.count
	}

	res, err := it.fetch(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     it.peer,
		OffsetID: it.offsetID,
		Limit:    batch,
		MinID:    int(it.minID),
	})
	if err != nil {
		return fmt.Errorf("fetching history page: %w", err)
	}

	modified, ok := res.AsModified()
	if !ok {
		it.done = true
		return nil
	}
	pageMessages := modified.GetMessages()
	if len(pageMessages) == 0 {
		it.done = true
		return nil
	}

	lk := buildLookup(modified.GetUsers(), modified.GetChats())
	it.client.registerLookup(lk)

	// The cursor advances over every non-empty message, service messages
	// included: a page holding only joins and pins must still move it, or
	// older history would never be requested.
	pageMinID := 0
	for _, msgClass := range pageMessages {
		nonEmpty, ok := msgClass.AsNotEmpty()
		if !ok {
			continue
		}
		id := nonEmpty.GetID()
		if id > 0 && (pageMinID == 0 || id < pageMinID) {
			pageMinID = id
		}
		// The server already filters on MinID; the guard keeps the invariant
		// when a page straddles the watermark.
		if it.minID > 0 && int64(id) <= it.minID {
			it.done = true
			continue
		}
		msg, ok := nonEmpty.(*tg.Message)
		if !ok {
			continue
		}
		if raw := it.client.convertMessage(msg, lk); raw != nil {
			it.buf = append(it.buf, raw)
		}
	}

	if pageMinID <= 0 || pageMinID == it.offsetID || len(pageMessages) < batch {
		it.done = true
	}
	it.offsetID = pageMinID
	return nil
}
