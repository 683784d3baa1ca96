package mutex

import "sync"

// ChatMutex serializes operations on a single chat id. A full-history sync
// holds the chat's lock for its whole run, so two syncs of the same chat never
// interleave while syncs of different chats proceed in parallel.
type ChatMutex struct {
	muMap sync.Map
}

func (cm *ChatMutex) Lock(chatID int64) {
	mu, _ := cm.muMap.LoadOrStore(chatID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
}

func (cm *ChatMutex) Unlock(chatID int64) {
	mu, ok := cm.muMap.Load(chatID)
	if ok {
		mu.(*sync.Mutex).Unlock()
	}
}
