package mutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChatMutexSerializesPerChat(t *testing.T) {
	var m ChatMutex

	var counters [2]int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for slot, chatID := range []int64{1, 2} {
			wg.Add(1)
			go func(slot int, chatID int64) {
				defer wg.Done()
				m.Lock(chatID)
				defer m.Unlock(chatID)
				counters[slot]++
			}(slot, chatID)
		}
	}
	wg.Wait()

	require.Equal(t, 50, counters[0])
	require.Equal(t, 50, counters[1])
}
