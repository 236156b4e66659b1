package agent

import (
	"sync"

	"github.com/clawsync/clawsync/internal/model/contract"

	"github.com/oklog/ulid/v2"
)

const maxThreadMessages = 100

// threads keeps conversation history in memory, keyed by thread id.
type threads struct {
	mu   sync.Mutex
	byID map[string][]contract.Message
}

func newThreads() *threads {
	return &threads{byID: make(map[string][]contract.Message)}
}

// open returns the id and a copy of the history. An empty id starts a new
// thread; an unknown id starts an empty thread under that id.
func (t *threads) open(id string) (string, []contract.Message) {
	if id == "" {
		return ulid.Make().String(), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return id, append([]contract.Message(nil), t.byID[id]...)
}

func (t *threads) save(id string, history []contract.Message) {
	if len(history) > maxThreadMessages {
		history = history[len(history)-maxThreadMessages:]
		// A trimmed history must not start with orphaned tool results.
		for len(history) > 0 && history[0].Role != contract.RoleUser {
			history = history[1:]
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = history
}

func (t *threads) history(id string) []contract.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]contract.Message(nil), t.byID[id]...)
}
