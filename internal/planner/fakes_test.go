package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"planloom/internal/featurestate"
	"planloom/internal/protocol"
	"planloom/internal/provider"
)

type scriptedCall struct {
	out string
	err error
}

// fakeProvider replays a scripted sequence of structured responses and
// records every prompt it sees.
type fakeProvider struct {
	script  []scriptedCall
	idx     int
	prompts []string
}

func (f *fakeProvider) GenerateStructured(_ context.Context, prompt string, _ provider.Schema) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.idx >= len(f.script) {
		return "", errors.New("fake provider: script exhausted")
	}
	call := f.script[f.idx]
	f.idx++
	return call.out, call.err
}

func (f *fakeProvider) GenerateFreeText(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return "", nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (n *fakeNotifier) Broadcast(msg protocol.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) countType(t string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.msgs {
		if m.Type == t {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) lastOfType(t string) (protocol.Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].Type == t {
			return n.msgs[i], true
		}
	}
	return protocol.Message{}, false
}

var plannerDBSeq int

func newTestStore(t *testing.T) *featurestate.Store {
	t.Helper()
	plannerDBSeq++
	dsn := fmt.Sprintf("file:planner_test_%d?mode=memory&cache=shared", plannerDBSeq)
	if err := featurestate.InitGlobalDBWithDSN(dsn); err != nil {
		t.Fatalf("init test db: %v", err)
	}
	return featurestate.NewStore()
}
