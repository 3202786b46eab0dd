package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct{ id string }

func (s stubClient) GetChats(ctx context.Context) ([]RawChat, error) { return nil, nil }
func (s stubClient) GetChatState(ctx context.Context, remoteID string) (RawChatState, error) {
	return RawChatState{}, nil
}
func (s stubClient) SendMessage(ctx context.Context, phoneNumber, body string) (string, error) {
	return "", nil
}
func (s stubClient) Destroy(ctx context.Context) error { return nil }

func TestPutGetRemove(t *testing.T) {
	r := New()

	_, ok := r.Get("sess-1")
	assert.False(t, ok)

	r.Put("sess-1", stubClient{id: "a"})
	got, ok := r.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, stubClient{id: "a"}, got)

	// Replacement, not duplication.
	r.Put("sess-1", stubClient{id: "b"})
	got, _ = r.Get("sess-1")
	assert.Equal(t, stubClient{id: "b"}, got)
	assert.Equal(t, []string{"sess-1"}, r.SessionIDs())

	r.Remove("sess-1")
	_, ok = r.Get("sess-1")
	assert.False(t, ok)
}

func TestTouchActivityRequiresOwnership(t *testing.T) {
	r := New()

	r.TouchActivity("unknown")
	_, ok := r.LastActivity("unknown")
	assert.False(t, ok, "activity on an unowned session is discarded")

	r.Put("sess-1", stubClient{})
	_, ok = r.LastActivity("sess-1")
	assert.False(t, ok, "no activity recorded yet")

	r.TouchActivity("sess-1")
	ts, ok := r.LastActivity("sess-1")
	require.True(t, ok)
	assert.False(t, ts.IsZero())
}

func TestLockForIsStablePerSession(t *testing.T) {
	r := New()

	a := r.LockFor("sess-1")
	b := r.LockFor("sess-1")
	other := r.LockFor("sess-2")

	assert.Same(t, a, b, "repeated calls must hand out the same mutex")
	assert.NotSame(t, a, other, "sessions must not share a lifecycle lock")
}

func TestLockForSerializesCriticalSections(t *testing.T) {
	r := New()

	var inside, maxInside int
	var seen sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := r.LockFor("sess-1")
			l.Lock()
			defer l.Unlock()

			seen.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			seen.Unlock()

			seen.Lock()
			inside--
			seen.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "at most one holder at a time per session")
}
