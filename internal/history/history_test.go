package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

func msg(i int) rag.Message {
	role := rag.RoleUser
	if i%2 == 1 {
		role = rag.RoleAssistant
	}
	return rag.Message{Role: role, Content: fmt.Sprintf("m%d", i)}
}

func TestConversation_CapEvictsOldestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const capacity = 5
	c := New(capacity, nil, nil)
	for i := range capacity + 3 {
		c.Append(ctx, msg(i))
	}

	got := c.All()
	require.Len(t, got, capacity)
	for i, m := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i+3), m.Content)
	}
}

func TestConversation_AppendPairOverCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := New(3, nil, nil)
	c.Append(ctx, msg(0), msg(1))
	c.Append(ctx, msg(2), msg(3))

	assert.Equal(t, []rag.Message{msg(1), msg(2), msg(3)}, c.All())
}

func TestConversation_AllReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := New(10, nil, nil)
	c.Append(ctx, msg(0))
	got := c.All()
	got[0].Content = "mutated"

	assert.Equal(t, "m0", c.All()[0].Content)
}

func TestConversation_Clear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := New(10, nil, nil)
	c.Append(ctx, msg(0), msg(1))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.All())
}

func TestConversation_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := New(1000, nil, nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(ctx, msg(2*i), msg(2*i+1))
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, c.Len())
}

// recordingPersister keeps every appended message in arrival order.
type recordingPersister struct {
	mu   sync.Mutex
	msgs []rag.Message
}

func (r *recordingPersister) Append(_ context.Context, msgs ...rag.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingPersister) Recent(context.Context, int) ([]rag.Message, error) { return nil, nil }
func (r *recordingPersister) Clear(context.Context) error                    { return nil }

func TestConversation_ConcurrentAppendsPersistInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := &recordingPersister{}
	c := New(1000, p, nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(ctx, msg(2*i), msg(2*i+1))
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, c.All(), p.msgs, "transcript order must match the in-memory order")
}

func TestConversation_PersistAndHydrate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c := New(4, s, nil)
	for i := range 6 {
		c.Append(ctx, msg(i))
	}

	restored := New(4, s, nil)
	require.NoError(t, restored.Hydrate(ctx))
	assert.Equal(t, c.All(), restored.All())

	require.NoError(t, restored.Clear(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// failingPersister rejects every write.
type failingPersister struct{}

func (failingPersister) Append(context.Context, ...rag.Message) error { return errors.New("disk full") }
func (failingPersister) Recent(context.Context, int) ([]rag.Message, error) {
	return nil, errors.New("disk full")
}
func (failingPersister) Clear(context.Context) error { return errors.New("disk full") }

func TestConversation_PersistFailureKeepsMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := New(4, failingPersister{}, nil)
	c.Append(ctx, msg(0))
	assert.Equal(t, 1, c.Len())
	assert.Error(t, c.Hydrate(ctx))
}
