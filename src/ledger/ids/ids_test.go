package ids

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestDerive(t *testing.T) {
	now := time.Unix(1735689600, 0)

	a := Derive("alice", now, nil)
	assert.Regexp(t, hexID, a)
	assert.Equal(t, a, Derive("alice", now, nil), "same inputs give the same id")
	assert.NotEqual(t, a, Derive("bob", now, nil))
	assert.NotEqual(t, a, Derive("alice", now.Add(time.Second), nil))
	assert.NotEqual(t, a, Derive("alice", now, []byte{1}))

	// sub-second precision is not part of the input
	assert.Equal(t, a, Derive("alice", now.Add(300*time.Millisecond), nil))
}

func TestGeneratorSameTick(t *testing.T) {
	g := NewGenerator()
	now := time.Unix(1735689600, 0)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.NewID("alice", now)
		require.Regexp(t, hexID, id)
		require.False(t, seen[id], "duplicate id %s at iteration %d", id, i)
		seen[id] = true
	}
}

func TestGeneratorAcrossProcesses(t *testing.T) {
	now := time.Unix(1735689600, 0)
	first := NewGenerator().NewID("alice", now)
	second := NewGenerator().NewID("alice", now)
	assert.NotEqual(t, first, second)
}

func TestGeneratorConcurrent(t *testing.T) {
	g := NewGenerator()
	now := time.Unix(1735689600, 0)

	const workers, perWorker = 8, 200
	out := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				out <- g.NewID("same-caller", now)
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]bool)
	for id := range out {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)
}
