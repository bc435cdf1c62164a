package buffers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
)

func rec(id int) *record.Record {
	return record.FromPairs("id", id)
}

func TestAddAndGetPreservesFIFO(t *testing.T) {
	s := NewStore()
	s.AddRecord("ex", "n", "out", rec(1))
	s.AddRecord("ex", "n", "out", rec(2))

	got := s.GetRecords("ex", "n", "out")
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Value("id"))
	assert.Equal(t, 2, got[1].Value("id"))

	// Get does not consume.
	assert.Equal(t, 2, s.Size("ex", "n", "out"))
}

func TestGetReturnsCopyOfSlice(t *testing.T) {
	s := NewStore()
	s.AddRecord("ex", "n", "out", rec(1))

	got := s.GetRecords("ex", "n", "out")
	got[0] = rec(99)

	again := s.GetRecords("ex", "n", "out")
	assert.Equal(t, 1, again[0].Value("id"))
}

func TestDrainIsConsuming(t *testing.T) {
	s := NewStore()
	s.AddRecord("ex", "n", "out", rec(1))
	s.AddRecord("ex", "n", "out", rec(2))

	first := s.Drain("ex", "n", "out")
	assert.Len(t, first, 2)

	second := s.Drain("ex", "n", "out")
	assert.Empty(t, second)
}

func TestDrainKeysAreIsolated(t *testing.T) {
	s := NewStore()
	s.AddRecord("ex", "n", "out", rec(1))
	s.AddRecord("ex", "n", "right", rec(2))
	s.AddRecord("ex2", "n", "out", rec(3))

	assert.Len(t, s.Drain("ex", "n", "out"), 1)
	assert.Equal(t, 1, s.Size("ex", "n", "right"))
	assert.Equal(t, 1, s.Size("ex2", "n", "out"))
}

func TestClearBuffer(t *testing.T) {
	s := NewStore()
	s.AddRecord("ex", "n", "out", rec(1))
	s.ClearBuffer("ex", "n", "out")
	assert.Equal(t, 0, s.Size("ex", "n", "out"))
}

func TestPortsListsBufferedPorts(t *testing.T) {
	s := NewStore()
	s.AddRecord("ex", "n", "out", rec(1))
	s.AddRecord("ex", "n", "right", rec(2))
	s.AddRecord("ex", "other", "out", rec(3))

	assert.ElementsMatch(t, []string{"out", "right"}, s.Ports("ex", "n"))
}

func TestRemoveExecutionDropsAllBuffers(t *testing.T) {
	s := NewStore()
	s.AddRecord("ex", "a", "out", rec(1))
	s.AddRecord("ex", "b", "right", rec(2))
	s.AddRecord("keep", "a", "out", rec(3))

	s.RemoveExecution("ex")

	assert.Equal(t, 0, s.Size("ex", "a", "out"))
	assert.Equal(t, 0, s.Size("ex", "b", "right"))
	assert.Equal(t, 1, s.Size("keep", "a", "out"))
}

func TestConcurrentAddAndDrain(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddRecord("ex", "n", "out", rec(i))
		}(i)
	}
	wg.Wait()

	total := len(s.Drain("ex", "n", "out"))
	assert.Equal(t, 50, total)
}
