// Package buffers implements the process-wide buffer store: the only state
// shared across node stages. Pending records are keyed by
// (executionId, nodeId, port) and kept in strict arrival order per port.
// Buffers are advisory in-memory routing state, not durable storage.
package buffers

import (
	"strings"
	"sync"

	"github.com/krishnasabbu/abinitio-backend-sub000/pkg/record"
)

// Store holds pending records per (execution, node, port). All operations
// are safe under concurrent access across executions and across nodes
// within one execution. A drain (get+clear) is atomic with respect to
// concurrent adds for the same key.
type Store struct {
	mu      sync.Mutex
	buffers map[string][]*record.Record
	// execKeys tracks the buffer keys belonging to each execution so
	// teardown does not scan the whole map.
	execKeys map[string]map[string]bool
}

// NewStore creates an empty buffer store.
func NewStore() *Store {
	return &Store{
		buffers:  make(map[string][]*record.Record),
		execKeys: make(map[string]map[string]bool),
	}
}

func bufferKey(executionId, nodeId, port string) string {
	return executionId + "|" + nodeId + "|" + port
}

// AddRecord appends a record to the buffer, creating it on first write.
func (s *Store) AddRecord(executionId, nodeId, port string, rec *record.Record) {
	key := bufferKey(executionId, nodeId, port)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[key] = append(s.buffers[key], rec)
	keys, ok := s.execKeys[executionId]
	if !ok {
		keys = make(map[string]bool)
		s.execKeys[executionId] = keys
	}
	keys[key] = true
}

// GetRecords returns the current buffer contents in arrival order without
// clearing. The returned slice is a copy; the records are shared.
func (s *Store) GetRecords(executionId, nodeId, port string) []*record.Record {
	key := bufferKey(executionId, nodeId, port)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*record.Record(nil), s.buffers[key]...)
}

// ClearBuffer empties a buffer.
func (s *Store) ClearBuffer(executionId, nodeId, port string) {
	key := bufferKey(executionId, nodeId, port)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, key)
}

// Drain returns the buffer contents and clears the buffer in one step.
// A second Drain before the next write returns an empty slice, which is
// what gives consuming stages at-most-one delivery per buffered record.
func (s *Store) Drain(executionId, nodeId, port string) []*record.Record {
	key := bufferKey(executionId, nodeId, port)
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.buffers[key]
	delete(s.buffers, key)
	return records
}

// Size returns the number of records pending at one port.
func (s *Store) Size(executionId, nodeId, port string) int {
	key := bufferKey(executionId, nodeId, port)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[key])
}

// Ports lists the ports that currently have a buffer for a node.
func (s *Store) Ports(executionId, nodeId string) []string {
	prefix := executionId + "|" + nodeId + "|"
	s.mu.Lock()
	defer s.mu.Unlock()
	var ports []string
	for key := range s.buffers {
		if strings.HasPrefix(key, prefix) {
			ports = append(ports, strings.TrimPrefix(key, prefix))
		}
	}
	return ports
}

// RemoveExecution deletes every buffer belonging to one execution. Called
// at execution teardown; other executions are unaffected.
func (s *Store) RemoveExecution(executionId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.execKeys[executionId] {
		delete(s.buffers, key)
	}
	delete(s.execKeys, executionId)
}
