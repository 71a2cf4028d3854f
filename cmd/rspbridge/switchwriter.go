package main

import (
	"fmt"
	"sync"

	"github.com/otterlab/rspbridge/internal/bridge"
)

// switchWriter is a bridge.ByteWriter whose underlying destination is
// installed after the bridge core is already constructed: the core needs
// a ByteWriter at construction time, but the actual connection doesn't
// exist until the first accept. A mutex guards the slot.
type switchWriter struct {
	mu sync.Mutex
	w  bridge.ByteWriter
}

func newSwitchWriter() *switchWriter {
	return &switchWriter{}
}

func (s *switchWriter) set(w bridge.ByteWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// WriteAll implements bridge.ByteWriter, forwarding to whichever
// connection currently holds this role's dispatch slot.
func (s *switchWriter) WriteAll(p []byte) error {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w == nil {
		return fmt.Errorf("rspbridge: write with no connection established")
	}
	return w.WriteAll(p)
}
