// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package purge implements a background tombstone sweep over a
// collection, with at most one purge in flight per collection and
// concurrent triggers coalesced into it.
package purge

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
)

// Sweeper coalesces concurrent Trigger calls against a single collection
// into at most one in-flight PurgeDeleted sweep.
type Sweeper struct {
	col    *store.Collection
	logger hclog.Logger

	mu       sync.Mutex
	inFlight chan struct{}
}

// New builds a Sweeper over col. A nil logger defaults to a null logger,
// matching the rest of the core's ambient logging (see internal/edv/...
// and internal/plugin's use of hclog).
func New(col *store.Collection, logger hclog.Logger) *Sweeper {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Sweeper{col: col, logger: logger}
}

// Trigger starts a purge if none is in flight, or waits for the in-flight
// one to finish if there already is one. Purge failures are logged and
// swallowed; Trigger itself never returns an error.
func (s *Sweeper) Trigger(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight != nil {
		done := s.inFlight
		s.mu.Unlock()
		<-done
		return
	}
	done := make(chan struct{})
	s.inFlight = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = nil
		s.mu.Unlock()
		close(done)
	}()

	removed, err := s.col.PurgeDeleted(ctx)
	if err != nil {
		s.logger.Warn("purge failed", "collection", s.col.Name(), "error", err)
		return
	}
	if removed > 0 {
		s.logger.Debug("purge complete", "collection", s.col.Name(), "removed", removed)
	}
}
