// Package playtime owns the durable per-player accounting: first join and
// cumulative playtime, keyed "profile:identity". A single goroutine applies
// every mutation, so no other component ever touches the mapping directly.
package playtime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is one player's accumulated accounting. Totals only ever grow and
// records are never deleted.
type Record struct {
	FirstJoin            time.Time `json:"first_join"`
	TotalPlaytimeSeconds int64     `json:"total_playtime_seconds"`
}

// Store is the single writer of all playtime records. Mutations arrive
// through an op queue consumed by Run; flushes happen periodically, after
// write failures with backoff, and once more on shutdown.
type Store struct {
	path    string
	records map[string]Record
	ops     chan func()
	done    chan struct{}
	dirty   bool
}

// Open loads the persisted mapping. A missing file starts empty; a corrupt
// one is handled per policy and reported through the returned warning,
// which is nil when the load was clean (unless the policy is PolicyFail,
// in which case the store is nil and the error fatal).
func Open(path string, policy RecoveryPolicy) (*Store, error) {
	records, err := load(path, policy)
	if records == nil {
		return nil, err
	}

	return &Store{
		path:    path,
		records: records,
		ops:     make(chan func(), 256),
		done:    make(chan struct{}),
	}, err
}

// Run consumes mutations and drives flushing until ctx is canceled, then
// writes the mapping one final time. Only one Run per store.
func (s *Store) Run(ctx context.Context, flushEvery time.Duration) {
	defer close(s.done)

	if flushEvery <= 0 {
		flushEvery = 5 * time.Minute
	}

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	retry := time.NewTimer(time.Hour)
	retry.Stop()
	retryDelay := time.Second

	flush := func() {
		if !s.dirty {
			return
		}
		if err := save(s.path, s.records); err != nil {
			log.Error().Err(err).Dur("retry_in", retryDelay).Msg("Playtime flush failed")
			retry.Reset(retryDelay)
			if retryDelay *= 2; retryDelay > time.Minute {
				retryDelay = time.Minute
			}
			return
		}
		s.dirty = false
		retryDelay = time.Second
	}

	for {
		select {
		case op := <-s.ops:
			op()
		case <-ticker.C:
			flush()
		case <-retry.C:
			flush()
		case <-ctx.Done():
			// Drain mutations already queued, then flush once more.
			for {
				select {
				case op := <-s.ops:
					op()
					continue
				default:
				}
				break
			}
			if s.dirty {
				if err := save(s.path, s.records); err != nil {
					log.Error().Err(err).Msg("Final playtime flush failed")
				}
			}
			return
		}
	}
}

// PlayerSeen ensures a record exists for the identity, stamping FirstJoin
// on the very first sighting.
func (s *Store) PlayerSeen(profile, identity string, at time.Time) {
	s.enqueue(func() {
		key := recordKey(profile, identity)
		if _, ok := s.records[key]; !ok {
			s.records[key] = Record{FirstJoin: at}
			s.dirty = true
		}
	})
}

// SessionClosed adds a finished session to the identity's total. A record
// missing at close time (store reset while the player was online) is
// created with the session's join time as FirstJoin.
func (s *Store) SessionClosed(profile, identity string, joinedAt time.Time, seconds int64) {
	if seconds < 0 {
		seconds = 0
	}

	s.enqueue(func() {
		key := recordKey(profile, identity)
		rec, ok := s.records[key]
		if !ok {
			rec = Record{FirstJoin: joinedAt}
		}
		rec.TotalPlaytimeSeconds += seconds
		s.records[key] = rec
		s.dirty = true
	})
}

// Snapshot returns a copy of the full mapping. Returns nil after the store
// has stopped.
func (s *Store) Snapshot() map[string]Record {
	reply := make(chan map[string]Record, 1)

	ok := s.enqueue(func() {
		out := make(map[string]Record, len(s.records))
		for k, v := range s.records {
			out[k] = v
		}
		reply <- out
	})
	if !ok {
		return nil
	}

	select {
	case snap := <-reply:
		return snap
	case <-s.done:
		return nil
	}
}

// enqueue hands an op to the writer goroutine. Ops arriving after shutdown
// are dropped with a log line rather than blocking the caller forever.
func (s *Store) enqueue(op func()) bool {
	select {
	case <-s.done:
		log.Warn().Msg("Playtime store already stopped, dropping update")
		return false
	case s.ops <- op:
		return true
	}
}

func recordKey(profile, identity string) string {
	return profile + ":" + identity
}
