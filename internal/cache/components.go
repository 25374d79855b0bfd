package cache

import (
	"fmt"

	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/symbols"
)

// TargetCache is the in-memory snapshot of one target's cached parts.
type TargetCache struct {
	symbols.MapLoader
	obsolete []string
}

func (c *TargetCache) ObsoleteParts() []string { return c.obsolete }

var _ incremental.Cache = (*TargetCache)(nil)

// Cache loads the snapshot of target. A target that was never saved yields
// a NOT_FOUND error.
func (s *Store) Cache(target incremental.TargetID) (*TargetCache, error) {
	parts, obsolete, err := s.LoadParts(target)
	if err != nil {
		return nil, err
	}
	c := &TargetCache{MapLoader: symbols.MapLoader{}, obsolete: obsolete}
	c.Add(parts...)
	return c, nil
}

// Components implements incremental.Components over snapshots loaded up
// front, so an analysis never touches the database.
type Components struct {
	tracker lookup.Tracker
	caches  map[incremental.TargetID]*TargetCache
}

var _ incremental.Components = (*Components)(nil)

// Components loads the caches of targets. Targets without saved state get
// no cache. tracker may be nil.
func (s *Store) Components(tracker lookup.Tracker, targets ...incremental.TargetID) (*Components, error) {
	if tracker == nil {
		tracker = lookup.DoNothing
	}
	c := &Components{tracker: tracker, caches: make(map[incremental.TargetID]*TargetCache)}
	for _, t := range targets {
		tc, err := s.Cache(t)
		if tderrors.IsCode(err, tderrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load cache %s: %w", t, err)
		}
		c.caches[t] = tc
	}
	return c, nil
}

func (c *Components) LookupTracker() lookup.Tracker { return c.tracker }

func (c *Components) IncrementalCache(target incremental.TargetID) incremental.Cache {
	tc, ok := c.caches[target]
	if !ok {
		return nil
	}
	return tc
}
