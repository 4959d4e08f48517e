package portfolio

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// pendingSet tracks filled orders whose position update has not been
// applied yet. The order manager adds, the position manager clears. An
// instrument stays pending while any of its fills is outstanding.
//
// Fills and position updates arrive on different topics, so a position
// update can overtake the fill that caused it. An update tagged with the
// fill's PermID is remembered in applied and the later fill adds nothing.
// Untagged updates clear markers for fills strictly older than the update,
// and seen keeps the newest untagged timestamp so a fill older than it is
// treated as already reflected. Markers that are never cleared expire after
// timeout.
type pendingSet struct {
	mu      sync.Mutex
	markers map[int]map[int]pendingMarker
	applied map[int]struct{}
	seen    map[int]time.Time
	timeout time.Duration
	now     func() time.Time
	log     *log.Entry
}

type pendingMarker struct {
	added    time.Time
	fillTime time.Time
}

func newPendingSet(timeout time.Duration) *pendingSet {
	return &pendingSet{
		markers: make(map[int]map[int]pendingMarker),
		applied: make(map[int]struct{}),
		seen:    make(map[int]time.Time),
		timeout: timeout,
		now:     time.Now,
		log:     log.WithField("component", "pending"),
	}
}

// add marks the fill of permID on instrument as waiting for its position
// update. It reports whether a marker was added.
func (p *pendingSet) add(instrument, permID int, fillTime time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if permID != 0 {
		if _, ok := p.applied[permID]; ok {
			delete(p.applied, permID)
			return false
		}
	}
	if seen, ok := p.seen[instrument]; ok && !fillTime.IsZero() && seen.After(fillTime) {
		return false
	}
	set, ok := p.markers[instrument]
	if !ok {
		set = make(map[int]pendingMarker)
		p.markers[instrument] = set
	}
	set[permID] = pendingMarker{added: p.now(), fillTime: fillTime}
	return true
}

// observe records a position update for instrument. An update tagged with
// permID settles that fill whether or not it changed anything. An untagged
// update settles older fills only when it changed the stored position.
func (p *pendingSet) observe(instrument, permID int, ts time.Time, changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.markers[instrument]
	if permID != 0 {
		if _, ok := set[permID]; ok {
			delete(set, permID)
		} else {
			p.applied[permID] = struct{}{}
		}
	} else {
		if ts.After(p.seen[instrument]) {
			p.seen[instrument] = ts
		}
		if changed {
			for perm, m := range set {
				if ts.IsZero() || m.fillTime.IsZero() || m.fillTime.Before(ts) {
					delete(set, perm)
				}
			}
		}
	}
	if len(set) == 0 {
		delete(p.markers, instrument)
	}
}

// ids returns the pending instruments, dropping expired markers.
func (p *pendingSet) ids() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]int, 0, len(p.markers))
	for id, set := range p.markers {
		for perm, m := range set {
			if p.timeout > 0 && now.Sub(m.added) > p.timeout {
				p.log.WithFields(log.Fields{
					"instrument": id,
					"perm_id":    perm,
					"fill_time":  m.fillTime,
					"age":        now.Sub(m.added),
				}).Warn("pending position update expired")
				delete(set, perm)
			}
		}
		if len(set) == 0 {
			delete(p.markers, id)
			continue
		}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (p *pendingSet) has(instrument int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.markers[instrument]) > 0
}
