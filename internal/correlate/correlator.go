// Package correlate matches a computed field diff to the activity entry the
// upstream audit system eventually writes for the same update. There is no
// shared transaction id between the two systems, so the match is a heuristic:
// action and actor filtering plus proximity in time, under a bounded retry
// schedule. A miss is a normal outcome, never an error.
package correlate

import (
	"context"
	"log"
	"time"

	"github.com/caselane/matterproxy/internal/domain"
)

// ActivityFeed is the slice of the backend the correlator needs.
type ActivityFeed interface {
	FetchActivity(ctx context.Context, matterID string) ([]domain.ActivityEntry, error)
}

// Config controls the retry schedule and the matching predicate.
type Config struct {
	// Action is the activity action that identifies a matter update.
	Action string

	// Delays are the sleeps between attempts; total attempts = len(Delays)+1.
	Delays []time.Duration

	// MaxSkew discards candidates older than this. Zero disables the window.
	MaxSkew time.Duration
}

// DefaultConfig returns the schedule the upstream propagation latency was
// measured against: an initial attempt plus three retries, ~1.1s total budget.
func DefaultConfig() Config {
	return Config{
		Action: domain.ActionMatterUpdated,
		Delays: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 700 * time.Millisecond},
	}
}

// Correlator polls an activity feed for the entry that corresponds to a
// just-completed update.
type Correlator struct {
	feed   ActivityFeed
	config Config
	now    func() time.Time
}

// NewCorrelator creates a correlator over the given feed. Zero-valued config
// fields fall back to the defaults.
func NewCorrelator(feed ActivityFeed, config Config) *Correlator {
	defaults := DefaultConfig()
	if config.Action == "" {
		config.Action = defaults.Action
	}
	if config.Delays == nil {
		config.Delays = defaults.Delays
	}
	return &Correlator{feed: feed, config: config, now: time.Now}
}

// Correlate polls the activity feed for matterID until it finds an update
// entry plausibly produced by this update, or the retry budget runs out.
// Call it only with a non-empty field list. A nil result is a correlation
// miss, not an error; fetch failures along the way are logged and count as
// "no candidates this round". The loop stops early when ctx is done.
func (c *Correlator) Correlate(ctx context.Context, matterID, userID string, fields []string) *domain.ActivityEntry {
	attempts := len(c.config.Delays) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			log.Printf("[CORRELATE] matter %s: caller gone after %d attempts, abandoning fields %v", matterID, attempt, fields)
			return nil
		}

		entries, err := c.feed.FetchActivity(ctx, matterID)
		if err != nil {
			log.Printf("[CORRELATE] matter %s: activity fetch failed on attempt %d: %v", matterID, attempt+1, err)
		} else if entry := c.pickCandidate(entries, userID); entry != nil {
			return entry
		}

		if attempt < len(c.config.Delays) {
			if !sleepOrDone(ctx, c.config.Delays[attempt]) {
				log.Printf("[CORRELATE] matter %s: caller gone during backoff, abandoning fields %v", matterID, fields)
				return nil
			}
		}
	}

	log.Printf("[CORRELATE] warning: matter %s: no activity entry matched after %d attempts, dropping diff %v", matterID, attempts, fields)
	return nil
}

// pickCandidate filters entries by action and (when known) actor, then picks
// the one closest in time to now. Entries with an unparsable timestamp or a
// timestamp in the future are discarded.
func (c *Correlator) pickCandidate(entries []domain.ActivityEntry, userID string) *domain.ActivityEntry {
	now := c.now()

	var best *domain.ActivityEntry
	var bestAge time.Duration
	for idx := range entries {
		entry := &entries[idx]
		if entry.Action != c.config.Action {
			continue
		}
		if userID != "" && entry.UserID != userID {
			continue
		}
		if entry.CreatedAt.IsZero() {
			continue
		}
		age := now.Sub(entry.CreatedAt)
		if age <= 0 {
			continue
		}
		if c.config.MaxSkew > 0 && age > c.config.MaxSkew {
			continue
		}
		if best == nil || age < bestAge {
			best = entry
			bestAge = age
		}
	}
	return best
}

// sleepOrDone waits for the delay; returns false if ctx finished first.
func sleepOrDone(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
