// Package session builds review sessions from the entries that are due.
package session

import (
	"sort"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
)

// Item is one due entry in a session.
type Item struct {
	Record  domain.Record
	Overdue time.Duration
}

// Session is the ordered list of entries due at a point in time. It is never
// persisted.
type Session struct {
	At    time.Time
	Items []Item
}

// Len returns the number of items.
func (s Session) Len() int { return len(s.Items) }

// Empty reports whether nothing is due.
func (s Session) Empty() bool { return len(s.Items) == 0 }

// Options narrows a session.
type Options struct {
	Filter domain.Filter
	Limit  int // 0 means no limit
}

// Build returns the records due at now (NextDue <= now) sorted by category,
// then by how overdue they are (most overdue first). Records that tie keep
// the order they were given in.
func Build(records []domain.Record, now time.Time, opts Options) Session {
	var items []Item
	for _, rec := range records {
		if !opts.Filter.Match(rec.Entry) || !rec.Review.IsDue(now) {
			continue
		}
		items = append(items, Item{Record: rec, Overdue: rec.Review.Overdue(now)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Record.Entry.Category != b.Record.Entry.Category {
			return a.Record.Entry.Category < b.Record.Entry.Category
		}
		return a.Overdue > b.Overdue
	})

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return Session{At: now, Items: items}
}
