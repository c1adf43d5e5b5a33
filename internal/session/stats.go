package session

import (
	"sort"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
)

// CategoryStats summarises the entries of one category.
type CategoryStats struct {
	Category string
	Entries  int
	Due      int
	New      int // never reviewed
	MeanEase float64
}

// Stats returns one row per category, sorted by category name.
func Stats(records []domain.Record, now time.Time) []CategoryStats {
	byCategory := make(map[string]*CategoryStats)
	for _, rec := range records {
		cs, ok := byCategory[rec.Entry.Category]
		if !ok {
			cs = &CategoryStats{Category: rec.Entry.Category}
			byCategory[rec.Entry.Category] = cs
		}
		cs.Entries++
		if rec.Review.IsDue(now) {
			cs.Due++
		}
		if rec.Review.Reviews == 0 {
			cs.New++
		}
		cs.MeanEase += rec.Review.Ease
	}

	out := make([]CategoryStats, 0, len(byCategory))
	for _, cs := range byCategory {
		cs.MeanEase /= float64(cs.Entries)
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
