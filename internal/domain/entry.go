package domain

import (
	"slices"
	"strings"
	"time"
)

// Entry is a single interview item: a prompt and the answer to rehearse.
type Entry struct {
	ID         string    `json:"id" validate:"required,max=128,identifier"`
	Category   string    `json:"category" validate:"required,max=64"`
	Prompt     string    `json:"prompt" validate:"required"`
	Answer     string    `json:"answer" validate:"required"`
	Tags       []string  `json:"tags" validate:"dive,required,max=64"`
	Difficulty int       `json:"difficulty" validate:"required,min=1,max=5"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// Normalize trims every text field and lower-cases the category and tags. An empty tag list
// becomes nil. Blank tags are kept so that validation can report them.
func (e Entry) Normalize() Entry {
	e.ID = strings.TrimSpace(e.ID)
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	e.Prompt = strings.TrimSpace(e.Prompt)
	e.Answer = strings.TrimSpace(e.Answer)
	e.Source = strings.TrimSpace(e.Source)
	if len(e.Tags) == 0 {
		e.Tags = nil
	} else {
		tags := make([]string, len(e.Tags))
		for i, t := range e.Tags {
			tags[i] = strings.ToLower(strings.TrimSpace(t))
		}
		e.Tags = tags
	}
	return e
}

// Clone returns a copy that shares no slices with e.
func (e Entry) Clone() Entry {
	e.Tags = slices.Clone(e.Tags)
	return e
}

// HasTag reports whether the entry carries tag (case-insensitive).
func (e Entry) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return slices.Contains(e.Tags, tag)
}

// ReviewState is the scheduling metadata attached to exactly one Entry.
type ReviewState struct {
	LastReviewed time.Time `json:"last_reviewed"`
	NextDue      time.Time `json:"next_due"`
	Interval     float64   `json:"interval"` // days, unrounded
	Streak       int       `json:"streak"`
	Ease         float64   `json:"ease"`
	Reviews      int       `json:"reviews"`
}

// IsDue reports whether the entry is due at now (NextDue <= now).
func (rs ReviewState) IsDue(now time.Time) bool {
	return !now.Before(rs.NextDue)
}

// Overdue returns how long past due the state is, or 0 if not yet due.
func (rs ReviewState) Overdue(now time.Time) time.Duration {
	if now.Before(rs.NextDue) {
		return 0
	}
	return now.Sub(rs.NextDue)
}

// Record pairs an Entry with its ReviewState.
type Record struct {
	Entry  Entry       `json:"entry"`
	Review ReviewState `json:"review"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Entry = r.Entry.Clone()
	return r
}

// Filter selects entries by category and tags. Zero value matches everything.
type Filter struct {
	Category string
	Tags     []string // entry must carry every tag
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e Entry) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, e.Category) {
		return false
	}
	for _, t := range f.Tags {
		if !e.HasTag(t) {
			return false
		}
	}
	return true
}

// Fields describes a partial update. Nil pointers leave the field untouched.
// ID is accepted only so that attempts to change it can be rejected.
type Fields struct {
	ID         *string
	Category   *string
	Prompt     *string
	Answer     *string
	Tags       *[]string
	Difficulty *int
	Source     *string
}

// Apply returns e with the non-nil fields applied. ID is never applied.
func (f Fields) Apply(e Entry) Entry {
	e = e.Clone()
	if f.Category != nil {
		e.Category = *f.Category
	}
	if f.Prompt != nil {
		e.Prompt = *f.Prompt
	}
	if f.Answer != nil {
		e.Answer = *f.Answer
	}
	if f.Tags != nil {
		e.Tags = slices.Clone(*f.Tags)
	}
	if f.Difficulty != nil {
		e.Difficulty = *f.Difficulty
	}
	if f.Source != nil {
		e.Source = *f.Source
	}
	return e
}
