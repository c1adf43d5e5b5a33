// Package interchange converts entries to and from the import/export formats.
//
// Every format is reduced to a map of named fields per record. The import
// columns are id, category, prompt, answer, tags, difficulty and source;
// export appends created_at, last_reviewed, next_due, interval, streak, ease
// and reviews. Unknown fields are ignored. A record missing a required field
// is rejected as a whole with an error naming the field.
package interchange

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
)

// Column names, in export order.
const (
	ColID           = "id"
	ColCategory     = "category"
	ColPrompt       = "prompt"
	ColAnswer       = "answer"
	ColTags         = "tags"
	ColDifficulty   = "difficulty"
	ColSource       = "source"
	ColCreatedAt    = "created_at"
	ColLastReviewed = "last_reviewed"
	ColNextDue      = "next_due"
	ColInterval     = "interval"
	ColStreak       = "streak"
	ColEase         = "ease"
	ColReviews      = "reviews"
)

// EntryColumns are the import columns in their fixed order.
var EntryColumns = []string{ColID, ColCategory, ColPrompt, ColAnswer, ColTags, ColDifficulty, ColSource}

// ReviewColumns follow EntryColumns on export.
var ReviewColumns = []string{ColCreatedAt, ColLastReviewed, ColNextDue, ColInterval, ColStreak, ColEase, ColReviews}

var requiredColumns = []string{ColID, ColCategory, ColPrompt, ColAnswer, ColDifficulty}

// Record is one decoded import record.
type Record struct {
	Index  int // 1-based position in the input (data row, list item or line)
	Entry  domain.Entry
	Review *domain.ReviewState // set when the input carried review columns
}

// RecordError reports a rejected record.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// FromFields builds a record from raw named fields. Required fields must be
// present and non-blank; the entry is then validated.
func FromFields(index int, fields map[string]string) (Record, error) {
	get := func(k string) string { return strings.TrimSpace(fields[k]) }
	id := get(ColID)

	for _, col := range requiredColumns {
		if get(col) == "" {
			return Record{}, &RecordError{Index: index, Err: &domain.ValidationError{ID: id, Field: col, Reason: "is missing"}}
		}
	}

	difficulty, err := strconv.Atoi(get(ColDifficulty))
	if err != nil {
		return Record{}, &RecordError{Index: index, Err: &domain.ValidationError{ID: id, Field: ColDifficulty, Reason: fmt.Sprintf("%q is not a number", get(ColDifficulty))}}
	}

	e := domain.Entry{
		ID:         id,
		Category:   get(ColCategory),
		Prompt:     get(ColPrompt),
		Answer:     get(ColAnswer),
		Tags:       SplitTags(fields[ColTags]),
		Difficulty: difficulty,
		Source:     get(ColSource),
	}.Normalize()

	if e.CreatedAt, err = parseTime(id, ColCreatedAt, get(ColCreatedAt)); err != nil {
		return Record{}, &RecordError{Index: index, Err: err}
	}
	if err := domain.Validate(e); err != nil {
		return Record{}, &RecordError{Index: index, Err: err}
	}

	rec := Record{Index: index, Entry: e}
	if hasReview(fields) {
		rs, err := reviewFromFields(id, fields)
		if err != nil {
			return Record{}, &RecordError{Index: index, Err: err}
		}
		rec.Review = &rs
	}
	return rec, nil
}

// Fields flattens a stored record into named export fields.
func Fields(rec domain.Record) map[string]string {
	e, rs := rec.Entry, rec.Review
	return map[string]string{
		ColID:           e.ID,
		ColCategory:     e.Category,
		ColPrompt:       e.Prompt,
		ColAnswer:       e.Answer,
		ColTags:         strings.Join(e.Tags, ";"),
		ColDifficulty:   strconv.Itoa(e.Difficulty),
		ColSource:       e.Source,
		ColCreatedAt:    formatTime(e.CreatedAt),
		ColLastReviewed: formatTime(rs.LastReviewed),
		ColNextDue:      formatTime(rs.NextDue),
		ColInterval:     strconv.FormatFloat(rs.Interval, 'f', -1, 64),
		ColStreak:       strconv.Itoa(rs.Streak),
		ColEase:         strconv.FormatFloat(rs.Ease, 'f', -1, 64),
		ColReviews:      strconv.Itoa(rs.Reviews),
	}
}

// SplitTags splits on ';' or ',' and drops empty items.
func SplitTags(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	var tags []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func hasReview(fields map[string]string) bool {
	for _, col := range ReviewColumns {
		if col == ColCreatedAt {
			continue
		}
		if strings.TrimSpace(fields[col]) != "" {
			return true
		}
	}
	return false
}

func reviewFromFields(id string, fields map[string]string) (domain.ReviewState, error) {
	get := func(k string) string { return strings.TrimSpace(fields[k]) }
	var (
		rs  domain.ReviewState
		err error
	)
	if get(ColNextDue) == "" {
		return rs, &domain.ValidationError{ID: id, Field: ColNextDue, Reason: "is missing"}
	}
	if get(ColEase) == "" {
		return rs, &domain.ValidationError{ID: id, Field: ColEase, Reason: "is missing"}
	}
	if rs.LastReviewed, err = parseTime(id, ColLastReviewed, get(ColLastReviewed)); err != nil {
		return rs, err
	}
	if rs.NextDue, err = parseTime(id, ColNextDue, get(ColNextDue)); err != nil {
		return rs, err
	}
	if rs.Interval, err = parseFloat(id, ColInterval, get(ColInterval)); err != nil {
		return rs, err
	}
	if rs.Ease, err = parseFloat(id, ColEase, get(ColEase)); err != nil {
		return rs, err
	}
	if rs.Streak, err = parseInt(id, ColStreak, get(ColStreak)); err != nil {
		return rs, err
	}
	if rs.Reviews, err = parseInt(id, ColReviews, get(ColReviews)); err != nil {
		return rs, err
	}
	return rs, nil
}

func parseTime(id, field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &domain.ValidationError{ID: id, Field: field, Reason: fmt.Sprintf("%q is not an RFC 3339 time", s)}
	}
	return t.UTC(), nil
}

func parseFloat(id, field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.ValidationError{ID: id, Field: field, Reason: fmt.Sprintf("%q is not a number", s)}
	}
	return f, nil
}

func parseInt(id, field, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &domain.ValidationError{ID: id, Field: field, Reason: fmt.Sprintf("%q is not a whole number", s)}
	}
	return n, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
