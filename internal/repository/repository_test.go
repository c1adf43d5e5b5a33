package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/lock"
	"github.com/conorfennell/prepdeck/internal/schedule"
	"github.com/conorfennell/prepdeck/internal/session"
	"github.com/conorfennell/prepdeck/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// fakeBackend records writes and can be told to fail the next one.
type fakeBackend struct {
	records []domain.Record
	writes  int
	failErr error
}

func (f *fakeBackend) LoadAll(context.Context) ([]domain.Record, error) {
	return f.records, nil
}

func (f *fakeBackend) write() error {
	f.writes++
	if f.failErr != nil {
		err := f.failErr
		f.failErr = nil
		return err
	}
	return nil
}

func (f *fakeBackend) Insert(context.Context, domain.Record) error     { return f.write() }
func (f *fakeBackend) UpdateEntry(context.Context, domain.Entry) error { return f.write() }
func (f *fakeBackend) SaveReviewState(context.Context, string, domain.ReviewState) error {
	return f.write()
}
func (f *fakeBackend) Delete(context.Context, string) error { return f.write() }

// countingLocker checks that every Lock is paired with an Unlock.
type countingLocker struct {
	locks, unlocks int
	lockErr        error
}

func (c *countingLocker) Lock(context.Context) error {
	if c.lockErr != nil {
		return c.lockErr
	}
	c.locks++
	return nil
}

func (c *countingLocker) Unlock() error {
	c.unlocks++
	return nil
}

func entry(id, category string) domain.Entry {
	return domain.Entry{
		ID:         id,
		Category:   category,
		Prompt:     "Prompt for " + id,
		Answer:     "Answer for " + id,
		Tags:       []string{"prep"},
		Difficulty: 2,
		Source:     "notes",
		CreatedAt:  t0,
	}
}

func newTestRepo(t *testing.T, opts ...Option) (*Repository, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{}
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return New(fb, opts...), fb
}

func TestAddGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	e := entry("beh-1", "behavioral")

	added, err := r.Add(ctx, e)
	require.NoError(t, err)

	got, err := r.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got.Entry)

	assert.Equal(t, t0, got.Review.NextDue)
	assert.Equal(t, 2.5, got.Review.Ease)
	assert.Zero(t, got.Review.Reviews)
}

func TestAdd_DefaultsCreatedAt(t *testing.T) {
	r, _ := newTestRepo(t)
	e := entry("a", "behavioral")
	e.CreatedAt = time.Time{}

	added, err := r.Add(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, t0, added.CreatedAt)
}

func TestAdd_Validation(t *testing.T) {
	ctx := context.Background()
	r, fb := newTestRepo(t)

	e := entry("a", "behavioral")
	e.Prompt = "   "
	_, err := r.Add(ctx, e)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "prompt", verr.Field)
	assert.Equal(t, "a", verr.ID)
	assert.Zero(t, r.Len())
	assert.Zero(t, fb.writes, "invalid entries never reach the backend")
}

func TestAdd_Duplicate(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	_, err := r.Add(ctx, entry("dup", "behavioral"))
	require.NoError(t, err)

	_, err = r.Add(ctx, entry("dup", "company-specific"))
	var derr *domain.DuplicateIDError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "dup", derr.ID)
	assert.Equal(t, 1, r.Len())
}

func TestGet_NotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGet_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	_, err := r.Add(ctx, entry("a", "behavioral"))
	require.NoError(t, err)

	got, _ := r.Get(ctx, "a")
	got.Entry.Tags[0] = "changed"

	again, _ := r.Get(ctx, "a")
	assert.Equal(t, []string{"prep"}, again.Entry.Tags)
}

func TestList_InsertionOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	const n = 25
	for i := 0; i < n; i++ {
		category := "behavioral"
		if i%3 == 0 {
			category = "domain-technical"
		}
		e := entry(fmt.Sprintf("e-%02d", n-i), category)
		if i%5 == 0 {
			e.Tags = append(e.Tags, "go")
		}
		_, err := r.Add(ctx, e)
		require.NoError(t, err)
	}

	all := r.List(ctx, domain.Filter{})
	require.Len(t, all, n)
	for i, rec := range all {
		assert.Equal(t, fmt.Sprintf("e-%02d", n-i), rec.Entry.ID)
	}

	tech := r.List(ctx, domain.Filter{Category: "domain-technical"})
	assert.Len(t, tech, 9)

	goTagged := r.List(ctx, domain.Filter{Tags: []string{"go"}})
	assert.Len(t, goTagged, 5)

	both := r.List(ctx, domain.Filter{Category: "domain-technical", Tags: []string{"go", "prep"}})
	assert.Len(t, both, 2)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	_, err := r.Add(ctx, entry("a", "behavioral"))
	require.NoError(t, err)
	_, err = r.Review(ctx, "a", schedule.Good, t0)
	require.NoError(t, err)
	before, _ := r.Get(ctx, "a")

	answer := "  A sharper answer. "
	diff := 4
	updated, err := r.Update(ctx, "a", domain.Fields{Answer: &answer, Difficulty: &diff})
	require.NoError(t, err)

	assert.Equal(t, "A sharper answer.", updated.Answer)
	assert.Equal(t, 4, updated.Difficulty)
	after, _ := r.Get(ctx, "a")
	assert.Equal(t, updated, after.Entry)
	assert.Equal(t, before.Review, after.Review, "review state is not touched by update")

	// Same update again gives the same state.
	_, err = r.Update(ctx, "a", domain.Fields{Answer: &answer, Difficulty: &diff})
	require.NoError(t, err)
	again, _ := r.Get(ctx, "a")
	assert.Equal(t, after, again)
}

func TestUpdate_Rejections(t *testing.T) {
	ctx := context.Background()
	r, fb := newTestRepo(t)
	_, err := r.Add(ctx, entry("a", "behavioral"))
	require.NoError(t, err)
	writes := fb.writes

	newID := "b"
	_, err = r.Update(ctx, "a", domain.Fields{ID: &newID})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)

	sameID := "a"
	_, err = r.Update(ctx, "a", domain.Fields{ID: &sameID})
	assert.NoError(t, err, "restating the same id is allowed")

	bad := 9
	_, err = r.Update(ctx, "a", domain.Fields{Difficulty: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Update(ctx, "zzz", domain.Fields{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, writes+1, fb.writes)
	got, _ := r.Get(ctx, "a")
	assert.Equal(t, 2, got.Entry.Difficulty)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Add(ctx, entry(id, "behavioral"))
		require.NoError(t, err)
	}

	require.NoError(t, r.Remove(ctx, "b"))
	assert.ErrorIs(t, r.Remove(ctx, "b"), domain.ErrNotFound)

	ids := []string{}
	for _, rec := range r.List(ctx, domain.Filter{}) {
		ids = append(ids, rec.Entry.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	_, err := r.Add(ctx, entry("b", "behavioral"))
	require.NoError(t, err, "removed ids can be reused")
}

func TestReview_GoodThreeTimes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	_, err := r.Add(ctx, entry("beh-1", "behavioral"))
	require.NoError(t, err)

	now := t0
	wantDays := []int{1, 3, 6}
	wantIntervals := []float64{1, 2.5, 6.25}
	for i := range wantDays {
		rs, err := r.Review(ctx, "beh-1", schedule.Good, now)
		require.NoError(t, err)
		assert.InDelta(t, wantIntervals[i], rs.Interval, 1e-9)
		assert.Equal(t, rs.LastReviewed.AddDate(0, 0, wantDays[i]), rs.NextDue)
		now = rs.NextDue
	}
	got, _ := r.Get(ctx, "beh-1")
	assert.Equal(t, 3, got.Review.Streak)
}

func TestReview_FailAfterTwoGoods(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	_, err := r.Add(ctx, entry("beh-1", "behavioral"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := r.Review(ctx, "beh-1", schedule.Good, t0.AddDate(0, 0, i*3))
		require.NoError(t, err)
	}
	rs, err := r.Review(ctx, "beh-1", schedule.Fail, t0.AddDate(0, 0, 7))
	require.NoError(t, err)

	assert.Equal(t, 1.0, rs.Interval)
	assert.Zero(t, rs.Streak)
}

func TestReview_UnknownIDLeavesRepositoryUnchanged(t *testing.T) {
	ctx := context.Background()
	r, fb := newTestRepo(t)
	_, err := r.Add(ctx, entry("a", "behavioral"))
	require.NoError(t, err)
	before := r.List(ctx, domain.Filter{})
	writes := fb.writes

	_, err = r.Review(ctx, "xyz", schedule.Good, t0)

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "xyz", nf.ID)
	assert.Equal(t, before, r.List(ctx, domain.Filter{}))
	assert.Equal(t, writes, fb.writes)
}

func TestReview_InvalidGrade(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	_, err := r.Add(ctx, entry("a", "behavioral"))
	require.NoError(t, err)

	_, err = r.Review(ctx, "a", schedule.Grade(7), t0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStorageFailureKeepsMemoryConsistent(t *testing.T) {
	ctx := context.Background()
	r, fb := newTestRepo(t)
	_, err := r.Add(ctx, entry("a", "behavioral"))
	require.NoError(t, err)
	before := r.List(ctx, domain.Filter{})

	cause := errors.New("disk full")
	assertStorageErr := func(err error, op string) {
		t.Helper()
		var serr *domain.StorageError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, op, serr.Op)
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.Equal(t, before, r.List(ctx, domain.Filter{}))
	}

	fb.failErr = cause
	_, err = r.Add(ctx, entry("b", "behavioral"))
	assertStorageErr(err, "add")

	fb.failErr = cause
	_, err = r.Review(ctx, "a", schedule.Easy, t0)
	assertStorageErr(err, "review")

	fb.failErr = cause
	p := "changed"
	_, err = r.Update(ctx, "a", domain.Fields{Prompt: &p})
	assertStorageErr(err, "update")

	fb.failErr = cause
	assertStorageErr(r.Remove(ctx, "a"), "remove")

	// The caller may retry once storage recovers.
	_, err = r.Add(ctx, entry("b", "behavioral"))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestWrites_AreLocked(t *testing.T) {
	ctx := context.Background()
	cl := &countingLocker{}
	r, _ := newTestRepo(t, WithLocker(cl))

	_, err := r.Add(ctx, entry("a", "behavioral"))
	require.NoError(t, err)
	_, err = r.Review(ctx, "a", schedule.Good, t0)
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, "a"))

	assert.Equal(t, 3, cl.locks)
	assert.Equal(t, cl.locks, cl.unlocks)

	cl.lockErr = lock.ErrTimeout
	_, err = r.Add(ctx, entry("b", "behavioral"))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, lock.ErrTimeout)
	assert.Zero(t, r.Len())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	rec := domain.Record{
		Entry: entry("a", "behavioral"),
		Review: domain.ReviewState{
			LastReviewed: t0,
			NextDue:      t0.AddDate(0, 0, 6),
			Interval:     6.25,
			Streak:       3,
			Ease:         2.5,
			Reviews:      3,
		},
	}

	require.NoError(t, r.Restore(ctx, rec))
	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	bad := rec
	bad.Entry.ID = "b"
	bad.Review.Ease = 9
	assert.ErrorIs(t, r.Restore(ctx, bad), domain.ErrValidation)
	assert.ErrorIs(t, r.Restore(ctx, rec), domain.ErrDuplicateID)
}

func TestOpen_WithSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prepdeck.db")
	db, err := storage.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	fl := lock.New(path+".lock", 0)
	r, err := Open(ctx, db, WithLocker(fl), WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	for _, id := range []string{"cv-1", "go-1", "beh-1"} {
		_, err := r.Add(ctx, entry(id, "domain-technical"))
		require.NoError(t, err)
	}
	_, err = r.Review(ctx, "go-1", schedule.Easy, t0)
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, "cv-1"))

	reopened, err := Open(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, r.List(ctx, domain.Filter{}), reopened.List(ctx, domain.Filter{}))
	assert.Equal(t, 2, reopened.Len())
}

func TestReview_RepeatedEasySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prepdeck.db")
	db, err := storage.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	r, err := Open(ctx, db, WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	_, err = r.Add(ctx, entry("beh-1", "behavioral"))
	require.NoError(t, err)

	var rs domain.ReviewState
	for i := 0; i < 50; i++ {
		rs, err = r.Review(ctx, "beh-1", schedule.Easy, t0)
		require.NoError(t, err)
	}
	assert.Equal(t, r.policy.MaxInterval, rs.Interval)

	reopened, err := Open(ctx, db)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "beh-1")
	require.NoError(t, err)
	assert.Equal(t, rs, got.Review)
	assert.Equal(t, 50, got.Review.Reviews)
}

func TestCategoryCaseIsFolded(t *testing.T) {
	ctx := context.Background()
	r := New(nil, WithClock(func() time.Time { return t0 }))

	_, err := r.Add(ctx, entry("a", "Behavioral"))
	require.NoError(t, err)
	_, err = r.Add(ctx, entry("b", " behavioral "))
	require.NoError(t, err)
	_, err = r.Add(ctx, entry("c", "domain-technical"))
	require.NoError(t, err)
	other := "BEHAVIORAL"
	_, err = r.Update(ctx, "c", domain.Fields{Category: &other})
	require.NoError(t, err)

	recs := r.List(ctx, domain.Filter{Category: "Behavioral"})
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, "behavioral", rec.Entry.Category)
	}

	stats := session.Stats(recs, t0)
	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].Entries)
}
