// Package repository holds the content store of interview entries and their
// review states. A Repository keeps every record in memory in insertion order
// and writes each change through to a Backend before applying it.
package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/lock"
	"github.com/conorfennell/prepdeck/internal/schedule"
	"go.uber.org/zap"
)

// Backend persists records. storage.DB implements it.
type Backend interface {
	LoadAll(ctx context.Context) ([]domain.Record, error)
	Insert(ctx context.Context, rec domain.Record) error
	UpdateEntry(ctx context.Context, e domain.Entry) error
	SaveReviewState(ctx context.Context, id string, rs domain.ReviewState) error
	Delete(ctx context.Context, id string) error
}

// Locker guards writes against other processes sharing the same backend.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// Repository is the content store. It is not safe for concurrent use.
type Repository struct {
	backend Backend
	locker  Locker
	policy  schedule.Policy
	log     *zap.Logger
	now     func() time.Time

	records map[string]*domain.Record
	order   []string
}

// Option configures a Repository.
type Option func(*Repository)

// WithLocker sets the lock taken around every write.
func WithLocker(l Locker) Option {
	return func(r *Repository) { r.locker = l }
}

// WithPolicy sets the scheduling policy.
func WithPolicy(p schedule.Policy) Option {
	return func(r *Repository) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New returns an empty repository over backend. A nil backend keeps
// everything in memory only.
func New(backend Backend, opts ...Option) *Repository {
	r := &Repository{
		backend: backend,
		locker:  lock.Nop{},
		policy:  schedule.DefaultPolicy(),
		log:     zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC().Round(0) },
		records: make(map[string]*domain.Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns a repository loaded with everything the backend holds.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Repository, error) {
	r := New(backend, opts...)
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Load replaces the in-memory state with the backend's content.
func (r *Repository) Load(ctx context.Context) error {
	if r.backend == nil {
		return nil
	}
	records, err := r.backend.LoadAll(ctx)
	if err != nil {
		return &domain.StorageError{Op: "load", Err: err}
	}

	byID := make(map[string]*domain.Record, len(records))
	order := make([]string, 0, len(records))
	for i := range records {
		rec := records[i]
		byID[rec.Entry.ID] = &rec
		order = append(order, rec.Entry.ID)
	}
	r.records = byID
	r.order = order
	r.log.Debug("repository loaded", zap.Int("entries", len(order)))
	return nil
}

// Len returns the number of entries.
func (r *Repository) Len() int {
	return len(r.order)
}

// Add stores a new entry with a fresh review state. The entry is normalized
// and validated; CreatedAt defaults to now.
func (r *Repository) Add(ctx context.Context, e domain.Entry) (domain.Entry, error) {
	e = e.Normalize()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	if err := domain.Validate(e); err != nil {
		return domain.Entry{}, err
	}
	rec := domain.Record{Entry: e, Review: r.policy.Initial(e.CreatedAt)}
	if err := r.insert(ctx, rec, "add"); err != nil {
		return domain.Entry{}, err
	}
	return e.Clone(), nil
}

// Restore stores an entry with a review state taken from a backup.
func (r *Repository) Restore(ctx context.Context, rec domain.Record) error {
	rec = rec.Clone()
	rec.Entry = rec.Entry.Normalize()
	if rec.Entry.CreatedAt.IsZero() {
		rec.Entry.CreatedAt = r.now()
	}
	if err := domain.Validate(rec.Entry); err != nil {
		return err
	}
	if err := domain.ValidateReview(rec.Entry.ID, rec.Review, r.policy.MinEase, r.policy.MaxEase); err != nil {
		return err
	}
	return r.insert(ctx, rec, "restore")
}

func (r *Repository) insert(ctx context.Context, rec domain.Record, op string) error {
	id := rec.Entry.ID
	if _, ok := r.records[id]; ok {
		return &domain.DuplicateIDError{ID: id}
	}

	err := r.write(ctx, op, id, func(b Backend) error {
		return b.Insert(ctx, rec)
	})
	if err != nil {
		return err
	}

	r.records[id] = &rec
	r.order = append(r.order, id)
	r.log.Info("entry stored", zap.String("op", op), zap.String("id", id), zap.String("category", rec.Entry.Category))
	return nil
}

// Get returns the record for id.
func (r *Repository) Get(_ context.Context, id string) (domain.Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return domain.Record{}, &domain.NotFoundError{ID: id}
	}
	return rec.Clone(), nil
}

// List returns the records matching f in insertion order.
func (r *Repository) List(_ context.Context, f domain.Filter) []domain.Record {
	out := make([]domain.Record, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		if f.Match(rec.Entry) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Update changes the content fields of an entry. The id cannot be changed and
// the review state is untouched.
func (r *Repository) Update(ctx context.Context, id string, f domain.Fields) (domain.Entry, error) {
	rec, ok := r.records[id]
	if !ok {
		return domain.Entry{}, &domain.NotFoundError{ID: id}
	}
	if f.ID != nil && *f.ID != id {
		return domain.Entry{}, &domain.ValidationError{ID: id, Field: "id", Reason: "cannot be changed"}
	}

	updated := f.Apply(rec.Entry).Normalize()
	if err := domain.Validate(updated); err != nil {
		return domain.Entry{}, err
	}

	err := r.write(ctx, "update", id, func(b Backend) error {
		return b.UpdateEntry(ctx, updated)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	rec.Entry = updated
	r.log.Info("entry updated", zap.String("id", id))
	return updated.Clone(), nil
}

// Remove deletes an entry and its review state.
func (r *Repository) Remove(ctx context.Context, id string) error {
	if _, ok := r.records[id]; !ok {
		return &domain.NotFoundError{ID: id}
	}

	err := r.write(ctx, "remove", id, func(b Backend) error {
		return b.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	delete(r.records, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.log.Info("entry removed", zap.String("id", id))
	return nil
}

// Review applies grade g to the entry at time now and returns the new state.
// Unknown ids leave the repository unchanged.
func (r *Repository) Review(ctx context.Context, id string, g schedule.Grade, now time.Time) (domain.ReviewState, error) {
	rec, ok := r.records[id]
	if !ok {
		return domain.ReviewState{}, &domain.NotFoundError{ID: id}
	}
	if !g.Valid() {
		return domain.ReviewState{}, &domain.ValidationError{ID: id, Field: "grade", Reason: fmt.Sprintf("unknown grade %d", int(g))}
	}

	next := r.policy.Next(rec.Review, g, now)
	err := r.write(ctx, "review", id, func(b Backend) error {
		return b.SaveReviewState(ctx, id, next)
	})
	if err != nil {
		return domain.ReviewState{}, err
	}

	rec.Review = next
	r.log.Info("entry reviewed",
		zap.String("id", id),
		zap.Stringer("grade", g),
		zap.Float64("interval", next.Interval),
		zap.Float64("ease", next.Ease),
		zap.Time("next_due", next.NextDue),
	)
	return next, nil
}

// write runs fn against the backend while holding the lock. Any failure is
// reported as a *domain.StorageError; callers apply in-memory changes only
// after write succeeds.
func (r *Repository) write(ctx context.Context, op, id string, fn func(Backend) error) error {
	if r.backend == nil {
		return nil
	}
	if err := r.locker.Lock(ctx); err != nil {
		return &domain.StorageError{Op: op, ID: id, Err: err}
	}
	defer func() {
		if uerr := r.locker.Unlock(); uerr != nil {
			r.log.Warn("failed to release lock", zap.String("op", op), zap.Error(uerr))
		}
	}()

	if err := fn(r.backend); err != nil {
		r.log.Error("storage write failed", zap.String("op", op), zap.String("id", id), zap.Error(err))
		return &domain.StorageError{Op: op, ID: id, Err: err}
	}
	return nil
}
