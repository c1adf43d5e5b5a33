package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/interchange"
	"github.com/conorfennell/prepdeck/internal/repository"
	"github.com/conorfennell/prepdeck/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvInput = `id,category,prompt,answer,tags,difficulty,source
beh-1,behavioral,Tell me about a failure.,Owned it and fixed the process.,star;failure,2,coach
beh-2,behavioral,Why this company?,Mission and product.,,1,
bad-1,behavioral,,No prompt here,,3,
`

const mdInput = `# Go notes

ID: go-1
Category: domain-technical
Difficulty: 3
Tags: go, concurrency
Q: What does a nil channel do in a select?
A: The case is never chosen.
It blocks forever on its own.
---
ID: go-2
Category: domain-technical
Difficulty: 2
Q: What is a goroutine leak?
A: A goroutine blocked forever.
`

const yamlInput = `- id: co-1
  category: company-specific
  prompt: Who are our main competitors?
  answer: Bajaj and TVS.
  difficulty: 1
`

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newRepo() *repository.Repository {
	return repository.New(nil, repository.WithClock(func() time.Time {
		return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	}))
}

func TestImport_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "behavioral.csv")
	write(t, path, csvInput)

	repo := newRepo()
	im := New(repo)

	sum, err := im.Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, 0, sum.Unchanged)
	require.Len(t, sum.Rejected, 1)
	assert.ErrorIs(t, sum.Rejected[0], domain.ErrValidation)
	assert.Contains(t, sum.Rejected[0].Error(), "behavioral.csv")
	assert.Contains(t, sum.Rejected[0].Error(), "record 3")
	assert.Contains(t, sum.Rejected[0].Error(), "prompt")
	assert.Equal(t, 2, repo.Len())

	got, err := repo.Get(ctx, "beh-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"star", "failure"}, got.Entry.Tags)
	assert.Equal(t, "coach", got.Entry.Source)
	assert.True(t, got.Review.IsDue(got.Entry.CreatedAt), "fresh entries are due at once")
}

func TestImport_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "behavioral.csv")
	write(t, path, csvInput)

	repo := newRepo()
	im := New(repo)
	_, err := im.Import(ctx, path)
	require.NoError(t, err)

	sum, err := im.Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Imported())
	assert.Equal(t, 2, sum.Unchanged)
	assert.Len(t, sum.Rejected, 1)
	assert.Equal(t, 2, repo.Len())
}

func TestImport_ChangedContentIsDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	im := New(repo)

	_, err := im.ImportReader(ctx, bytes.NewBufferString(csvInput), interchange.CSV, "first")
	require.NoError(t, err)

	changed := "id,category,prompt,answer,difficulty\n" +
		"beh-1,behavioral,Tell me about a failure.,A different answer.,2\n" +
		"beh-2,Behavioral,  Why this company?  ,Mission and product.,1\n"
	sum, err := im.ImportReader(ctx, bytes.NewBufferString(changed), interchange.CSV, "second")
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Unchanged, "case and whitespace do not change the fingerprint")
	require.Len(t, sum.Rejected, 1)
	assert.ErrorIs(t, sum.Rejected[0], domain.ErrDuplicateID)
	var rerr *interchange.RecordError
	require.ErrorAs(t, sum.Rejected[0], &rerr)
	assert.Equal(t, 1, rerr.Index)

	got, err := repo.Get(ctx, "beh-1")
	require.NoError(t, err)
	assert.Equal(t, "Owned it and fixed the process.", got.Entry.Answer)
}

func TestImport_Directory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write(t, filepath.Join(root, "behavioral.csv"), csvInput)
	write(t, filepath.Join(root, "tech", "go.md"), mdInput)
	write(t, filepath.Join(root, "company", "hero.yaml"), yamlInput)
	write(t, filepath.Join(root, "README.txt"), "not content")
	write(t, filepath.Join(root, ".git", "ignored.csv"), csvInput)

	repo := newRepo()
	sum, err := New(repo).Import(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Added)
	assert.Len(t, sum.Rejected, 1)

	got, err := repo.Get(ctx, "go-1")
	require.NoError(t, err)
	assert.Equal(t, "The case is never chosen.\nIt blocks forever on its own.", got.Entry.Answer)
	assert.Equal(t, []string{"go", "concurrency"}, got.Entry.Tags)
}

func TestImport_ExportRoundTripRestoresReviews(t *testing.T) {
	ctx := context.Background()
	src := newRepo()
	_, err := New(src).ImportReader(ctx, bytes.NewBufferString(csvInput), interchange.CSV, "seed")
	require.NoError(t, err)

	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	_, err = src.Review(ctx, "beh-1", schedule.Good, now)
	require.NoError(t, err)
	_, err = src.Review(ctx, "beh-1", schedule.Good, now.AddDate(0, 0, 1))
	require.NoError(t, err)

	for _, f := range []interchange.Format{interchange.CSV, interchange.YAML} {
		var buf bytes.Buffer
		require.NoError(t, interchange.Encode(&buf, f, src.List(ctx, domain.Filter{})))

		dst := newRepo()
		sum, err := New(dst).ImportReader(ctx, &buf, f, "backup")
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Restored, f)
		assert.Empty(t, sum.Rejected, f)
		assert.Equal(t, src.List(ctx, domain.Filter{}), dst.List(ctx, domain.Filter{}), f)
	}
}

func TestImport_DirectorySkipsUnreadableFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write(t, filepath.Join(root, "a_broken.yaml"), "- id: [unclosed\n")
	write(t, filepath.Join(root, "b_notes.md"), mdInput)

	repo := newRepo()
	sum, err := New(repo).Import(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Added)
	require.Len(t, sum.Rejected, 1)
	assert.Contains(t, sum.Rejected[0].Error(), "a_broken.yaml")
	assert.Equal(t, 2, repo.Len())
}

func TestImport_DirectoryStopsOnStorageFailure(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.csv"), csvInput)
	write(t, filepath.Join(root, "b.md"), mdInput)

	sum, err := New(failingStore{newRepo()}).Import(context.Background(), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Contains(t, err.Error(), "a.csv")
	assert.Zero(t, sum.Imported())
}

type fakeGit struct {
	calls []string
	files map[string]string
	err   error
}

func (g *fakeGit) Sync(_ context.Context, url, localPath string) error {
	g.calls = append(g.calls, url+" -> "+localPath)
	if g.err != nil {
		return g.err
	}
	for name, content := range g.files {
		p := filepath.Join(localPath, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestImport_Git(t *testing.T) {
	ctx := context.Background()
	cache := t.TempDir()
	git := &fakeGit{files: map[string]string{"notes/go.md": mdInput}}

	repo := newRepo()
	im := New(repo, WithGit(git, cache))
	sum, err := im.Import(ctx, "https://github.com/acme/prep.git")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Added)
	assert.Equal(t, []string{"https://github.com/acme/prep.git -> " + filepath.Join(cache, "github.com", "acme", "prep")}, git.calls)

	git.err = errors.New("network down")
	_, err = im.Import(ctx, "git@github.com:acme/prep.git")
	assert.ErrorContains(t, err, "network down")
}

func TestImport_GitDisabled(t *testing.T) {
	_, err := New(newRepo()).Import(context.Background(), "https://github.com/acme/prep.git")
	assert.ErrorIs(t, err, ErrNoGit)
}

func TestImport_UnknownExtensionAndMissingPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	write(t, path, "x")

	_, err := New(newRepo()).Import(context.Background(), path)
	assert.ErrorIs(t, err, interchange.ErrUnknownFormat)

	_, err = New(newRepo()).Import(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// failingStore fails every write with a storage error.
type failingStore struct {
	*repository.Repository
}

func (s failingStore) Add(_ context.Context, e domain.Entry) (domain.Entry, error) {
	return domain.Entry{}, &domain.StorageError{Op: "add", ID: e.ID, Err: errors.New("disk full")}
}

func TestImport_StorageFailureStops(t *testing.T) {
	store := failingStore{newRepo()}
	sum, err := New(store).ImportReader(context.Background(), bytes.NewBufferString(csvInput), interchange.CSV, "seed")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 0, sum.Added)
	assert.Contains(t, err.Error(), "record 1")
}
