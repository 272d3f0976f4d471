package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/lectio/internal/app"
	"github.com/mmcdole/lectio/internal/config"
	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/events"
	"github.com/mmcdole/lectio/internal/log"
	"github.com/mmcdole/lectio/internal/remote/sqlite"
	"github.com/mmcdole/lectio/internal/resolver"
)

const seed = `
INSERT INTO books (id, locale, name, testament, position, chapter_count) VALUES ('ruth', 'en', 'Ruth', 'old', 8, 4);
INSERT INTO verses (book_id, locale, chapter, verse, text) VALUES
	('ruth', 'en', 1, 1, 'Now it came to pass in the days when the judges ruled.'),
	('ruth', 'en', 1, 2, 'And the name of the man was Elimelech.');
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Connectivity.ProbeURL = ""
	cfg.Logging.File = filepath.Join(t.TempDir(), "lectio.log")
	return cfg
}

func seedDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.db")
	ds, err := sqlite.Open(path, "en", log.NullLogger())
	require.NoError(t, err)
	_, err = ds.DB().Exec(seed)
	require.NoError(t, err)
	require.NoError(t, ds.Close())
	return path
}

func TestBuildOffline(t *testing.T) {
	ctx := context.Background()
	a, err := app.Build(ctx, testConfig(t), true, log.NullLogger())
	require.NoError(t, err)
	defer a.Close()

	status := a.Status(ctx)
	assert.False(t, status.Connectivity.IsOnline)
	assert.True(t, status.StoreAvailable)
	assert.Positive(t, status.SchemaVersion)
	assert.False(t, status.Remote)
	assert.False(t, status.Generative)

	p := a.Scripture.Passage(ctx, resolver.PassageRequest{Book: "ruth", Chapter: 1, Span: domain.Span{Start: 1, End: 2}})
	assert.Empty(t, p.Verses)
	assert.Equal(t, domain.SourceNone, p.Source)

	assert.False(t, a.Progress.Record(ctx, domain.Progress{UserID: "u", TrackID: "t", StepID: "s", Completed: true}))
	assert.Equal(t, 1, a.Status(ctx).PendingWrites)
}

func TestBuildWithSQLiteRemote(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Remote.Type = config.RemoteTypeSQLite
	cfg.Remote.Dataset = seedDataset(t)

	a, err := app.Build(ctx, cfg, false, log.NullLogger())
	require.NoError(t, err)

	var changed int
	a.Events.Subscribe(func(events.ContentChanged) { changed++ })

	p := a.Scripture.Passage(ctx, resolver.PassageRequest{Book: "ruth", Chapter: 1, Span: domain.Span{Start: 1, End: 2}})
	require.Len(t, p.Verses, 2)
	assert.Equal(t, domain.SourceRemote, p.Source)
	assert.Equal(t, 1, changed)

	// The write-back survives a restart with the network tiers disabled.
	require.NoError(t, a.Close())
	b, err := app.Build(ctx, cfg, true, log.NullLogger())
	require.NoError(t, err)
	defer b.Close()

	replay := b.Scripture.Passage(ctx, resolver.PassageRequest{Book: "ruth", Chapter: 1, Span: domain.Span{Start: 1, End: 2}})
	require.Len(t, replay.Verses, 2)
	assert.Equal(t, domain.SourceCache, replay.Source)
}

func TestNewRejectsMissingConfigFile(t *testing.T) {
	_, err := app.New(context.Background(), app.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		Logger:     log.NullLogger(),
	})
	require.Error(t, err)
}

func TestCloseIsRepeatable(t *testing.T) {
	a, err := app.Build(context.Background(), testConfig(t), false, log.NullLogger())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
