package ledger

import (
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/treemirror/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()

	dir := t.TempDir()

	l, err := New(filepath.Join(dir, "downloads.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return l, dir
}

func TestExistsUnknownURL(t *testing.T) {
	l, dir := newTestLedger(t)

	require.False(t, l.Exists("https://example.com/roms/Game.bin", dir))
}

func TestRecordAndExists(t *testing.T) {
	l, dir := newTestLedger(t)

	path := filepath.Join(dir, "Game.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	url := "https://example.com/roms/Game.bin"
	require.NoError(t, l.Record(url, "Game.bin", dir))
	require.True(t, l.Exists(url, dir))

	rec, err := l.Get(url)
	require.NoError(t, err)
	require.Equal(t, "Game.bin", rec.Filename)
	require.Equal(t, entity.StatusCompleted, rec.Status)
	require.NotNil(t, rec.FileSize)
	require.Equal(t, int64(len("payload")), *rec.FileSize)
	require.False(t, rec.DownloadDate.IsZero())
}

func TestExistsRequiresFileOnDisk(t *testing.T) {
	l, dir := newTestLedger(t)

	path := filepath.Join(dir, "Game.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	url := "https://example.com/roms/Game.bin"
	require.NoError(t, l.Record(url, "Game.bin", dir))

	// A non-archive record no longer backed by a file must be re-fetched.
	require.NoError(t, os.Remove(path))
	require.False(t, l.Exists(url, dir))
}

func TestExistsTrustsArchiveRecords(t *testing.T) {
	l, dir := newTestLedger(t)

	// Archives are deleted after extraction, the record alone counts.
	url := "https://example.com/roms/Game.zip"
	require.NoError(t, l.Record(url, "Game.zip", dir))
	require.True(t, l.Exists(url, dir))
}

func TestRecordUpsert(t *testing.T) {
	l, dir := newTestLedger(t)

	path := filepath.Join(dir, "Game.bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	url := "https://example.com/roms/Game.bin"
	require.NoError(t, l.Record(url, "Game.bin", dir))

	require.NoError(t, os.WriteFile(path, []byte("longer payload"), 0o644))
	require.NoError(t, l.Record(url, "Game.bin", dir))

	rec, err := l.Get(url)
	require.NoError(t, err)
	require.NotNil(t, rec.FileSize)
	require.Equal(t, int64(len("longer payload")), *rec.FileSize)
}

func TestRecordMissingFileNullSize(t *testing.T) {
	l, dir := newTestLedger(t)

	url := "https://example.com/roms/Gone.bin"
	require.NoError(t, l.Record(url, "Gone.bin", dir))

	rec, err := l.Get(url)
	require.NoError(t, err)
	require.Nil(t, rec.FileSize)
}

func TestMigrationAddsFullPathColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "downloads.db")

	// Simulate a database created before the full_path column existed.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
	CREATE TABLE downloads (
		url TEXT PRIMARY KEY,
		filename TEXT,
		download_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		file_size INTEGER,
		status TEXT DEFAULT 'completed'
	);
	`)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO downloads (url, filename) VALUES (?, ?)",
		"https://example.com/roms/Old.zip", "Old.zip")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	l, err := New(path, testLogger())
	require.NoError(t, err)
	defer l.Close()

	// The old record survives the migration and archive trust still applies.
	require.True(t, l.Exists("https://example.com/roms/Old.zip", dir))

	// Reopening an already-migrated database is a no-op.
	require.NoError(t, l.Close())
	l2, err := New(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}

func TestCloseIdempotent(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}
