package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jgivc/treemirror/internal/entity"
)

const zipExt = ".zip"

// Ledger is the durable store of completed-download records, keyed by
// source URL. All methods are safe for concurrent use by fetch workers;
// a single mutex serializes access to the shared connection the way the
// workers expect: an upsert is atomic and a reader never observes a
// half-written row.
type Ledger struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
}

// New opens (or creates) the ledger database file and brings its schema
// up to date. Older files missing the full_path column are migrated in
// place.
func New(path string, log *slog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open ledger database: %w", err)
	}

	l := &Ledger{
		db:  db,
		log: log.With(slog.String("item", "Ledger")),
	}

	if err := l.setup(); err != nil {
		db.Close()

		return nil, fmt.Errorf("cannot set up ledger database: %w", err)
	}

	return l, nil
}

func (l *Ledger) setup() error {
	if _, err := l.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("cannot enable WAL: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS downloads (
		url TEXT PRIMARY KEY,
		filename TEXT,
		full_path TEXT,
		download_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		file_size INTEGER,
		status TEXT DEFAULT 'completed'
	);
	`
	if _, err := l.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("cannot create downloads table: %w", err)
	}

	// Databases created before the full_path column existed get it added
	// here. The column being present already is not an error.
	if _, err := l.db.Exec("ALTER TABLE downloads ADD COLUMN full_path TEXT"); err != nil {
		if !strings.Contains(err.Error(), "duplicate column name") {
			return fmt.Errorf("cannot migrate downloads table: %w", err)
		}
	}

	return nil
}

// Exists reports whether url has already been obtained. Archive records
// are trusted without a disk check: the archive is deleted after
// extraction, so its absence does not mean the work is undone. For any
// other record the file must still be present under downloadDir.
func (l *Ledger) Exists(url, downloadDir string) bool {
	l.mu.Lock()
	var filename string
	err := l.db.QueryRow("SELECT filename FROM downloads WHERE url = ?", url).Scan(&filename)
	l.mu.Unlock()

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			l.log.Error("Cannot query ledger", slog.String("url", url), slog.Any("error", err))
		}

		return false
	}

	if strings.HasSuffix(strings.ToLower(filename), zipExt) {
		return true
	}

	_, err = os.Stat(filepath.Join(downloadDir, filepath.FromSlash(filename)))

	return err == nil
}

// Record upserts the completed-download row for url, replacing any prior
// entry and refreshing the date. The size is taken from the file under
// downloadDir at call time, NULL if it is already gone.
func (l *Ledger) Record(url, filename, downloadDir string) error {
	localPath := filepath.Join(downloadDir, filepath.FromSlash(filename))

	fullPath, err := filepath.Abs(localPath)
	if err != nil {
		fullPath = localPath
	}

	var size sql.NullInt64
	if fi, err := os.Stat(localPath); err == nil {
		size = sql.NullInt64{Int64: fi.Size(), Valid: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	upsertSQL := `
	INSERT OR REPLACE INTO downloads (url, filename, full_path, download_date, file_size, status)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP, ?, ?);
	`
	if _, err := l.db.Exec(upsertSQL, url, filename, fullPath, size, entity.StatusCompleted); err != nil {
		return fmt.Errorf("cannot record download: %w", err)
	}

	return nil
}

// Get returns the stored record for url, or sql.ErrNoRows if absent.
func (l *Ledger) Get(url string) (*entity.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRow(
		"SELECT url, filename, full_path, download_date, file_size, status FROM downloads WHERE url = ?", url)

	var (
		rec  entity.Record
		size sql.NullInt64
	)
	if err := row.Scan(&rec.URL, &rec.Filename, &rec.FullPath, &rec.DownloadDate, &size, &rec.Status); err != nil {
		return nil, fmt.Errorf("cannot get record: %w", err)
	}

	if size.Valid {
		rec.FileSize = &size.Int64
	}

	return &rec, nil
}

// Close releases the database handle. Safe to call more than once.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}

	err := l.db.Close()
	l.db = nil

	return err
}
