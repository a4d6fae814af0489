package unpack

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/entity"
)

const (
	serviceName = "unpack"

	zipExt = ".zip"
)

// Service expands single-container zip archives after fetch: entries are
// extracted into the archive's own directory and the archive is deleted.
// Any failure is logged and leaves the archive in place; the run is
// never aborted from here.
type Service struct {
	fs          afero.Fs
	downloadDir string
	log         *slog.Logger
}

func NewService(downloadDir string, log *slog.Logger) *Service {
	return NewServiceWithFS(afero.NewOsFs(), downloadDir, log)
}

func NewServiceWithFS(fs afero.Fs, downloadDir string, log *slog.Logger) *Service {
	return &Service{
		fs:          fs,
		downloadDir: downloadDir,
		log:         log.With(slog.String("service", serviceName)),
	}
}

// Process handles one fetch result. Non-archives and failures pass
// through untouched. A skipped archive whose file is already gone was
// extracted on an earlier run.
func (s *Service) Process(res entity.FetchResult) {
	if !res.OK() || !strings.HasSuffix(strings.ToLower(res.RelPath), zipExt) {
		return
	}

	archivePath := filepath.Join(s.downloadDir, filepath.FromSlash(res.RelPath))

	if exists, err := afero.Exists(s.fs, archivePath); err != nil || !exists {
		return
	}

	if err := s.Extract(archivePath); err != nil {
		if errors.Is(err, common.ErrNotZipFileError) {
			s.log.Warn("Not a valid zip file", slog.String("path", archivePath))
		} else {
			s.log.Error("Cannot extract archive", slog.String("path", archivePath), slog.Any("error", err))
		}

		return
	}

	if err := s.fs.Remove(archivePath); err != nil {
		s.log.Error("Cannot remove extracted archive", slog.String("path", archivePath), slog.Any("error", err))

		return
	}

	s.log.Info("Extracted and removed archive", slog.String("path", archivePath))
}

// Extract unpacks every entry of the archive into its containing
// directory. Entries escaping that directory are rejected.
func (s *Service) Extract(archivePath string) error {
	f, err := s.fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("cannot open archive: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat archive: %w", err)
	}

	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrNotZipFileError, archivePath)
	}

	destDir := filepath.Dir(archivePath)

	for _, entry := range zr.File {
		if err := s.extractEntry(entry, destDir); err != nil {
			return fmt.Errorf("cannot extract %s: %w", entry.Name, err)
		}
	}

	return nil
}

func (s *Service) extractEntry(entry *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(entry.Name))

	// Reject entries that would land outside the archive's directory.
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal entry path: %s", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return s.fs.MkdirAll(target, 0o755)
	}

	if dir := filepath.Dir(target); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := s.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()

	if copyErr != nil {
		return copyErr
	}

	return closeErr
}
