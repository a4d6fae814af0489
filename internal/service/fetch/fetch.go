package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/entity"
	"github.com/jgivc/treemirror/internal/util"
)

const (
	serviceName = "fetch"

	chunkSize  = 1 << 20 // streaming copy buffer
	maxRetries = 3

	progressEvery = 50
)

// Ledger is the durability store consulted and updated per URL.
type Ledger interface {
	Exists(url, downloadDir string) bool
	Record(url, filename, downloadDir string) error
}

// PostProcessor receives each successful result as soon as its own fetch
// completes, with no ordering relative to other files.
type PostProcessor interface {
	Process(res entity.FetchResult)
}

// Service downloads leaf URLs with a bounded worker pool. Each URL is
// processed by exactly one worker; the ledger is the only shared mutable
// state between them.
type Service struct {
	fs     afero.Fs
	client *http.Client
	cfg    *config.Config
	ledger Ledger
	post   PostProcessor
	log    *slog.Logger

	// Backoff unit for retry waits. Tests shrink it.
	backoffUnit time.Duration
}

func NewService(client *http.Client, cfg *config.Config, ledger Ledger, post PostProcessor, log *slog.Logger) *Service {
	return NewServiceWithFS(afero.NewOsFs(), client, cfg, ledger, post, log)
}

func NewServiceWithFS(fs afero.Fs, client *http.Client, cfg *config.Config, ledger Ledger, post PostProcessor, log *slog.Logger) *Service {
	return &Service{
		fs:          fs,
		client:      client,
		cfg:         cfg,
		ledger:      ledger,
		post:        post,
		log:         log.With(slog.String("service", serviceName)),
		backoffUnit: time.Second,
	}
}

// FetchAll processes every URL with cfg.MaxThreads workers and returns
// one result per dispatched URL. Cancelling ctx stops dispatching new
// work; in-flight transfers abort and take the delete-partial path.
func (s *Service) FetchAll(ctx context.Context, urls []string) []entity.FetchResult {
	in := make(chan string)
	out := make(chan entity.FetchResult)

	var wg sync.WaitGroup
	wg.Add(s.cfg.MaxThreads)
	for n := 0; n < s.cfg.MaxThreads; n++ {
		go s.worker(ctx, n, in, out, &wg)
	}

	go func() {
		defer close(in)

		for _, u := range urls {
			select {
			case in <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]entity.FetchResult, 0, len(urls))
	for res := range out {
		results = append(results, res)

		if len(results)%progressEvery == 0 || len(results) == len(urls) {
			s.log.Info("Progress", slog.Int("completed", len(results)), slog.Int("total", len(urls)))
		}
	}

	return results
}

func (s *Service) worker(ctx context.Context, n int, in <-chan string, out chan<- entity.FetchResult, wg *sync.WaitGroup) {
	defer wg.Done()

	log := s.log.With(slog.Int("worker_id", n))
	log.Debug("Started")

	for fileURL := range in {
		res := s.fetchOne(ctx, fileURL)

		if res.OK() && s.post != nil {
			s.post.Process(res)
		}

		out <- res
	}

	log.Debug("Done")
}

func (s *Service) fetchOne(ctx context.Context, fileURL string) entity.FetchResult {
	relPath := util.RelPath(fileURL, s.cfg.BaseURL)

	if s.ledger.Exists(fileURL, s.cfg.DownloadDir) {
		s.log.Info("Skip already downloaded", slog.String("path", relPath))

		return entity.FetchResult{URL: fileURL, RelPath: relPath, Skipped: true}
	}

	localPath := filepath.Join(s.cfg.DownloadDir, filepath.FromSlash(relPath))
	if dir := filepath.Dir(localPath); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			s.log.Error("Cannot create directory", slog.String("dir", dir), slog.Any("error", err))

			return entity.FetchResult{URL: fileURL, RelPath: relPath, Err: fmt.Errorf("cannot create directory: %w", err)}
		}
	}

	var lastErr error

retry:
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := s.transfer(ctx, fileURL, localPath)
		if err == nil {
			// The ledger is written only after the body landed on disk in
			// full, so a crash mid-transfer never records incomplete work.
			if rerr := s.ledger.Record(fileURL, relPath, s.cfg.DownloadDir); rerr != nil {
				s.log.Error("Cannot record download", slog.String("url", fileURL), slog.Any("error", rerr))
			}

			s.log.Info("Downloaded", slog.String("path", relPath))

			return entity.FetchResult{URL: fileURL, RelPath: relPath}
		}

		lastErr = err

		if attempt == maxRetries {
			break
		}

		wait := time.Duration(1<<(attempt-1)) * s.backoffUnit
		s.log.Warn("Retry",
			slog.String("path", relPath),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.Duration("wait", wait),
			slog.Any("error", err))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			lastErr = ctx.Err()

			break retry
		}
	}

	s.cleanupPartial(localPath)

	s.log.Error("Download failed", slog.String("path", relPath), slog.Any("error", lastErr))

	return entity.FetchResult{URL: fileURL, RelPath: relPath, Err: lastErr}
}

// transfer streams one attempt to localPath, truncating whatever a prior
// attempt left there.
func (s *Service) transfer(ctx context.Context, fileURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("cannot create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot get file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", common.ErrUnexpectedStatus, resp.Status)
	}

	f, err := s.fs.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create file: %w", err)
	}

	buf := make([]byte, chunkSize)
	_, copyErr := io.CopyBuffer(f, resp.Body, buf)
	closeErr := f.Close()

	if copyErr != nil {
		return fmt.Errorf("cannot write file: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("cannot close file: %w", closeErr)
	}

	return nil
}

// cleanupPartial removes whatever an exhausted download left behind. A
// secondary failure here is logged on its own and never masks the
// original transfer error.
func (s *Service) cleanupPartial(localPath string) {
	exists, err := afero.Exists(s.fs, localPath)
	if err != nil || !exists {
		return
	}

	if err := s.fs.Remove(localPath); err != nil {
		s.log.Error("Cannot remove partial file", slog.String("path", localPath), slog.Any("error", err))
	}
}
