package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/jgivc/treemirror/internal/config"
	"github.com/jgivc/treemirror/internal/repository/ledger"
	"github.com/jgivc/treemirror/internal/service/fetch"
	"github.com/jgivc/treemirror/internal/service/filter"
	"github.com/jgivc/treemirror/internal/service/unpack"
	"github.com/jgivc/treemirror/internal/service/walker"
)

type App struct {
	cfg *config.Config
	log *slog.Logger
}

func New(cfg *config.Config) *App {
	lo := &slog.HandlerOptions{}
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	default:
		lo.Level = slog.LevelInfo
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, lo))

	return &App{
		cfg: cfg,
		log: log.With(slog.String("run_id", uuid.NewString())),
	}
}

// Run executes the whole pipeline: walk, filter, fetch with inline
// archive expansion, summary. Per-file failures are reported but do not
// fail the run.
func (a *App) Run(ctx context.Context) error {
	client := newHTTPClient(a.cfg)
	defer client.CloseIdleConnections()

	a.log.Info("Fetch file list", slog.String("base_url", a.cfg.BaseURL))

	w := walker.NewService(client, a.cfg.RequestTimeout(), a.cfg.UserAgent, a.log)

	leaves, err := w.Walk(ctx, a.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("walk interrupted: %w", err)
	}

	a.log.Info("Found files", slog.Int("count", len(leaves)))

	if len(a.cfg.Regions) > 0 {
		total := len(leaves)
		leaves = filter.Apply(leaves, a.cfg.Regions)
		a.log.Info("Region filter applied",
			slog.Any("regions", a.cfg.Regions),
			slog.Int("matched", len(leaves)),
			slog.Int("total", total))
	}

	// Count mode reports and exits before the ledger or the download
	// directory is ever touched.
	if a.cfg.CountOnly {
		fmt.Println(len(leaves))

		return nil
	}

	led, err := ledger.New(a.cfg.DBFile, a.log)
	if err != nil {
		return fmt.Errorf("cannot open ledger: %w", err)
	}
	defer led.Close()

	unpacker := unpack.NewService(a.cfg.DownloadDir, a.log)
	fetcher := fetch.NewService(client, a.cfg, led, unpacker, a.log)

	urls := make([]string, 0, len(leaves))
	for u := range leaves {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	a.log.Info("Start downloads", slog.Int("count", len(urls)), slog.Int("threads", a.cfg.MaxThreads))

	results := fetcher.FetchAll(ctx, urls)

	var ok, skipped, failed int
	for _, res := range results {
		switch {
		case !res.OK():
			failed++
		case res.Skipped:
			skipped++
		default:
			ok++
		}
	}

	a.log.Info("All downloads completed",
		slog.Int("downloaded", ok),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed))

	return ctx.Err()
}

// newHTTPClient builds the one shared client. The pool is sized to the
// worker count so concurrent transfers never stall on connection reuse.
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxThreads,
		MaxIdleConnsPerHost:   cfg.MaxThreads,
		MaxConnsPerHost:       cfg.MaxThreads,
		ResponseHeaderTimeout: cfg.RequestTimeout(),
	}

	return &http.Client{Transport: transport}
}
