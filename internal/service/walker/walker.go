package walker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jgivc/treemirror/internal/adapter/htmladapter"
	"github.com/jgivc/treemirror/internal/common"
)

const serviceName = "walker"

// Service discovers every leaf file reachable under a root URL by
// traversing nested directory listing pages.
type Service struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	log       *slog.Logger
}

func NewService(client *http.Client, timeout time.Duration, userAgent string, log *slog.Logger) *Service {
	return &Service{
		client:    client,
		timeout:   timeout,
		userAgent: userAgent,
		log:       log.With(slog.String("service", serviceName)),
	}
}

// Walk performs an iterative breadth-first traversal from rootURL and
// returns the set of leaf URLs found. An explicit queue and visited set
// bound memory regardless of tree depth, and a directory is expanded at
// most once even when pages link back into an ancestor. A listing that
// fails to load or parse skips that subtree only.
func (s *Service) Walk(ctx context.Context, rootURL string) (map[string]struct{}, error) {
	if !strings.HasSuffix(rootURL, "/") {
		rootURL += "/"
	}

	leaves := make(map[string]struct{})
	visited := map[string]struct{}{rootURL: {}}
	queue := []string{rootURL}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return leaves, err
		}

		pageURL := queue[0]
		queue = queue[1:]

		s.log.Info("Scan directory", slog.String("url", pageURL))

		body, err := s.getListing(ctx, pageURL)
		if err != nil {
			s.log.Error("Cannot list directory", slog.String("url", pageURL), slog.Any("error", err))

			continue
		}

		links, err := htmladapter.ParseListing(pageURL, body)
		if err != nil {
			s.log.Error("Cannot parse directory listing", slog.String("url", pageURL), slog.Any("error", err))

			continue
		}

		for _, link := range links {
			// Never leave the tree, even through absolute links.
			if !strings.HasPrefix(link.URL, rootURL) {
				continue
			}

			if link.IsDir {
				if _, seen := visited[link.URL]; !seen {
					visited[link.URL] = struct{}{}
					queue = append(queue, link.URL)
				}

				continue
			}

			leaves[link.URL] = struct{}{}
		}
	}

	return leaves, nil
}

func (s *Service) getListing(ctx context.Context, pageURL string) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot get listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", common.ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read listing: %w", err)
	}

	return body, nil
}
