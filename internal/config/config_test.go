package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/stretchr/testify/require"
)

func parseForTest(t *testing.T, args []string) (*Config, error) {
	t.Helper()

	return parseWithFlagSet(flag.NewFlagSet("test", flag.ContinueOnError), args)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parseForTest(t, []string{"-u", "https://example.com/roms", "-d", "out"})
	require.NoError(t, err)

	require.Equal(t, "https://example.com/roms/", cfg.BaseURL, "base URL must be normalized to a trailing separator")
	require.Equal(t, "out", cfg.DownloadDir)
	require.Equal(t, defaultMaxThreads, cfg.MaxThreads)
	require.Equal(t, defaultTimeout, cfg.Timeout)
	require.Equal(t, defaultDBFile, cfg.DBFile)
	require.False(t, cfg.CountOnly)
	require.Nil(t, cfg.Regions)
}

func TestParseMissingRequired(t *testing.T) {
	_, err := parseForTest(t, nil)
	require.ErrorIs(t, err, common.ErrMissingBaseURL)

	_, err = parseForTest(t, []string{"-u", "https://example.com/"})
	require.ErrorIs(t, err, common.ErrMissingDownloadDir)
}

func TestParseEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://file.example.com/\nmax_threads: 2\n"), 0o644))

	t.Setenv("BASE_URL", "https://env.example.com/")
	t.Setenv("DOWNLOAD_DIR", "envdir")

	cfg, err := parseForTest(t, []string{"-config", path})
	require.NoError(t, err)

	require.Equal(t, "https://env.example.com/", cfg.BaseURL)
	require.Equal(t, "envdir", cfg.DownloadDir)
	require.Equal(t, 2, cfg.MaxThreads, "values absent from env must come from the file")
}

func TestParseFlagsOverrideEnv(t *testing.T) {
	t.Setenv("BASE_URL", "https://env.example.com/")
	t.Setenv("DOWNLOAD_DIR", "envdir")
	t.Setenv("MAX_THREADS", "4")

	cfg, err := parseForTest(t, []string{"-u", "https://cli.example.com/", "-t", "16"})
	require.NoError(t, err)

	require.Equal(t, "https://cli.example.com/", cfg.BaseURL)
	require.Equal(t, "envdir", cfg.DownloadDir)
	require.Equal(t, 16, cfg.MaxThreads)
}

func TestParseRegions(t *testing.T) {
	t.Setenv("BASE_URL", "https://example.com/")
	t.Setenv("DOWNLOAD_DIR", "out")

	cfg, err := parseForTest(t, []string{"-r", "EU, usa,jp"})
	require.NoError(t, err)
	require.Equal(t, []string{"Europe", "usa", "Japan"}, cfg.Regions)
}

func TestParseRegionEnv(t *testing.T) {
	t.Setenv("BASE_URL", "https://example.com/")
	t.Setenv("DOWNLOAD_DIR", "out")
	t.Setenv("REGION", "DE,Korea")

	cfg, err := parseForTest(t, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"Germany", "Korea"}, cfg.Regions)
}

func TestResolveRegions(t *testing.T) {
	require.Nil(t, ResolveRegions(nil))
	require.Equal(t, []string{"Europe", "Japan", "Custom"}, ResolveRegions([]string{"eu", "JPN", "Custom"}))
}
