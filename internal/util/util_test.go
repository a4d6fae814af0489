package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRelPath(t *testing.T) {
	testCases := []struct {
		name     string
		fileURL  string
		baseURL  string
		expected string
	}{
		{
			name:     "top level file",
			fileURL:  "https://example.com/roms/Game.zip",
			baseURL:  "https://example.com/roms/",
			expected: "Game.zip",
		},
		{
			name:     "nested file keeps subdirectory",
			fileURL:  "https://example.com/roms/sub/Game.zip",
			baseURL:  "https://example.com/roms/",
			expected: "sub/Game.zip",
		},
		{
			name:     "percent encoding is decoded",
			fileURL:  "https://example.com/roms/Game%20%28Europe%29.zip",
			baseURL:  "https://example.com/roms/",
			expected: "Game (Europe).zip",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, RelPath(tc.fileURL, tc.baseURL))
		})
	}
}

func TestLastSegment(t *testing.T) {
	require.Equal(t, "Game.zip", LastSegment("https://example.com/roms/Game.zip"))
	require.Equal(t, "plain", LastSegment("plain"))
}

func TestRegionTag(t *testing.T) {
	tag, ok := RegionTag("Game (Europe) (En,Fr,De).bin")
	require.True(t, ok)
	require.Equal(t, "Europe", tag)

	_, ok = RegionTag("no-group.bin")
	require.False(t, ok)
}
