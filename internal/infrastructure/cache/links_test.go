package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp3dr4/hop/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestLinkCache_StartsEmpty(t *testing.T) {
	c := NewLinkCache()

	assert.Nil(t, c.Get())
	assert.True(t, c.Stale(t0, time.Hour))

	_, ok := c.Get().Match("abc")
	assert.False(t, ok, "matching against an empty cache finds nothing")
}

func TestLinkCache_Stale(t *testing.T) {
	c := NewLinkCache()
	c.Replace(nil, t0)
	window := 10 * time.Second

	assert.False(t, c.Stale(t0, window))
	assert.False(t, c.Stale(t0.Add(window), window), "the window boundary is still fresh")
	assert.True(t, c.Stale(t0.Add(window+time.Millisecond), window))
}

func TestLinkCache_ReplaceSwapsWholeSnapshot(t *testing.T) {
	c := NewLinkCache()
	first := c.Replace([]domain.Link{
		{ResolvedKey: "a", TargetURL: "https://example.com/a", Enabled: true},
	}, t0)

	second := c.Replace([]domain.Link{
		{ResolvedKey: "b", TargetURL: "https://example.com/b", Enabled: true},
	}, t0.Add(time.Minute))

	assert.Same(t, second, c.Get())
	assert.Equal(t, t0.Add(time.Minute), c.Get().FetchedAt())

	_, ok := c.Get().Match("a")
	assert.False(t, ok)

	// A reader holding the old snapshot keeps a consistent view.
	link, ok := first.Match("a")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a", link.TargetURL)
}

func TestSnapshot_Match(t *testing.T) {
	links := []domain.Link{
		{RecordID: "r1", ResolvedKey: "dup", TargetURL: "https://example.com/disabled"},
		{RecordID: "r2", ResolvedKey: "dup", TargetURL: "https://example.com/first", Enabled: true},
		{RecordID: "r3", ResolvedKey: "dup", TargetURL: "https://example.com/second", Enabled: true},
		{RecordID: "r4", ResolvedKey: "off", TargetURL: "https://example.com/off"},
		{RecordID: "r5", ResolvedKey: "", TargetURL: "https://example.com/blank", Enabled: true},
		{RecordID: "r6", Key: "short", ResolvedKey: "resolved", TargetURL: "https://example.com/r", Enabled: true},
	}
	s := NewLinkCache().Replace(links, t0)

	tests := []struct {
		name     string
		key      string
		wantID   string
		wantSeen bool
	}{
		{"first enabled duplicate wins", "dup", "r2", true},
		{"disabled never matches", "off", "", false},
		{"empty key never matches", "", "", false},
		{"matches resolved key only", "resolved", "r6", true},
		{"raw key is not matched", "short", "", false},
		{"unknown key", "nope", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, ok := s.Match(tt.key)
			assert.Equal(t, tt.wantSeen, ok)
			assert.Equal(t, tt.wantID, link.RecordID)
		})
	}

	assert.Equal(t, 6, s.Len())
	assert.Equal(t, 4, s.Enabled())
}
