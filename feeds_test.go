package blindspot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

func TestLoadFeeds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feeds.yaml")
	yaml := `feeds:
  - https://feeds.nos.nl/nosnieuwsalgemeen
  - https://www.nu.nl/rss/Algemeen
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	config, err := loadFeeds(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.Feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(config.Feeds))
	}
	if config.Feeds[0] != "https://feeds.nos.nl/nosnieuwsalgemeen" {
		t.Fatalf("unexpected first feed: %s", config.Feeds[0])
	}
}

func TestLoadFeedsErrors(t *testing.T) {
	t.Parallel()

	if _, err := loadFeeds(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("feeds: []\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if _, err := loadFeeds(path); err == nil {
		t.Fatal("expected error for empty feed list")
	}
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "just text", "just text"},
		{"markup", "<p>Hello <b>world</b></p>", "Hello world"},
		{"script dropped", "<p>News</p><script>alert(1)</script>", "News"},
		{"whitespace collapsed", "  a \n\n  b\tc  ", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := htmlToText(tt.in); got != tt.want {
				t.Fatalf("htmlToText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFeedItem(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:           "  Breaking news  ",
		Link:            "https://www.nos.nl/artikel/123",
		Description:     "<p>Something <b>happened</b></p>",
		PublishedParsed: &published,
	}

	article, err := parseFeedItem(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if article.BaseURL != "www.nos.nl" {
		t.Fatalf("expected base_url www.nos.nl, got %q", article.BaseURL)
	}
	if article.Title != "Breaking news" {
		t.Fatalf("expected trimmed title, got %q", article.Title)
	}
	if article.Summary != "Something happened" {
		t.Fatalf("expected stripped summary, got %q", article.Summary)
	}
	if article.PublishDate == nil || !article.PublishDate.Equal(published) {
		t.Fatalf("wrong publish date: %v", article.PublishDate)
	}
}

func TestParseFeedItemNoDate(t *testing.T) {
	t.Parallel()

	item := &gofeed.Item{
		Title: "Undated",
		Link:  "https://www.nos.nl/artikel/456",
	}
	article, err := parseFeedItem(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if article.PublishDate != nil {
		t.Fatalf("expected nil publish date, got %v", article.PublishDate)
	}
}

func TestParseFeedItemNoLink(t *testing.T) {
	t.Parallel()

	if _, err := parseFeedItem(&gofeed.Item{Title: "No link"}); err == nil {
		t.Fatal("expected error for item without link")
	}
}

func TestNormalizeVector(t *testing.T) {
	t.Parallel()

	v := normalizeVector([]float64{3, 4})
	if v[0] != 0.6 || v[1] != 0.8 {
		t.Fatalf("expected [0.6 0.8], got %v", v)
	}

	zero := normalizeVector([]float64{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("expected zero vector unchanged, got %v", zero)
	}
}
