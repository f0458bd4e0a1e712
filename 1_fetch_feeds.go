package blindspot

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mmcdole/gofeed"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// FeedsConfig is the YAML feed list (configs/feeds.yaml).
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

var FetchFeedsCmd = &cobra.Command{
	Use:   "fetch-feeds",
	Short: "Fetch all configured RSS feeds into the article table",
	Run: func(cmd *cobra.Command, args []string) {
		if err := fetchAllFeeds(); err != nil {
			log.Printf("Failed to fetch feeds: %v", err)
			return
		}
		log.Println("Feed fetching complete.")
	},
}

func loadFeeds(path string) (*FeedsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds config: %w", err)
	}
	var config FeedsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse feeds config: %w", err)
	}
	if len(config.Feeds) == 0 {
		return nil, fmt.Errorf("feeds config %s lists no feeds", path)
	}
	return &config, nil
}

// fetchAllFeeds pulls every configured feed and appends new articles to the
// historic table. The table is append-only: links already present are left
// untouched, so re-running never loses or rewrites history.
func fetchAllFeeds() error {
	config, err := loadFeeds(Config.FeedsConfigPath)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	parser := gofeed.NewParser()
	totalNew := 0

	for _, feedURL := range config.Feeds {
		feed, err := parser.ParseURL(feedURL)
		if err != nil {
			log.Printf("Failed to fetch feed %s: %v", feedURL, err)
			continue
		}

		newArticles := 0
		for _, item := range feed.Items {
			article, err := parseFeedItem(item)
			if err != nil {
				log.Printf("Skipping item in %s: %v", feedURL, err)
				continue
			}
			inserted, err := insertArticle(db, article)
			if err != nil {
				return fmt.Errorf("failed to insert article %s: %w", article.Link, err)
			}
			if inserted {
				newArticles++
			}
		}

		log.Printf("Fetched %s: %d items, %d new", feedURL, len(feed.Items), newArticles)
		totalNew += newArticles
	}

	log.Printf("Added %d new articles", totalNew)
	return nil
}

// parseFeedItem converts a feed item into an Article. The feed identity
// (base_url) is the host of the article link, and the summary is the item
// description with HTML markup stripped.
func parseFeedItem(item *gofeed.Item) (Article, error) {
	if item.Link == "" {
		return Article{}, fmt.Errorf("item %q has no link", item.Title)
	}

	parsed, err := url.Parse(item.Link)
	if err != nil || parsed.Host == "" {
		return Article{}, fmt.Errorf("item link %q has no host", item.Link)
	}

	var publishDate *time.Time
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		publishDate = &t
	}

	return Article{
		Link:        item.Link,
		BaseURL:     parsed.Host,
		Title:       strings.TrimSpace(item.Title),
		Summary:     htmlToText(item.Description),
		PublishDate: publishDate,
	}, nil
}

// htmlToText strips markup from an RSS description, dropping script and
// style content and collapsing whitespace.
func htmlToText(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func insertArticle(db *sql.DB, article Article) (bool, error) {
	var publishDate any
	if article.PublishDate != nil {
		publishDate = article.PublishDate.Format(time.RFC3339)
	}

	result, err := db.Exec(`
		INSERT OR IGNORE INTO articles (link, base_url, title, summary, publish_date)
		VALUES (?, ?, ?, ?, ?)`,
		article.Link, article.BaseURL, article.Title, article.Summary, publishDate)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
