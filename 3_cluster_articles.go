package blindspot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var ClusterArticlesCmd = &cobra.Command{
	Use:   "cluster-articles",
	Short: "Cluster embedded articles into cross-feed stories",
	Run: func(cmd *cobra.Command, args []string) {
		if err := clusterAllArticles(time.Now().UTC()); err != nil {
			log.Printf("Failed to cluster articles: %v", err)
			return
		}
		log.Println("Clustering complete.")
	},
}

// clusterAllArticles runs the clustering pipeline: load the feature table,
// cluster the recent batch in two stages, keep cross-feed clusters, merge
// with the historic snapshot and replace it. The snapshot write is a single
// transaction, so a failed run leaves the previous snapshot intact.
func clusterAllArticles(now time.Time) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	articles, err := loadFeatureTable(db)
	if err != nil {
		return err
	}

	cutoff := now.AddDate(0, 0, -Config.ClusterMergeLookbackDays)

	// Only dated articles inside the lookback window are re-clustered;
	// older stories live on in the historic snapshot.
	var batch []Article
	for _, article := range articles {
		if article.PublishDate != nil && !article.PublishDate.Before(cutoff) {
			batch = append(batch, article)
		}
	}
	log.Printf("Loaded %d embedded articles, %d within the %d-day lookback window",
		len(articles), len(batch), Config.ClusterMergeLookbackDays)

	historic, err := loadClusterSnapshot(db)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d historic clusters", len(historic))

	clusters, err := twoStageCluster(batch, Config.Stage1Threshold, Config.Stage2Threshold,
		Config.MaxClusterSize, Config.MaxTimeWindowHours)
	if err != nil {
		return err
	}

	crossFeed := crossFeedFilter(clusters, Config.MinFeeds)
	log.Printf("Cross-feed filter kept %d of %d clusters (min %d feeds)",
		len(crossFeed), len(clusters), Config.MinFeeds)

	merged := mergeWithHistoric(historic, crossFeed, cutoff)
	log.Printf("Merged snapshot has %d clusters", len(merged))

	return saveClusterSnapshot(db, merged)
}

// loadFeatureTable reads all embedded articles. A row with an embedding but
// a missing link, feed, title or an unreadable vector violates the feature
// contract and aborts the run.
func loadFeatureTable(db *sql.DB) ([]Article, error) {
	rows, err := db.Query(`
		SELECT link, base_url, title, summary, publish_date, embedding_json
		FROM articles WHERE embedding_json IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature table: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var link, baseURL, title, summary, embeddingJSON string
		var publishDate sql.NullString
		if err := rows.Scan(&link, &baseURL, &title, &summary, &publishDate, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		if link == "" || baseURL == "" || title == "" {
			return nil, fmt.Errorf("feature row %q is missing required fields", link)
		}

		var embedding []float64
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			return nil, fmt.Errorf("failed to parse embedding for %s: %w", link, err)
		}
		if len(embedding) == 0 {
			return nil, fmt.Errorf("feature row %s has an empty embedding", link)
		}

		article := Article{
			Link:      link,
			BaseURL:   baseURL,
			Title:     title,
			Summary:   summary,
			Embedding: embedding,
		}
		if publishDate.Valid {
			t, err := time.Parse(time.RFC3339, publishDate.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse publish date for %s: %w", link, err)
			}
			article.PublishDate = &t
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// loadClusterSnapshot reads the previous cluster snapshot. An empty table
// is a valid first run.
func loadClusterSnapshot(db *sql.DB) ([]Cluster, error) {
	rows, err := db.Query(`
		SELECT cluster_id, stable_key, title, articles_json, num_articles,
		       feeds_json, num_feeds, min_published_date, max_published_date, time_span_hours
		FROM clusters`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster snapshot: %w", err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		var articlesJSON, feedsJSON string
		var minDate, maxDate sql.NullString
		if err := rows.Scan(&c.ClusterID, &c.StableKey, &c.Title, &articlesJSON, &c.NumArticles,
			&feedsJSON, &c.NumFeeds, &minDate, &maxDate, &c.TimeSpanHours); err != nil {
			return nil, fmt.Errorf("failed to scan cluster row: %w", err)
		}
		if err := json.Unmarshal([]byte(articlesJSON), &c.Articles); err != nil {
			return nil, fmt.Errorf("failed to parse articles for cluster %d: %w", c.ClusterID, err)
		}
		if err := json.Unmarshal([]byte(feedsJSON), &c.Feeds); err != nil {
			return nil, fmt.Errorf("failed to parse feeds for cluster %d: %w", c.ClusterID, err)
		}
		if minDate.Valid {
			t, err := time.Parse(time.RFC3339, minDate.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse min date for cluster %d: %w", c.ClusterID, err)
			}
			c.MinPublishedDate = &t
		}
		if maxDate.Valid {
			t, err := time.Parse(time.RFC3339, maxDate.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse max date for cluster %d: %w", c.ClusterID, err)
			}
			c.MaxPublishedDate = &t
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// saveClusterSnapshot replaces the snapshot with the merged result inside
// one transaction.
func saveClusterSnapshot(db *sql.DB, clusters []Cluster) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM clusters"); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear cluster snapshot: %w", err)
	}

	for _, c := range clusters {
		articlesJSON, err := json.Marshal(c.Articles)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal articles for cluster %d: %w", c.ClusterID, err)
		}
		feedsJSON, err := json.Marshal(c.Feeds)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal feeds for cluster %d: %w", c.ClusterID, err)
		}

		var minDate, maxDate any
		if c.MinPublishedDate != nil {
			minDate = c.MinPublishedDate.Format(time.RFC3339)
		}
		if c.MaxPublishedDate != nil {
			maxDate = c.MaxPublishedDate.Format(time.RFC3339)
		}

		if _, err := tx.Exec(`
			INSERT INTO clusters (cluster_id, stable_key, title, articles_json, num_articles,
			                      feeds_json, num_feeds, min_published_date, max_published_date, time_span_hours)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ClusterID, c.StableKey, c.Title, string(articlesJSON), c.NumArticles,
			string(feedsJSON), c.NumFeeds, minDate, maxDate, c.TimeSpanHours); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert cluster %d: %w", c.ClusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cluster snapshot: %w", err)
	}
	return nil
}
