package blindspot

import (
	"database/sql"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// openDB opens the pipeline database and ensures the schema exists.
// Articles are append-only; clusters and timeline are per-run snapshots
// replaced atomically by their respective steps.
func openDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", Config.DBPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS articles (
		link TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		publish_date TEXT,
		embedding_json TEXT,
		ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_articles_base_url ON articles(base_url);
	CREATE INDEX IF NOT EXISTS idx_articles_publish_date ON articles(publish_date);

	CREATE TABLE IF NOT EXISTS clusters (
		cluster_id INTEGER NOT NULL,
		stable_key TEXT NOT NULL,
		title TEXT NOT NULL,
		articles_json TEXT NOT NULL,
		num_articles INTEGER NOT NULL,
		feeds_json TEXT NOT NULL,
		num_feeds INTEGER NOT NULL,
		min_published_date TEXT,
		max_published_date TEXT,
		time_span_hours REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timeline (
		cluster_id INTEGER NOT NULL,
		stable_key TEXT NOT NULL,
		entry_json TEXT NOT NULL
	);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
		return nil, err
	}

	return db, nil
}
