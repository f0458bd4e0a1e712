package blindspot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
)

var EmbedArticlesCmd = &cobra.Command{
	Use:   "embed-articles",
	Short: "Generate embeddings for articles that do not have one yet",
	Run: func(cmd *cobra.Command, args []string) {
		if err := embedAllArticles(); err != nil {
			log.Printf("Failed to embed articles: %v", err)
			return
		}
		log.Println("Article embedding complete.")
	},
}

// embedAllArticles embeds every article still missing a vector. Already
// embedded articles are skipped, so the step is idempotent and a crashed
// run resumes where it left off.
func embedAllArticles() error {
	if Config.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
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

	rows, err := db.Query("SELECT link, title, summary FROM articles WHERE embedding_json IS NULL")
	if err != nil {
		return fmt.Errorf("failed to query articles: %w", err)
	}

	type pending struct {
		link, title, summary string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.link, &p.title, &p.summary); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan article row: %w", err)
		}
		todo = append(todo, p)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("failed to close rows: %w", err)
	}

	log.Printf("Embedding %d articles", len(todo))

	for _, p := range todo {
		embedding, err := generateEmbedding(p.title + ". " + p.summary)
		if err != nil {
			return fmt.Errorf("failed to generate embedding for %s: %w", p.link, err)
		}

		if err := saveEmbedding(db, p.link, normalizeVector(embedding)); err != nil {
			return fmt.Errorf("failed to save embedding for %s: %w", p.link, err)
		}

		log.Printf("Generated embedding for: %s", p.link)

		// Small delay to avoid rate limiting
		time.Sleep(100 * time.Millisecond)
	}

	return nil
}

// generateEmbedding calls OpenAI to embed a single text.
func generateEmbedding(text string) ([]float64, error) {
	client := openai.NewClient(option.WithAPIKey(Config.OpenAIAPIKey))

	embedding, err := client.Embeddings.New(context.TODO(), openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model:          openai.EmbeddingModelTextEmbedding3Small,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
	}

	if len(embedding.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}

	return embedding.Data[0].Embedding, nil
}

// normalizeVector scales a vector to unit L2 norm. Zero vectors are
// returned unchanged.
func normalizeVector(v []float64) []float64 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func saveEmbedding(db *sql.DB, link string, embedding []float64) error {
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	_, err = db.Exec("UPDATE articles SET embedding_json = ? WHERE link = ?", string(embeddingJSON), link)
	return err
}
