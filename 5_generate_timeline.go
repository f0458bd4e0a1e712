package blindspot

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

//go:embed templates/timeline.html
var timelineTemplate string

// biasSegment is one colored slice of a cluster's bias bar.
type biasSegment struct {
	Class     string
	WidthPerc int
	Label     string
}

// timelineCluster is the view model for one cluster card on the page.
type timelineCluster struct {
	Title        string
	NumArticles  int
	NumFeeds     int
	MaxDate      string
	BiasSegments []biasSegment
	Articles     []timelineArticle
}

type timelineArticle struct {
	Title string
	Link  string
	Feed  string
	Date  string
}

var GenerateTimelineCmd = &cobra.Command{
	Use:   "generate-timeline",
	Short: "Render the annotated timeline as a mobile-friendly HTML page",
	Run: func(cmd *cobra.Command, args []string) {
		if err := generateTimelineHTML(); err != nil {
			log.Printf("Failed to generate timeline: %v", err)
			return
		}
		log.Println("Timeline generated: website/index.html")
	},
}

func generateTimelineHTML() error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	entries, err := loadTimeline(db)
	if err != nil {
		return err
	}

	// Only well-covered stories make the public page.
	var published []TimelineEntry
	for _, entry := range entries {
		if entry.NumFeeds > Config.PublishMinFeeds {
			published = append(published, entry)
		}
	}
	sort.SliceStable(published, func(i, j int) bool {
		a, b := published[i].MaxPublishedDate, published[j].MaxPublishedDate
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	log.Printf("Generating timeline with %d news clusters", len(published))

	html, err := renderTimeline(published)
	if err != nil {
		return err
	}

	if err := os.MkdirAll("website", 0755); err != nil {
		return fmt.Errorf("failed to create website directory: %w", err)
	}
	outputPath := filepath.Join("website", "index.html")
	if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write timeline HTML: %w", err)
	}
	return nil
}

func renderTimeline(entries []TimelineEntry) (string, error) {
	clusters := make([]timelineCluster, 0, len(entries))
	for _, entry := range entries {
		cluster := timelineCluster{
			Title:        entry.Title,
			NumArticles:  entry.NumArticles,
			NumFeeds:     entry.NumFeeds,
			BiasSegments: biasSegments(entry.LabelShares),
		}
		if entry.MaxPublishedDate != nil {
			cluster.MaxDate = entry.MaxPublishedDate.Format("02-01-2006 15:04")
		}
		for _, article := range entry.Articles {
			a := timelineArticle{
				Title: article.Title,
				Link:  article.Link,
				Feed:  article.Feed,
			}
			if article.PublishDate != nil {
				a.Date = article.PublishDate.Format("02-01-2006 15:04")
			}
			cluster.Articles = append(cluster.Articles, a)
		}
		clusters = append(clusters, cluster)
	}

	tmpl, err := template.New("timeline").Parse(timelineTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse timeline template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Clusters []timelineCluster }{clusters}); err != nil {
		return "", fmt.Errorf("failed to execute timeline template: %w", err)
	}
	return buf.String(), nil
}

// biasSegments builds the bias bar: a segment for every band with any
// reach, labeled only when wide enough to fit the text.
func biasSegments(shares LabelShares) []biasSegment {
	bands := []struct {
		class string
		name  string
		share float64
	}{
		{"bias-left", "Links", shares.Left},
		{"bias-centre-left", "C-Links", shares.CentreLeft},
		{"bias-centre", "Centrum", shares.Centre},
		{"bias-centre-right", "C-Rechts", shares.CentreRight},
		{"bias-right", "Rechts", shares.Right},
	}

	var segments []biasSegment
	for _, band := range bands {
		perc := int(band.share * 100)
		if perc <= 0 {
			continue
		}
		label := ""
		if perc >= 8 {
			label = fmt.Sprintf("%s %d%%", band.name, perc)
		}
		segments = append(segments, biasSegment{Class: band.class, WidthPerc: perc, Label: label})
	}
	return segments
}
