package blindspot

import (
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var ShowClustersCmd = &cobra.Command{
	Use:   "show-clusters",
	Short: "Print the current cluster snapshot as a table",
	Run: func(cmd *cobra.Command, args []string) {
		if err := showClusters(); err != nil {
			log.Printf("Failed to show clusters: %v", err)
		}
	},
}

func showClusters() error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	clusters, err := loadClusterSnapshot(db)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Title", "Articles", "Feeds", "Last Published", "Span (h)"})
	for _, c := range clusters {
		lastPublished := ""
		if c.MaxPublishedDate != nil {
			lastPublished = c.MaxPublishedDate.Format("02-01-2006 15:04")
		}
		title := c.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		t.AppendRow(table.Row{c.ClusterID, title, c.NumArticles, c.NumFeeds, lastPublished, c.TimeSpanHours})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}
