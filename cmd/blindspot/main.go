package main

import (
	"log"
	"os"

	"github.com/blindspot-news/blindspot"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if present; environment variables win either way.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	blindspot.LoadConfig()

	rootCmd := &cobra.Command{
		Use:   "blindspot",
		Short: "Cross-outlet news clustering and coverage-bias pipeline",
	}

	rootCmd.AddCommand(blindspot.FetchFeedsCmd)
	rootCmd.AddCommand(blindspot.EmbedArticlesCmd)
	rootCmd.AddCommand(blindspot.ClusterArticlesCmd)
	rootCmd.AddCommand(blindspot.AnnotateTimelineCmd)
	rootCmd.AddCommand(blindspot.GenerateTimelineCmd)
	rootCmd.AddCommand(blindspot.GenerateReportCmd)
	rootCmd.AddCommand(blindspot.ShowClustersCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: fetch-feeds -> embed-articles -> cluster-articles -> annotate-timeline -> generate-timeline -> generate-report",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Running full pipeline...")
		blindspot.FetchFeedsCmd.Run(cmd, args)
		blindspot.EmbedArticlesCmd.Run(cmd, args)
		blindspot.ClusterArticlesCmd.Run(cmd, args)
		blindspot.AnnotateTimelineCmd.Run(cmd, args)
		blindspot.GenerateTimelineCmd.Run(cmd, args)
		blindspot.GenerateReportCmd.Run(cmd, args)
		log.Println("Pipeline complete.")
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove generated site and report files",
	Run: func(cmd *cobra.Command, args []string) {
		for _, path := range []string{"website/index.html", "report.md", "report.html"} {
			if err := os.Remove(path); err != nil {
				if !os.IsNotExist(err) {
					log.Printf("Failed to remove %s: %v", path, err)
				}
			}
		}
		log.Println("Cleaned website and report files.")
	},
}
