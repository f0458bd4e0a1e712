package blindspot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

// OwnerReach is the per-owner coverage of one cluster: the summed reach of
// the owner's agencies that covered the story, and the fraction of the
// owner's agencies that did.
type OwnerReach struct {
	Owner        string  `json:"owner"`
	TotalReach   float64 `json:"total_reach"`
	AgenciesPerc float64 `json:"agencies_perc"`
}

// LabelShares holds the fraction of a cluster's total reach contributed by
// each political-lean band.
type LabelShares struct {
	Left        float64 `json:"left"`
	CentreLeft  float64 `json:"centre left"`
	Centre      float64 `json:"centre"`
	CentreRight float64 `json:"centre right"`
	Right       float64 `json:"right"`
	Unmeasured  float64 `json:"unmeasured"`
}

// TimelineEntry is a cluster annotated with coverage-bias signals.
type TimelineEntry struct {
	Cluster
	MissingFeeds         []string     `json:"missing_feeds"`
	OwnerReach           []OwnerReach `json:"owner_reach"`
	LabelShares          LabelShares  `json:"label_shares"`
	ClusterReach         float64      `json:"cluster_reach"`
	BlindspotLeft        bool         `json:"blindspot_left"`
	BlindspotRight       bool         `json:"blindspot_right"`
	SingleOwnerHighReach bool         `json:"single_owner_high_reach"`
}

var AnnotateTimelineCmd = &cobra.Command{
	Use:   "annotate-timeline",
	Short: "Annotate the cluster snapshot with coverage-bias signals",
	Run: func(cmd *cobra.Command, args []string) {
		if err := annotateTimeline(); err != nil {
			log.Printf("Failed to annotate timeline: %v", err)
			return
		}
		log.Println("Timeline annotation complete.")
	},
}

func annotateTimeline() error {
	agencies, err := LoadAgencies(Config.AgenciesCSVPath)
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

	clusters, err := loadClusterSnapshot(db)
	if err != nil {
		return err
	}

	allFeeds, err := loadUniqueFeeds(db)
	if err != nil {
		return err
	}

	entries := annotateClusters(clusters, agencies, allFeeds)
	log.Printf("Annotated %d clusters (%d agencies, %d known feeds)",
		len(entries), len(agencies), len(allFeeds))

	return saveTimeline(db, entries)
}

// annotateClusters derives the coverage-bias annotations for each cluster:
// missing feeds, owner reach, lean-label reach shares and the blindspot
// flags. Feeds absent from the agency table carry no reach or owner and
// only contribute to missing-feed bookkeeping.
func annotateClusters(clusters []Cluster, agencies map[string]NewsAgency, allFeeds []string) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(clusters))

	for _, cluster := range clusters {
		entry := TimelineEntry{Cluster: cluster}

		clusterFeeds := make(map[string]bool, len(cluster.Feeds))
		for _, feed := range cluster.Feeds {
			clusterFeeds[feed] = true
		}
		for _, feed := range allFeeds {
			if !clusterFeeds[feed] {
				entry.MissingFeeds = append(entry.MissingFeeds, feed)
			}
		}

		// Owner-level aggregation over the cluster's known feeds.
		ownerTotal := make(map[string]float64)
		ownerCount := make(map[string]int)
		var ownerOrder []string
		labelReach := make(map[string]float64)
		clusterReach := 0.0

		for _, feed := range cluster.Feeds {
			agency, known := agencies[feed]
			if !known {
				continue
			}
			if _, seen := ownerTotal[agency.Owner]; !seen {
				ownerOrder = append(ownerOrder, agency.Owner)
			}
			ownerTotal[agency.Owner] += agency.Reach
			ownerCount[agency.Owner]++
			labelReach[agency.LeftRightLabel] += agency.Reach
			clusterReach += agency.Reach
		}

		for _, owner := range ownerOrder {
			perc := 0.0
			for _, feed := range cluster.Feeds {
				if agency, known := agencies[feed]; known && agency.Owner == owner {
					perc = roundTo(float64(ownerCount[owner])/float64(agency.OwnerAgencies), 2)
					break
				}
			}
			entry.OwnerReach = append(entry.OwnerReach, OwnerReach{
				Owner:        owner,
				TotalReach:   ownerTotal[owner],
				AgenciesPerc: perc,
			})
		}

		entry.ClusterReach = clusterReach
		if clusterReach > 0 {
			entry.LabelShares = LabelShares{
				Left:        roundTo(labelReach["left"]/clusterReach, 2),
				CentreLeft:  roundTo(labelReach["centre left"]/clusterReach, 2),
				Centre:      roundTo(labelReach["centre"]/clusterReach, 2),
				CentreRight: roundTo(labelReach["centre right"]/clusterReach, 2),
				Right:       roundTo(labelReach["right"]/clusterReach, 2),
				Unmeasured:  roundTo(labelReach["unmeasured"]/clusterReach, 2),
			}
		}

		s := entry.LabelShares
		entry.BlindspotLeft = s.Left+s.CentreLeft < 0.2 && s.CentreRight+s.Right > 0.8
		entry.BlindspotRight = s.Right+s.CentreRight < 0.2 && s.Left+s.CentreLeft > 0.3 && cluster.NumArticles > 5
		entry.SingleOwnerHighReach = len(entry.OwnerReach) == 1 && cluster.NumArticles > 7

		entries = append(entries, entry)
	}

	// Newest stories first; clusters without any dated article go last.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].MaxPublishedDate, entries[j].MaxPublishedDate
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	return entries
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

// loadUniqueFeeds lists every feed that has ever supplied an article.
func loadUniqueFeeds(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT DISTINCT base_url FROM articles ORDER BY base_url")
	if err != nil {
		return nil, fmt.Errorf("failed to query unique feeds: %w", err)
	}
	defer rows.Close()

	var feeds []string
	for rows.Next() {
		var feed string
		if err := rows.Scan(&feed); err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func saveTimeline(db *sql.DB, entries []TimelineEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM timeline"); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear timeline: %w", err)
	}

	for _, entry := range entries {
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal timeline entry %d: %w", entry.ClusterID, err)
		}
		if _, err := tx.Exec("INSERT INTO timeline (cluster_id, stable_key, entry_json) VALUES (?, ?, ?)",
			entry.ClusterID, entry.StableKey, string(entryJSON)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert timeline entry %d: %w", entry.ClusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit timeline: %w", err)
	}
	return nil
}

// loadTimeline reads the annotated timeline back for rendering steps.
func loadTimeline(db *sql.DB) ([]TimelineEntry, error) {
	rows, err := db.Query("SELECT entry_json FROM timeline ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var entryJSON string
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		var entry TimelineEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse timeline entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
