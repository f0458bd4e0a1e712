package blindspot

import (
	"testing"
	"time"
)

// testAgencies builds an agency lookup with owner aggregates precomputed,
// as LoadAgencies would produce.
func testAgencies() map[string]NewsAgency {
	agencies := map[string]NewsAgency{
		"left.example":   {Feed: "left.example", Owner: "Left Press", Reach: 3, LeftRightLabel: "left"},
		"cleft.example":  {Feed: "cleft.example", Owner: "Left Press", Reach: 2, LeftRightLabel: "centre left"},
		"centre.example": {Feed: "centre.example", Owner: "Centre Corp", Reach: 4, LeftRightLabel: "centre"},
		"cright.example": {Feed: "cright.example", Owner: "Right Group", Reach: 5, LeftRightLabel: "centre right"},
		"right.example":  {Feed: "right.example", Owner: "Right Group", Reach: 4, LeftRightLabel: "right"},
	}
	ownerReach := make(map[string]float64)
	ownerAgencies := make(map[string]int)
	for _, a := range agencies {
		ownerReach[a.Owner] += a.Reach
		ownerAgencies[a.Owner]++
	}
	for feed, a := range agencies {
		a.OwnerReach = ownerReach[a.Owner]
		a.OwnerAgencies = ownerAgencies[a.Owner]
		agencies[feed] = a
	}
	return agencies
}

func annotatedCluster(feeds []string, numArticles int, maxDate *time.Time) Cluster {
	return Cluster{
		Title:            "story",
		Feeds:            feeds,
		NumFeeds:         len(feeds),
		NumArticles:      numArticles,
		MaxPublishedDate: maxDate,
	}
}

func TestAnnotateClustersBlindspotLeft(t *testing.T) {
	t.Parallel()

	// Only right-leaning outlets covered the story.
	cluster := annotatedCluster([]string{"cright.example", "right.example"}, 3, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.LabelShares.CentreRight+entry.LabelShares.Right < 0.99 {
		t.Fatalf("expected all reach on the right, got %+v", entry.LabelShares)
	}
	if !entry.BlindspotLeft {
		t.Fatal("expected blindspot_left to be set")
	}
	if entry.BlindspotRight {
		t.Fatal("blindspot_right should not be set")
	}
}

func TestAnnotateClustersBlindspotRight(t *testing.T) {
	t.Parallel()

	// Left and centre coverage only, with enough articles to matter.
	cluster := annotatedCluster([]string{"left.example", "centre.example"}, 6, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)

	entry := entries[0]
	if !entry.BlindspotRight {
		t.Fatal("expected blindspot_right to be set")
	}
	if entry.BlindspotLeft {
		t.Fatal("blindspot_left should not be set")
	}
}

func TestAnnotateClustersBlindspotRightNeedsVolume(t *testing.T) {
	t.Parallel()

	// Same skew but too few articles.
	cluster := annotatedCluster([]string{"left.example", "centre.example"}, 5, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)
	if entries[0].BlindspotRight {
		t.Fatal("blindspot_right requires more than 5 articles")
	}
}

func TestAnnotateClustersBalanced(t *testing.T) {
	t.Parallel()

	cluster := annotatedCluster(
		[]string{"left.example", "cleft.example", "centre.example", "cright.example", "right.example"},
		4, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)

	entry := entries[0]
	if entry.BlindspotLeft || entry.BlindspotRight {
		t.Fatalf("balanced coverage should not be flagged: %+v", entry.LabelShares)
	}
	if entry.ClusterReach != 18 {
		t.Fatalf("expected cluster reach 18, got %f", entry.ClusterReach)
	}
}

func TestAnnotateClustersSingleOwnerHighReach(t *testing.T) {
	t.Parallel()

	cluster := annotatedCluster([]string{"cright.example", "right.example"}, 8, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)
	if !entries[0].SingleOwnerHighReach {
		t.Fatal("expected single_owner_high_reach for one owner and 8 articles")
	}

	small := annotatedCluster([]string{"cright.example", "right.example"}, 7, datePtr(testBase))
	entries = annotateClusters([]Cluster{small}, testAgencies(), nil)
	if entries[0].SingleOwnerHighReach {
		t.Fatal("single_owner_high_reach requires more than 7 articles")
	}
}

func TestAnnotateClustersOwnerReach(t *testing.T) {
	t.Parallel()

	// Right Group owns two agencies; only one covered the story.
	cluster := annotatedCluster([]string{"right.example", "centre.example"}, 3, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)

	entry := entries[0]
	if len(entry.OwnerReach) != 2 {
		t.Fatalf("expected 2 owners, got %d", len(entry.OwnerReach))
	}
	byOwner := make(map[string]OwnerReach)
	for _, o := range entry.OwnerReach {
		byOwner[o.Owner] = o
	}
	right := byOwner["Right Group"]
	if right.TotalReach != 4 {
		t.Fatalf("expected Right Group reach 4, got %f", right.TotalReach)
	}
	if right.AgenciesPerc != 0.5 {
		t.Fatalf("expected half of Right Group's agencies, got %f", right.AgenciesPerc)
	}
	if byOwner["Centre Corp"].AgenciesPerc != 1.0 {
		t.Fatalf("expected all of Centre Corp's agencies, got %f", byOwner["Centre Corp"].AgenciesPerc)
	}
}

func TestAnnotateClustersShareRounding(t *testing.T) {
	t.Parallel()

	// Reach 3 left vs 5 centre right + 4 right: shares round to 2 decimals.
	cluster := annotatedCluster([]string{"left.example", "cright.example", "right.example"}, 3, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)

	s := entries[0].LabelShares
	if s.Left != 0.25 {
		t.Fatalf("expected left share 0.25, got %f", s.Left)
	}
	if s.CentreRight != 0.42 {
		t.Fatalf("expected centre right share 0.42, got %f", s.CentreRight)
	}
	if s.Right != 0.33 {
		t.Fatalf("expected right share 0.33, got %f", s.Right)
	}
}

func TestAnnotateClustersMissingFeeds(t *testing.T) {
	t.Parallel()

	allFeeds := []string{"left.example", "centre.example", "right.example"}
	cluster := annotatedCluster([]string{"centre.example"}, 2, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), allFeeds)

	missing := entries[0].MissingFeeds
	if len(missing) != 2 || missing[0] != "left.example" || missing[1] != "right.example" {
		t.Fatalf("expected [left.example right.example], got %v", missing)
	}
}

func TestAnnotateClustersUnknownFeed(t *testing.T) {
	t.Parallel()

	// Feeds without an agency row contribute no reach and trip no flags.
	cluster := annotatedCluster([]string{"unknown.example", "other.example"}, 9, datePtr(testBase))
	entries := annotateClusters([]Cluster{cluster}, testAgencies(), nil)

	entry := entries[0]
	if entry.ClusterReach != 0 {
		t.Fatalf("expected zero reach, got %f", entry.ClusterReach)
	}
	if entry.BlindspotLeft || entry.BlindspotRight || entry.SingleOwnerHighReach {
		t.Fatal("unknown feeds should not trigger flags")
	}
}

func TestAnnotateClustersSortOrder(t *testing.T) {
	t.Parallel()

	older := annotatedCluster([]string{"centre.example"}, 2, datePtr(testBase.Add(-time.Hour)))
	older.Title = "older"
	newer := annotatedCluster([]string{"centre.example"}, 2, datePtr(testBase))
	newer.Title = "newer"
	undated := annotatedCluster([]string{"centre.example"}, 2, nil)
	undated.Title = "undated"

	entries := annotateClusters([]Cluster{older, undated, newer}, testAgencies(), nil)
	if entries[0].Title != "newer" || entries[1].Title != "older" || entries[2].Title != "undated" {
		t.Fatalf("wrong order: %q, %q, %q", entries[0].Title, entries[1].Title, entries[2].Title)
	}
}

func TestBiasSegments(t *testing.T) {
	t.Parallel()

	segments := biasSegments(LabelShares{Left: 0.5, Right: 0.45, Centre: 0.05})
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[0].Label != "Links 50%" {
		t.Fatalf("expected labeled left segment, got %q", segments[0].Label)
	}
	// 5% is too narrow to carry a label.
	if segments[1].Class != "bias-centre" || segments[1].Label != "" {
		t.Fatalf("expected unlabeled centre segment, got %+v", segments[1])
	}
	if segments[2].Label != "Rechts 45%" {
		t.Fatalf("expected labeled right segment, got %q", segments[2].Label)
	}

	if got := biasSegments(LabelShares{}); len(got) != 0 {
		t.Fatalf("expected no segments for zero shares, got %d", len(got))
	}
}
