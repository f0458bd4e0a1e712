package blindspot

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Article is one row of the feature table: an RSS item with its
// precomputed sentence embedding. Articles are append-only; the clustering
// engine never mutates them.
type Article struct {
	Link        string     `json:"link"`
	BaseURL     string     `json:"base_url"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	PublishDate *time.Time `json:"publish_date"`
	Embedding   []float64  `json:"embedding"`
}

// ClusterArticle is the article record carried inside a cluster row.
type ClusterArticle struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Feed        string     `json:"feed"`
	PublishDate *time.Time `json:"publish_date"`
}

// Cluster is a group of articles judged to report the same story.
// ClusterID is reassigned every run (largest cluster first) and is
// presentation-only; StableKey is the durable identity, derived from the
// sorted member links.
type Cluster struct {
	ClusterID        int              `json:"cluster_id"`
	StableKey        string           `json:"stable_key"`
	Title            string           `json:"title"`
	Articles         []ClusterArticle `json:"articles"`
	NumArticles      int              `json:"num_articles"`
	Feeds            []string         `json:"feeds"`
	NumFeeds         int              `json:"num_feeds"`
	MinPublishedDate *time.Time       `json:"min_published_date"`
	MaxPublishedDate *time.Time       `json:"max_published_date"`
	TimeSpanHours    float64          `json:"time_span_hours"`
}

// SimilarityMatrix computes the full pairwise cosine-similarity matrix for
// a batch of embeddings. Rows are L2-normalized before the product, so the
// result has a unit diagonal for non-zero vectors; zero vectors yield zero
// similarity. All embeddings must share the same non-zero dimension.
func SimilarityMatrix(embeddings [][]float64) (*mat.Dense, error) {
	n := len(embeddings)
	if n == 0 {
		return nil, fmt.Errorf("no embeddings given")
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return nil, fmt.Errorf("embedding dimension is zero")
	}

	data := make([]float64, 0, n*dim)
	for i, embedding := range embeddings {
		if len(embedding) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(embedding), dim)
		}
		norm := 0.0
		for _, v := range embedding {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		for _, v := range embedding {
			if norm > 0 {
				data = append(data, v/norm)
			} else {
				data = append(data, 0)
			}
		}
	}

	a := mat.NewDense(n, dim, data)
	var sim mat.Dense
	sim.Mul(a, a.T())
	return &sim, nil
}

// unionFind is a disjoint-set over article indices with path compression.
// Union picks an arbitrary root; no rank heuristic is needed for
// correctness.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(x, y int) {
	rootX, rootY := u.find(x), u.find(y)
	if rootX != rootY {
		u.parent[rootY] = rootX
	}
}

// withinTimeWindow reports whether two articles may be merged under the
// given window. A nil publish date is incomparable, not zero: an article
// without a date is never merged with anything while a window is active.
func withinTimeWindow(a, b *time.Time, maxTimeWindowHours int) bool {
	if a == nil || b == nil {
		return false
	}
	diff := a.Sub(*b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(maxTimeWindowHours)*time.Hour
}

// clusterArticles partitions a batch of articles into clusters using
// union-find over the cosine-similarity matrix. An edge (i, j) is added iff
// similarity >= threshold and, when maxTimeWindowHours > 0, both publish
// dates are set and no further apart than the window. Every article ends
// up in exactly one cluster. An empty batch yields an empty result; an
// article without an embedding is a precondition violation.
func clusterArticles(articles []Article, threshold float64, maxTimeWindowHours int) ([]Cluster, error) {
	n := len(articles)
	if n == 0 {
		return []Cluster{}, nil
	}

	embeddings := make([][]float64, n)
	for i, article := range articles {
		if len(article.Embedding) == 0 {
			return nil, fmt.Errorf("article %q has no embedding", article.Link)
		}
		embeddings[i] = article.Embedding
	}

	sim, err := SimilarityMatrix(embeddings)
	if err != nil {
		return nil, err
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sim.At(i, j) < threshold {
				continue
			}
			if maxTimeWindowHours > 0 {
				if withinTimeWindow(articles[i].PublishDate, articles[j].PublishDate, maxTimeWindowHours) {
					uf.union(i, j)
				}
			} else {
				uf.union(i, j)
			}
		}
	}

	// Group indices by root, preserving input order so the first article
	// of each group stays the representative.
	groups := make(map[int][]int)
	var rootOrder []int
	for i := 0; i < n; i++ {
		root := uf.find(i)
		if _, seen := groups[root]; !seen {
			rootOrder = append(rootOrder, root)
		}
		groups[root] = append(groups[root], i)
	}

	clusters := make([]Cluster, 0, len(rootOrder))
	for _, root := range rootOrder {
		clusters = append(clusters, buildCluster(groups[root], articles))
	}

	return sortAndNumberClusters(clusters), nil
}

// buildCluster assembles the cluster row for a set of article indices.
// The representative title comes from the first article in union-find
// traversal order.
func buildCluster(indices []int, articles []Article) Cluster {
	members := make([]ClusterArticle, 0, len(indices))
	var feeds []string
	seenFeeds := make(map[string]bool)
	var minDate, maxDate *time.Time
	links := make([]string, 0, len(indices))

	for _, idx := range indices {
		article := articles[idx]
		members = append(members, ClusterArticle{
			Title:       article.Title,
			Link:        article.Link,
			Feed:        article.BaseURL,
			PublishDate: article.PublishDate,
		})
		links = append(links, article.Link)
		if !seenFeeds[article.BaseURL] {
			seenFeeds[article.BaseURL] = true
			feeds = append(feeds, article.BaseURL)
		}
		if article.PublishDate != nil {
			if minDate == nil || article.PublishDate.Before(*minDate) {
				t := *article.PublishDate
				minDate = &t
			}
			if maxDate == nil || article.PublishDate.After(*maxDate) {
				t := *article.PublishDate
				maxDate = &t
			}
		}
	}

	spanHours := 0.0
	if minDate != nil && maxDate != nil {
		spanHours = math.Round(maxDate.Sub(*minDate).Hours()*10) / 10
	}

	return Cluster{
		StableKey:        stableClusterKey(links),
		Title:            members[0].Title,
		Articles:         members,
		NumArticles:      len(members),
		Feeds:            feeds,
		NumFeeds:         len(feeds),
		MinPublishedDate: minDate,
		MaxPublishedDate: maxDate,
		TimeSpanHours:    spanHours,
	}
}

// stableClusterKey derives a durable cluster identity from the member
// links: a UUIDv5 over the sorted links, invariant to article order and to
// the per-run cluster id reassignment.
func stableClusterKey(links []string) string {
	sorted := make([]string, len(links))
	copy(sorted, links)
	sort.Strings(sorted)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(sorted, "\n"))).String()
}

// sortAndNumberClusters orders clusters largest first (stable, so equal
// sizes keep their relative order) and reassigns sequential ids from 1.
func sortAndNumberClusters(clusters []Cluster) []Cluster {
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].NumArticles > clusters[j].NumArticles
	})
	for i := range clusters {
		clusters[i].ClusterID = i + 1
	}
	return clusters
}

// twoStageCluster performs broad topical clustering over the whole batch,
// then re-clusters every cluster larger than maxClusterSize with the
// stricter stage-2 threshold. Oversized clusters that fail to split are
// kept as-is. Refinement of independent oversized clusters runs in
// parallel; results are gathered by index, so output is deterministic.
func twoStageCluster(articles []Article, stage1Threshold, stage2Threshold float64, maxClusterSize, maxTimeWindowHours int) ([]Cluster, error) {
	log.Printf("Starting two-stage clustering on %d articles", len(articles))

	log.Printf("Stage 1: broad clustering with threshold %.2f and time window %dh", stage1Threshold, maxTimeWindowHours)
	broadClusters, err := clusterArticles(articles, stage1Threshold, maxTimeWindowHours)
	if err != nil {
		return nil, err
	}
	log.Printf("Stage 1 produced %d clusters", len(broadClusters))

	byLink := make(map[string]Article, len(articles))
	for _, article := range articles {
		byLink[article.Link] = article
	}

	results := make([][]Cluster, len(broadClusters))
	errs := make([]error, len(broadClusters))
	var wg sync.WaitGroup
	clustersRefined := 0

	for i, cluster := range broadClusters {
		if cluster.NumArticles <= maxClusterSize {
			results[i] = []Cluster{cluster}
			continue
		}

		clustersRefined++
		log.Printf("Refining large cluster (id=%d, size=%d) with threshold %.2f", cluster.ClusterID, cluster.NumArticles, stage2Threshold)

		wg.Add(1)
		go func(i int, cluster Cluster) {
			defer wg.Done()
			subArticles := make([]Article, 0, len(cluster.Articles))
			for _, member := range cluster.Articles {
				subArticles = append(subArticles, byLink[member.Link])
			}
			subClusters, err := clusterArticles(subArticles, stage2Threshold, maxTimeWindowHours)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = subClusters
		}(i, cluster)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var refined []Cluster
	for _, subClusters := range results {
		refined = append(refined, subClusters...)
	}

	log.Printf("Stage 2: refined %d large clusters, total clusters now %d", clustersRefined, len(refined))
	return sortAndNumberClusters(refined), nil
}

// crossFeedFilter retains only clusters whose articles span at least
// minFeeds distinct feeds. Pure and idempotent.
func crossFeedFilter(clusters []Cluster, minFeeds int) []Cluster {
	filtered := make([]Cluster, 0, len(clusters))
	for _, cluster := range clusters {
		if cluster.NumFeeds >= minFeeds {
			filtered = append(filtered, cluster)
		}
	}
	return filtered
}

// mergeWithHistoric combines freshly computed clusters with the historic
// snapshot. Historic clusters whose max published date falls before the
// lookback cutoff are settled and carried forward verbatim; everything
// inside the window was just re-clustered, so its fresh version wins. The
// union is deduplicated by (title, max_published_date), keeping the first
// occurrence, and ids are reassigned. A duplicate arriving more than the
// lookback window after a story's last-seen date starts a new cluster —
// an intentional staleness limit, not a bug.
func mergeWithHistoric(historic, fresh []Cluster, cutoff time.Time) []Cluster {
	var combined []Cluster
	for _, cluster := range historic {
		// Clusters without any dated article cannot be proven settled
		// and are not carried forward.
		if cluster.MaxPublishedDate != nil && cluster.MaxPublishedDate.Before(cutoff) {
			combined = append(combined, cluster)
		}
	}
	combined = append(combined, fresh...)

	seen := make(map[string]bool, len(combined))
	deduped := make([]Cluster, 0, len(combined))
	for _, cluster := range combined {
		key := cluster.Title + "\x00"
		if cluster.MaxPublishedDate != nil {
			key += cluster.MaxPublishedDate.UTC().Format(time.RFC3339Nano)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, cluster)
	}

	return sortAndNumberClusters(deduped)
}
