package blindspot

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/report.html
var reportTemplate string

//go:embed templates/styles.css
var reportStyles string

// ClusterBrief is the structured summary the model writes for a flagged
// cluster.
type ClusterBrief struct {
	Headline string `json:"headline" jsonschema:"description=Korte neutrale kop die het verhaal samenvat"`
	Summary  string `json:"summary" jsonschema:"description=Neutrale samenvatting van het verhaal op basis van alle koppen"`
}

var GenerateReportCmd = &cobra.Command{
	Use:   "generate-report",
	Short: "Generate the blindspot report in markdown and HTML",
	Run: func(cmd *cobra.Command, args []string) {
		if err := generateBlindspotReport(); err != nil {
			log.Printf("Failed to generate report: %v", err)
			return
		}
		log.Println("Report generated: report.md, report.html")
	},
}

func generateBlindspotReport() error {
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

	var flagged []TimelineEntry
	for _, entry := range entries {
		if entry.BlindspotLeft || entry.BlindspotRight || entry.SingleOwnerHighReach {
			flagged = append(flagged, entry)
		}
	}
	log.Printf("Found %d flagged clusters out of %d", len(flagged), len(entries))

	briefs := make(map[string]ClusterBrief)
	if Config.OpenAIAPIKey != "" {
		for _, entry := range flagged {
			brief, err := summarizeClusterWithAI(entry)
			if err != nil {
				log.Printf("Failed to summarize cluster %d: %v", entry.ClusterID, err)
				continue
			}
			briefs[entry.StableKey] = brief
		}
	} else {
		log.Println("OPENAI_API_KEY not set, skipping AI summaries")
	}

	report := formatBlindspotReport(flagged, briefs, time.Now())
	if err := os.WriteFile("report.md", []byte(report), 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	htmlContent, err := renderReportHTML(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile("report.html", []byte(htmlContent), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// summarizeClusterWithAI asks the model for a neutral brief of a flagged
// cluster, constrained by a JSON schema reflected from ClusterBrief.
func summarizeClusterWithAI(entry TimelineEntry) (ClusterBrief, error) {
	headlines := make([]string, 0, len(entry.Articles))
	for _, article := range entry.Articles {
		headlines = append(headlines, fmt.Sprintf("- %s (%s)", article.Title, article.Feed))
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaObj := reflector.Reflect(&ClusterBrief{})
	if schemaObj.Type == "" {
		schemaObj.Type = "object"
	}

	schemaBytes, err := json.Marshal(schemaObj)
	if err != nil {
		return ClusterBrief{}, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schema any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return ClusterBrief{}, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	client := openai.NewClient(option.WithAPIKey(Config.OpenAIAPIKey))

	systemContent := `Je bent een neutrale nieuwsredacteur. Je krijgt de koppen van een verhaal zoals verschillende nieuwsbronnen het brachten. Schrijf een korte neutrale kop en samenvatting, zonder eigen duiding.`
	userContent := fmt.Sprintf("Vat dit verhaal samen op basis van de koppen:\n\n%s", strings.Join(headlines, "\n"))

	chatCompletion, err := client.Chat.Completions.New(context.TODO(), openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemContent),
			openai.UserMessage(userContent),
		},
		Model:       openai.ChatModelGPT4_1,
		MaxTokens:   openai.Int(500),
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "cluster_brief",
					Description: openai.String("Neutral brief of a news story from its headlines"),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return ClusterBrief{}, fmt.Errorf("failed to call OpenAI API: %w", err)
	}

	if len(chatCompletion.Choices) == 0 || chatCompletion.Choices[0].Message.Content == "" {
		return ClusterBrief{}, fmt.Errorf("no content in brief response")
	}

	var brief ClusterBrief
	if err := json.Unmarshal([]byte(chatCompletion.Choices[0].Message.Content), &brief); err != nil {
		return ClusterBrief{}, fmt.Errorf("failed to parse brief: %w", err)
	}
	return brief, nil
}

// formatBlindspotReport renders the flagged clusters as markdown. Pure, so
// the layout is testable without a database or API key.
func formatBlindspotReport(flagged []TimelineEntry, briefs map[string]ClusterBrief, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Blindspot Report\n\n")
	b.WriteString(fmt.Sprintf("*%s*\n\n", now.Format("2 January 2006")))

	if len(flagged) == 0 {
		b.WriteString("No coverage blindspots found today.\n")
		return b.String()
	}

	for i, entry := range flagged {
		title := entry.Title
		if brief, ok := briefs[entry.StableKey]; ok && brief.Headline != "" {
			title = brief.Headline
		}
		b.WriteString(fmt.Sprintf("## %d. %s\n\n", i+1, title))

		if brief, ok := briefs[entry.StableKey]; ok && brief.Summary != "" {
			b.WriteString(brief.Summary + "\n\n")
		}

		var flags []string
		if entry.BlindspotLeft {
			flags = append(flags, "blindspot on the left")
		}
		if entry.BlindspotRight {
			flags = append(flags, "blindspot on the right")
		}
		if entry.SingleOwnerHighReach {
			flags = append(flags, "single owner, high reach")
		}
		b.WriteString(fmt.Sprintf("**Flags:** %s\n\n", strings.Join(flags, ", ")))
		b.WriteString(fmt.Sprintf("**Coverage:** %d articles from %d feeds\n\n", entry.NumArticles, entry.NumFeeds))

		for _, article := range entry.Articles {
			b.WriteString(fmt.Sprintf("- [%s](%s) (%s)\n", article.Title, article.Link, article.Feed))
		}
		b.WriteString("\n---\n\n")
	}

	return b.String()
}

// renderReportHTML converts the markdown report into a standalone HTML
// document with embedded styles.
func renderReportHTML(markdownContent string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Linkify,
			extension.Strikethrough,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			html.WithUnsafe(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdownContent), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}

	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML template: %w", err)
	}

	data := struct {
		Title string
		Date  string
		Body  template.HTML
		CSS   template.CSS
	}{
		Title: "Blindspot Report",
		Date:  time.Now().Format("2 January 2006"),
		Body:  template.HTML(buf.String()),
		CSS:   template.CSS(reportStyles),
	}

	var result bytes.Buffer
	if err := tmpl.Execute(&result, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return result.String(), nil
}
