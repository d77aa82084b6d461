package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/search"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("32")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	hitStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Margin(0, 0, 1, 2)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// formatResults renders a search answer for the terminal.
func formatResults(res *search.SearchResults) string {
	if res.Total == 0 {
		return noDataStyle.Render("No data sets found") + "\n"
	}

	var out strings.Builder
	summary := printer.Sprintf("%d data sets, showing %d", res.Total, len(res.Hits))
	if len(res.Categories) > 0 {
		summary += "\nCategories: " + strings.Join(titled(res.Categories), ", ")
	}
	if len(res.Formats) > 0 {
		summary += "\nFormats: " + strings.Join(res.Formats, ", ")
	}
	out.WriteString(summaryStyle.Render(summary))
	out.WriteString("\n")

	for _, hit := range res.Hits {
		out.WriteString(formatHit(hit))
		out.WriteString("\n")
	}
	return out.String()
}

func formatHit(hit catalog.Hit) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render(hit.Title))
	content.WriteString("\n")

	visibility := "private"
	if hit.IsPublic {
		visibility = "public"
	}
	meta := printer.Sprintf("%s · %s · %d records · %s · %s", titler.String(hit.Category), hit.Format, hit.RecordCount, formatSize(hit.Size), visibility)
	content.WriteString(metaStyle.Render(meta))
	content.WriteString("\n")
	content.WriteString(metaStyle.Render(fmt.Sprintf("id %s · org %s · created %s", hit.ID, hit.OrgUUID, hit.CreationTime)))
	content.WriteString("\n")
	content.WriteString(urlStyle.Render(hit.SourceURI))

	return hitStyle.Render(content.String())
}

func titled(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = titler.String(v)
	}
	return out
}

// formatSize formats a byte count with binary suffixes
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
