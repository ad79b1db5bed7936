package mcp

import (
	"fmt"
	"strings"

	"github.com/codesweep/codesweep/internal/search"
)

// FormatResponse formats a federated search response as markdown.
func FormatResponse(resp *search.Response) string {
	var sb strings.Builder

	if len(resp.Results) == 0 {
		sb.WriteString(fmt.Sprintf("No results found for \"%s\"", resp.Query.Text))
	} else {
		sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", resp.Query.Text))
		sb.WriteString(fmt.Sprintf("Found %d result", resp.Total))
		if resp.Total != 1 {
			sb.WriteString("s")
		}
		sb.WriteString(fmt.Sprintf(" in %dms", resp.TotalElapsedMs))
		if resp.ServedFromCache {
			sb.WriteString(" (cached)")
		}
		sb.WriteString("\n\n")

		for i, r := range resp.Results {
			formatResult(&sb, i+1, r)
		}
	}

	if len(resp.Failures) > 0 {
		sb.WriteString("\n### Provider Failures\n\n")
		for _, f := range resp.Failures {
			fmt.Fprintf(&sb, "- **%s** (%s): %s\n", f.Provider, f.Kind, f.Message)
		}
	}

	return sb.String()
}

// formatResult formats a single result.
func formatResult(sb *strings.Builder, num int, r search.Result) {
	fmt.Fprintf(sb, "### %d. %s: %s", num, r.Repo, r.FilePath)
	if r.StartLine > 0 {
		fmt.Fprintf(sb, ":%d-%d", r.StartLine, r.EndLine)
	}
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Provider: `%s` | Stars: %d | Score: %.2f\n\n", r.Provider, r.Stars, r.Score)

	if r.Snippet != "" {
		fmt.Fprintf(sb, "```%s\n%s\n```\n\n", r.Language, r.Snippet)
	}

	fmt.Fprintf(sb, "[permalink](%s)\n\n", r.PermalinkURL)
}
