package prompt

import (
	"fmt"
	"strings"

	"github.com/propcheck/inspections/internal/domain/inspections"
)

// GetAnalysisSystemPrompt provides strict directions and schema for JSON output.
func GetAnalysisSystemPrompt(deep bool) string {
	base := `You are an experienced property inspector reviewing an inspection record. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: minor, moderate, major, critical.
- Only reference component ids that appear in the inventory you are given.
- confidence is a number between 0 and 1 reflecting how certain you are.
- Keep notes concise and factual; describe what was observed, not what to do about it.
- If a component shows no problems, do not emit a finding for it.

Schema (example with empty values):
{
  "findings": [
    {
      "component_id": "<string>",
      "type": "<string, e.g. water_damage, crack, mold, wear>",
      "severity": "<minor|moderate|major|critical>",
      "confidence": 0.0,
      "notes": "<string>"
    }
  ]
}`
	if deep {
		base += "\n\nThis is a deep analysis pass: re-examine every component, including ones that look fine at first glance, and surface lower-confidence findings you would normally omit."
	}
	return base
}

// GetAnalysisUserPrompt renders the inspection and its component
// inventory as the user message.
func GetAnalysisUserPrompt(insp *inspections.Inspection, components []*inspections.Component) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Inspection %s (%s) at %s, status %s.\n", insp.ID, insp.InspectionType, insp.PropertyAddress, insp.Status)
	b.WriteString("Component inventory:\n")
	for _, c := range components {
		fmt.Fprintf(&b, "- id=%s name=%q clean=%s undamaged=%s working=%s", c.ID, c.Name,
			flagString(c.Condition.Clean), flagString(c.Condition.Undamaged), flagString(c.Condition.Working))
		if c.OverviewComment != "" {
			fmt.Fprintf(&b, " comment=%q", c.OverviewComment)
		}
		if len(c.PhotoIDs) > 0 {
			fmt.Fprintf(&b, " photos=%d", len(c.PhotoIDs))
		}
		b.WriteString("\n")
	}
	b.WriteString("Respond with the findings JSON per schema.")
	return b.String()
}

// GetReportSystemPrompt directs the model to render a readable report.
func GetReportSystemPrompt() string {
	return `You are writing the final report for a property inspection. Produce clean markdown: a heading with the property address, a short overall summary, then one section per area listing its components, their condition and any noted problems. Do not invent observations that are not in the input.`
}

// GetReportUserPrompt builds the user message for report generation.
func GetReportUserPrompt(insp *inspections.Inspection) string {
	return fmt.Sprintf("Generate the inspection report. Inspection id: %s, type: %s, property: %s, status: %s, analysis version: %d.",
		insp.ID, insp.InspectionType, insp.PropertyAddress, insp.Status, insp.AnalysisVersion)
}

// GetChatSystemPrompt frames the in-app assistant.
func GetChatSystemPrompt(tenant string) string {
	return fmt.Sprintf("You are the in-app assistant for a property inspection tool. Answer questions about inspections, rooms, components and findings. Be brief and concrete. You are serving tenant %s; never speculate about other tenants' data.", tenant)
}

func flagString(b *bool) string {
	if b == nil {
		return "unassessed"
	}
	return fmt.Sprintf("%t", *b)
}
