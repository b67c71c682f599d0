package reflection

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatReflection formats a weekly reflection as text or markdown.
// JSON is handled by the caller via json.Marshal and yields "".
func FormatReflection(r *WeeklyReflection, format string) string {
	switch format {
	case "markdown":
		return formatAsMarkdown(r)
	case "text":
		return formatAsText(r)
	default:
		return ""
	}
}

// formatAsMarkdown formats the reflection as markdown.
func formatAsMarkdown(r *WeeklyReflection) string {
	var sb strings.Builder

	sb.WriteString("# Weekly Reflection\n\n")
	sb.WriteString(fmt.Sprintf("**Period:** %s to %s\n", r.Period.Start.Format(time.DateOnly), r.Period.End.Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## This Week\n\n")
	sb.WriteString(fmt.Sprintf("- Decisions: %d\n", r.Summary.ReceiptsCount))
	sb.WriteString(fmt.Sprintf("- Moments: %d\n", r.Summary.MomentsCount))
	sb.WriteString(fmt.Sprintf("- Average Confidence: %s\n", confidenceLabel(r.Summary.AverageConfidence)))
	sb.WriteString(fmt.Sprintf("- Confidence Trend: %s\n\n", trendLabel(r.Summary.ConfidenceTrend)))

	if len(r.Summary.DominantEmotions) > 0 {
		sb.WriteString("## Emotions\n\n")
		for _, e := range r.Summary.DominantEmotions {
			sb.WriteString(fmt.Sprintf("- %s (%d)\n", e.Emotion, e.Count))
		}
		sb.WriteString("\n")
	}

	if len(r.Summary.RepeatingTags) > 0 {
		sb.WriteString("## Recurring Tags\n\n")
		for _, t := range r.Summary.RepeatingTags {
			sb.WriteString(fmt.Sprintf("- %s (%d)\n", t.Tag, t.Count))
		}
		sb.WriteString("\n")
	}

	if len(r.Summary.DecisionTypes) > 0 {
		sb.WriteString("## Decision Types\n\n")
		for _, kv := range sortedCounts(r.Summary.DecisionTypes) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", kv.key, kv.count))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Reflect\n\n")
	sb.WriteString(fmt.Sprintf("> %s\n\n", r.Reflection.Question))
	sb.WriteString(fmt.Sprintf("*%s*\n", r.Reflection.SuggestedAction))

	return sb.String()
}

// formatAsText formats the reflection as plain text.
func formatAsText(r *WeeklyReflection) string {
	var sb strings.Builder

	sb.WriteString("WEEKLY REFLECTION\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString(fmt.Sprintf("Period: %s to %s\n", r.Period.Start.Format(time.DateOnly), r.Period.End.Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("THIS WEEK\n")
	sb.WriteString(strings.Repeat("-", 20) + "\n")
	sb.WriteString(fmt.Sprintf("Decisions: %d\n", r.Summary.ReceiptsCount))
	sb.WriteString(fmt.Sprintf("Moments: %d\n", r.Summary.MomentsCount))
	sb.WriteString(fmt.Sprintf("Average Confidence: %s\n", confidenceLabel(r.Summary.AverageConfidence)))
	sb.WriteString(fmt.Sprintf("Confidence Trend: %s\n\n", trendLabel(r.Summary.ConfidenceTrend)))

	if len(r.Summary.DominantEmotions) > 0 {
		names := make([]string, 0, len(r.Summary.DominantEmotions))
		for _, e := range r.Summary.DominantEmotions {
			names = append(names, e.Emotion)
		}
		sb.WriteString(fmt.Sprintf("Emotions: %s\n\n", strings.Join(names, ", ")))
	}

	sb.WriteString("REFLECT\n")
	sb.WriteString(strings.Repeat("-", 20) + "\n")
	sb.WriteString(r.Reflection.Question + "\n")
	sb.WriteString(r.Reflection.SuggestedAction + "\n")

	return sb.String()
}

func confidenceLabel(avg *int) string {
	if avg == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", *avg)
}

func trendLabel(t ConfidenceTrend) string {
	if t.Delta == nil {
		return string(t.Trend)
	}
	return fmt.Sprintf("%s (%+d)", t.Trend, *t.Delta)
}

// sortedCounts orders a count map by count, then key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		out = append(out, keyCount{key: k, count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}
