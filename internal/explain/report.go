package explain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Report builds the batch-level executive summary and ranked insights.
func (g *Generator) Report(ctx context.Context, batch *domain.BatchResult) *domain.BatchReport {
	report := &domain.BatchReport{
		ExecutiveSummary: g.executiveSummary(batch),
		Insights:         insights(batch),
	}
	if g.text != nil {
		reworded, err := g.reword(ctx, report.ExecutiveSummary)
		if err != nil {
			g.logger.Warn("text generator failed, using template report", "error", err)
		} else {
			report.ExecutiveSummary = reworded
		}
	}
	return report
}

func (g *Generator) executiveSummary(batch *domain.BatchResult) string {
	total := len(batch.Assessments)
	if total == 0 {
		return "No claims were assessed in this batch."
	}

	flagged := 0
	exposure := 0.0
	levels := make(map[domain.RiskLevel]int)
	flaggedByProvider := make(map[string]int)
	for _, a := range batch.Assessments {
		levels[a.RiskLevel]++
		if a.IsFraudPredicted {
			flagged++
			exposure += a.ClaimAmount
			flaggedByProvider[a.ProviderID]++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Assessed %d claims; %d (%.1f%%) were predicted fraudulent.",
		total, flagged, float64(flagged)/float64(total)*100)
	if flagged > 0 {
		fmt.Fprintf(&b, " Flagged claims represent $%.2f in financial exposure.", exposure)
	}
	if hot := topProviders(flaggedByProvider, 3); len(hot) > 0 {
		fmt.Fprintf(&b, " Flagged volume concentrates at: %s.", strings.Join(hot, ", "))
	}
	if n := levels[domain.RiskCritical] + levels[domain.RiskHigh]; n > 0 {
		fmt.Fprintf(&b, " %d claims are high or critical risk and need immediate review.", n)
	}
	if len(batch.Failures) > 0 {
		fmt.Fprintf(&b, " %d claims could not be assessed.", len(batch.Failures))
	}
	if len(batch.DegradedPatterns) > 0 {
		fmt.Fprintf(&b, " Pattern analysis was incomplete for: %s.", joinPatterns(batch.DegradedPatterns))
	}
	return b.String()
}

// insights derives ranked findings from batch composition. Returned in
// impact order, highest first.
func insights(batch *domain.BatchResult) []domain.Insight {
	if len(batch.Assessments) == 0 {
		return nil
	}

	var out []domain.Insight

	if n := countLevel(batch, domain.RiskCritical); n > 0 {
		out = append(out, domain.Insight{
			Title:       "Critical-risk claims detected",
			Description: fmt.Sprintf("%d claims scored in the critical band (probability 0.85 or higher).", n),
			Impact:      "High",
			Action:      "Suspend payment on these claims and open investigations.",
		})
	}

	patterns := make(map[domain.Pattern]int)
	for _, a := range batch.Assessments {
		for _, p := range a.GraphPatterns {
			patterns[p]++
		}
	}
	if len(patterns) > 0 {
		names := make([]string, 0, len(patterns))
		for p, n := range patterns {
			names = append(names, fmt.Sprintf("%s (%d claims)", patternPhrase(p), n))
		}
		sort.Strings(names)
		out = append(out, domain.Insight{
			Title:       "Coordinated fraud patterns present",
			Description: "Cross-claim analysis found: " + strings.Join(names, ", ") + ".",
			Impact:      "High",
			Action:      "Review the implicated provider and patient networks together rather than claim by claim.",
		})
	}

	flagged := 0
	exposure := 0.0
	flaggedByProvider := make(map[string]int)
	var flaggedAmounts []float64
	for _, a := range batch.Assessments {
		if a.IsFraudPredicted {
			flagged++
			exposure += a.ClaimAmount
			flaggedByProvider[a.ProviderID]++
			flaggedAmounts = append(flaggedAmounts, a.ClaimAmount)
		}
	}
	if prov, n := topProvider(flaggedByProvider); n >= 2 {
		out = append(out, domain.Insight{
			Title:       "Provider fraud hotspot",
			Description: fmt.Sprintf("Provider %s accounts for %d of %d flagged claims.", prov, n, flagged),
			Impact:      "Medium",
			Action:      "Audit this provider's full claim history, not just the flagged claims.",
		})
	}
	if len(flaggedAmounts) >= 2 && exposure > 0 {
		sort.Sort(sort.Reverse(sort.Float64Slice(flaggedAmounts)))
		if flaggedAmounts[0] >= 0.5*exposure {
			out = append(out, domain.Insight{
				Title:       "Exposure concentrated in a single claim",
				Description: fmt.Sprintf("One claim of $%.2f carries %.0f%% of the batch's $%.2f flagged exposure.", flaggedAmounts[0], flaggedAmounts[0]/exposure*100, exposure),
				Impact:      "Medium",
				Action:      "Prioritize the largest flagged claims for manual review.",
			})
		}
	}

	categories := make(map[domain.FlagCategory]int)
	for _, a := range batch.Assessments {
		for _, f := range a.Explanation.RedFlags {
			categories[f.Category]++
		}
	}
	if top, n := topCategory(categories); n >= 3 {
		out = append(out, domain.Insight{
			Title:       "Recurring red-flag category",
			Description: fmt.Sprintf("%d red flags concern %s across the batch.", n, categoryPhrase(top)),
			Impact:      "Medium",
			Action:      "Audit the underlying rule thresholds and the entities that triggered them.",
		})
	}

	degradedData := 0
	for _, a := range batch.Assessments {
		if !a.DataQuality {
			degradedData++
		}
	}
	if degradedData > 0 {
		out = append(out, domain.Insight{
			Title:       "Incomplete entity data",
			Description: fmt.Sprintf("%d assessments fell back to population baselines for missing patient or provider history.", degradedData),
			Impact:      "Low",
			Action:      "Backfill the missing patient and provider records to tighten future scores.",
		})
	}

	return out
}

func countLevel(batch *domain.BatchResult, level domain.RiskLevel) int {
	n := 0
	for _, a := range batch.Assessments {
		if a.RiskLevel == level {
			n++
		}
	}
	return n
}

func topCategory(categories map[domain.FlagCategory]int) (domain.FlagCategory, int) {
	var top domain.FlagCategory
	max := 0
	for c, n := range categories {
		if n > max || (n == max && c < top) {
			top, max = c, n
		}
	}
	return top, max
}

// topProvider returns the provider with the most flagged claims.
func topProvider(flagged map[string]int) (string, int) {
	var top string
	max := 0
	for id, n := range flagged {
		if n > max || (n == max && id < top) {
			top, max = id, n
		}
	}
	return top, max
}

// topProviders renders the k busiest providers as "ID (n claims)",
// busiest first.
func topProviders(flagged map[string]int, k int) []string {
	ids := make([]string, 0, len(flagged))
	for id := range flagged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if flagged[ids[i]] != flagged[ids[j]] {
			return flagged[ids[i]] > flagged[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > k {
		ids = ids[:k]
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%s (%d claims)", id, flagged[id])
	}
	return out
}

func joinPatterns(patterns []domain.Pattern) string {
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = patternPhrase(p)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
