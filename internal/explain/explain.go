// Package explain renders deterministic, template-based rationales for
// assessments and batch reports. An optional text generator can reword
// the prose; every number in an explanation is computed locally, and
// any generator failure falls back to the template output.
package explain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// TextGenerator rewords a drafted explanation. Implementations may
// call an external language model; the draft already contains every
// fact the output may state.
type TextGenerator interface {
	Reword(ctx context.Context, draft string) (string, error)
}

// Generator builds explanations and batch reports.
type Generator struct {
	text    TextGenerator
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator creates an explanation generator. The text generator is
// optional; with nil the templates are used as-is.
func NewGenerator(text TextGenerator, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{text: text, timeout: 10 * time.Second, logger: logger}
}

// Input carries the facts one claim explanation is built from.
type Input struct {
	ClaimID     string
	Probability float64
	RiskLevel   domain.RiskLevel
	Confidence  float64
	Flags       []domain.RedFlag
	RuleScore   float64
	Patterns    []*domain.GraphPatternMatch
	Degraded    bool
}

// Explain builds the rationale bundle for one assessed claim.
func (g *Generator) Explain(ctx context.Context, in *Input) domain.Explanation {
	summary := g.summary(in)
	if g.text != nil {
		reworded, err := g.reword(ctx, summary)
		if err != nil {
			g.logger.Warn("text generator failed, using template summary",
				"claim_id", in.ClaimID, "error", err)
		} else {
			summary = reworded
		}
	}

	return domain.Explanation{
		Summary:               summary,
		RedFlags:              in.Flags,
		Recommendation:        recommendation(in.RiskLevel),
		ConfidenceExplanation: confidenceExplanation(in.Confidence, in.Degraded),
		TotalRedFlags:         len(in.Flags),
		RiskScore:             in.RuleScore,
	}
}

func (g *Generator) reword(ctx context.Context, draft string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.text.Reword(ctx, draft)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("text generator returned empty output")
	}
	return out, nil
}

// summary drafts the risk narrative for one claim.
func (g *Generator) summary(in *Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s claim %s scored a fraud probability of %.0f%%.",
		riskPhrase(in.RiskLevel), in.ClaimID, in.Probability*100)

	if len(in.Flags) > 0 {
		b.WriteString(" ")
		b.WriteString(flagNarrative(in.Flags))
	}
	for _, m := range in.Patterns {
		fmt.Fprintf(&b, " The claim also participates in a suspected %s pattern: %s.",
			patternPhrase(m.Pattern), m.Evidence)
	}
	if len(in.Flags) == 0 && len(in.Patterns) == 0 {
		b.WriteString(" No individual red flags were raised; the score reflects statistical similarity to past fraud.")
	}
	return b.String()
}

// flagNarrative summarizes the flags, leading with the worst.
func flagNarrative(flags []domain.RedFlag) string {
	worst := flags[0]
	for _, f := range flags[1:] {
		if f.Severity.Rank() > worst.Severity.Rank() {
			worst = f
		}
	}
	categories := make(map[domain.FlagCategory]bool)
	for _, f := range flags {
		categories[f.Category] = true
	}
	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, categoryPhrase(c))
	}
	sort.Strings(names)

	if len(flags) == 1 {
		return fmt.Sprintf("One red flag was raised: %s.",
			strings.ToLower(worst.Description[:1])+worst.Description[1:])
	}
	return fmt.Sprintf("%d red flags were raised across %s; the most severe: %s.",
		len(flags), strings.Join(names, ", "),
		strings.ToLower(worst.Description[:1])+worst.Description[1:])
}

func riskPhrase(level domain.RiskLevel) string {
	switch level {
	case domain.RiskCritical:
		return "Critical-risk"
	case domain.RiskHigh:
		return "High-risk"
	case domain.RiskMedium:
		return "Medium-risk"
	case domain.RiskLow:
		return "Low-risk"
	default:
		return "Minimal-risk"
	}
}

func categoryPhrase(c domain.FlagCategory) string {
	switch c {
	case domain.CategoryAmountAnomaly:
		return "billing amounts"
	case domain.CategoryProviderPattern:
		return "provider behavior"
	case domain.CategoryPatientBehavior:
		return "patient behavior"
	case domain.CategoryTemporal:
		return "timing"
	default:
		return string(c)
	}
}

func patternPhrase(p domain.Pattern) string {
	switch p {
	case domain.PatternKickbackRing:
		return "referral kickback"
	case domain.PatternIdentityTheft:
		return "identity theft"
	case domain.PatternPingPong:
		return "ping-pong referral"
	case domain.PatternFamilyGanging:
		return "family ganging"
	case domain.PatternEquipmentFraud:
		return "phantom equipment"
	default:
		return string(p)
	}
}

// recommendation maps a risk level to the reviewer action.
func recommendation(level domain.RiskLevel) string {
	switch level {
	case domain.RiskCritical:
		return "Suspend payment immediately and escalate to the special investigations unit."
	case domain.RiskHigh:
		return "Hold payment pending manual review by a fraud analyst."
	case domain.RiskMedium:
		return "Route to the standard review queue before payment."
	case domain.RiskLow:
		return "Approve with routine post-payment sampling."
	default:
		return "Approve; no action required."
	}
}

// confidenceExplanation describes how certain the model is and why.
func confidenceExplanation(confidence float64, degraded bool) string {
	var band string
	switch {
	case confidence >= 0.9:
		band = "The model is highly confident in this score; its estimators agree almost unanimously."
	case confidence >= 0.7:
		band = "The model is moderately confident in this score; most of its estimators agree."
	default:
		band = "The model has limited confidence in this score; its estimators disagree substantially and the result should be weighed accordingly."
	}
	if degraded {
		band += " Some patient or provider history was unavailable and population baselines were substituted, which lowers confidence further."
	}
	return band
}
