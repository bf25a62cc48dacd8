package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Confidence thresholds for output handling.
const (
	// MinConfidence is the floor below which the model text is discarded
	// entirely in favor of the low-confidence fallback.
	MinConfidence = 0.3

	// LowConfidenceThreshold is the bar below which an uncertainty
	// disclaimer is appended to otherwise acceptable text.
	LowConfidenceThreshold = 0.7

	// minReplyLength is the minimum usable reply after rewriting.
	minReplyLength = 10
)

// Canned replacement texts. The output guard never hard-rejects: it only
// substitutes or rewrites.
const (
	lowConfidenceFallback = "I'm not confident in my response to that question. Could you please rephrase or provide more details?"
	emptyReplyFallback    = "I apologize, but I couldn't generate an appropriate response. Could you please try rephrasing your question?"
	uncertaintyDisclaimer = "\n\n*Note: I'm not entirely certain about this response. Please verify the information if it's important.*"
)

// Output modification flags.
const (
	FlagLowConfidence = "low_confidence"
	FlagTooShort      = "too_short"
)

// disclosureRewrite pairs a forbidden self-disclosure pattern with its
// professional replacement (empty means delete).
type disclosureRewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

var disclosureRewrites = []disclosureRewrite{
	{regexp.MustCompile(`(?i)i\s+am\s+an?\s+ai\s+language\s+model`), "I am a professional assistant"},
	{regexp.MustCompile(`(?i)as\s+an?\s+ai\s+assistant`), "as a professional assistant"},
	{regexp.MustCompile(`(?i)i\s+don't\s+have\s+access\s+to\s+real[_\s-]?time`), "I don't have current"},
	{regexp.MustCompile(`(?i)i\s+can't\s+browse\s+the\s+internet`), ""},
	{regexp.MustCompile(`(?i)my\s+knowledge\s+cutoff`), ""},
	{regexp.MustCompile(`(?i)i\s+am\s+chatgpt`), ""},
}

// OutputReport describes the modifications applied, in application order.
type OutputReport struct {
	OriginalConfidence float64  `json:"original_confidence"`
	OriginalLength     int      `json:"original_length"`
	FinalLength        int      `json:"final_length,omitempty"`
	ChecksPerformed    []string `json:"checks_performed"`
	Modifications      []string `json:"modifications,omitempty"`
	Flags              []string `json:"flags,omitempty"`
}

// OutputGuard filters model output for disallowed disclosures and applies
// confidence-based fallbacks. Unlike the input guard there is no terminal
// failure path: every call returns usable text.
type OutputGuard struct{}

// NewOutputGuard returns an output guard with the built-in rewrite table.
func NewOutputGuard() *OutputGuard { return &OutputGuard{} }

// Validate rewrites text according to the confidence and pattern rules and
// returns the final text plus a report of what was applied.
func (g *OutputGuard) Validate(text string, confidence float64, toolsUsed []string) (string, OutputReport) {
	_ = toolsUsed
	report := OutputReport{
		OriginalConfidence: confidence,
		OriginalLength:     utf8.RuneCountInString(text),
	}

	if confidence < MinConfidence {
		report.Flags = append(report.Flags, FlagLowConfidence)
		report.FinalLength = utf8.RuneCountInString(lowConfidenceFallback)
		return lowConfidenceFallback, report
	}
	report.ChecksPerformed = append(report.ChecksPerformed, "confidence")

	out := text
	for _, rw := range disclosureRewrites {
		if !rw.pattern.MatchString(out) {
			continue
		}
		out = rw.pattern.ReplaceAllString(out, rw.replacement)
		report.Modifications = append(report.Modifications,
			fmt.Sprintf("removed_pattern: %s", rw.pattern.String()))
	}
	report.ChecksPerformed = append(report.ChecksPerformed, "forbidden_patterns")

	// Character count, not bytes: a short non-ASCII reply is still short.
	if utf8.RuneCountInString(strings.TrimSpace(out)) < minReplyLength {
		report.Flags = append(report.Flags, FlagTooShort)
		report.FinalLength = utf8.RuneCountInString(emptyReplyFallback)
		return emptyReplyFallback, report
	}
	report.ChecksPerformed = append(report.ChecksPerformed, "length")

	if confidence < LowConfidenceThreshold {
		out += uncertaintyDisclaimer
		report.Modifications = append(report.Modifications, "added_uncertainty_disclaimer")
	}

	out = strings.TrimSpace(out)
	report.FinalLength = utf8.RuneCountInString(out)
	return out, report
}
