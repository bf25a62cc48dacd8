// Package guard implements the safety filters wrapped around the model:
// input validation/sanitization before a prompt reaches the provider, and
// output filtering before a completion reaches the caller.
//
// Both guards are pure functions of their inputs. They never touch the
// network or the store, so they are safe to call on every request without
// availability concerns.
package guard

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxInputLength is the hard cap on raw user text.
const MaxInputLength = 2000

// Input rejection flags reported by InputGuard.Validate.
const (
	FlagTooLong       = "too_long"
	FlagEmpty         = "empty"
	FlagInjection     = "prompt_injection"
	FlagInappropriate = "inappropriate_content"
	FlagPIIDetected   = "pii_detected"
)

var injectionPatterns = compileAll([]string{
	`ignore\s+previous\s+instructions`,
	`forget\s+everything\s+above`,
	`you\s+are\s+now\s+a\s+different`,
	`system\s*:\s*you\s+are`,
	`new\s+instructions\s*:`,
	`act\s+as\s+a\s+different`,
	`pretend\s+to\s+be`,
	`roleplay\s+as`,
	`simulate\s+being`,
})

var inappropriatePatterns = compileAll([]string{
	`\b(hack|exploit|bypass|jailbreak)\b`,
	`\b(password|credential|token|api[_\s]?key)\b`,
	`\b(illegal|criminal|fraud|scam)\b`,
})

var (
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// InputReport describes what the guard checked and found.
type InputReport struct {
	OriginalLength  int      `json:"original_length"`
	FinalLength     int      `json:"final_length,omitempty"`
	ChecksPerformed []string `json:"checks_performed"`
	Flags           []string `json:"flags,omitempty"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
	PIIMasked       bool     `json:"pii_masked,omitempty"`
}

// InputGuard validates and sanitizes raw user text before it reaches the
// model. Rejecting checks run in a fixed order and short-circuit; PII
// masking is cumulative and only reached once all rejecting checks pass.
type InputGuard struct{}

// NewInputGuard returns an input guard with the built-in pattern sets.
func NewInputGuard() *InputGuard { return &InputGuard{} }

// Validate checks text for safety and returns (accepted, sanitized, report).
// A rejected input always returns an empty sanitized string. The sessionID
// is carried for report correlation only and does not affect the decision.
func (g *InputGuard) Validate(text, sessionID string) (bool, string, InputReport) {
	_ = sessionID
	report := InputReport{OriginalLength: utf8.RuneCountInString(text)}

	// Lengths count characters, not bytes, so multi-byte text is not
	// penalized.
	if report.OriginalLength > MaxInputLength {
		report.Flags = append(report.Flags, FlagTooLong)
		return false, "", report
	}
	if strings.TrimSpace(text) == "" {
		report.Flags = append(report.Flags, FlagEmpty)
		return false, "", report
	}
	report.ChecksPerformed = append(report.ChecksPerformed, "length")

	if matched := matchAny(injectionPatterns, text); len(matched) > 0 {
		report.Flags = append(report.Flags, FlagInjection)
		report.MatchedPatterns = matched
		return false, "", report
	}
	report.ChecksPerformed = append(report.ChecksPerformed, "prompt_injection")

	if matched := matchAny(inappropriatePatterns, text); len(matched) > 0 {
		report.Flags = append(report.Flags, FlagInappropriate)
		report.MatchedPatterns = matched
		return false, "", report
	}
	report.ChecksPerformed = append(report.ChecksPerformed, "inappropriate_content")

	sanitized, masked := maskPII(text)
	if masked {
		report.Flags = append(report.Flags, FlagPIIDetected)
		report.PIIMasked = true
	}
	report.ChecksPerformed = append(report.ChecksPerformed, "pii_detection")
	report.FinalLength = utf8.RuneCountInString(sanitized)

	return true, sanitized, report
}

func matchAny(patterns []*regexp.Regexp, text string) []string {
	var matched []string
	for _, re := range patterns {
		if re.MatchString(text) {
			matched = append(matched, re.String())
		}
	}
	return matched
}

// maskPII replaces detectable PII in place. Masking never changes the
// acceptance decision, only the returned text.
func maskPII(text string) (string, bool) {
	masked := false
	out := text

	if ssnPattern.MatchString(out) {
		out = ssnPattern.ReplaceAllString(out, "***-**-****")
		masked = true
	}
	if cardPattern.MatchString(out) {
		out = cardPattern.ReplaceAllString(out, "**** **** **** ****")
		masked = true
	}
	if emailPattern.MatchString(out) {
		out = emailPattern.ReplaceAllStringFunc(out, maskEmail)
		masked = true
	}
	return out, masked
}

// maskEmail keeps the first and last character of the local part and the
// full domain: john.doe@example.com -> j******e@example.com.
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return email
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + domain
}
