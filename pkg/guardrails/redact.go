package guardrails

import (
	"context"
	"regexp"
)

// Redactor masks secrets with fixed placeholders such as "[AWS_ACCESS_KEY]".
// It is safe for concurrent use once built.
type Redactor struct {
	patterns []secretPattern
	enabled  map[SecretType]bool
}

// RedactorOption configures a Redactor.
type RedactorOption func(*Redactor)

// ipv4 is opt-in: instance output is full of private addresses that are
// useful in an audit trail.
var ipv4 = `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`

// NewRedactor creates a redactor with the default secret patterns.
func NewRedactor(opts ...RedactorOption) *Redactor {
	r := &Redactor{enabled: make(map[SecretType]bool)}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, secretPattern{
			secretType: p.secretType,
			pattern:    regexp.MustCompile(p.pattern),
			mask:       p.mask,
			group:      p.group,
		})
		r.enabled[p.secretType] = true
	}
	r.patterns = append(r.patterns, secretPattern{
		secretType: SecretIPAddress,
		pattern:    regexp.MustCompile(ipv4),
		mask:       "[IP_ADDRESS]",
	})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithInclude enables extra secret types, such as SecretIPAddress.
func WithInclude(types ...SecretType) RedactorOption {
	return func(r *Redactor) {
		for _, t := range types {
			r.enabled[t] = true
		}
	}
}

// WithExclude disables secret types.
func WithExclude(types ...SecretType) RedactorOption {
	return func(r *Redactor) {
		for _, t := range types {
			r.enabled[t] = false
		}
	}
}

// WithCustomPattern adds a pattern. Invalid expressions are ignored.
func WithCustomPattern(secretType SecretType, pattern, mask string) RedactorOption {
	return func(r *Redactor) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		r.patterns = append(r.patterns, secretPattern{secretType: secretType, pattern: re, mask: mask})
		r.enabled[secretType] = true
	}
}

// Filter masks every enabled secret in content.
func (r *Redactor) Filter(ctx context.Context, content string) FilterResult {
	result := FilterResult{Content: content}
	if content == "" {
		return result
	}
	for _, p := range r.patterns {
		if !r.enabled[p.secretType] {
			continue
		}
		if ctx.Err() != nil {
			return result
		}
		matches := p.pattern.FindAllStringSubmatchIndex(result.Content, -1)
		// Reverse order keeps earlier offsets valid.
		for i := len(matches) - 1; i >= 0; i-- {
			start, end := matches[i][2*p.group], matches[i][2*p.group+1]
			if start < 0 {
				continue
			}
			result.Content = result.Content[:start] + p.mask + result.Content[end:]
			result.Redactions = append(result.Redactions, Redaction{
				Type:        p.secretType,
				Replacement: p.mask,
				Position:    start,
			})
			result.Modified = true
		}
	}
	return result
}

// Redact returns content with secrets masked.
func (r *Redactor) Redact(content string) string {
	return r.Filter(context.Background(), content).Content
}
