// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails masks secrets in text that leaves the process for
// storage.
//
// Guardrails never touch what the oracle or the user sees: observations are
// relayed verbatim. They apply to copies written to the audit trail.
//
// Example usage:
//
//	r := guardrails.NewRedactor(
//	    guardrails.WithInclude(guardrails.SecretIPAddress),
//	    guardrails.WithCustomPattern("ticket", `TCK-[0-9]+`, "[TICKET]"),
//	)
//	res := r.Filter(ctx, observation)
package guardrails

import "regexp"

// SecretType categorizes a masked value.
type SecretType string

const (
	SecretAWSAccessKey SecretType = "aws_access_key"
	SecretAWSSecretKey SecretType = "aws_secret_key"
	SecretPrivateKey   SecretType = "private_key"
	SecretBearerToken  SecretType = "bearer_token"
	SecretPassword     SecretType = "password"
	SecretEmail        SecretType = "email"
	SecretIPAddress    SecretType = "ip_address"
)

// FilterResult is the outcome of filtering one text.
type FilterResult struct {
	// Content is the (potentially modified) text.
	Content string

	// Modified indicates if the content was changed.
	Modified bool

	// Redactions lists what was masked.
	Redactions []Redaction
}

// Redaction describes a single masked value. The original is never kept.
type Redaction struct {
	Type        SecretType
	Replacement string
	Position    int
}

type secretPattern struct {
	secretType SecretType
	pattern    *regexp.Regexp
	mask       string
	// group is the submatch that is masked; 0 masks the whole match.
	group int
}

// Order matters: a private key block may contain strings the later
// patterns would otherwise split.
var defaultPatterns = []struct {
	secretType SecretType
	pattern    string
	mask       string
	group      int
}{
	{SecretPrivateKey, `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`, "[PRIVATE_KEY]", 0},
	{SecretAWSAccessKey, `\b(?:AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}\b`, "[AWS_ACCESS_KEY]", 0},
	{SecretAWSSecretKey, `(?i)aws_secret_access_key\s*[=:]\s*"?([A-Za-z0-9/+=]{40})"?`, "[AWS_SECRET_KEY]", 1},
	{SecretBearerToken, `(?i)\bbearer\s+([A-Za-z0-9._~+/=-]{16,})`, "[TOKEN]", 1},
	{SecretPassword, `(?i)\b(?:password|passwd|pwd)\s*[=:]\s*"?([^\s"']+)"?`, "[PASSWORD]", 1},
	{SecretEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[EMAIL]", 0},
}
