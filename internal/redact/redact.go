package redact

import (
	"strings"

	"carhistory/internal/hashing"
)

// MarkerKey is set on every redacted row so downstream consumers can assert
// the invariant instead of inferring it from absence.
const MarkerKey = "redacted"

// DenylistSubstrings drops any field whose name contains one of these.
// The list is intentionally substring-based: "owner_email" and "email_hmac"
// both match "email".
var DenylistSubstrings = []string{
	"email",
	"phone",
	"name",
	"address",
	"token",
	"password",
	"otp",
	"secret",
	"ssn",
	"dob",
}

// correlationFields are identifying but useful as join keys. They are
// replaced with a keyed hash rather than dropped, preserving joinability
// without exposing the identifier.
var correlationFields = []string{"vin", "plate"}

// Redactor applies field-level transformations before any row crosses the
// trust boundary.
type Redactor struct {
	hasher *hashing.Hasher
}

func NewRedactor(hasher *hashing.Hasher) *Redactor {
	return &Redactor{hasher: hasher}
}

// Allowlist keeps only the explicitly named fields, then pseudonymizes
// correlation keys and sets the marker. Use for small, fixed output schemas.
func (r *Redactor) Allowlist(row map[string]any, keep ...string) map[string]any {
	allowed := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		allowed[k] = struct{}{}
	}

	out := make(map[string]any, len(keep)+1)
	for k, v := range row {
		if _, ok := allowed[k]; ok {
			out[k] = v
		}
	}
	return r.finish(out)
}

// Denylist drops any field whose name contains a PII or secret shaped
// substring. Use for ad-hoc exports of loosely typed rows.
func (r *Redactor) Denylist(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if Denied(k) {
			continue
		}
		out[k] = v
	}
	return r.finish(out)
}

// Denied reports whether a field name matches the denylist.
func Denied(field string) bool {
	lower := strings.ToLower(field)
	for _, sub := range DenylistSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func (r *Redactor) finish(row map[string]any) map[string]any {
	for _, field := range correlationFields {
		if v, ok := row[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				row[field] = r.hasher.Derive(field, s)
			}
		}
	}
	row[MarkerKey] = true
	return row
}
