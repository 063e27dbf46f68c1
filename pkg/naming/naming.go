// Package naming implements the deprecated-identifier grammar
// {name}_deprecated_{YYYYMMDD}_{reasonCode}. The grammar is a stable wire
// format: external tooling and humans parse these identifiers, so its shape
// must not change across versions.
package naming

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/schemaops/deprec/pkg/schema"
)

// MaxIdentifierLength is the database identifier-length ceiling.
const MaxIdentifierLength = 63

// Marker is the literal segment present in every deprecated identifier.
const Marker = "_deprecated_"

const dateLayout = "20060102"

// reasonCodes maps deprecation reasons to their fixed suffix codes.
var reasonCodes = map[schema.Reason]string{
	schema.ReasonUnused:       "unu",
	schema.ReasonPerformance:  "perf",
	schema.ReasonMigration:    "migr",
	schema.ReasonRefactor:     "refa",
	schema.ReasonSecurity:     "secu",
	schema.ReasonOptimization: "opti",
}

// codeReasons is the inverse of reasonCodes.
var codeReasons = map[string]schema.Reason{}

func init() {
	for r, c := range reasonCodes {
		codeReasons[c] = r
	}
}

// deprecatedNameRe matches the full grammar. The code alternation is kept in
// sync with reasonCodes.
var deprecatedNameRe = regexp.MustCompile(`^(.+)_deprecated_(\d{8})_(unu|perf|migr|refa|secu|opti)$`)

// ReasonCode returns the fixed code for a reason, or an error for unknown
// reasons.
func ReasonCode(reason schema.Reason) (string, error) {
	code, ok := reasonCodes[reason]
	if !ok {
		return "", &schema.ValidationError{
			Field:   "reason",
			Value:   string(reason),
			Message: "unknown deprecation reason",
		}
	}
	return code, nil
}

// Generate produces the deprecated identifier for an element. The result is
// deterministic for identical inputs at the same date: when the combined
// identifier would exceed MaxIdentifierLength, the original-name portion is
// truncated from its tail. The date/reason suffix is never truncated so the
// reconstructable metadata survives.
func Generate(originalName string, reason schema.Reason, at time.Time) (string, error) {
	if originalName == "" {
		return "", &schema.ValidationError{Field: "originalName", Message: "must not be empty"}
	}
	code, err := ReasonCode(reason)
	if err != nil {
		return "", err
	}

	suffix := fmt.Sprintf("%s%s_%s", Marker, at.Format(dateLayout), code)
	maxName := MaxIdentifierLength - len(suffix)
	name := originalName
	if len(name) > maxName {
		name = name[:maxName]
	}
	return name + suffix, nil
}

// Validate reports whether name matches the full deprecated-identifier
// grammar, including a parseable date. Pure: repeated calls on the same
// input always return the same result.
func Validate(name string) bool {
	m := deprecatedNameRe.FindStringSubmatch(name)
	if m == nil || len(name) > MaxIdentifierLength {
		return false
	}
	_, err := time.Parse(dateLayout, m[2])
	return err == nil
}

// IsDeprecatedName is a weaker existence check: it only looks for the
// literal marker, not the full grammar.
func IsDeprecatedName(name string) bool {
	return strings.Contains(name, Marker)
}

// Parsed is the decomposition of a well-formed deprecated identifier.
type Parsed struct {
	Original string
	Date     time.Time
	Reason   schema.Reason
}

// Parse inverts Generate for well-formed names. It fails with a
// ValidationError for anything that does not satisfy the grammar. For names
// whose original portion was truncated at generation time, Original is the
// truncated prefix; date and reason are always recovered exactly.
func Parse(name string) (*Parsed, error) {
	m := deprecatedNameRe.FindStringSubmatch(name)
	if m == nil {
		return nil, &schema.ValidationError{
			Field:   "name",
			Value:   name,
			Message: "does not match deprecated-identifier grammar",
		}
	}
	date, err := time.Parse(dateLayout, m[2])
	if err != nil {
		return nil, &schema.ValidationError{
			Field:   "name",
			Value:   name,
			Message: fmt.Sprintf("invalid date segment %q", m[2]),
		}
	}
	return &Parsed{
		Original: m[1],
		Date:     date,
		Reason:   codeReasons[m[3]],
	}, nil
}
