package cmn

import (
	"regexp"
	"strings"
	"time"
)

var (
	uuidRe    = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	mimeRe    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*/[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*(\+[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*)?$`)
	formatURN = map[string]bool{
		"urn:x-nmos:format:video": true,
		"urn:x-nmos:format:audio": true,
		"urn:x-nmos:format:data":  true,
		"urn:x-nmos:format:image": true,
		"urn:x-nmos:format:multi": true,
	}
)

// ValidateUUID checks the canonical RFC-4122 v1-5 lowercase form required
// throughout the data model.
func ValidateUUID(field, id string) *TError {
	if !uuidRe.MatchString(id) {
		return NewValidationErr(field, "not a valid UUID")
	}
	return nil
}

// ValidateTimestamp accepts ISO-8601 with an optional timezone.
func ValidateTimestamp(field, ts string) *TError {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"}
	for _, l := range layouts {
		if _, err := time.Parse(l, ts); err == nil {
			return nil
		}
	}
	return NewValidationErr(field, "not a valid ISO-8601 timestamp")
}

// ValidateFormatURN checks membership in the closed content-format set.
func ValidateFormatURN(field, urn string) *TError {
	if !formatURN[urn] {
		return NewValidationErr(field, "unrecognized content-format URN")
	}
	return nil
}

// ValidateMIME checks type/subtype(+suffix)? against the RFC character class.
func ValidateMIME(field, mime string) *TError {
	if !mimeRe.MatchString(mime) {
		return NewValidationErr(field, "not a valid MIME type")
	}
	return nil
}

// ValidateRequired rejects an empty string field.
func ValidateRequired(field, v string) *TError {
	if strings.TrimSpace(v) == "" {
		return NewValidationErr(field, "required field is empty")
	}
	return nil
}

// FlowFormats enumerates the Format values that admit a Flow variant.
var FlowFormats = formatURN
