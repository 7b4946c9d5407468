// Package redact masks configured field names in JSON-like trees before
// they reach extraction, so sensitive values never land in an analytics
// record.
package redact

import "strings"

// Sentinel replaces every redacted value.
const Sentinel = "[REDACTED]"

// DefaultFields is the default PII field set.
var DefaultFields = []string{
	"email",
	"phone",
	"first_name",
	"last_name",
	"phone_number",
	"street_address",
	"postal_code",
}

// Redactor masks a fixed set of field names, matched case-insensitively
// at any depth, including inside arrays.
type Redactor struct {
	fields map[string]struct{}
}

// New builds a redactor for the given field names. An empty list falls
// back to DefaultFields.
func New(fields []string) *Redactor {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = struct{}{}
	}
	return &Redactor{fields: set}
}

// Apply returns a structurally identical copy of v with every matching
// key's value replaced by the sentinel. The input is never mutated.
func (r *Redactor) Apply(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for k, val := range node {
			if _, hit := r.fields[strings.ToLower(k)]; hit {
				out[k] = Sentinel
			} else {
				out[k] = r.Apply(val)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, item := range node {
			out[i] = r.Apply(item)
		}
		return out
	}
	return v
}

// Body is a convenience wrapper for the common map-shaped case.
func (r *Redactor) Body(body map[string]interface{}) map[string]interface{} {
	if body == nil {
		return nil
	}
	out, _ := r.Apply(body).(map[string]interface{})
	return out
}
