package validation

import (
	"fmt"
	"strings"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/models"
)

// Rules are operator-configurable checks applied on top of the hard
// contract checks below. Paths address the message's JSON shape.
type Rules struct {
	Required []string
	Types    map[string]string
	MaxLen   map[string]int
}

var rules Rules

func SetRules(r Rules) { rules = r }

// ValidateMessage enforces the message contract: a session reference, a
// known sender and non-empty text, plus any configured rules.
func ValidateMessage(m models.Message) error {
	if m.Session == "" {
		return apperr.Validation("session_id", "is required")
	}
	if m.Sender != models.SenderUser && m.Sender != models.SenderAssistant {
		return apperr.Validation("sender", fmt.Sprintf("must be %q or %q", models.SenderUser, models.SenderAssistant))
	}
	if strings.TrimSpace(m.Text) == "" {
		return apperr.Validation("text", "is required")
	}
	root := map[string]interface{}{
		"id":         m.ID,
		"session_id": m.Session,
		"sender":     m.Sender,
		"text":       m.Text,
		"ts":         m.TS,
	}
	return applyRules(root)
}

// ValidateSessionTitle enforces the session title contract shared by
// create and rename.
func ValidateSessionTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return apperr.Validation("title", "is required")
	}
	return nil
}

func applyRules(root map[string]interface{}) error {
	var errs []string
	for _, p := range rules.Required {
		if _, ok := valueAt(root, p); !ok {
			errs = append(errs, fmt.Sprintf("required path missing: %s", p))
		}
	}
	for p, t := range rules.Types {
		if v, ok := valueAt(root, p); ok {
			if !typeMatches(v, t) {
				errs = append(errs, fmt.Sprintf("type mismatch at %s: expected %s", p, t))
			}
		}
	}
	for p, max := range rules.MaxLen {
		if v, ok := valueAt(root, p); ok {
			if s, ok2 := v.(string); ok2 && len(s) > max {
				errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(s), max))
			}
		}
	}
	if len(errs) > 0 {
		return apperr.Validation("", strings.Join(errs, "; "))
	}
	return nil
}

func valueAt(root map[string]interface{}, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	var cur interface{} = root
	for _, s := range segs {
		node, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := node[s]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func typeMatches(v interface{}, t string) bool {
	switch strings.ToLower(t) {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	default:
		return true
	}
}
