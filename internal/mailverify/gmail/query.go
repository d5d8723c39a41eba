package gmail

import (
	"strings"

	"github.com/xkilldash9x/enroll-cli/internal/mailverify"
)

// RenderQuery converts q into Gmail search syntax. Without MatchAll every
// term is OR-ed together; with it, sender and subject groups must both
// match.
func RenderQuery(q mailverify.Query) string {
	from := terms("from", q.From)
	subject := terms("subject", q.Subject)

	var parts []string
	if q.MatchAll {
		if g := group(from); g != "" {
			parts = append(parts, g)
		}
		if g := group(subject); g != "" {
			parts = append(parts, g)
		}
	} else if all := append(from, subject...); len(all) > 0 {
		parts = append(parts, strings.Join(all, " OR "))
	}
	if q.To != "" {
		parts = append(parts, "to:"+quote(q.To))
	}
	return strings.Join(parts, " ")
}

func terms(op string, values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, op+":"+quote(v))
		}
	}
	return out
}

func group(ts []string) string {
	switch len(ts) {
	case 0:
		return ""
	case 1:
		return ts[0]
	}
	return "(" + strings.Join(ts, " OR ") + ")"
}

func quote(v string) string {
	if strings.ContainsAny(v, " \t\"") {
		return `"` + strings.ReplaceAll(v, `"`, ``) + `"`
	}
	return v
}
