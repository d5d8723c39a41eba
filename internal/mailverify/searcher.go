// Package mailverify finds verification links and one-time codes in a
// mailbox that receives the platform's verification mail.
package mailverify

import (
	"context"
	"strings"
	"time"
)

// Message is one mailbox message as seen by the resolver. Body holds the
// decoded text and HTML parts concatenated.
type Message struct {
	ID         string
	ReceivedAt time.Time
	From       string
	To         string
	Subject    string
	Body       string
}

// Query selects candidate messages. Senders and subjects are substring
// matches. With MatchAll every list must match; otherwise any single term
// is enough.
type Query struct {
	From     []string
	Subject  []string
	To       string
	MatchAll bool
}

// Searcher is the mail search capability. Implementations return at most
// maxResults messages, newest first.
type Searcher interface {
	Search(ctx context.Context, q Query, maxResults int) ([]Message, error)
}

// Matches applies q to m the way a mail provider would. It lets in-process
// mailboxes and tests share the provider semantics.
func (q Query) Matches(m Message) bool {
	if q.To != "" && !strings.EqualFold(strings.TrimSpace(q.To), strings.TrimSpace(m.To)) {
		return false
	}
	from := containsAny(m.From, q.From)
	subject := containsAny(m.Subject, q.Subject)
	switch {
	case len(q.From) == 0 && len(q.Subject) == 0:
		return true
	case q.MatchAll:
		return (len(q.From) == 0 || from) && (len(q.Subject) == 0 || subject)
	default:
		return from || subject
	}
}

func containsAny(s string, terms []string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
