// Package notify delivers run events to a chat channel.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// Message is a Slack block kit payload. Text is the fallback shown in
// notifications and logged when delivery is skipped.
type Message struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Block is one block kit layout block.
type Block struct {
	Type     string        `json:"type"`
	Text     *Text         `json:"text,omitempty"`
	Fields   []Text        `json:"fields,omitempty"`
	Elements []interface{} `json:"elements,omitempty"`
}

// Text is a plain_text or mrkdwn composition object.
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Button is an actions block element that opens URL.
type Button struct {
	Type     string `json:"type"`
	Text     Text   `json:"text"`
	Style    string `json:"style,omitempty"`
	URL      string `json:"url"`
	ActionID string `json:"action_id"`
}

const timeLayout = account.TimestampLayout

func mrkdwn(s string) Text    { return Text{Type: "mrkdwn", Text: s} }
func plainText(s string) Text { return Text{Type: "plain_text", Text: s, Emoji: true} }

func header(s string) Block {
	t := plainText(s)
	return Block{Type: "header", Text: &t}
}

func section(s string) Block {
	t := mrkdwn(s)
	return Block{Type: "section", Text: &t}
}

func fields(pairs ...string) Block {
	b := Block{Type: "section"}
	for i := 0; i+1 < len(pairs); i += 2 {
		b.Fields = append(b.Fields, mrkdwn(fmt.Sprintf("*%s:*\n%s", pairs[i], pairs[i+1])))
	}
	return b
}

func footnote(s string) Block {
	return Block{Type: "context", Elements: []interface{}{mrkdwn(s)}}
}

// Builder renders the messages sent during a run.
type Builder struct {
	// MaskPasswords hides all but the first and last character of
	// passwords.
	MaskPasswords bool
	Now           func() time.Time
}

func (b Builder) now() string {
	if b.Now == nil {
		return time.Now().Format(timeLayout)
	}
	return b.Now().Format(timeLayout)
}

func (b Builder) password(p string) string {
	if b.MaskPasswords {
		return observability.Mask(p)
	}
	return p
}

func env(e account.Environment) string { return strings.ToUpper(string(e)) }

// VerificationLink asks a human to open link for email.
func (b Builder) VerificationLink(email, link string) Message {
	return Message{
		Text: "Email verification required",
		Blocks: []Block{
			section(fmt.Sprintf("*[Email verification request]*\n\nAccount: `%s`\nClick the button below to verify the address.", email)),
			{
				Type: "actions",
				Elements: []interface{}{Button{
					Type:     "button",
					Text:     plainText("Verify email"),
					Style:    "primary",
					URL:      link,
					ActionID: "email_verification",
				}},
			},
			footnote("Requested at " + b.now()),
		},
	}
}

// Progress reports an intermediate step of s.
func (b Builder) Progress(event string, s account.Snapshot) Message {
	return Message{
		Text: "Account creation: " + event,
		Blocks: []Block{
			section(fmt.Sprintf("*%s*\n\nEmail: `%s`\nPassword: `%s`\nNickname: `%s`\nEnvironment: `%s`\nCreated: `%s`",
				event, s.Email, b.password(s.Password), s.Nickname, env(s.Environment), s.CreatedAt)),
		},
	}
}

// Success reports a completed account.
func (b Builder) Success(s account.Snapshot) Message {
	wid := s.WID()
	if wid == "" {
		wid = "N/A"
	}
	return Message{
		Text: "Account created: " + s.Email,
		Blocks: []Block{
			header("[Account created]"),
			fields(
				"ID (email)", "`"+s.Email+"`",
				"PW", "`"+b.password(s.Password)+"`",
				"WID", "`"+wid+"`",
				"Environment", "`"+env(s.Environment)+"`",
				"Completed", "`"+s.UpdatedAt+"`",
			),
		},
	}
}

// Failure reports an attempt that ended without an account.
func (b Builder) Failure(reason string, s account.Snapshot) Message {
	if reason == "" {
		reason = s.Status.String()
	}
	return Message{
		Text: "Account creation failed: " + s.Email,
		Blocks: []Block{
			header("Account creation failed"),
			section(fmt.Sprintf("*Reason:*\n%s\n\n*Account:*\nEmail: `%s`\nStatus: `%s`\nEnvironment: `%s`",
				reason, s.Email, s.Status, env(s.Environment))),
			footnote("Failed at " + b.now()),
		},
	}
}

var gradeLabels = map[account.Grade]string{
	account.GradePerfect: "Perfect",
	account.GradeSuccess: "Success",
	account.GradePartial: "Partial success",
	account.GradeFailed:  "Failed",
}

// Summary reports the outcome of a whole run.
func (b Builder) Summary(stats account.Statistics, elapsed time.Duration) Message {
	label := gradeLabels[stats.Grade()]
	return Message{
		Text: "Batch creation finished: " + label,
		Blocks: []Block{
			header("Batch creation " + strings.ToLower(label)),
			fields(
				"Total", fmt.Sprintf("%d", stats.Total),
				"Success", fmt.Sprintf("%d", stats.Success),
				"Failed", fmt.Sprintf("%d", stats.Failed),
				"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate),
				"Environment", env(stats.Environment),
				"Duration", elapsed.Round(time.Second).String(),
				"Completed", b.now(),
			),
		},
	}
}
