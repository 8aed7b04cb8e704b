package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackHTTPClient replaces the default client, which times out after
// ten seconds.
func WithSlackHTTPClient(client *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = client
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "hitrun",
		iconEmoji:  ":test_tube:",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	return postJSON(ctx, s.client, s.webhookURL, s.message(summary))
}

func (s *SlackNotifier) message(summary *RunSummary) slackMessage {
	title, good := headline(summary)
	color, emoji := "danger", ":x:"
	if good {
		color, emoji = "good", ":white_check_mark:"
		if summary.IsRecovery {
			emoji = ":tada:"
		}
	}

	fields := []slackField{
		{Title: "Total Tests", Value: fmt.Sprint(summary.TotalTests), Short: true},
		{Title: "Passed", Value: fmt.Sprint(summary.PassedTests), Short: true},
		{Title: "Failed", Value: fmt.Sprint(summary.FailedTests), Short: true},
		{Title: "Skipped", Value: fmt.Sprint(summary.SkippedTests + summary.NotRunTests), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}
	if summary.Environment != "" {
		fields = append(fields, slackField{Title: "Environment", Value: summary.Environment, Short: true})
	}

	return slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  emoji + " " + title,
			Text:   slackText(summary),
			Fields: fields,
			Footer: "hitrun",
			TS:     time.Now().Unix(),
		}},
	}
}

// slackText lists failures in Slack mrkdwn.
func slackText(summary *RunSummary) string {
	var b strings.Builder
	if len(summary.FailedResults) > 0 {
		b.WriteString("*Failed tests:*\n")
		for i, ft := range summary.FailedResults {
			if i == maxFailedResults {
				fmt.Fprintf(&b, "_and %d more_\n", len(summary.FailedResults)-i)
				break
			}
			fmt.Fprintf(&b, "• `%s`", ft.Name)
			if loc := ft.Location(); loc != "" {
				fmt.Fprintf(&b, " (%s)", loc)
			}
			b.WriteString("\n")
			for _, msg := range ft.Errors {
				fmt.Fprintf(&b, "  - %s\n", msg)
			}
		}
	}
	if len(summary.Errors) > 0 {
		b.WriteString("*Errors:*\n")
		for _, msg := range summary.Errors {
			fmt.Fprintf(&b, "• %s\n", msg)
		}
	}
	return b.String()
}
