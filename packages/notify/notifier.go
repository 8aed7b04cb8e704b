// Package notify sends run summaries to chat services.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when tests fail
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when tests pass
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failures and on the first
	// passing run after one
	NotifyRecovery NotifyOn = "recovery"
)

func ParseNotifyOn(s string) (NotifyOn, error) {
	switch n := NotifyOn(s); n {
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return n, nil
	}
	return "", fmt.Errorf("invalid notify-on %q (expected always, failure, success or recovery)", s)
}

// RunSummary represents the summary of a test run for notifications
type RunSummary struct {
	Plans         int           `json:"plans"`
	TotalTests    int           `json:"total_tests"`
	PassedTests   int           `json:"passed_tests"`
	FailedTests   int           `json:"failed_tests"`
	SkippedTests  int           `json:"skipped_tests"`
	NotRunTests   int           `json:"not_run_tests"`
	Duration      time.Duration `json:"duration"`
	Environment   string        `json:"environment,omitempty"`
	FailedResults []FailedTest  `json:"failed_results,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
	IsRecovery    bool          `json:"is_recovery,omitempty"`
}

// Failed reports whether the run should count as broken.
func (s *RunSummary) Failed() bool {
	return s.FailedTests > 0 || len(s.Errors) > 0
}

// FailedTest represents a failed test for notifications
type FailedTest struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Line   int      `json:"line,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Location formats file:line, or just the file.
func (f FailedTest) Location() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	return f.File
}

// maxFailedResults bounds the failures listed in one message.
const maxFailedResults = 10

// Notifier is the interface for notification services
type Notifier interface {
	Notify(ctx context.Context, summary *RunSummary) error
	Name() string
}

// Manager applies the NotifyOn policy to a set of notifiers. It remembers
// the outcome of the previous run, so watch mode can report recoveries.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn

	mu        sync.Mutex
	lastState bool // true if last run was successful
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true,
	}
}

// Notify sends summary to every notifier if the policy asks for it. The
// errors of all failing notifiers are joined.
func (m *Manager) Notify(ctx context.Context, summary *RunSummary) error {
	if !m.shouldNotify(summary) {
		return nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) shouldNotify(summary *RunSummary) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	success := !summary.Failed()
	recovered := !m.lastState && success
	m.lastState = success

	switch m.notifyOn {
	case NotifyAlways:
		summary.IsRecovery = recovered
		return true
	case NotifyFailure:
		return !success
	case NotifySuccess:
		return success
	case NotifyRecovery:
		summary.IsRecovery = recovered
		return recovered || !success
	}
	return false
}

// headline returns the title of a notification and whether it is good news.
func headline(summary *RunSummary) (string, bool) {
	switch {
	case summary.FailedTests > 0:
		return fmt.Sprintf("%d test(s) failed", summary.FailedTests), false
	case len(summary.Errors) > 0:
		return fmt.Sprintf("%d plan error(s)", len(summary.Errors)), false
	case summary.IsRecovery:
		return "Tests recovered!", true
	}
	return "All tests passed!", true
}

// postJSON sends payload to a webhook. Any status outside 2xx is an error.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
