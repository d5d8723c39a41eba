// Package mocks holds testify mocks for the collaborators the orchestrator,
// the resolver and the create command depend on.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/enroll-cli/internal/account"
	"github.com/xkilldash9x/enroll-cli/internal/browser"
	"github.com/xkilldash9x/enroll-cli/internal/mailverify"
	"github.com/xkilldash9x/enroll-cli/internal/notify"
	"github.com/xkilldash9x/enroll-cli/internal/orchestrator"
)

// -- Notifier Mock --

// MockNotifier mocks notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

// Send provides a mock function for notifications.
func (m *MockNotifier) Send(ctx context.Context, msg notify.Message) bool {
	args := m.Called(ctx, msg)
	return args.Bool(0)
}

// Texts returns the fallback text of every message sent so far.
func (m *MockNotifier) Texts() []string {
	var texts []string
	for _, c := range m.Calls {
		if c.Method == "Send" {
			texts = append(texts, c.Arguments.Get(1).(notify.Message).Text)
		}
	}
	return texts
}

// -- Searcher Mock --

// MockSearcher mocks mailverify.Searcher.
type MockSearcher struct {
	mock.Mock
}

// Search provides a mock function for mailbox queries.
func (m *MockSearcher) Search(ctx context.Context, q mailverify.Query, maxResults int) ([]mailverify.Message, error) {
	args := m.Called(ctx, q, maxResults)
	msgs, _ := args.Get(0).([]mailverify.Message)
	return msgs, args.Error(1)
}

// -- Mailbox Mock --

// MockMailbox mocks the resolver surface used by the orchestrator.
type MockMailbox struct {
	mock.Mock
}

func (m *MockMailbox) FindVerificationLink(ctx context.Context, target string, maxWaitMinutes int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	args := m.Called(ctx, target, maxWaitMinutes)
	return args.String(0), args.Error(1)
}

func (m *MockMailbox) FindCodeAfter(ctx context.Context, target string, since time.Time) (string, error) {
	args := m.Called(ctx, target, since)
	return args.String(0), args.Error(1)
}

func (m *MockMailbox) FindLatestCode(ctx context.Context, target string) (string, error) {
	args := m.Called(ctx, target)
	return args.String(0), args.Error(1)
}

// -- Recorder Mock --

// MockRecorder mocks orchestrator.Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordAttempt(ctx context.Context, batchID string, s account.Snapshot) error {
	args := m.Called(ctx, batchID, s)
	return args.Error(0)
}

func (m *MockRecorder) RecordBatch(ctx context.Context, batchID string, r account.BatchResult) error {
	args := m.Called(ctx, batchID, r)
	return args.Error(0)
}

// -- Runner Mock --

// MockRunner mocks service.Runner.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, bc account.BatchConfig) (orchestrator.Report, error) {
	args := m.Called(ctx, bc)
	return args.Get(0).(orchestrator.Report), args.Error(1)
}

// -- BrowserManager Mock --

// MockBrowserManager mocks service.BrowserManager.
type MockBrowserManager struct {
	mock.Mock
}

func (m *MockBrowserManager) OpenPage(ctx context.Context) (browser.Page, func() error, error) {
	args := m.Called(ctx)
	var page browser.Page
	if p := args.Get(0); p != nil {
		page = p.(browser.Page)
	}
	var closeFn func() error
	if f := args.Get(1); f != nil {
		closeFn = f.(func() error)
	}
	return page, closeFn, args.Error(2)
}

func (m *MockBrowserManager) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
