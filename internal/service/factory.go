package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/identity"
	"github.com/xkilldash9x/enroll-cli/internal/login"
	"github.com/xkilldash9x/enroll-cli/internal/network"
	"github.com/xkilldash9x/enroll-cli/internal/notify"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/orchestrator"
	"github.com/xkilldash9x/enroll-cli/internal/signup"
)

const recorderBuffer = 64

// ComponentFactory creates the set of components needed for a creation run.
// The create command depends on this interface so it can be tested without
// a browser.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...orchestrator.Option) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory returns the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires every collaborator of the orchestrator from cfg. On failure
// the partially created components are shut down.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...orchestrator.Option) (*Components, error) {
	components := &Components{
		Metrics:     observability.NewMetrics(),
		MetricsAddr: cfg.Metrics.ListenAddr,
	}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Mailbox
	mailbox, sink, err := NewMailbox(cfg.Mail, components.Metrics)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Sink = sink
	if mailbox == nil {
		logger.Warn("No mail provider configured; accounts will stop at email verification.")
	}

	// 2. Store
	var recorders []orchestrator.Recorder
	if cfg.Database.URL != "" {
		s, pool, err := InitializeStore(ctx, cfg.Database, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
			return nil, initializationErr
		}
		components.DBPool = pool
		components.Recorder = NewAsyncRecorder(s, recorderBuffer, logger)
		recorders = append(recorders, components.Recorder)
		logger.Debug("Store initialized.")
	}

	// 3. Browser
	manager := browser.NewManager(cfg.Browser, logger)
	components.BrowserManager = manager
	logger.Debug("Browser manager initialized.")

	// 4. Notifier
	var notifier notify.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = notify.NewSlack(cfg.Notify,
			notify.WithMetrics(components.Metrics),
			notify.WithHTTPClient(network.NewClient(network.NewDefaultClientConfig())),
		)
	} else {
		logger.Info("Slack webhook not configured; notifications are disabled.")
	}

	// 5. Orchestrator
	orch, err := orchestrator.New(orchestrator.ConfigFromVerification(cfg.Verification), orchestrator.Deps{
		Identity:  identity.NewGenerator(IdentityPolicy(cfg.Identity)),
		Pages:     manager,
		Signup:    signup.NewDriver(SignupConfig(cfg)),
		Login:     login.NewFlow(LoginConfig(cfg)),
		Mailbox:   mailbox,
		Notifier:  notifier,
		Messages:  notify.Builder{MaskPasswords: cfg.Notify.MaskPasswords, Now: time.Now},
		Recorders: recorders,
		Metrics:   components.Metrics,
	}, opts...)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Runner = orch

	logger.Info("All components initialized.")
	return components, nil
}
