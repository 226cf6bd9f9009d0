// Package notify holds outbound Notifier implementations that do not depend on a chat provider.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
)

// LogNotifier writes messages to the log instead of delivering them.
// It backs the "log" notification channel used in development.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a logging notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs msg and always succeeds for a message with recipients
func (n *LogNotifier) Send(_ context.Context, msg port.Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	n.logger.Info("Notification",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text))
	return nil
}

// FanOut delivers every message through all configured notifiers concurrently.
// It fails only when every notifier fails.
type FanOut struct {
	notifiers []port.Notifier
	logger    *zap.Logger
}

// NewFanOut creates a notifier that broadcasts to all of notifiers
func NewFanOut(logger *zap.Logger, notifiers ...port.Notifier) *FanOut {
	return &FanOut{notifiers: notifiers, logger: logger}
}

// Send delivers msg through each notifier and joins the errors when none succeeded
func (f *FanOut) Send(ctx context.Context, msg port.Message) error {
	if len(f.notifiers) == 0 {
		return fmt.Errorf("no notifiers configured")
	}

	p := pool.NewWithResults[error]().WithContext(ctx)
	for _, n := range f.notifiers {
		n := n
		p.Go(func(ctx context.Context) (error, error) {
			return n.Send(ctx, msg), nil
		})
	}
	results, _ := p.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(f.notifiers) {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		f.logger.Warn("Notifier failed, message delivered by another channel",
			zap.Strings("to", msg.To),
			zap.Error(err))
	}
	return nil
}

// Verify interface compliance
var (
	_ port.Notifier = (*LogNotifier)(nil)
	_ port.Notifier = (*FanOut)(nil)
)
