package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/config"
	"github.com/garyjia/budget-approval/internal/container"
)

// Sends one test message through the configured notification channels.
// This checks channel credentials without touching the approval database.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	to := flag.String("to", "", "comma-separated recipient emails")
	channel := flag.String("channel", "", "override notification.channel (lark, log or a comma-separated list)")
	timeout := flag.Duration("timeout", 15*time.Second, "send timeout")
	flag.Parse()

	fmt.Println("=== Notification Channel Test ===")

	recipients := splitRecipients(*to)
	if len(recipients) == 0 {
		fmt.Fprintln(os.Stderr, "ERROR: no recipients; usage: test-notification --to ann@example.com[,bob@example.com]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *channel != "" {
		cfg.Notification.Channel = *channel
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	containerCfg := cfg.ToContainerConfig()
	notifier, err := container.ProvideNotifier(&containerCfg.Notification, &containerCfg.Lark, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Channels: %s\n", cfg.Notification.Channel)
	fmt.Printf("Recipients: %s\n\n", strings.Join(recipients, ", "))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	msg := port.Message{
		To:      recipients,
		Subject: cfg.Notification.SenderName + ": test notification",
		Text: fmt.Sprintf("This is a test message sent at %s.\nOpen %s to review pending approvals.",
			time.Now().Format(time.RFC1123), cfg.Notification.AppBaseURL),
	}
	if err := notifier.Send(ctx, msg); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Send failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Message sent")
}

func splitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
