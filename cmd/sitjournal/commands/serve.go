// ABOUTME: serve command runs the HTTP API with the monthly and reminder schedules
// ABOUTME: Reminders go to Telegram when a bot token is configured, otherwise to the log
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harper/sitjournal/internal/httpapi"
	"github.com/harper/sitjournal/internal/notify"
	"github.com/harper/sitjournal/internal/scheduler"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled jobs",
		Long: `Run the HTTP API together with the scheduled jobs:

  - the monthly summary batch on the last day of each month
  - the reminder tick, which delivers due meditation and journal reminders

Set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID to receive reminders in Telegram.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.log.Warn("closing storage", "error", err)
				}
			}()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}

			var notifier notify.Notifier = notify.NewLogNotifier(a.log)
			if a.cfg.TelegramToken != "" {
				tg, err := notify.NewTelegram(a.cfg.TelegramToken, a.cfg.TelegramChatID, a.log)
				if err != nil {
					return fmt.Errorf("connecting to telegram: %w", err)
				}
				notifier = tg
			}

			sched := scheduler.New(a.pipeline, notifier, a.log)
			if err := sched.Register(a.cfg.MonthlyCron, a.cfg.ReminderCron); err != nil {
				return fmt.Errorf("registering schedules: %w", err)
			}
			sched.Start()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BackgroundTimeout)
				defer cancel()
				if err := sched.Stop(ctx); err != nil {
					a.log.Warn("scheduler did not stop cleanly", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return httpapi.NewServer(a.pipeline, a.log).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: SITJOURNAL_HTTP_ADDR or :8787)")
	return cmd
}
