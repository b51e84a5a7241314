package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/EpicVillage/Trello-Bot/auth"
	"github.com/EpicVillage/Trello-Bot/bot"
	"github.com/EpicVillage/Trello-Bot/creds"
	"github.com/EpicVillage/Trello-Bot/internal/statepaths"
	"github.com/EpicVillage/Trello-Bot/prefs"
	"github.com/EpicVillage/Trello-Bot/session"
	"github.com/EpicVillage/Trello-Bot/telegram"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: long-poll Telegram and push ideas into Trello",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLoggerFromConfig(loggerConfigFromViper())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			botToken := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or %s_TELEGRAM_BOT_TOKEN)", envPrefix)
			}
			trelloKey := strings.TrimSpace(flagOrViperString(cmd, "trello-key", "trello.api_key"))
			trelloToken := strings.TrimSpace(flagOrViperString(cmd, "trello-token", "trello.token"))
			if trelloKey == "" || trelloToken == "" {
				return fmt.Errorf("missing trello.api_key / trello.token for the shared account")
			}

			admins := make([]string, 0, 4)
			for _, id := range flagOrViperStringArray(cmd, "admin", "admins") {
				if id = strings.TrimSpace(id); id != "" {
					admins = append(admins, id)
				}
			}
			if len(admins) == 0 {
				logger.Warn("no_admins_configured")
			}

			stateDir := statepaths.StateDir()
			if err := os.MkdirAll(stateDir, 0o700); err != nil {
				return fmt.Errorf("create state dir: %w", err)
			}

			authStore, err := auth.NewFileStore(statepaths.AuthPath(), statepaths.LockRoot())
			if err != nil {
				return err
			}
			credsStore, err := creds.NewFileStore(statepaths.CredsPath(), statepaths.LockRoot())
			if err != nil {
				return err
			}
			prefsStore, err := prefs.NewStore(statepaths.ChatPrefsPath(), statepaths.LockRoot())
			if err != nil {
				return err
			}

			gate := auth.NewGate(authStore, admins, logger)
			resolver := creds.NewResolver(credsStore, nil,
				flagOrViperString(cmd, "trello-base-url", "trello.base_url"),
				trelloKey, trelloToken, logger)

			api := telegram.NewAPI(nil,
				flagOrViperString(cmd, "telegram-base-url", "telegram.base_url"), botToken)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			meCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			me, err := api.GetMe(meCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("telegram getMe: %w", err)
			}

			receiver := telegram.NewReceiver(api, logger,
				flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout"))
			sup := bot.NewSupervisor(receiver, bot.SupervisorConfig{
				ProbeInterval:        viper.GetDuration("supervisor.probe_interval"),
				ProbeTimeout:         viper.GetDuration("supervisor.probe_timeout"),
				BackoffFloor:         viper.GetDuration("supervisor.backoff_floor"),
				BackoffCeiling:       viper.GetDuration("supervisor.backoff_ceiling"),
				BackoffGrowth:        viper.GetFloat64("supervisor.backoff_growth"),
				MaxReconnectAttempts: viper.GetInt("supervisor.max_reconnect_attempts"),
				MaxStreamErrors:      viper.GetInt("supervisor.max_stream_errors"),
				LastAttemptDelay:     viper.GetDuration("supervisor.last_attempt_delay"),
				RestartCheckInterval: viper.GetDuration("supervisor.restart_check_interval"),
			}, logger)

			b := bot.New(bot.Deps{
				API:        api,
				Gate:       gate,
				Resolver:   resolver,
				Prefs:      prefsStore,
				Sessions:   session.NewStore(),
				Supervisor: sup,
				Logger:     logger,
				Username:   me.Username,
			})

			logger.Info("trellobot_start",
				"username", me.Username,
				"state_dir", stateDir,
				"admins", len(admins),
			)

			receiver.Start()
			sup.Start()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return b.Run(ctx, receiver.Updates())
			})
			g.Go(func() error {
				<-ctx.Done()
				sup.Stop()
				receiver.Stop()
				return nil
			})

			err = g.Wait()
			logger.Info("trellobot_stop")
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("telegram-base-url", "", "Telegram API base URL override (tests).")
	cmd.Flags().String("trello-key", "", "Shared Trello API key.")
	cmd.Flags().String("trello-token", "", "Shared Trello API token.")
	cmd.Flags().String("trello-base-url", "", "Trello API base URL override (tests).")
	cmd.Flags().StringArray("admin", nil, "Admin Telegram user id (repeatable).")
	cmd.Flags().Duration("poll-timeout", 50*time.Second, "Long-poll timeout per getUpdates call.")

	return cmd
}
