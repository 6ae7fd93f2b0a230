package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Moitr/stardew-qq-wikibot/pkg/bot"
	"github.com/Moitr/stardew-qq-wikibot/pkg/config"
	"github.com/Moitr/stardew-qq-wikibot/pkg/logger"
	"github.com/Moitr/stardew-qq-wikibot/pkg/onebot"
	"github.com/Moitr/stardew-qq-wikibot/pkg/provider/openai"
	"github.com/Moitr/stardew-qq-wikibot/pkg/smapi"
	"github.com/Moitr/stardew-qq-wikibot/pkg/wiki"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the OneBot endpoint and serve group events",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		// A missing .env is fine; secrets may come from the real env.
		_ = godotenv.Load()

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		completer, err := openai.New(cfg.OpenAI)
		if err != nil {
			log.Error("Completion provider configuration invalid", "error", err)
			return
		}

		wikiClient := wiki.New(cfg.Wiki, appLogger)
		defer func() {
			if err := wikiClient.Shutdown(); err != nil {
				log.Error("Browser shutdown failed", "error", err)
			}
		}()
		smapiClient := smapi.New(cfg.Smapi, appLogger)

		b := bot.New(cfg, appLogger, wikiClient, smapiClient, completer)
		client := onebot.NewClient(cfg.OneBot, appLogger)

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Bot started", "addr", cfg.OneBot.Addr, "bot_user_id", cfg.Bot.UserID)
		if err := client.Run(runCtx, b.HandleEvent); err != nil {
			log.Error("Bot runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
