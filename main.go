package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sbillxx/telegrabber/bot"
	"github.com/Sbillxx/telegrabber/cleaner"
	"github.com/Sbillxx/telegrabber/common"
	"github.com/Sbillxx/telegrabber/conn"
	"github.com/Sbillxx/telegrabber/grab"
	"github.com/Sbillxx/telegrabber/server"
	"github.com/Sbillxx/telegrabber/tgclient"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("TG_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	rootCmd := &cobra.Command{
		Use:   "telegrabber",
		Short: "Downloads media from Telegram message links",
		Long: "telegrabber runs a user-session Telegram client and exposes media " +
			"downloads over an HTTP API and, optionally, a bot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := common.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
		SilenceUsage: true,
	}
	common.BindFlags(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Service failed")
	}
}

func run(cfg *common.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := tgclient.LoadCredentials(cfg.StorageRoot)
	if err != nil {
		return err
	}

	client := tgclient.NewTDLibClient(creds, cfg.StorageRoot, cfg.TDLibVerbosity)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("Disconnect failed")
		}
	}()

	health := conn.NewHealth(cfg.MaxReconnectAttempts)
	health.MarkConnected()

	service, err := grab.NewService(client, health, cfg.DownloadsDir)
	if err != nil {
		return err
	}

	janitor := cleaner.New(
		[]string{cfg.DownloadsDir, filepath.Join(cfg.StorageRoot, ".tdlib", "files")},
		cfg.CleanupInterval, cfg.FileAgeThreshold)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	httpServer := server.New(cfg.HTTPAddr, service, client, health)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return conn.NewKeeper(client, health, cfg.ProbeInterval).Run(gctx)
	})

	g.Go(func() error {
		return httpServer.ListenAndServe()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.BotEnabled {
		tgBot, err := bot.New(cfg.BotToken, service)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := tgBot.Run(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	log.Info().Str("http_addr", cfg.HTTPAddr).Bool("bot", cfg.BotEnabled).
		Str("downloads_dir", cfg.DownloadsDir).Msg("telegrabber started")

	err = g.Wait()
	if ctx.Err() != nil {
		log.Info().Msg("Shutting down")
		return nil
	}
	return err
}
