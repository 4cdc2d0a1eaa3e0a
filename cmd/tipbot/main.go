package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/susu3304/tipbot/internal/api"
	"github.com/susu3304/tipbot/internal/bot"
	"github.com/susu3304/tipbot/internal/commands"
	"github.com/susu3304/tipbot/internal/config"
	"github.com/susu3304/tipbot/internal/identity"
	"github.com/susu3304/tipbot/internal/irc"
	"github.com/susu3304/tipbot/internal/logging"
	"github.com/susu3304/tipbot/internal/metrics"
	"github.com/susu3304/tipbot/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "tipbot",
		Short:         "IRC tip bot backed by a coin daemon's account wallet",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to IRC and serve commands (the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(configPath)
		},
	})
	rootCmd.AddCommand(tokenCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func tokenCmd(configPath *string) *cobra.Command {
	var (
		operator string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the operator API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := api.IssueToken(cfg.Admin.JWTSecret, operator, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&operator, "operator", "o", "operator", "name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}

func runBot(configPath string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the coin daemon
	rpc, err := wallet.Dial(cfg.RPC)
	if err != nil {
		logger.Error("failed to create wallet client", zap.Error(err))
		return err
	}
	defer rpc.Shutdown()
	gateway := wallet.NewGateway(rpc)

	probeCtx, cancelProbe := context.WithTimeout(ctx, 30*time.Second)
	total, err := gateway.TotalBalance(probeCtx)
	cancelProbe()
	if err != nil {
		logger.Error("couldn't connect to the wallet", zap.Error(err))
		return errors.New("wallet unreachable")
	}
	logger.Info("wallet is reachable", zap.Stringer("balance", total), zap.String("coin", cfg.Coin.ShortName))

	m := metrics.New()
	client := irc.New(cfg, logger.Named("irc"))
	verifier := identity.New(client, identity.Options{
		Service:       cfg.Identity.Service,
		VerifiedLevel: cfg.Identity.VerifiedLevel,
		Timeout:       cfg.Identity.Timeout,
	}, logger.Named("identity"))
	dispatcher := commands.New(cfg, commands.Deps{
		Chat:     client,
		Verifier: verifier,
		Wallet:   gateway,
		Metrics:  m,
		Logger:   logger.Named("commands"),
	})
	tipbot := bot.New(cfg, bot.Deps{
		Conn:       client,
		Dispatcher: dispatcher,
		Notices:    verifier,
		Wallet:     gateway,
		Metrics:    m,
		Logger:     logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return tipbot.Run(gctx)
	})

	if cfg.Admin.Enabled {
		server := api.New(cfg, api.Deps{
			Chat:     client,
			Verifier: verifier,
			Wallet:   gateway,
			Metrics:  m,
			Logger:   logger.Named("api"),
		})
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("stopped with error", zap.Error(err))
		return err
	}
	logger.Info("bye")
	return nil
}
