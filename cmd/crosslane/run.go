package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/mglescz/crosslane/internal/chain"
	"github.com/mglescz/crosslane/internal/config"
	"github.com/mglescz/crosslane/internal/health"
	"github.com/mglescz/crosslane/internal/logging"
	"github.com/mglescz/crosslane/internal/metrics"
	"github.com/mglescz/crosslane/internal/notify"
	"github.com/mglescz/crosslane/internal/relay"
	"github.com/mglescz/crosslane/internal/store"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one cycle and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Observe events without sending transactions or touching the record store")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the transfer reconciliation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = "info"
		}
		log := logging.NewWithLevel(logLevel)
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		srcClient, err := chain.NewRPCClient(cfg.Source.RPCURL)
		if err != nil {
			return fmt.Errorf("dial source rpc: %w", err)
		}
		dstClient, err := chain.NewRPCClient(cfg.Destination.RPCURL)
		if err != nil {
			return fmt.Errorf("dial destination rpc: %w", err)
		}

		bridge := common.HexToAddress(cfg.Source.BridgeContract)
		escrow := common.HexToAddress(cfg.Destination.EscrowContract)

		scanner := chain.NewScanner(srcClient, bridge, cfg.Source.ChunkSize)
		oracle := chain.NewOracle(srcClient, bridge)

		payoutKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Destination.PrivateKey, "0x"))
		if err != nil {
			return fmt.Errorf("parse payout key: %w", err)
		}
		submitter := relay.NewSubmitter(dstClient, escrow, payoutKey,
			cfg.Destination.GasLimit, cfg.Relay.ConfirmationTimeout.Std(),
			cfg.Relay.PayoutAttempts, log)

		var completer relay.CompletionStage
		if cfg.Completion.Enabled {
			signerKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Completion.SignerKey, "0x"))
			if err != nil {
				return fmt.Errorf("parse completion signer key: %w", err)
			}
			completer = relay.NewCompleter(srcClient, oracle, bridge, escrow, signerKey,
				cfg.Destination.GasLimit, cfg.Relay.ConfirmationTimeout.Std(), log)
			log.Info("completion stage enabled",
				"signer", crypto.PubkeyToAddress(signerKey.PublicKey))
		}

		var notifier relay.Notifier
		if cfg.Notify != nil {
			webhook, err := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Method)
			if err != nil {
				return fmt.Errorf("build notifier: %w", err)
			}
			notifier = webhook
			log.Info("failure notifications enabled", "url", cfg.Notify.WebhookURL)
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			submitter.OnRetry(func(attempt int, err error) {
				mtr.PayoutRetry()
				log.Warn("payout attempt failed, retrying",
					"attempt", attempt, "error", err)
			})
			log.Info("metrics enabled", "addr", flagMetrics)
		}

		if flagHealth != "" {
			rpcChecker := health.NewRPCChecker(map[string]chain.HeadClient{
				"source":      srcClient,
				"destination": dstClient,
			})
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:    st.Ping,
				RPCStatus: rpcChecker.Status,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagMetrics != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}

		runner := relay.NewRunner(scanner, oracle, st, submitter, log, relay.RunnerOptions{
			PollInterval: cfg.Relay.PollInterval.Std(),
			EventDelay:   cfg.Relay.EventDelay.Std(),
			Lookback:     cfg.Source.LookbackBlocks,
			DryRun:       flagDryRun,
			Completer:    completer,
			Notifier:     notifier,
			Metrics:      mtr,
		})

		if flagOnce {
			cursor, err := runner.StartCursor(ctx)
			if err != nil {
				return fmt.Errorf("derive start cursor: %w", err)
			}
			if _, err := runner.Cycle(ctx, cursor); err != nil {
				return fmt.Errorf("cycle: %w", err)
			}
			log.Info("cycle complete", "dry_run", flagDryRun)
			return nil
		}

		return runner.Run(ctx)
	},
}
