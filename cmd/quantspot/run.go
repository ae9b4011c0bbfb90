package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantspot/engine/config"
	"github.com/quantspot/engine/engine"
	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/exchange"
	"github.com/quantspot/engine/executor"
	"github.com/quantspot/engine/journal"
	"github.com/quantspot/engine/logger"
	"github.com/quantspot/engine/marketdata"
	"github.com/quantspot/engine/metrics"
)

var (
	flagStreamURL string
	flagArm       bool
)

func init() {
	cmdRun.Flags().StringVar(&flagStreamURL, "stream-url", "", "websocket market data feed (empty runs without a feed)")
	cmdRun.Flags().BoolVar(&flagArm, "arm", false, "arm live order placement for this process")
}

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run the trading engine until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log, err := logger.New()
		if err != nil {
			return err
		}

		j, err := journal.Open(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		defer j.Close()

		sink := event.NewSink(j)

		stream := marketdata.NewStream(marketdata.StreamConfig{
			URL:            flagStreamURL,
			StalenessBound: cfg.Execution.StalenessBound.Std(),
			CandleCap:      cfg.Execution.CandleLimit,
		}, log)

		opts := []engine.Option{engine.WithSink(sink)}

		var (
			eng    *engine.Engine
			armory *executor.Armory
			token  string
		)
		if cfg.Execution.Mode == config.ModeLive {
			if !flagArm {
				return fmt.Errorf("live mode refuses to start without --arm")
			}
			// Venue adapters plug in here; sim is the paper venue.
			exch := exchange.NewSim()
			armory = executor.NewArmory()
			token = armory.Arm(cfg.Execution.ArmTokenTTL.Std())
			// The token itself never reaches the journal.
			if _, err := sink.Append(event.Event{
				Level: event.Info, Type: event.TypeSecurityKeyAdded,
				Payload: map[string]any{
					"kind":        "arm_token",
					"ttl_seconds": cfg.Execution.ArmTokenTTL.Std().Seconds(),
				},
			}); err != nil {
				return err
			}

			live := executor.NewLive(j, sink, exch, armory, token,
				cfg.Exchange.TakerBPS, cfg.Exchange.MakerBPS,
				executor.WithRetry(cfg.Execution.RetryAttempts, cfg.Execution.RetryBackoff.Std()),
				executor.WithInstabilityHook(func() {
					metrics.ExchangeErrors.Inc()
					if eng != nil {
						eng.Breakers().RecordExchangeError()
					}
				}),
			)
			opts = append(opts,
				engine.WithExecutor(live),
				engine.WithReconciler(executor.NewReconciler(j, sink, exch,
					cfg.Exchange.TakerBPS, cfg.Exchange.MakerBPS)),
			)
			log.Warn("live mode armed", zap.String("token_ttl", cfg.Execution.ArmTokenTTL.Std().String()))
		}

		eng, err = engine.New(cfg, j, stream, log, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		if flagStreamURL != "" {
			g.Go(func() error { return stream.Run(gctx) })
		}
		g.Go(func() error { return eng.Run(gctx) })

		werr := g.Wait()

		// Disarm before exit so a replayed journal shows the token's
		// full lifecycle.
		if armory != nil {
			armory.Revoke(token)
			if _, err := j.AppendEvent(event.Event{
				Level: event.Info, Type: event.TypeSecurityKeyRevoked,
				Payload: map[string]any{"kind": "arm_token", "reason": "shutdown"},
			}); err != nil {
				log.Error("revoke event append failed", zap.Error(err))
			}
		}

		if werr != nil && !errors.Is(werr, context.Canceled) {
			return werr
		}
		log.Info("engine stopped")
		return nil
	},
}
