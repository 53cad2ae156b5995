package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/buntdb"

	"github.com/lcerda/tidebot/bot"
	"github.com/lcerda/tidebot/core"
	"github.com/lcerda/tidebot/exchange/binance"
	zl "github.com/lcerda/tidebot/logger/zerolog"
	"github.com/lcerda/tidebot/monitor"
	"github.com/lcerda/tidebot/notification"
	"github.com/lcerda/tidebot/order"
	"github.com/lcerda/tidebot/position"
	"github.com/lcerda/tidebot/scheduler"
	"github.com/lcerda/tidebot/store"
	"github.com/lcerda/tidebot/validator"
)

// Command line flags
var (
	configPath string

	// Download command flags
	downloadSymbol    string
	downloadTimeframe string
	downloadDays      int
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "tidebot",
		Short:   "Automated perpetual futures trading service",
		Version: "1.0.0",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tidebot.yml", "Config file path")

	rootCmd.AddCommand(buildRunCmd())
	rootCmd.AddCommand(buildDownloadCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading service",
		RunE:  runService,
	}
}

func buildDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical bars into the warm tier",
		RunE:  runDownload,
	}

	downloadCmd.Flags().StringVarP(&downloadSymbol, "symbol", "s", "", "Symbol (e.g. BTCUSDT)")
	downloadCmd.Flags().StringVarP(&downloadTimeframe, "timeframe", "t", "5m", "Timeframe (e.g. 5m)")
	downloadCmd.Flags().IntVarP(&downloadDays, "days", "d", 30, "Number of days to download")
	downloadCmd.MarkFlagRequired("symbol")

	return downloadCmd
}

func newLogger() (core.Logger, error) {
	logger, err := zl.New("info", time.RFC3339, true, false)
	if err != nil {
		return nil, err
	}
	return zl.NewAdapter(logger.Logger), nil
}

func runService(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// State db: cooldown stamps and the signal journal.
	stateDB, err := buntdb.Open(cfg.Store.StatePath)
	if err != nil {
		return fmt.Errorf("failed to open state db: %w", err)
	}
	defer stateDB.Close()

	warm, err := store.NewWarmStore(cfg.Store.WarmPath, store.DefaultSQLConfig())
	if err != nil {
		return err
	}
	cold, err := store.NewColdStore(cfg.Store.ColdPath, store.DefaultSQLConfig())
	if err != nil {
		return err
	}

	tiered := store.NewTieredStore(log,
		store.WithWarmTier(warm),
		store.WithColdTier(cold),
		store.WithHotCapacity(cfg.Store.MaxHotBarsPerTF),
	)
	defer tiered.Close()

	exchangeOptions := []binance.Option{
		binance.WithCredentials(cfg.Exchange.APIKey, cfg.Exchange.Secret),
	}
	if cfg.Exchange.Testnet {
		exchangeOptions = append(exchangeOptions, binance.WithTestnet())
	}
	exchange, err := binance.NewFutures(ctx, log, exchangeOptions...)
	if err != nil {
		return err
	}
	if err := exchange.SetLeverage(ctx, cfg.Exchange.Symbol, cfg.Exchange.Leverage); err != nil {
		return err
	}

	cooldown := monitor.NewCooldownTracker(cfg.Cooldown(), stateDB)
	mon := monitor.NewMonitor(
		log, exchange, tiered,
		monitor.NewReboundDetector(), cooldown,
		cfg.Exchange.Symbol, cfg.Store.WorkingTimeframe,
		cfg.Scoring, cfg.Monitor,
	)

	journal, err := monitor.NewSignalJournal(stateDB)
	if err != nil {
		return err
	}
	mon.Subscribe(journal)

	positions := position.NewManager(log, cfg.Stop)
	orders := order.NewService(log, exchange)
	val := validator.NewSignalValidator(log, cfg.Validator)

	engine := bot.New(log, cfg, exchange, mon, val, orders, positions)

	if cfg.Telegram.Enabled {
		notifier, err := notification.NewTelegram(cfg.Telegram, log,
			notification.WithStatusProvider(mon),
			notification.WithSummaryProvider(engine.Summary()),
		)
		if err != nil {
			return err
		}
		engine.AttachNotifier(notifier)
		mon.Subscribe(notifier)
		go notifier.Start()
	}

	go mon.Start(ctx)
	go runAggregation(ctx, log, tiered, cfg)

	log.Infof("tidebot started: %s %s, cycle every %dm",
		cfg.Exchange.Symbol, cfg.Store.WorkingTimeframe, cfg.Cadence.CycleIntervalMinutes)

	scheduler.New(log, cfg.Cadence).Run(ctx, engine.Cycle)

	fmt.Println(engine.Summary())
	return nil
}

// runAggregation periodically folds working-timeframe bars into hourly
// aggregates on the cold tier.
func runAggregation(ctx context.Context, log core.Logger, tiered *store.TieredStore, cfg core.Config) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tiered.AggregateAndStore(ctx, cfg.Exchange.Symbol, cfg.Store.WorkingTimeframe, "1h")
			if err != nil {
				log.WithError(err).Warn("bar aggregation failed")
			} else if n > 0 {
				log.Debugf("aggregated %d hourly bars", n)
			}
		}
	}
}

// runDownload backfills the warm tier with historical bars so the first
// live run starts with full indicator windows.
func runDownload(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	cfg := core.DefaultConfig()
	ctx := cmd.Context()

	tfDur, err := core.TimeframeDuration(downloadTimeframe)
	if err != nil {
		return err
	}

	warm, err := store.NewWarmStore(cfg.Store.WarmPath, store.DefaultSQLConfig())
	if err != nil {
		return err
	}
	defer warm.Close()

	exchange, err := binance.NewFutures(ctx, log)
	if err != nil {
		return err
	}

	const batch = 1000
	now := time.Now()
	cursor := now.Add(-time.Duration(downloadDays) * 24 * time.Hour)

	downloaded := 0
	for cursor.Before(now) {
		end := cursor.Add(time.Duration(batch) * tfDur)
		if end.After(now) {
			end = now
		}

		bars, err := exchange.BarsByPeriod(ctx, downloadSymbol, downloadTimeframe, cursor, end)
		if err != nil {
			return err
		}
		if len(bars) == 0 {
			cursor = end
			continue
		}

		if err := warm.Insert(ctx, downloadSymbol, downloadTimeframe, bars); err != nil {
			return err
		}
		downloaded += len(bars)
		log.Infof("downloaded %d bars for %s, through %s",
			downloaded, downloadSymbol, end.Format(time.RFC3339))

		cursor = time.UnixMilli(bars[len(bars)-1].Timestamp).Add(tfDur)
	}

	log.Infof("download complete: %d bars", downloaded)
	return nil
}
