package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mshull/stratsim/backtest"
	"github.com/mshull/stratsim/config"
	"github.com/mshull/stratsim/execution"
	"github.com/mshull/stratsim/internal/logging"
	"github.com/mshull/stratsim/journal"
	"github.com/mshull/stratsim/metrics"
	"github.com/mshull/stratsim/portfolio"
	"github.com/mshull/stratsim/risk"
	"github.com/mshull/stratsim/stops"
	"github.com/mshull/stratsim/strategy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a strategy over a bar dataset",
	Long: `Run replays a CSV of OHLCV bars (time,symbol,open,high,low,close,volume)
through the configured strategy and prints a run summary.

Example:
  stratsim run --config run.yaml --bars data/eurusd_h1.csv`,
	RunE: runRun,
}

var (
	runConfigPath string
	runBarsPath   string
	runBalance    float64
	runCloseEnd   bool
	runLogLevel   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to YAML/JSON run config (default: built-in defaults)")
	runCmd.Flags().StringVarP(&runBarsPath, "bars", "b", "", "path to bar CSV (overrides config data.csv_path)")
	runCmd.Flags().Float64Var(&runBalance, "balance", 0, "starting balance (overrides config account.balance)")
	runCmd.Flags().BoolVar(&runCloseEnd, "close-end", true, "close all open positions at end of data")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "log level (overrides config log.level)")
}

func runRun(cmd *cobra.Command, args []string) error {
	// .env is optional; flags and config still win.
	_ = godotenv.Load()

	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.LoadFromFile(runConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if runBarsPath != "" {
		cfg.Data.CSVPath = runBarsPath
	}
	if runBalance > 0 {
		cfg.Account.Balance = runBalance
	}
	if runLogLevel != "" {
		cfg.Log.Level = runLogLevel
	}
	if cfg.Data.CSVPath == "" {
		return fmt.Errorf("no bar data: set --bars or data.csv_path in the config")
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	resolver, err := stops.NewResolver(cfg.StopPolicy())
	if err != nil {
		return err
	}
	eng, err := risk.NewEngine(cfg.RiskConfig())
	if err != nil {
		return err
	}
	exec, err := execution.NewModel(cfg.ExecutionConfig())
	if err != nil {
		return err
	}
	port := portfolio.New(cfg.PortfolioConfig(), cfg.Account.Balance)

	strat, err := strategy.DefaultRegistry().New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return err
	}

	jnl, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer jnl.Close()

	feed, err := backtest.NewCSVBarsFeed(cfg.Data.CSVPath)
	if err != nil {
		return fmt.Errorf("open bars: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		srv := m.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner := &backtest.Runner{
		Feed:      feed,
		Strategy:  strat,
		Resolver:  resolver,
		Risk:      eng,
		Exec:      exec,
		Portfolio: port,
		Journal:   jnl,
		Metrics:   m,
		Log:       log,
		Options: backtest.Options{
			CloseEnd:  runCloseEnd,
			ATRPeriod: cfg.Strategy.ATRPeriod,
		},
	}

	res, err := runner.Run(ctx)
	if err != nil {
		if backtest.IsBlowup(err) {
			log.Error("account blown up", zap.Error(err))
		}
		return err
	}

	fmt.Printf("Run complete: %s, %s -> %s\n", cfg.Strategy.Name,
		res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))
	fmt.Printf("  Signals:      %d (approved %d, rejected %d, scaled %d)\n",
		res.Signals, res.Approved, res.Rejected, res.Scaled)
	fmt.Printf("  Fills:        %d (liquidations %d)\n", res.Fills, res.Liquidations)
	fmt.Printf("  Final cash:   %.2f %s\n", res.Cash, cfg.Account.Currency)
	fmt.Printf("  Final equity: %.2f %s\n", res.Equity, cfg.Account.Currency)
	return nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "", "memory":
		return journal.NewMemory(), nil
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	case "csv":
		return journal.NewCSV(jc.DecisionsFile, jc.FillsFile, jc.EquityFile)
	default:
		return nil, fmt.Errorf("unknown journal type %q", jc.Type)
	}
}
