package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	orderPostgres "github.com/frahmantamala/settlement/internal/order/postgres"
	"github.com/frahmantamala/settlement/internal/pix"
	"github.com/frahmantamala/settlement/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers such as the PIX expiry sweep.`,
}

var pixSweepCmd = &cobra.Command{
	Use:   "pix-sweep",
	Short: "Expire unpaid PIX codes past their deadline",
	Long:  `Periodically marks pending PIX codes as expired once their TTL has passed. Orders are left pending.`,
	Run: func(cmd *cobra.Command, args []string) {
		startPixSweep()
	},
}

var (
	sweepInterval time.Duration
	sweepOnce     bool
)

func startPixSweep() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.App.Env, config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := initDB(ctx, config.Database, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gdb, err := initGorm(db, config.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize gorm: %v\n", err)
		os.Exit(1)
	}

	// the sweep never issues codes, so it needs no cart resolver
	service := pix.NewService(pix.Config{TTL: config.Pix.TTL}, nil, orderPostgres.NewTxManager(gdb), lg)

	sweep := func() {
		if _, err := service.SweepExpired(ctx, time.Now()); err != nil {
			lg.Error("pix sweep failed", "error", err)
		}
	}

	if sweepOnce {
		sweep()
		return
	}

	interval := sweepInterval
	if interval <= 0 {
		interval = config.Pix.SweepInterval
	}
	lg.Info("pix sweep worker started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep()
	for {
		select {
		case <-ctx.Done():
			lg.Info("received signal, shutting down pix sweep worker")
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func init() {
	pixSweepCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Sweep interval (overrides config)")
	pixSweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep and exit")

	workerCmd.AddCommand(pixSweepCmd)
}
