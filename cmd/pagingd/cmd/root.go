// Package cmd wires pagingd's command-line surface, following
// ColonelBlimp-cwdecoder/cmd/root.go's cobra + viper layering: flags
// bind into viper, viper merges over a config file and defaults, and
// runDecoder (here runCoordinator) builds the real components from the
// resulting settings.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldops/pagingcore/internal/clock"
	"github.com/fieldops/pagingcore/internal/config"
	"github.com/fieldops/pagingcore/internal/coordinator"
	"github.com/fieldops/pagingcore/internal/statusapi"
	"github.com/fieldops/pagingcore/internal/telemetry"
	"github.com/fieldops/pagingcore/pkg/adapters/audiooutput"
	"github.com/fieldops/pagingcore/pkg/adapters/blobstore"
	"github.com/fieldops/pagingcore/pkg/adapters/capture"
	"github.com/fieldops/pagingcore/pkg/adapters/discovery"
	"github.com/fieldops/pagingcore/pkg/adapters/metadatastore"
	"github.com/fieldops/pagingcore/pkg/adapters/speakerclient"
)

var rootCmd = &cobra.Command{
	Use:   "pagingd",
	Short: "Paging call coordinator",
	Long:  "Listens for paging audio, routes it to networked speakers, and saves each call as a recording.",
	RunE:  runCoordinator,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().Int("threshold", 5, "audio detection threshold, 0-100")
	rootCmd.PersistentFlags().String("db", "pagingd.db", "metadata database path")
	rootCmd.PersistentFlags().String("recordings-dir", "recordings", "directory for saved call recordings")
	rootCmd.PersistentFlags().String("status-addr", ":8090", "status/control HTTP listen address")
	rootCmd.PersistentFlags().Bool("discovery-only", false, "browse for speakers and print what was found, then exit")

	cobra.CheckErr(viper.BindPFlag("audio_threshold", rootCmd.PersistentFlags().Lookup("threshold")))
	cobra.CheckErr(viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db")))
	cobra.CheckErr(viper.BindPFlag("recordings_dir", rootCmd.PersistentFlags().Lookup("recordings-dir")))
	cobra.CheckErr(viper.BindPFlag("status_addr", rootCmd.PersistentFlags().Lookup("status-addr")))
	cobra.CheckErr(viper.BindPFlag("discovery_only", rootCmd.PersistentFlags().Lookup("discovery-only")))
}

func initConfig() {
	config.InitDefaults()
	if err := config.Init(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// Execute runs the root command, following the teacher's own
// fmt.Fprintf-then-os.Exit(1) failure path.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "execution error: %v\n", err)
		os.Exit(1)
	}
}

func runCoordinator(_ *cobra.Command, _ []string) error {
	logger := telemetry.New()
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	runtimeCfg, err := config.LoadRuntime()
	if err != nil {
		return fmt.Errorf("load runtime config: %w", err)
	}

	browser := discovery.New(logger)
	go func() {
		if err := browser.Run(ctx); err != nil {
			logger.Warn("speaker discovery stopped", "err", err)
		}
	}()
	// Give mDNS a moment to collect responses before the first fleet is
	// built; speakers that appear later still update the shared Browser,
	// but the hardware state machine's speaker ID list below is fixed at
	// startup (spec.md §5's speaker roster is configuration, not runtime
	// state).
	time.Sleep(1500 * time.Millisecond)
	discovered := browser.Snapshot()

	if runtimeCfg.DiscoveryOnly {
		for _, sp := range discovered {
			fmt.Printf("%s\t%s\n", sp.ID, sp.ControlURL())
		}
		return nil
	}

	speakers := make([]config.Speaker, 0, len(discovered))
	for _, sp := range discovered {
		speakers = append(speakers, config.Speaker{ID: sp.ID})
	}

	cfg, err := config.Load(speakers)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tap, err := capture.New(cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("init capture: %w", err)
	}
	defer tap.Close()

	fleet := speakerclient.New(cfg.Speakers, browser.EndpointFor)

	if err := os.MkdirAll(runtimeCfg.RecordingsDir, 0o755); err != nil {
		return fmt.Errorf("prepare recordings dir: %w", err)
	}
	blobs, err := blobstore.New(runtimeCfg.RecordingsDir, runtimeCfg.BlobBaseURL)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	meta, err := metadatastore.New(runtimeCfg.DBPath)
	if err != nil {
		return fmt.Errorf("init metadata store: %w", err)
	}
	defer meta.Close()

	idGen := func() string { return uuid.NewString() }

	// The ramp window in cfg.Ramp is expressed in the session timezone
	// (spec.md §4.6 step 3), not the host process's local zone.
	sessionLoc, err := time.LoadLocation(cfg.TimezoneID)
	if err != nil {
		return fmt.Errorf("load session timezone: %w", err)
	}
	wallHourFn := func() int { return time.Now().In(sessionLoc).Hour() }

	coord := coordinator.New(cfg, tap, fleet, blobs, meta, clock.New(), logger, idGen, wallHourFn)

	output, err := audiooutput.Start(coord.Playback(), cfg.SampleRate, cfg.CallbackSize, func() bool {
		return coord.Stats().State != "idle"
	})
	if err != nil {
		return fmt.Errorf("init audio output: %w", err)
	}
	defer output.Close()

	status := statusapi.New(coord, logger)
	go status.Run(ctx, runtimeCfg.StatusAddr)
	logger.Info("status surface listening", "addr", runtimeCfg.StatusAddr)

	logger.Info("pagingd running", "sample_rate", cfg.SampleRate, "speakers", len(cfg.Speakers))
	return coord.Run(ctx)
}
