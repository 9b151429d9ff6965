package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/aggregator"
	"github.com/JeffersonLab/SRO-RTDP-sub001/config"
	"github.com/JeffersonLab/SRO-RTDP-sub001/datarecording"
	"github.com/JeffersonLab/SRO-RTDP-sub001/monitoring"
	"github.com/JeffersonLab/SRO-RTDP-sub001/tracing"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Admit the expected sources and merge their streams.",
	Long: "`aggregate -c 3 -x run42` listens for 3 readout controllers and " +
		"starts merging once all of them are connected.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg := aggregateConfig(cmd)

		if err := cfg.Resolve(lookupChain(cfg.EnvFile), os.Stderr); err != nil {
			fatal("%v", err)
		}

		runAggregator(cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	def := config.Default()
	f := aggregateCmd.Flags()

	f.IntP("port", "p", def.Port, "TCP or UDP port to listen on")
	f.IntP("count", "c", def.ExpectedSourceCount,
		fmt.Sprintf("number of sources to wait for (%d..%d)",
			config.MinSources, config.MaxSources))
	f.StringP("expid", "x", "",
		"experiment id, defaults to $"+config.ExperimentIDVariable)
	f.StringP("file", "f", def.OutputTarget, "file the merged stream is written to")
	f.StringP("name", "n", def.ComponentName, "name of the aggregator")
	f.Bool("one", false, "a single upstream connection carries all the streams")
	f.BoolP("verbose", "v", false, "print debug output")
	f.Bool("udp", false, "receive datagrams instead of TCP streams")
	f.Duration("admission-timeout", def.AdmissionTimeout,
		"give up if the sources are not all connected by then, 0 waits forever")
	f.Duration("handshake-timeout", def.HandshakeTimeout,
		"drop connections that do not complete the handshake in time")
	f.String("policy", def.SaturationPolicy.String(),
		"what happens to connections after saturation: reject or stop-listening")
	f.Int("monitor-port", 0, "serve the monitor on this port, 0 turns it off")
	f.Bool("open-monitor", false, "open the monitor in a browser")
	f.String("record", "", "record admissions into this SQLite database")
	f.Bool("trace", false, "trace how long records stay in the buffers")
	f.String("env-file", def.EnvFile, "file holding variables missing from the environment")
}

func aggregateConfig(cmd *cobra.Command) config.Config {
	f := cmd.Flags()
	cfg := config.Default()

	cfg.Port, _ = f.GetInt("port")
	cfg.ExpectedSourceCount, _ = f.GetInt("count")
	cfg.ExperimentID, _ = f.GetString("expid")
	cfg.OutputTarget, _ = f.GetString("file")
	cfg.ComponentName, _ = f.GetString("name")
	cfg.MultiplexedSingleUpstream, _ = f.GetBool("one")
	cfg.Verbose, _ = f.GetBool("verbose")
	cfg.AdmissionTimeout, _ = f.GetDuration("admission-timeout")
	cfg.HandshakeTimeout, _ = f.GetDuration("handshake-timeout")
	cfg.MonitorPort, _ = f.GetInt("monitor-port")
	cfg.RecordPath, _ = f.GetString("record")
	cfg.EnvFile, _ = f.GetString("env-file")

	if udp, _ := f.GetBool("udp"); udp {
		cfg.TransportMode = admission.TransportUDP
	}

	policy, _ := f.GetString("policy")

	p, err := admission.ParsePolicy(policy)
	if err != nil {
		fatal("%v", err)
	}

	cfg.SaturationPolicy = p

	return cfg
}

func runAggregator(cmd *cobra.Command, cfg config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := aggregator.MakeBuilder().WithConfig(cfg)

	var residence *tracing.AverageTimeTracer
	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		residence = tracing.NewAverageTimeTracer(tracing.WallClock(), nil)
		builder = builder.WithTracers(residence)
	}

	if cfg.MonitorPort > 0 {
		monitor := monitoring.NewMonitor().
			WithPortNumber(cfg.MonitorPort).
			WithLevelAnalyzer(monitoring.NewLevelAnalyzer(monitoring.WallClock()))
		if residence != nil {
			monitor.WithResidenceTracer(residence)
		}

		url, err := monitor.StartServer()
		if err != nil {
			fatal("cannot start the monitor: %v", err)
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			_ = monitor.Close(shutdownCtx)
		}()

		if open, _ := cmd.Flags().GetBool("open-monitor"); open {
			if err := browser.OpenURL(url); err != nil {
				fmt.Fprintf(os.Stderr, "cannot open %s: %v\n", url, err)
			}
		}

		builder = builder.WithMonitor(monitor)
	}

	if cfg.RecordPath != "" {
		recorder := datarecording.New(cfg.RecordPath)
		builder = builder.WithRecorder(recorder)

		if residence != nil {
			builder = builder.WithTracers(tracing.NewDBTracer(tracing.WallClock(), recorder))
		}
	}

	agg := builder.Build()

	fmt.Fprintf(os.Stderr, "%s: experiment %s, waiting for %d sources on port %d/%s\n",
		cfg.ComponentName, cfg.ExperimentID, cfg.ExpectedSourceCount,
		cfg.Port, cfg.TransportMode)

	err := agg.Run(ctx)

	switch {
	case err == nil:
		if drain, ok := agg.Merger().(*aggregator.DrainMerger); ok {
			fmt.Fprintf(os.Stderr, "%s: wrote %d records (%d bytes) to %s\n",
				cfg.ComponentName, drain.Records(), drain.Bytes(), cfg.OutputTarget)
		}

		if residence != nil {
			fmt.Fprintf(os.Stderr, "%s: %d records spent %v on average in a buffer, %v at most\n",
				cfg.ComponentName, residence.TotalCount(),
				residence.AverageTime(), residence.MaxTime())
		}
	case errors.Is(err, context.Canceled), errors.Is(err, admission.ErrShutdown):
		fmt.Fprintf(os.Stderr, "%s: interrupted\n", cfg.ComponentName)
	default:
		fatal("%v", err)
	}
}
