// Package cmd provides the command-line interface of tcpgoodput.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/tcpgoodput/datarecording"
	"github.com/sarchlab/tcpgoodput/experiment"
	"github.com/sarchlab/tcpgoodput/monitoring"
	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
	"github.com/sarchlab/tcpgoodput/tracing"
)

// Environment variables that provide defaults for flags.
const (
	EnvRecord      = "TCPGOODPUT_RECORD"
	EnvMonitorPort = "TCPGOODPUT_MONITOR_PORT"
)

type options struct {
	config experiment.Config

	variant     string
	record      string
	manifest    string
	traceEvents bool
	traceCwnd   bool
	monitor     bool
	monitorPort int
	openBrowser bool
}

// NewRootCmd creates the command that runs one experiment.
func NewRootCmd() *cobra.Command {
	opts := &options{config: experiment.DefaultConfig()}

	rootCmd := &cobra.Command{
		Use: "tcpgoodput",
		Short: "tcpgoodput runs bulk TCP flows through a dumbbell and " +
			"reports the goodput of each flow.",
		Long: `tcpgoodput connects nFlows sender/receiver pairs through two ` +
			`routers joined by a 1 Mbps link, runs them for 10 simulated ` +
			`seconds and prints one goodput line per flow.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyEnvDefaults(cmd, opts)
			return run(cmd, opts)
		},
	}

	f := rootCmd.Flags()
	f.Uint32Var(&opts.config.FlowCount, "nFlows", opts.config.FlowCount,
		"number of sender/receiver pairs")
	f.Uint32Var(&opts.config.SegmentSizeBytes, "segSize",
		opts.config.SegmentSizeBytes, "TCP segment size in bytes")
	f.Uint32Var(&opts.config.QueueCapacityBytes, "queueSize",
		opts.config.QueueCapacityBytes, "capacity of every device queue in bytes")
	f.Uint32Var(&opts.config.WindowSizeBytes, "windowSize",
		opts.config.WindowSizeBytes, "largest receive window in bytes")
	f.StringVar(&opts.variant, "variant", string(tcp.Tahoe),
		"TCP variant, Tahoe or Reno")
	f.StringVar(&opts.record, "record", "",
		"store results and traces in this SQLite file (env "+EnvRecord+")")
	f.StringVar(&opts.manifest, "manifest", "",
		"write a run manifest, .yaml or .json")
	f.BoolVar(&opts.traceEvents, "trace-events", false,
		"log every simulation event to stderr")
	f.BoolVar(&opts.traceCwnd, "trace-cwnd", false,
		"trace congestion windows, into the --record file or as CSV on stderr")
	f.BoolVar(&opts.monitor, "monitor", false,
		"serve the monitoring page while the experiment runs")
	f.IntVar(&opts.monitorPort, "monitor-port", 0,
		"port of the monitoring page, random if 0 (env "+EnvMonitorPort+")")
	f.BoolVar(&opts.openBrowser, "open-browser", false,
		"open the monitoring page in a browser")

	rootCmd.AddCommand(newReportCmd())

	return rootCmd
}

// Execute loads the optional .env file, runs the command line and exits
// with a non-zero status if anything failed.
func Execute() {
	_ = godotenv.Load()

	err := NewRootCmd().Execute()
	if err != nil {
		log.Print(err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func applyEnvDefaults(cmd *cobra.Command, opts *options) {
	if !cmd.Flags().Changed("record") {
		opts.record = os.Getenv(EnvRecord)
	}

	if !cmd.Flags().Changed("monitor-port") {
		if p, err := strconv.Atoi(os.Getenv(EnvMonitorPort)); err == nil {
			opts.monitorPort = p
		}
	}
}

func run(cmd *cobra.Command, opts *options) error {
	variant, err := tcp.ParseVariant(opts.variant)
	if err != nil {
		return err
	}

	engine := timing.NewSerialEngine()
	b := experiment.MakeBuilder().
		WithConfig(opts.config).
		WithVariant(variant).
		WithEngine(engine)

	if opts.record != "" {
		name := datarecording.FileName(opts.record)
		if _, err := os.Stat(name); err == nil {
			return fmt.Errorf("%s already exists", name)
		}

		recorder := datarecording.New(opts.record)
		defer recorder.Close()

		b = b.WithDataRecorder(recorder)
		if opts.traceCwnd {
			b = b.WithCwndTracing()
		}
	} else if opts.traceCwnd {
		b = b.WithTracers(tracing.NewCSVTraceWriter(engine, cmd.ErrOrStderr()))
	}

	if opts.traceEvents {
		logger := log.New(cmd.ErrOrStderr(), "", 0)
		b = b.WithEventLogger(timing.NewEventLogger(logger))
	}

	if opts.monitor {
		m, err := startMonitor(engine, opts)
		if err != nil {
			return err
		}
		defer stopMonitor(m)

		b = b.WithMonitor(m)
	}

	e, err := b.Build()
	if err != nil {
		return err
	}

	// The lines are held back until the manifest is on disk, so a failed
	// run prints nothing.
	var lines bytes.Buffer
	if _, err := e.Run(&lines); err != nil {
		return err
	}

	if opts.manifest != "" {
		if err := e.Manifest().WriteToFile(opts.manifest); err != nil {
			return err
		}
	}

	_, err = lines.WriteTo(cmd.OutOrStdout())

	return err
}

// startMonitor serves the monitor before the run starts, so the engine is
// registered right away.
func startMonitor(
	engine *timing.SerialEngine,
	opts *options,
) (*monitoring.Monitor, error) {
	m := monitoring.NewMonitor()
	if opts.monitorPort > 0 {
		m.WithPortNumber(opts.monitorPort)
	}

	if opts.openBrowser {
		m.WithBrowser()
	}

	m.RegisterEngine(engine)

	if _, err := m.StartServer(); err != nil {
		return nil, err
	}

	return m, nil
}

func stopMonitor(m *monitoring.Monitor) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := m.StopServer(ctx); err != nil {
		log.Printf("stopping monitor: %v", err)
	}
}
