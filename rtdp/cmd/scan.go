package cmd

import (
	"fmt"
	"os"

	"github.com/JeffersonLab/SRO-RTDP-sub001/datarecording"
	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	"github.com/JeffersonLab/SRO-RTDP-sub001/rocscan"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan FILE...",
	Short: "List the source ids found in recorded evio files.",
	Long: "`scan run_001.evio` reads built events until no new source id " +
		"shows up for a while and prints the ids found. A file that cannot " +
		"be read is reported and skipped.",
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f := cmd.Flags()
		cfg := rocscan.DefaultConfig()

		cfg.MaxEvents, _ = f.GetInt("max-events")
		cfg.ConvergenceWindow, _ = f.GetInt("window")
		cfg.NoiseCeiling, _ = f.GetInt("noise-ceiling")
		asJSON, _ := f.GetBool("json")
		verbose, _ := f.GetBool("verbose")
		recordPath, _ := f.GetString("record")

		if err := cfg.Validate(); err != nil {
			fatal("%v", err)
		}

		var recorder datarecording.DataRecorder
		if recordPath != "" {
			recorder = datarecording.New(recordPath)
		}

		for _, file := range args {
			report := scanFile(cfg, file, verbose)

			var err error
			if asJSON {
				err = report.WriteJSON(os.Stdout)
			} else {
				err = report.WriteText(os.Stdout)
			}

			if err != nil {
				fatal("%v", err)
			}

			if recorder != nil {
				datarecording.RecordScan(recorder, report)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	def := rocscan.DefaultConfig()
	f := scanCmd.Flags()

	f.Int("max-events", def.MaxEvents, "stop after this many events, 0 reads all")
	f.Int("window", def.ConvergenceWindow,
		"stop after this many events without a new id, 0 reads all")
	f.Int("noise-ceiling", def.NoiseCeiling, "ignore ids above this value")
	f.Bool("json", false, "print the reports as JSON")
	f.BoolP("verbose", "v", false, "print the ids of every physics event")
	f.String("record", "", "record the ids found into this SQLite database")
}

func scanFile(cfg rocscan.Config, file string, verbose bool) rocscan.Report {
	f, err := os.Open(file)
	if err != nil {
		return rocscan.NewReport(file, rocscan.State{}, err)
	}
	defer f.Close()

	scanner := rocscan.NewScanner(cfg)
	if verbose {
		scanner.AcceptHook(&eventPrinter{})
	}

	state, err := scanner.Run(evio.NewReader(f).Events())

	return rocscan.NewReport(file, state, err)
}

// eventPrinter dumps the ids of each physics event as the scan reads it.
type eventPrinter struct {
	events int
}

func (p *eventPrinter) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case rocscan.HookPosEventSkipped, rocscan.HookPosTriggerRejected:
		p.events++
	case rocscan.HookPosEventAccepted:
		p.events++

		result := ctx.Detail.(rocscan.StepResult)
		fmt.Fprintf(os.Stderr, "event %d: ids %v, new %v\n",
			p.events, result.EventIDs, result.NewIDs)
	case rocscan.HookPosSourceFound:
		fmt.Fprintf(os.Stderr, "found source %d\n", ctx.Item)
	case rocscan.HookPosConverged:
		fmt.Fprintf(os.Stderr, "no new source in %d events, stopping\n",
			ctx.Item.(rocscan.State).SinceLastNew)
	}
}
