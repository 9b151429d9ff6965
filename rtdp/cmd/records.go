package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/JeffersonLab/SRO-RTDP-sub001/datarecording"
	"github.com/JeffersonLab/SRO-RTDP-sub001/tracing"
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records FILE [TABLE]",
	Short: "Show what a run or a scan recorded.",
	Long: "`records run.sqlite3` lists the tables of a recording with their " +
		"row counts. `records run.sqlite3 admission` prints the rows of one " +
		"table as JSON.",
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		reader, err := openRecording(args[0])
		if err != nil {
			fatal("%v", err)
		}
		defer reader.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if len(args) == 1 {
			err = writeTables(ctx, os.Stdout, reader)
		} else {
			err = writeRows(ctx, os.Stdout, reader, args[1], recordsParams(cmd))
		}

		if err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)

	f := recordsCmd.Flags()
	f.String("where", "", "SQL condition the rows must meet, e.g. \"CodaID = 3\"")
	f.String("order", "rowid", "SQL ordering of the rows")
	f.Int("limit", 0, "print at most this many rows, 0 prints all")
	f.Int("offset", 0, "skip this many rows, used with --limit")
}

func recordsParams(cmd *cobra.Command) datarecording.QueryParams {
	f := cmd.Flags()

	var p datarecording.QueryParams
	p.Where, _ = f.GetString("where")
	p.OrderBy, _ = f.GetString("order")
	p.Limit, _ = f.GetInt("limit")
	p.Offset, _ = f.GetInt("offset")

	if p.Limit < 0 || p.Offset < 0 {
		fatal("--limit and --offset cannot be negative")
	}

	return p
}

// openRecording opens a recording with the trace table mapped as well.
func openRecording(file string) (datarecording.DataReader, error) {
	reader, err := datarecording.OpenRecording(file)
	if err != nil {
		return nil, err
	}

	reader.MapTable(tracing.TraceTable, tracing.TraceEntry{})

	return reader, nil
}

func writeTables(ctx context.Context, w io.Writer, reader datarecording.DataReader) error {
	tables, err := reader.ListTables(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS")

	for _, t := range tables {
		n, err := reader.Count(ctx, t)
		if err != nil {
			return err
		}

		fmt.Fprintf(tw, "%s\t%d\n", t, n)
	}

	return tw.Flush()
}

type rowsRsp struct {
	Table string `json:"table"`
	Total int    `json:"total"`
	Rows  []any  `json:"rows"`
}

func writeRows(
	ctx context.Context,
	w io.Writer,
	reader datarecording.DataReader,
	table string,
	params datarecording.QueryParams,
) error {
	rows, total, err := reader.Query(ctx, table, params)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(rowsRsp{Table: table, Total: total, Rows: rows})
}
