package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/tcpgoodput/datarecording"
	"github.com/sarchlab/tcpgoodput/experiment"
	"github.com/sarchlab/tcpgoodput/tracing"
)

func newReportCmd() *cobra.Command {
	var (
		db         string
		showTables bool
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the goodput lines stored by a recorded run.",
		Long: "`report --db run.sqlite3` reads a database written with " +
			"--record and prints its goodput lines and trace counts.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return report(cmd, db, showTables)
		},
	}

	reportCmd.Flags().StringVar(&db, "db", "", "database written with --record")
	reportCmd.Flags().BoolVar(&showTables, "tables", false,
		"also count the rows of every trace table")
	_ = reportCmd.MarkFlagRequired("db")

	return reportCmd
}

func report(cmd *cobra.Command, db string, showTables bool) error {
	reader, err := datarecording.NewReader(db)
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx := cmd.Context()

	reader.MapTable(experiment.TableGoodput, experiment.GoodputRecord{})
	reader.MapTable(datarecording.TableRunInfo, datarecording.RunProperty{})
	reader.MapTable(tracing.TableQueueDrops, tracing.DropRecord{})
	reader.MapTable(tracing.TableCwnd, tracing.CwndRecord{})
	reader.MapTable(tracing.TableConnEvents, tracing.ConnEventRecord{})

	rows, _, err := reader.Query(ctx, experiment.TableGoodput,
		datarecording.QueryParams{OrderBy: "FlowIndex"})
	if err != nil {
		return fmt.Errorf("reading %s: %w", db, err)
	}

	out := cmd.OutOrStdout()
	for _, row := range rows {
		fmt.Fprintln(out, row.(*experiment.GoodputRecord).String())
	}

	if !showTables {
		return nil
	}

	tables, err := reader.ListTables(ctx)
	if err != nil {
		return err
	}

	for _, t := range tables {
		if t == experiment.TableGoodput {
			continue
		}

		_, total, err := reader.Query(ctx, t, datarecording.QueryParams{Limit: 1})
		if err != nil {
			return fmt.Errorf("reading %s: %w", t, err)
		}

		fmt.Fprintf(out, "%s %d\n", t, total)
	}

	return nil
}
