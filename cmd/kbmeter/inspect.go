package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/kbmeter/internal/acquisition"
	"github.com/rewired-gh/kbmeter/internal/config"
	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/reprocess"
	"github.com/rewired-gh/kbmeter/internal/storage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func newPortsCmd() *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and mark the ones discovery would pick",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := acquisition.ListPorts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no serial ports found")
				return nil
			}
			t := newTable("Port", "Product", "VID:PID", "Serial", "Match")
			for _, p := range ports {
				mark := ""
				if p.Matches(match) {
					mark = "*"
				}
				id := ""
				if p.USB {
					id = p.VID + ":" + p.PID
				}
				t.Row(p.Name, p.Product, id, p.SerialNumber, mark)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", config.DefaultPortMatch, "USB product substring discovery looks for")
	return cmd
}

func newRunsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, nil)
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no archived runs")
				return nil
			}
			t := newTable("ID", "Started", "Distance (m)", "Model", "Budget", "Source")
			for _, r := range runs {
				t.Row(r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), strconv.FormatFloat(r.Distance, 'f', 4, 64),
					r.Model.String(), r.BudgetName, r.Source)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
}

func printComparison(w io.Writer, cmp *reprocess.Comparison) {
	headers := []string{"Run", "Distance (m)", "n"}
	for _, eos := range reprocess.EquationsOfState {
		headers = append(headers, string(eos))
	}
	headers = append(headers, "Mean error")

	t := newTable(headers...)
	for _, rc := range cmp.Runs {
		row := []string{rc.Name, strconv.FormatFloat(rc.Distance, 'f', 4, 64), strconv.Itoa(rc.Count)}
		for _, eos := range reprocess.EquationsOfState {
			row = append(row, formatMean(rc.Means, eos))
		}
		row = append(row, strconv.FormatFloat(rc.MeanError, 'f', 5, 64))
		t.Row(row...)
	}

	mean := []string{"mean", "", ""}
	spread := []string{"std dev", "", ""}
	slope := []string{"slope /m", "", ""}
	for _, eos := range reprocess.EquationsOfState {
		mean = append(mean, formatMean(cmp.Mean, eos))
		spread = append(spread, formatMean(cmp.StdDev, eos))
		if fit, ok := cmp.Trend[eos]; ok {
			slope = append(slope, strconv.FormatFloat(fit.Slope, 'f', 5, 64))
		} else {
			slope = append(slope, "-")
		}
	}
	t.Row(append(mean, "")...)
	t.Row(append(spread, "")...)
	t.Row(append(slope, "")...)

	fmt.Fprintf(w, "gas %s, offset %+g ms, reference %.8f\n", cmp.Gas, cmp.OffsetMS, cmp.Reference)
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "precision %.3f%%\n", cmp.Precision)
}

func formatMean(m map[physics.EOS]float64, eos physics.EOS) string {
	v, ok := m[eos]
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 5, 64)
}
