package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/masomo/feeledger/core/fee"
)

func (cli *commandLine) report(kind string, args []string) error {
	switch kind {
	case "daily":
		dailyCmd := flag.NewFlagSet("report daily", flag.ContinueOnError)
		dateStr := dailyCmd.String("date", "", "The day to report on (YYYY-MM-DD); today by default.")
		if err := dailyCmd.Parse(args); err != nil {
			return err
		}
		var date fee.Date
		if *dateStr != "" {
			var err error
			if date, err = fee.ParseDate(*dateStr); err != nil {
				return err
			}
		}
		return cli.dailyReport(date)
	case "pending":
		return cli.pendingReport()
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) dailyReport(date fee.Date) error {
	report, err := cli.feeSvc.DailyCollection(context.Background(), date)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Collection of %s\n", report.Date)
	fmt.Fprintf(w, "Transactions:\t%d\n", report.Count)
	fmt.Fprintf(w, "Total:\t%s\n", report.Total.StringFixed(2))
	fmt.Fprintf(w, "Cash:\t%s\n", report.CashTotal.StringFixed(2))
	fmt.Fprintf(w, "Online:\t%s\n", report.OnlineTotal.StringFixed(2))

	methods := make([]string, 0, len(report.ByMethod))
	for m := range report.ByMethod {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "  %s:\t%s\n", m, report.ByMethod[fee.Method(m)].StringFixed(2))
	}
	return w.Flush()
}

func (cli *commandLine) pendingReport() error {
	report, err := cli.feeSvc.PendingDues(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Class\tRows\tOutstanding")
	for _, c := range report.Classes {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.ClassName, c.Count, c.Outstanding.StringFixed(2))
	}
	fmt.Fprintf(w, "Total\t%d\t%s\n", report.Count, report.TotalOutstanding.StringFixed(2))
	return w.Flush()
}

func (cli *commandLine) refreshStatuses() error {
	n, err := cli.feeSvc.RefreshStatuses(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d ledger row(s) refreshed\n", n)
	return nil
}
