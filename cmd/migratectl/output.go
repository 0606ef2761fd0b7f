// cmd/migratectl/output.go
package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/migration"
	"github.com/Annany2002/nebula-migrate/internal/pgdirect"
)

var levelMarks = map[migration.Level]string{
	migration.LevelSuccess: "ok",
	migration.LevelInfo:    "info",
	migration.LevelWarning: "warn",
	migration.LevelError:   "error",
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printNotifications(w io.Writer, notes []migration.Notification) {
	for _, n := range notes {
		mark, ok := levelMarks[n.Level]
		if !ok {
			mark = string(n.Level)
		}
		fmt.Fprintf(w, "[%s] %s\n", mark, n.Message)
	}
}

func printPanel(w io.Writer, res models.PanelResponse) {
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	printNotifications(w, res.Notifications)
}

func printConfigs(w io.Writer, configs []domain.MigrationConfig, activeID string) {
	if len(configs) == 0 {
		fmt.Fprintln(w, "No configurations saved")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "\tID\tNAME\tMODE\tSOURCE\tTARGET\tDEFAULT")
	for _, cfg := range configs {
		active := ""
		if cfg.ID == activeID {
			active = "*"
		}
		mode, source, target := "branch", cfg.SourceBranchName, cfg.TargetBranchName
		if cfg.UseDirectConnection {
			mode, source, target = "direct", cfg.SourceConnectionString, cfg.TargetConnectionString
		}
		def := ""
		if cfg.IsDefault {
			def = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", active, cfg.ID, cfg.ConfigName, mode, source, target, def)
	}
	_ = tw.Flush()
}

func printTables(w io.Writer, tables []domain.TableInfo, diff *domain.SchemaDiff) {
	if len(tables) == 0 {
		fmt.Fprintln(w, "No tables loaded")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SEL\tTABLE\tROWS\tSIZE\tSTATUS")
	selected := 0
	for _, t := range tables {
		mark := "[ ]"
		if t.Selected {
			mark = "[x]"
			selected++
		}
		status := ""
		switch {
		case diff.IsNew(t.TableName):
			status = "new"
		case diff.IsModified(t.TableName):
			status = "modified"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, t.TableName, humanize.Comma(t.RowCount), t.Size, status)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d of %d table(s) selected\n", selected, len(tables))
}

func printDiff(w io.Writer, diff *domain.SchemaDiff) {
	if diff == nil {
		return
	}
	if !diff.HasDifferences() && len(diff.TablesOnlyInTarget) == 0 {
		fmt.Fprintln(w, "Schemas are identical")
		return
	}
	if len(diff.TablesOnlyInSource) > 0 {
		fmt.Fprintf(w, "New tables (source only): %s\n", strings.Join(diff.TablesOnlyInSource, ", "))
	}
	if len(diff.TablesOnlyInTarget) > 0 {
		fmt.Fprintf(w, "Target only: %s\n", strings.Join(diff.TablesOnlyInTarget, ", "))
	}

	names := make([]string, 0, len(diff.ColumnsDiff))
	for name := range diff.ColumnsDiff {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cd := diff.ColumnsDiff[name]
		fmt.Fprintf(w, "Modified %s:\n", name)
		for _, col := range cd.OnlyInSource {
			fmt.Fprintf(w, "  + %s\n", col)
		}
		for _, col := range cd.OnlyInTarget {
			fmt.Fprintf(w, "  - %s\n", col)
		}
		for _, tc := range cd.TypeChanges {
			fmt.Fprintf(w, "  ~ %s: %s -> %s\n", tc.Column, tc.TargetType, tc.SourceType)
		}
	}
}

func printResult(w io.Writer, r *migration.Result) {
	fmt.Fprintf(w, "\nMigrated %s rows across %d table(s) (%s skipped, %s errors)\n",
		humanize.Comma(r.TotalRowsMigrated), r.CompletedTables,
		humanize.Comma(r.TotalRowsSkipped), humanize.Comma(r.TotalErrors))
	if len(r.TablesMigrated) == 0 {
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "TABLE\tSTATUS\tMIGRATED\tSKIPPED\tERRORS\tVERIFIED")
	for _, t := range r.TablesMigrated {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.TableName, t.Status,
			humanize.Comma(t.RowsMigrated), humanize.Comma(t.RowsSkipped), humanize.Comma(t.Errors), verification(t.Verified))
	}
	_ = tw.Flush()
}

func verification(v *migration.Verification) string {
	switch {
	case v == nil:
		return "-"
	case !v.Exists:
		return "missing"
	case v.RowCount == nil:
		return "exists"
	default:
		return humanize.Comma(*v.RowCount) + " rows"
	}
}

func printBranches(w io.Writer, branches []domain.Branch) {
	if len(branches) == 0 {
		fmt.Fprintln(w, "No branches found")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tUPDATED")
	for _, b := range branches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, b.Name, b.CurrentState, b.UpdatedAt)
	}
	_ = tw.Flush()
}

func printScan(w io.Writer, res *pgdirect.ScanResult) {
	for _, g := range res.Groups {
		fmt.Fprintf(w, "%s (%s rows): %s\n", g.Name, humanize.Comma(g.TotalRows), g.Description)
		tw := newTable(w)
		for _, t := range g.Tables {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.TableName, humanize.Comma(t.RowCount), t.Size)
		}
		_ = tw.Flush()
	}
	fmt.Fprintln(w, res.Summary)
}

func printDeleteReport(w io.Writer, rep *pgdirect.DeleteReport) {
	for _, r := range rep.Results {
		if r.Success {
			fmt.Fprintf(w, "  %s: deleted %s rows\n", r.Table, humanize.Comma(r.DeletedRows))
		} else {
			fmt.Fprintf(w, "  %s: %s\n", r.Table, r.Error)
		}
	}
	for _, msg := range rep.Messages {
		fmt.Fprintln(w, msg)
	}
}
