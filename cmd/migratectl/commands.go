// cmd/migratectl/commands.go
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/internal/core"
	"github.com/Annany2002/nebula-migrate/internal/domain"
	"github.com/Annany2002/nebula-migrate/internal/migration"
	"github.com/Annany2002/nebula-migrate/internal/pgdirect"
)

var errNotInteractive = errors.New("confirmation required: stdin is not a terminal, pass --yes or --confirm")

// confirmation returns the phrase to send: --confirm verbatim, the phrase
// itself under --yes, otherwise whatever the operator types.
func confirmation(cmd *cobra.Command, phrase, provided string, yes bool) (string, error) {
	if provided != "" {
		return provided, nil
	}
	if yes {
		return phrase, nil
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return "", errNotInteractive
	}
	return promptPhrase(cmd.InOrStdin(), cmd.OutOrStdout(), phrase)
}

// promptPhrase asks for phrase and rejects anything but an exact match.
func promptPhrase(in io.Reader, out io.Writer, phrase string) (string, error) {
	fmt.Fprintf(out, "Type %s to confirm: ", phrase)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	typed := strings.TrimRight(line, "\r\n")
	if err := core.CheckConfirmation(phrase, typed); err != nil {
		return "", err
	}
	return typed, nil
}

// --- configs ---

func newConfigsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "List or activate saved migration configurations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			var out struct {
				Configs        []domain.MigrationConfig `json:"configs"`
				ActiveConfigID string                   `json:"active_config_id"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/migration-configs", nil, &out); err != nil {
				return err
			}
			printConfigs(cmd.OutOrStdout(), out.Configs, out.ActiveConfigID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <config-id>",
		Short: "Make a configuration the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			var out models.PanelResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/migration-configs/"+url.PathEscape(args[0])+"/activate", nil, &out); err != nil {
				return err
			}
			printPanel(cmd.OutOrStdout(), out)
			return nil
		},
	})
	return cmd
}

// --- inventory and diff ---

func newTablesCmd() *cobra.Command {
	var cached bool
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Load the source table inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			method, path := http.MethodPost, "/api/v1/migration/tables"
			if cached {
				method, path = http.MethodGet, "/api/v1/migration/state"
			}
			var out models.PanelResponse
			if err := c.do(cmd.Context(), method, path, nil, &out); err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), out.Notifications)
			printTables(cmd.OutOrStdout(), out.State.Tables, out.State.Diff)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "show the last loaded inventory without reloading")
	return cmd
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare",
		Short: "Compare source and target schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			var out models.PanelResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/migration/compare", nil, &out); err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), out.Notifications)
			printDiff(cmd.OutOrStdout(), out.State.Diff)
			return nil
		},
	}
}

// --- migrate ---

func newMigrateCmd() *cobra.Command {
	var (
		migType string
		tables  []string
		confirm string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run a migration and follow its progress",
		Long:  `Run the pending migration of the active configuration. Without --tables the panel's current selection is migrated.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			if migType != "" {
				if _, err := migration.ParseType(migType); err != nil {
					return err
				}
				if err := c.do(ctx, http.MethodPut, "/api/v1/migration/type", models.SetTypeRequest{MigrationType: migType}, nil); err != nil {
					return err
				}
			}

			phrase := core.PhraseMigrate
			if len(tables) == 0 {
				var plan migration.MigrationPlan
				if err := c.do(ctx, http.MethodGet, "/api/v1/migration/plan", nil, &plan); err != nil {
					return err
				}
				for _, line := range plan.Lines {
					fmt.Fprintln(w, line)
				}
				phrase = plan.Phrase
			} else {
				fmt.Fprintf(w, "Migrating %d table(s): %s\n", len(tables), strings.Join(tables, ", "))
			}

			typed, err := confirmation(cmd, phrase, confirm, assumeYes)
			if err != nil {
				return err
			}

			req := models.StartMigrationRequest{Confirmation: typed, Tables: tables}
			return followMigration(w, func(fn func(sseEvent) error) error {
				return c.stream(ctx, "/api/v1/migration/start", req, fn)
			})
		},
	}
	cmd.Flags().StringVar(&migType, "type", "", "migration type (schema, schema-missing, data, selective-data, schema-selective, both)")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "comma-separated tables to migrate (default: current selection)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the typed confirmation")
	cmd.Flags().StringVar(&confirm, "confirm", "", "confirmation phrase to send without prompting")
	return cmd
}

// followMigration prints streamed updates until the run ends and returns the
// run's error, if any.
func followMigration(w io.Writer, stream func(func(sseEvent) error) error) error {
	var (
		last    string
		result  *migration.Result
		runErr  error
		updates int
	)
	err := stream(func(ev sseEvent) error {
		switch ev.Name {
		case "update":
			var u migration.Update
			if err := json.Unmarshal([]byte(ev.Data), &u); err != nil {
				return fmt.Errorf("invalid update from server: %w", err)
			}
			updates++
			line := u.Progress
			if u.RowProgress != "" {
				line += " (" + u.RowProgress + ")"
			}
			if line != "" && line != last {
				fmt.Fprintln(w, line)
				last = line
			}
			if u.Failure != "" {
				fmt.Fprintf(w, "  error: %s\n", u.Failure)
			}
			if u.Result != nil {
				result = u.Result
			}
		case "error":
			var body struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal([]byte(ev.Data), &body)
			runErr = errors.New(body.Error)
		case "done":
			var body struct {
				Notifications []migration.Notification `json:"notifications"`
			}
			_ = json.Unmarshal([]byte(ev.Data), &body)
			printNotifications(w, body.Notifications)
		case "json":
			var out models.PanelResponse
			if err := json.Unmarshal([]byte(ev.Data), &out); err != nil {
				return fmt.Errorf("invalid response from server: %w", err)
			}
			printPanel(w, out)
			result = out.State.Result
		}
		return nil
	})
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			printNotifications(w, apiErr.Notifications)
		}
		return err
	}

	if result != nil {
		printResult(w, result)
	} else if updates == 0 && runErr == nil {
		fmt.Fprintln(w, "No progress received from server")
	}
	return runErr
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-check the last migration against the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			var out models.PanelResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/migration/verify", nil, &out); err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), out.Notifications)
			if out.State.Result != nil {
				printResult(cmd.OutOrStdout(), out.State.Result)
			}
			return nil
		},
	}
}

// --- branches ---

func newBranchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List or delete Neon branches of the active project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			var out struct {
				Branches      []domain.Branch          `json:"branches"`
				Notifications []migration.Notification `json:"notifications"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/v1/migration/branches", nil, &out); err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), out.Notifications)
			printBranches(cmd.OutOrStdout(), out.Branches)
			return nil
		},
	})

	var confirm string
	del := &cobra.Command{
		Use:   "delete <branch-id>",
		Short: "Delete a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Branch %s will be deleted permanently.\n", args[0])
			typed, err := confirmation(cmd, core.PhraseDelete, confirm, assumeYes)
			if err != nil {
				return err
			}
			var out models.PanelResponse
			path := "/api/v1/migration/branches/" + url.PathEscape(args[0])
			if err := c.do(cmd.Context(), http.MethodDelete, path, models.ConfirmRequest{Confirmation: typed}, &out); err != nil {
				return err
			}
			printPanel(cmd.OutOrStdout(), out)
			return nil
		},
	}
	del.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the typed confirmation")
	del.Flags().StringVar(&confirm, "confirm", "", "confirmation phrase to send without prompting")
	cmd.AddCommand(del)
	return cmd
}

// --- cleanup ---

func newCleanupCmd() *cobra.Command {
	var side string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Inspect and empty tables on one side of the active configuration",
	}
	cmd.PersistentFlags().StringVar(&side, "side", "source", "which database to work on (source or target)")

	var search, category string
	scan := &cobra.Command{
		Use:   "scan",
		Short: "Show tables grouped by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			var out pgdirect.ScanResult
			req := models.CleanupScanRequest{Side: side, Search: search, Category: category}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/cleanup/scan", req, &out); err != nil {
				return err
			}
			printScan(cmd.OutOrStdout(), &out)
			return nil
		},
	}
	scan.Flags().StringVar(&search, "search", "", "only tables whose name contains this text")
	scan.Flags().StringVar(&category, "category", "", "only tables of this category")

	var confirm string
	del := &cobra.Command{
		Use:   "delete <table>...",
		Short: "Delete every row of the given tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All rows of %d table(s) on the %s database will be deleted: %s\n", len(args), side, strings.Join(args, ", "))
			typed, err := confirmation(cmd, core.PhraseDelete, confirm, assumeYes)
			if err != nil {
				return err
			}
			var out pgdirect.DeleteReport
			req := models.CleanupDeleteRequest{Side: side, Tables: args, Confirmation: typed}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/cleanup/delete", req, &out); err != nil {
				return err
			}
			printDeleteReport(cmd.OutOrStdout(), &out)
			if out.Failed > 0 {
				return fmt.Errorf("%d table(s) could not be cleaned", out.Failed)
			}
			return nil
		},
	}
	del.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the typed confirmation")
	del.Flags().StringVar(&confirm, "confirm", "", "confirmation phrase to send without prompting")

	cmd.AddCommand(scan, del)
	return cmd
}
