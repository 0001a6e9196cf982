package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/directord/pkg/control"
)

var manageCmd = &cobra.Command{
	Use:   "manage",
	Short: "Inspect or administer a running coordinator over the local control socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUnixSocketSupport(); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client := control.NewClient(cfg.SocketPath)

		switch {
		case flagSet(cmd, "list-nodes"):
			resp, err := client.Call(control.Request{Op: control.OpListNodes})
			if err != nil {
				return err
			}
			return printJSON(resp.Workers)

		case flagSet(cmd, "list-jobs"):
			resp, err := client.Call(control.Request{Op: control.OpListJobs})
			if err != nil {
				return err
			}
			return printJSON(resp.Jobs)

		case flagSet(cmd, "job-info"):
			id, _ := cmd.Flags().GetString("job-info")
			resp, err := client.Call(control.Request{Op: control.OpJobInfo, JobID: id})
			if err != nil {
				return err
			}
			return printJSON(resp.Job)

		case flagSet(cmd, "export-jobs"):
			path, _ := cmd.Flags().GetString("export-jobs")
			_, err := client.Call(control.Request{Op: control.OpExportJobs, Path: path})
			if err != nil {
				return err
			}
			fmt.Printf("jobs exported to %s\n", path)
			return nil

		case flagSet(cmd, "analyze-job"):
			id, _ := cmd.Flags().GetString("analyze-job")
			resp, err := client.Call(control.Request{Op: control.OpAnalyzeJob, JobID: id})
			if err != nil {
				return err
			}
			return printJSON(resp.Analysis)

		case flagSet(cmd, "analyze-parent"):
			id, _ := cmd.Flags().GetString("analyze-parent")
			resp, err := client.Call(control.Request{Op: control.OpAnalyzeParent, ParentID: id})
			if err != nil {
				return err
			}
			return printJSON(resp.Analysis)

		case flagSet(cmd, "purge-jobs"):
			if _, err := client.Call(control.Request{Op: control.OpPurgeJobs}); err != nil {
				return err
			}
			fmt.Println("jobs purged")
			return nil

		case flagSet(cmd, "purge-nodes"):
			if _, err := client.Call(control.Request{Op: control.OpPurgeNodes}); err != nil {
				return err
			}
			fmt.Println("node records purged")
			return nil

		case flagSet(cmd, "ui"):
			interval, _ := cmd.Flags().GetDuration("ui-refresh")
			return runUI(client, interval)

		case flagSet(cmd, "generate-keys"):
			resp, err := client.Call(control.Request{Op: control.OpGenerateKeys})
			if err != nil {
				return err
			}
			fmt.Println("public key:", resp.PublicKey)
			return nil

		default:
			return fmt.Errorf("%w: exactly one manage flag must be given", errInvalidInput)
		}
	},
}

func init() {
	manageCmd.Flags().Bool("list-nodes", false, "List every known worker record")
	manageCmd.Flags().Bool("list-jobs", false, "List every tracked job")
	manageCmd.Flags().String("job-info", "", "Show one job's current state")
	manageCmd.Flags().String("export-jobs", "", "Export every tracked job as JSON to PATH")
	manageCmd.Flags().String("analyze-job", "", "Aggregate a job's sibling results by parent_id")
	manageCmd.Flags().String("analyze-parent", "", "Aggregate every job sharing PARENT_ID")
	manageCmd.Flags().Bool("purge-jobs", false, "Delete every tracked job")
	manageCmd.Flags().Bool("purge-nodes", false, "Forget every worker record, alive or expired")
	manageCmd.Flags().Bool("generate-keys", false, "Generate a curve_encryption keypair")
	manageCmd.Flags().Bool("ui", false, "Run a refreshing plain-text dashboard of node and job counts")
	manageCmd.Flags().Duration("ui-refresh", 2*time.Second, "Dashboard refresh interval")
}

// flagSet reports whether name was explicitly given on the command
// line, used to pick the single mutually exclusive manage action.
func flagSet(cmd *cobra.Command, name string) bool {
	return cmd.Flags().Changed(name)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runUI polls run_ui on a fixed interval and redraws a plain-text
// summary of node and job counts until interrupted. There is no
// terminal UI library in play here; this is a deliberately simple
// refresh loop rather than a full dashboard widget tree.
func runUI(client *control.Client, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		resp, err := client.Call(control.Request{Op: control.OpRunUI})
		if err != nil {
			return err
		}
		drawDashboard(resp)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func drawDashboard(resp *control.Response) {
	fmt.Print("\033[H\033[2J")
	fmt.Printf("directord  %s\n\n", time.Now().Format(time.RFC3339))

	fmt.Println("nodes by status:")
	for _, status := range sortedKeys(resp.WorkerCounts) {
		fmt.Printf("  %-12s %d\n", status, resp.WorkerCounts[status])
	}

	fmt.Println("\njobs by state:")
	for _, state := range sortedKeys(resp.JobCounts) {
		fmt.Printf("  %-12s %d\n", state, resp.JobCounts[state])
	}

	fmt.Println("\nqueue depths:")
	names := make([]string, 0, len(resp.QueueDepths))
	for name := range resp.QueueDepths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-12s %d\n", name, resp.QueueDepths[name])
	}

	fmt.Printf("\n%d known worker(s)\n", len(resp.Workers))
	fmt.Println("\n(ctrl-c to exit)")
}

// sortedKeys returns m's keys as strings, sorted, so the dashboard's
// row order stays stable between refreshes regardless of map
// iteration order.
func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
