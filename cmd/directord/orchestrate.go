package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/directord/pkg/control"
	"github.com/cuemby/directord/pkg/types"
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate FILE [FILE ...]",
	Short: "Submit one or more orchestration files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUnixSocketSupport(); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var raws [][]byte
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("orchestrate: read %s: %w", path, err)
			}
			raws = append(raws, data)
		}

		targets, _ := cmd.Flags().GetStringArray("target")
		restrict, _ := cmd.Flags().GetStringArray("restrict")
		ignoreCache, _ := cmd.Flags().GetBool("ignore-cache")
		wait, _ := cmd.Flags().GetBool("wait")

		client := control.NewClient(cfg.SocketPath)
		resp, err := client.Call(control.Request{
			Op:             control.OpSubmitOrchestrations,
			Orchestrations: raws,
			Targets:        targets,
			Restrict:       restrict,
			IgnoreCache:    ignoreCache,
		})
		if err != nil {
			return fmt.Errorf("orchestrate: submit: %w", err)
		}

		for _, job := range resp.Jobs {
			fmt.Printf("submitted job %s (parent %s, verb %s)\n", job.JobID, job.ParentID, job.Verb)
		}

		if !wait {
			return nil
		}
		return waitForJobs(client, resp.Jobs)
	},
}

func init() {
	orchestrateCmd.Flags().StringArray("target", nil, "Identity to target (repeatable); omit for all alive identities")
	orchestrateCmd.Flags().StringArray("restrict", nil, "job_sha to restrict submission to (repeatable); jobs with any other job_sha are skipped")
	orchestrateCmd.Flags().Bool("ignore-cache", false, "Bypass run_once cache for this submission")
	orchestrateCmd.Flags().Bool("wait", false, "Block until every submitted job reaches a terminal state")
}

// waitForJobs polls poll_job for each submitted job until all are
// done, reporting each one's outcome as it terminates.
func waitForJobs(client *control.Client, jobs []*types.Job) error {
	pending := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		pending[j.JobID] = true
	}
	for len(pending) > 0 {
		for id := range pending {
			resp, err := client.Call(control.Request{Op: control.OpPollJob, JobID: id})
			if err != nil {
				return fmt.Errorf("orchestrate: poll %s: %w", id, err)
			}
			if resp.Done {
				status := "succeeded"
				if !resp.Success {
					status = "failed"
				}
				fmt.Printf("job %s %s\n", id, status)
				delete(pending, id)
			}
		}
		if len(pending) > 0 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	return nil
}
