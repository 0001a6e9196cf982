package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/directord/pkg/control"
)

var execCmd = &cobra.Command{
	Use:   "exec --verb VERB ARGS...",
	Short: "Submit a single ad hoc job without an orchestration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUnixSocketSupport(); err != nil {
			return err
		}
		verb, _ := cmd.Flags().GetString("verb")
		if verb == "" {
			return fmt.Errorf("%w: --verb is required", errInvalidInput)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		targets, _ := cmd.Flags().GetStringArray("target")
		restrict, _ := cmd.Flags().GetStringArray("restrict")
		ignoreCache, _ := cmd.Flags().GetBool("ignore-cache")

		client := control.NewClient(cfg.SocketPath)
		resp, err := client.Call(control.Request{
			Op:          control.OpSubmitExec,
			Verb:        strings.ToUpper(verb),
			Args:        strings.Join(args, " "),
			Targets:     targets,
			Restrict:    restrict,
			IgnoreCache: ignoreCache,
		})
		if err != nil {
			return fmt.Errorf("exec: submit: %w", err)
		}
		for _, job := range resp.Jobs {
			fmt.Printf("submitted job %s (parent %s)\n", job.JobID, job.ParentID)
		}
		return nil
	},
}

func init() {
	execCmd.Flags().String("verb", "", "Component verb to invoke, e.g. RUN (required)")
	execCmd.Flags().StringArray("target", nil, "Identity to target (repeatable); omit for all alive identities")
	execCmd.Flags().StringArray("restrict", nil, "Identity to restrict delivery to (repeatable)")
	execCmd.Flags().Bool("ignore-cache", false, "Bypass run_once cache for this submission")
}
