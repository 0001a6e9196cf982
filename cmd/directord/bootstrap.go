package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cuemby/directord/pkg/control"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap --catalog FILE [--catalog FILE ...]",
	Short: "Apply a set of orchestration catalog files concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUnixSocketSupport(); err != nil {
			return err
		}
		catalogs, _ := cmd.Flags().GetStringArray("catalog")
		if len(catalogs) == 0 {
			return fmt.Errorf("%w: at least one --catalog is required", errInvalidInput)
		}
		threads, _ := cmd.Flags().GetInt("thread")
		if threads <= 0 {
			threads = 1
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client := control.NewClient(cfg.SocketPath)

		sem := make(chan struct{}, threads)
		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error

		for _, path := range catalogs {
			path := path
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				if err := applyCatalog(client, path); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		return firstErr
	},
}

func init() {
	bootstrapCmd.Flags().StringArray("catalog", nil, "Orchestration catalog file to apply (repeatable)")
	bootstrapCmd.Flags().Int("thread", 1, "Number of catalogs to apply concurrently")
}

// applyCatalog reads and submits a single catalog file, reporting its
// own outcome independently of the other catalogs in the batch.
func applyCatalog(client *control.Client, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bootstrap: read %s: %w", path, err)
	}
	resp, err := client.Call(control.Request{
		Op:             control.OpSubmitOrchestrations,
		Orchestrations: [][]byte{data},
	})
	if err != nil {
		return fmt.Errorf("bootstrap: apply %s: %w", path, err)
	}
	fmt.Printf("%s: submitted %d job(s)\n", path, len(resp.Jobs))
	return nil
}
