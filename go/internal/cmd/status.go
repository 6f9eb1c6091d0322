package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

type StatusCmd struct {
	JSON bool `help:"Print the snapshot as JSON."`
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}

	services := setupServices(cfg, Collaborators{})
	defer services.Close()

	if err := services.Machine.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reconcile session: %w", err)
	}

	snap := services.Machine.Snapshot()
	if s.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Println(renderSnapshot(snap))
	return nil
}
