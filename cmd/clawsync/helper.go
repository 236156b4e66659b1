package main

import (
	"context"
	"fmt"

	"github.com/clawsync/clawsync/cmd/clawsync/runtime"

	"github.com/spf13/cobra"
)

func executeWithRuntime(cmd *cobra.Command, fn func(*runtime.Runtime) error) error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := runtime.NewRuntimeBuilder().
		WithContext(ctx).
		WithConfig(cfg).
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer rt.Stop()

	return fn(rt)
}
