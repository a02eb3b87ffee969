package cli

import (
	"context"
	"fmt"
	"os"
)

// Execute runs tokenctl with the process arguments and returns the exit code.
func Execute(ctx context.Context) int {
	app := NewApp(os.Stdout, nil)
	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
