package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the tokenctl command tree.
func (a *App) NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tokenctl",
		Short:         "tokenctl manages tokens issued by a tokenkeeper server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "path to a JSON config file")
	pf.StringVarP(&a.serverURL, "server", "s", "", "tokenkeeper HTTP API base URL")
	pf.StringVarP(&a.token, "token", "t", "", "bearer token (default $TOKENKEEPER_TOKEN, else prompt)")
	pf.DurationVar(&a.timeout, "timeout", 10*time.Second, "request timeout")
	pf.BoolVar(&a.asJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		a.generateCmd(),
		a.listCmd(),
		a.extendCmd(),
		a.revokeCmd(),
		a.validateCmd(),
	)
	return root
}
