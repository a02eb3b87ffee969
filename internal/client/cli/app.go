// Package cli implements tokenctl, a command-line client for the tokenkeeper
// HTTP API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tokenkeeper/internal/client/client"
	"github.com/dmitrijs2005/tokenkeeper/internal/client/config"
)

// NewClientFunc builds an API client; tests swap it for a fake.
type NewClientFunc func(baseURL, token string, timeout time.Duration) client.Client

func defaultNewClient(baseURL, token string, timeout time.Duration) client.Client {
	return client.NewHTTPClient(baseURL, token, timeout)
}

// App holds state shared by all tokenctl commands.
type App struct {
	out       io.Writer
	newClient NewClientFunc

	configPath string
	serverURL  string
	token      string
	timeout    time.Duration
	asJSON     bool

	cfg *config.Config
}

func NewApp(out io.Writer, newClient NewClientFunc) *App {
	if out == nil {
		out = os.Stdout
	}
	if newClient == nil {
		newClient = defaultNewClient
	}
	return &App{out: out, newClient: newClient}
}

// load resolves settings: defaults, JSON file, environment, then flags that
// were set explicitly.
func (a *App) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = a.serverURL
	}
	if flags.Changed("token") {
		cfg.Token = a.token
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}
	a.cfg = cfg
	return nil
}

// anonymous returns a client without a bearer credential.
func (a *App) anonymous() client.Client {
	return a.newClient(a.cfg.ServerURL, "", a.cfg.Timeout)
}

// authenticated returns a client carrying the bearer credential, prompting
// for it when neither the flag nor the environment provided one.
func (a *App) authenticated() (client.Client, error) {
	token := a.cfg.Token
	if token == "" {
		var err error
		token, err = GetSecret(a.out, "Bearer token: ")
		if err != nil {
			return nil, fmt.Errorf("%w: use --token or %sTOKEN", client.ErrNoToken, config.EnvPrefix)
		}
	}
	if token == "" {
		return nil, client.ErrNoToken
	}
	return a.newClient(a.cfg.ServerURL, token, a.cfg.Timeout), nil
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
