package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tokenkeeper/internal/client/client"
)

var errTokenInvalid = errors.New("token is not valid")

func (a *App) generateCmd() *cobra.Command {
	var (
		name       string
		subject    string
		minutes    int
		claims     []string
		claimsJSON string
		audience   []string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a new token",
		Example: `  tokenctl generate --name example-token --sub user123 --claim role=user --minutes 60
  tokenctl generate --name svc --claims-json '{"sub":"svc-1","scopes":["a","b"]}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := buildClaims(claimsJSON, claims, subject)
			if err != nil {
				return err
			}
			res, err := a.anonymous().Generate(cmd.Context(), client.GenerateRequest{
				JWTName:             name,
				Content:             content,
				ExpirationInMinutes: minutes,
				Audience:            audience,
			})
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "token id:   %s\nexpires at: %s\n%s\n", res.TokenID, res.ExpiresAt.Format(time.RFC3339), res.Token)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&name, "name", "n", "", "token name")
	f.StringVar(&subject, "sub", "", "subject (owner) the token is issued for")
	f.IntVarP(&minutes, "minutes", "m", 60, "lifetime in minutes")
	f.StringArrayVar(&claims, "claim", nil, "custom claim as key=value, repeatable")
	f.StringVar(&claimsJSON, "claims-json", "", "custom claims as a JSON object")
	f.StringSliceVar(&audience, "audience", nil, "audience, repeatable or comma separated")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// buildClaims merges a JSON object, key=value pairs and the subject, in
// that order of precedence from lowest to highest.
func buildClaims(rawJSON string, pairs []string, subject string) (map[string]any, error) {
	content := map[string]any{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &content); err != nil {
			return nil, fmt.Errorf("invalid --claims-json: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --claim %q, want key=value", p)
		}
		content[strings.TrimSpace(k)] = v
	}
	if subject != "" {
		content["sub"] = subject
	}
	if _, ok := content["sub"].(string); !ok {
		return nil, errors.New("a subject is required: use --sub or a sub claim")
	}
	return content, nil
}

func (a *App) listCmd() *cobra.Command {
	var filter client.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tokens owned by the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.authenticated()
			if err != nil {
				return err
			}
			items, err := c.ListMine(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(items)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOKEN ID\tNAME\tSTATUS\tISSUED\tEXPIRES")
			for _, t := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.TokenID, t.JWTName, t.Status,
					t.IssuedAt.Format(time.RFC3339), t.ExpiresAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Status, "status", "", "only tokens in this status (active|expired|revoked)")
	f.StringVar(&filter.JWTName, "name", "", "only tokens whose name contains this text")
	f.IntVar(&filter.Limit, "limit", 0, "maximum number of tokens")
	f.IntVar(&filter.Offset, "offset", 0, "number of tokens to skip")
	return cmd
}

func (a *App) extendCmd() *cobra.Command {
	var minutes int

	cmd := &cobra.Command{
		Use:   "extend [token-id]",
		Short: "Extend a token; without an id the presented token is extended",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authenticated()
			if err != nil {
				return err
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			res, err := c.Extend(cmd.Context(), id, minutes)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "token %s now expires at %s\n%s\n", res.TokenID, res.ExpiresAt.Format(time.RFC3339), res.Token)
			return nil
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 60, "minutes to add")
	return cmd
}

func (a *App) revokeCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke [token-id...]",
		Short: "Revoke tokens; without an id the presented token is revoked",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authenticated()
			if err != nil {
				return err
			}

			if len(args) > 1 {
				res, err := c.BulkRevoke(cmd.Context(), args, reason)
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.printJSON(res)
				}
				for _, o := range res.Results {
					line := fmt.Sprintf("%s\t%s", o.TokenID, o.Status)
					if o.Error != "" {
						line += "\t" + o.Error
					}
					fmt.Fprintln(a.out, line)
				}
				fmt.Fprintf(a.out, "revoked %d, already revoked %d, failed %d\n", res.Revoked, res.AlreadyRevoked, res.Failed)
				return nil
			}

			var id string
			if len(args) == 1 {
				id = args[0]
			}
			res, err := c.Revoke(cmd.Context(), id, reason)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(res)
			}
			if res.AlreadyRevoked {
				fmt.Fprintf(a.out, "token %s was already revoked\n", res.TokenID)
				return nil
			}
			fmt.Fprintf(a.out, "token %s revoked\n", res.TokenID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "revocation reason")
	return cmd
}

func (a *App) validateCmd() *cobra.Command {
	var req client.ValidateRequest

	cmd := &cobra.Command{
		Use:   "validate <token>",
		Short: "Check whether a token is valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Token = args[0]
			res, err := a.anonymous().Validate(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.asJSON {
				if err := a.printJSON(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(a.out, res.Message)
			}
			if !res.Valid {
				return errTokenInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Audience, "audience", "", "required audience")
	cmd.Flags().StringVar(&req.Issuer, "issuer", "", "required issuer")
	return cmd
}
