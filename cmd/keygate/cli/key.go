package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"keygate/internal/models"
)

// AdminKeyEnv supplies --api-key when the flag is not set.
const AdminKeyEnv = "KEYGATE_ADMIN_KEY"

type keyFlags struct {
	server     string
	apiKey     string
	headerName string
	jsonOutput bool
}

func (f *keyFlags) client() (*adminClient, error) {
	apiKey := f.apiKey
	if apiKey == "" {
		apiKey = os.Getenv(AdminKeyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("an admin API key is required: pass --api-key or set %s", AdminKeyEnv)
	}
	return newAdminClient(f.server, apiKey, f.headerName), nil
}

func newKeyCmd() *cobra.Command {
	flags := &keyFlags{}

	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long: `Generate, inspect, update, and revoke API keys on a running keygate server.

Every subcommand authenticates with a key that holds the admin scope. Raw keys
are sent in request bodies and never appear in URLs.`,
	}

	cmd.PersistentFlags().StringVar(&flags.server, "server", "http://localhost:8080", "base URL of the keygate server")
	cmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", "", "admin API key (default $"+AdminKeyEnv+")")
	cmd.PersistentFlags().StringVar(&flags.headerName, "header", models.DefaultHeaderName, "header that carries the API key")
	cmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newKeyGenerateCmd(flags))
	cmd.AddCommand(newKeyListCmd(flags))
	cmd.AddCommand(newKeyInfoCmd(flags))
	cmd.AddCommand(newKeyUpdateCmd(flags))
	cmd.AddCommand(newKeyRevokeCmd(flags))

	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd(flags *keyFlags) *cobra.Command {
	var (
		scopes     []string
		rateLimit  int
		expiryDays int
		metadata   map[string]string
	)

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"create"},
		Short:   "Generate a new API key",
		Long:    "Issue a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  keygate key generate --scope read --scope write --rate-limit 500
  keygate key generate --expiry-days 30 --meta owner=ci`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			req := models.GenerateKeyRequest{
				Scopes:     scopes,
				RateLimit:  rateLimit,
				ExpiryDays: expiryDays,
				Metadata:   toMetadata(metadata),
			}
			if err := req.Validate(); err != nil {
				return err
			}

			resp, err := client.Generate(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, resp)
			}

			fmt.Fprintln(out, "API Key created:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Key:     %s\n", resp.Key)
			if resp.KeyInfo != nil {
				printKeyDetails(out, resp.KeyInfo)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope to grant (repeatable, default \"*\")")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests allowed per window (default from server config)")
	cmd.Flags().IntVar(&expiryDays, "expiry-days", 0, "days until the key expires (default from server config)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata entry key=value (repeatable)")

	return cmd
}

// ---------- key list ----------

func newKeyListCmd(flags *keyFlags) *cobra.Command {
	var includeUsage bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			resp, err := client.List(cmd.Context(), includeUsage)
			if err != nil {
				return fmt.Errorf("list keys: %w", err)
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, resp)
			}

			if len(resp.Keys) == 0 {
				fmt.Fprintln(out, "No API keys found. Use 'keygate key generate' to create one.")
				return nil
			}

			fmt.Fprintf(out, "%-10s %-24s %-6s %-26s %-8s %s\n", "KEY ID", "SCOPES", "LIMIT", "EXPIRES", "EXPIRED", "USAGE")
			fmt.Fprintf(out, "%-10s %-24s %-6s %-26s %-8s %s\n", "------", "------", "-----", "-------", "-------", "-----")
			for _, k := range resp.Keys {
				expired := "no"
				if k.Expired {
					expired = "yes"
				}
				usage := "-"
				if k.Usage != nil {
					usage = fmt.Sprintf("%d/%d", k.Usage.Requests, k.RateLimit)
				}
				fmt.Fprintf(out, "%-10s %-24s %-6d %-26s %-8s %s\n",
					k.KeyID, strings.Join(k.Scopes, ","), k.RateLimit, k.ExpiresAt, expired, usage)
			}
			fmt.Fprintf(out, "\n%d key(s)\n", resp.TotalCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeUsage, "usage", false, "include current rate limit window usage")

	return cmd
}

// ---------- key info ----------

func newKeyInfoCmd(flags *keyFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <key>",
		Short: "Show details for an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			resp, err := client.Info(cmd.Context(), args[0])
			if isStatus(err, http.StatusNotFound) {
				return fmt.Errorf("key not found")
			}
			if err != nil {
				return fmt.Errorf("key info: %w", err)
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, resp)
			}
			printKeyDetails(out, resp.Key)
			return nil
		},
	}
}

// ---------- key update ----------

func newKeyUpdateCmd(flags *keyFlags) *cobra.Command {
	var (
		scopes     []string
		rateLimit  int
		expiryDays int
		metadata   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "update <key>",
		Short: "Change scopes, rate limit, expiry, or metadata of an API key",
		Long: `Update an existing API key. Only the flags you pass are changed.
Metadata entries are merged into the existing metadata. --expiry-days counts
from now, not from when the key was created.`,
		Example: `  keygate key update sk-... --rate-limit 2000
  keygate key update sk-... --scope read --expiry-days 7 --meta rotated=true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			req := models.UpdateKeyRequest{Key: args[0]}
			if cmd.Flags().Changed("scope") {
				req.Scopes = scopes
			}
			if cmd.Flags().Changed("rate-limit") {
				req.RateLimit = &rateLimit
			}
			if cmd.Flags().Changed("expiry-days") {
				req.ExpiryDays = &expiryDays
			}
			if cmd.Flags().Changed("meta") {
				req.Metadata = toMetadata(metadata)
			}
			if err := req.Validate(); err != nil {
				return err
			}

			resp, err := client.Update(cmd.Context(), req)
			if isStatus(err, http.StatusNotFound) {
				return fmt.Errorf("key not found")
			}
			if err != nil {
				return fmt.Errorf("update key: %w", err)
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, resp)
			}
			fmt.Fprintln(out, resp.Message)
			if resp.Key != nil {
				printKeyDetails(out, resp.Key)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "replace scopes (repeatable)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests allowed per window")
	cmd.Flags().IntVar(&expiryDays, "expiry-days", 0, "days from now until the key expires")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata entry key=value to merge (repeatable)")

	return cmd
}

// ---------- key revoke ----------

func newKeyRevokeCmd(flags *keyFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Revoke an API key",
		Long:  "Delete an API key so that every later request using it is rejected. Revoking an unknown key is not an error.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			resp, err := client.Revoke(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("revoke key: %w", err)
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, resp)
			}
			fmt.Fprintln(out, resp.Message)
			return nil
		},
	}
}

func printKeyDetails(out io.Writer, info *models.KeyInfo) {
	if info == nil {
		return
	}
	fmt.Fprintf(out, "  Key ID:  %s\n", info.KeyID)
	fmt.Fprintf(out, "  Scopes:  %s\n", strings.Join(info.Scopes, ", "))
	fmt.Fprintf(out, "  Limit:   %d requests per window\n", info.RateLimit)
	fmt.Fprintf(out, "  Created: %s\n", info.CreatedAt)
	fmt.Fprintf(out, "  Expires: %s\n", info.ExpiresAt)
	if info.Expired {
		fmt.Fprintln(out, "  Status:  expired")
	}
	for k, v := range info.Metadata {
		fmt.Fprintf(out, "  Meta:    %s=%v\n", k, v)
	}
}

func toMetadata(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
