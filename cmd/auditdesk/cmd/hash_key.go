package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auditdesk/auditdesk/internal/domain/auth"
)

var hashKeySHA256 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate an Argon2id hash for an API key",
	Long: `Generate a hash of an API key for use in config.

The default output is an Argon2id PHC string which can be used directly
in the auth.api_keys[].key_hash field. With --sha256 the output is
"sha256:<hex>" instead, which is faster to verify but weaker.

Example:
  auditdesk hash-key "my-secret-api-key"
  # Output: $argon2id$v=19$m=...

Security note: The key will appear in shell history.
Consider clearing history after use or using environment variable:
  auditdesk hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := hashAPIKey(args[0], hashKeySHA256)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "emit a sha256:<hex> hash instead of Argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}

func hashAPIKey(key string, sha bool) (string, error) {
	if key == "" {
		return "", fmt.Errorf("api key must not be empty")
	}
	if sha {
		return "sha256:" + auth.HashKey(key), nil
	}
	hash, err := auth.HashKeyArgon2id(key)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return hash, nil
}
