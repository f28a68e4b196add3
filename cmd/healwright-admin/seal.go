package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/target/healwright/internal/bootstrap"
	"github.com/target/healwright/internal/data/cryptoutil"
)

func newSealTokenCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "seal-token",
		Short: "Encrypt an access token for storage in source_control_credentials",
		Long: `Read an access token from stdin and print it sealed with
GITHUB_TOKEN_ENCRYPTION_KEY, ready to store in source_control_credentials.access_token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := env.cfg.GitHub.TokenEncryptionKey
			if key == "" {
				return errors.New("GITHUB_TOKEN_ENCRYPTION_KEY is not set")
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			token := strings.TrimSpace(line)
			if token == "" {
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				return errors.New("token is empty")
			}

			tokens := bootstrap.CreateTokenCipher(key, env.logger)
			if _, ok := tokens.(cryptoutil.Plaintext); ok {
				return errors.New("token encryption key is unusable")
			}
			sealed, err := tokens.Seal(token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
