package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chapelmedia/broadcastd/internal/vault"
)

// CreateEncryptKeyCmd creates the encrypt-key command for provisioning
// encrypted credentials without running the server.
func CreateEncryptKeyCmd() *cobra.Command {
	var keyHex string

	cmd := &cobra.Command{
		Use:   "encrypt-key [plaintext]",
		Short: "Encrypt a credential for the platform config file",
		Long: `Encrypts a stream key or API key with the configured vault key and prints ` +
			`the ciphertext token. The token can be pasted directly into platforms.toml. ` +
			`When no argument is given the plaintext is read from stdin, which keeps it ` +
			`out of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if keyHex == "" {
				keyHex = os.Getenv("BROADCASTD_VAULT_KEY")
			}
			if keyHex == "" {
				return fmt.Errorf("no encryption key: pass --key or set BROADCASTD_VAULT_KEY")
			}

			v, err := vault.New(keyHex)
			if err != nil {
				return err
			}

			var plaintext string
			if len(args) == 1 {
				plaintext = args[0]
			} else {
				reader := bufio.NewReader(os.Stdin)
				line, readErr := reader.ReadString('\n')
				if readErr != nil && line == "" {
					return fmt.Errorf("failed to read plaintext from stdin: %w", readErr)
				}
				plaintext = strings.TrimRight(line, "\r\n")
			}
			if plaintext == "" {
				return fmt.Errorf("empty plaintext")
			}

			token, err := v.Encrypt(plaintext)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyHex, "key", "k", "", "32-byte hex encryption key (defaults to BROADCASTD_VAULT_KEY)")
	return cmd
}
