package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authkit/pkg/cryptox"
)

var (
	keygenSigningAlg string
	keygenOut        string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a master key for the encrypted session store",
	Long: `Print a fresh random master key as an AUTHKIT_MASTER_KEY assignment.

With --out the bare key is written to a file readable only by its owner,
suitable for master_key_path. With --signing-key a PKCS8 PEM private key for
the given JWS algorithm (EdDSA, RS256, ES256) is generated too, for use with
"authkit devserver --signing-key"; it goes to stdout or to <out>.pem.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		var pemKey []byte
		if keygenSigningAlg != "" {
			if pemKey, err = cryptox.GenerateSigningKey(keygenSigningAlg); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		if keygenOut == "" {
			fmt.Fprintf(w, "%s=%s\n", cryptox.MasterKeyEnv, key)
			if pemKey != nil {
				_, err = w.Write(pemKey)
			}
			return err
		}

		if err := os.WriteFile(keygenOut, []byte(key+"\n"), 0o600); err != nil {
			return fmt.Errorf("failed to write key file: %w", err)
		}
		fmt.Fprintf(w, "master key written to %s\n", keygenOut)
		if pemKey != nil {
			if err := os.WriteFile(keygenOut+".pem", pemKey, 0o600); err != nil {
				return fmt.Errorf("failed to write signing key: %w", err)
			}
			fmt.Fprintf(w, "signing key written to %s.pem\n", keygenOut)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenSigningAlg, "signing-key", "", "Also generate a signing key for this algorithm")
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "Write the key to this file instead of stdout")
}
