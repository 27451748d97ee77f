package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ereyli/Burrowburr/internal/types"
	"github.com/ereyli/Burrowburr/internal/wallet"
)

func newKeystoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keystore",
		Short: "Manage encrypted wallet keystores",
	}
	cmd.AddCommand(newKeystoreCreateCmd())
	return cmd
}

// secretReader reads lines without echo when stdin is a terminal
type secretReader struct {
	cmd *cobra.Command
	tty *os.File
	in  *bufio.Reader
}

func newSecretReader(cmd *cobra.Command) *secretReader {
	r := &secretReader{cmd: cmd, in: bufio.NewReader(cmd.InOrStdin())}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.tty = f
	}
	return r
}

func (r *secretReader) read(label string) (string, error) {
	fmt.Fprintf(r.cmd.OutOrStdout(), "%s: ", label)
	if r.tty != nil {
		b, err := term.ReadPassword(int(r.tty.Fd()))
		fmt.Fprintln(r.cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newKeystoreCreateCmd() *cobra.Command {
	var (
		kind      string
		name      string
		address   string
		publicKey string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Encrypt a Starknet account key into a keystore",
		Long: `Encrypt a Starknet account key into a keystore file.

The private key and password are read from the terminal and never appear in
shell history. Keystores in ~/.burrow/keystores are discovered automatically.

Examples:
  burrow keystore create --kind argentX --address 0x... --public-key 0x...
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := wallet.ParseKind(kind)
			if _, err := types.ToStarknetAddress(address); err != nil {
				return fmt.Errorf("invalid --address: %w", err)
			}
			if out == "" {
				file := string(k)
				if k == wallet.KindUnknown {
					file = "wallet"
				}
				out = filepath.Join(defaultKeystoreDir(), file+".json")
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("keystore %s already exists", out)
			}

			secrets := newSecretReader(cmd)
			privateKey, err := secrets.read("Private key")
			if err != nil {
				return err
			}
			password, err := secrets.read("New password")
			if err != nil {
				return err
			}
			confirm, err := secrets.read("Repeat password")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			err = wallet.CreateKeystore(out, password, wallet.KeystoreData{
				Kind: k,
				Name: name,
				KeyMaterial: wallet.KeyMaterial{
					Address:    address,
					PublicKey:  publicKey,
					PrivateKey: privateKey,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Keystore written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "argentX", "wallet kind: argentX|braavos")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&address, "address", "", "account contract address")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "account public key")
	cmd.Flags().StringVar(&out, "out", "", "keystore path (default ~/.burrow/keystores/<kind>.json)")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("public-key")
	return cmd
}
