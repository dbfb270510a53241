package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benaskins/penny/internal/vault"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	keyFromEnv bool
	keyReveal  bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set [value]",
	Short: "Store the API key",
	Long:  "Store the API key. If value is omitted, prompts without echo or reads from stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readKeyValue(args)
		if err != nil {
			return err
		}
		if value == "" {
			return errors.New("refusing to store an empty API key")
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.openVault("cli", false)
		if err != nil {
			return err
		}
		if err := v.Save(value); err != nil {
			return err
		}
		fmt.Printf("API key stored (%s backend)\n", a.cfg.Vault.Backend)
		return nil
	},
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether an API key is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.openVault("cli", false)
		if err != nil {
			return err
		}
		_, err = v.Load()
		fmt.Printf("%s backend: %s\n", a.cfg.Vault.Backend, keyStatus(err))
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored API key (masked unless --reveal)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.openVault("cli", false)
		if err != nil {
			return err
		}
		secret, err := v.Load()
		if err != nil {
			return err
		}
		if keyReveal {
			fmt.Println(secret)
		} else {
			fmt.Println(mask(secret))
		}
		return nil
	},
}

func readKeyValue(args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case keyFromEnv:
		v := os.Getenv("OPENAI_API_KEY")
		if v == "" {
			return "", errors.New("OPENAI_API_KEY is not set")
		}
		return v, nil
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Print("Enter API key: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	default:
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
}

func keyStatus(err error) string {
	switch {
	case err == nil:
		return "stored"
	case errors.Is(err, vault.ErrNotFound):
		return "not stored"
	default:
		// Every other failure reads the same so a wrong key can't be told
		// apart from a damaged record.
		return "unreadable"
	}
}

// mask keeps a short prefix and suffix of long keys so they can be told
// apart without being disclosed.
func mask(secret string) string {
	r := []rune(secret)
	if len(r) <= 12 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:3]) + strings.Repeat("*", len(r)-7) + string(r[len(r)-4:])
}

func init() {
	keySetCmd.Flags().BoolVar(&keyFromEnv, "from-env", false, "read the key from OPENAI_API_KEY")
	keyShowCmd.Flags().BoolVar(&keyReveal, "reveal", false, "print the key in full")

	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyStatusCmd)
	keyCmd.AddCommand(keyShowCmd)
	rootCmd.AddCommand(keyCmd)
}
