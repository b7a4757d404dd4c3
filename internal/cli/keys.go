package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"sshBridge/internal/auth"
	"sshBridge/internal/config"
	"sshBridge/internal/models"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage client authentication keys",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NICKNAME\tTYPE\tSOURCE\tENCRYPTED\tCONFIRM")
		for _, key := range store.Pubkeys() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\n",
				key.Nickname, key.Type, key.Source, key.Encrypted, key.Confirmation)
		}
		return w.Flush()
	},
}

var (
	keyType    string
	keyBits    int
	keyEncrypt bool
	keyConfirm bool
)

var keysGenerateCmd = &cobra.Command{
	Use:   "generate <nickname>",
	Short: "Generate a new key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}
		nickname := args[0]

		pemBlock, pub, err := generateKey(keyType, keyBits)
		if err != nil {
			return err
		}
		privateBytes := pem.EncodeToMemory(pemBlock)

		encrypted := false
		if keyEncrypt {
			passphrase, err := readPassphrase(fmt.Sprintf("Passphrase for key '%s': ", nickname))
			if err != nil {
				return err
			}
			privateBytes, err = auth.EncodeKey(privateBytes, passphrase)
			if err != nil {
				return fmt.Errorf("failed to encrypt key: %w", err)
			}
			encrypted = true
		}

		record := models.Pubkey{
			Nickname:     nickname,
			Type:         pub.Type(),
			Source:       models.KeySourceGenerated,
			PrivateKey:   privateBytes,
			PublicKey:    ssh.MarshalAuthorizedKey(pub),
			Encrypted:    encrypted,
			Confirmation: keyConfirm,
		}
		if err := store.AddPubkey(record); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}

		fmt.Printf("Generated %s key '%s'\n", record.Type, nickname)
		fmt.Print(string(record.PublicKey))
		return nil
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import <nickname> <pem-file>",
	Short: "Import an existing PEM private key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}
		nickname := args[0]

		pemBytes, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read key file: %w", err)
		}

		record := models.Pubkey{
			Nickname:     nickname,
			Source:       models.KeySourceImported,
			PrivateKey:   pemBytes,
			Confirmation: keyConfirm,
		}

		signer, err := ssh.ParsePrivateKey(pemBytes)
		switch {
		case err == nil:
			record.Type = signer.PublicKey().Type()
			record.PublicKey = ssh.MarshalAuthorizedKey(signer.PublicKey())
		case auth.IsPassphraseMissing(err):
			record.Encrypted = true
		default:
			return fmt.Errorf("failed to parse key file: %w", err)
		}

		if err := store.AddPubkey(record); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Printf("Imported key '%s'\n", nickname)
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <nickname>",
	Short: "Delete a stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}
		if err := store.DeletePubkey(args[0]); err != nil {
			return err
		}
		return store.Save()
	},
}

func generateKey(keyType string, bits int) (*pem.Block, ssh.PublicKey, error) {
	switch keyType {
	case "ed25519":
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		block, err := ssh.MarshalPrivateKey(priv, "")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
		}
		sshPub, err := ssh.NewPublicKey(pub)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build public key: %w", err)
		}
		return block, sshPub, nil

	case "rsa":
		priv, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate rsa key: %w", err)
		}
		block, err := ssh.MarshalPrivateKey(priv, "")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
		}
		sshPub, err := ssh.NewPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build public key: %w", err)
		}
		return block, sshPub, nil

	default:
		return nil, nil, fmt.Errorf("unsupported key type %q (use 'ed25519' or 'rsa')", keyType)
	}
}

func readPassphrase(label string) (string, error) {
	fmt.Print(label)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(passphrase), nil
}

func init() {
	keysGenerateCmd.Flags().StringVar(&keyType, "type", "ed25519", "key type: 'ed25519' or 'rsa'")
	keysGenerateCmd.Flags().IntVar(&keyBits, "bits", 3072, "rsa key size")
	keysGenerateCmd.Flags().BoolVar(&keyEncrypt, "encrypt", false, "protect the private key with a passphrase")
	keysGenerateCmd.Flags().BoolVar(&keyConfirm, "confirm", false, "require confirmation before each use of this key")
	keysImportCmd.Flags().BoolVar(&keyConfirm, "confirm", false, "require confirmation before each use of this key")

	keysCmd.AddCommand(keysListCmd, keysGenerateCmd, keysImportCmd, keysDeleteCmd)
	rootCmd.AddCommand(keysCmd)
}
