package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/authledger/internal/config"
	"xdao.co/authledger/keys"
)

func (a *app) generateCommand() *cobra.Command {
	var (
		id       string
		scheme   string
		mnemonic bool
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a keypair (identity) and save it to the key directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return usageErrorf("missing --id")
			}
			if err := keys.CheckKeyName(id); err != nil {
				return usageErrorf("invalid --id: %v", err)
			}
			s, err := keys.ParseScheme(scheme)
			if err != nil {
				return usageErrorf("invalid --scheme: %v", err)
			}
			if mnemonic && s != keys.SchemeEd25519 {
				return usageErrorf("--mnemonic: %v", keys.ErrMnemonicUnsupported)
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := keys.EngineFor(s)
			if err != nil {
				return withCode(exitInternal, err)
			}
			kp, err := engine.GenerateKeypair(rand.Reader)
			if err != nil {
				return withCode(exitInternal, err)
			}
			if err := a.saveKeypair(cfg, id, kp, force); err != nil {
				return err
			}
			if mnemonic {
				words, err := keys.MnemonicFromSeed(kp.Private)
				if err != nil {
					return withCode(exitInternal, err)
				}
				fmt.Fprintln(a.out, "Recovery phrase (write it down, it restores the private key):")
				fmt.Fprintf(a.out, "  %s\n", words)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Identity name; keys are saved as <id>.priv and <id>.pub")
	cmd.Flags().StringVar(&scheme, "scheme", string(keys.SchemeEd25519), "Signature scheme: ed25519 or dilithium3")
	cmd.Flags().BoolVar(&mnemonic, "mnemonic", false, "Print a BIP-39 recovery phrase for the private key (ed25519 only)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")
	return cmd
}

func (a *app) recoverCommand() *cobra.Command {
	var (
		id       string
		mnemonic string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Restore an ed25519 keypair from its recovery phrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return usageErrorf("missing --id")
			}
			if err := keys.CheckKeyName(id); err != nil {
				return usageErrorf("invalid --id: %v", err)
			}
			if mnemonic == "" {
				return usageErrorf("missing --mnemonic")
			}
			kp, err := keys.KeypairFromMnemonic(mnemonic)
			if err != nil {
				return usageErrorf("invalid --mnemonic: %v", err)
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return a.saveKeypair(cfg, id, kp, force)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Identity name to restore as")
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "Recovery phrase printed by generate --mnemonic")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")
	return cmd
}

func (a *app) saveKeypair(cfg config.Config, id string, kp keys.Keypair, force bool) error {
	ks := a.keyStore(cfg)
	privPath, pubPath, err := ks.Save(id, kp, force)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return withCode(exitInternal, fmt.Errorf("key files for %q already exist (use --force to overwrite): %w", id, err))
		}
		return withCode(exitInternal, fmt.Errorf("write key: %w", err))
	}
	fmt.Fprintf(a.out, "Identity: %s\n", id)
	fmt.Fprintf(a.out, "Scheme: %s\n", kp.Scheme)
	fmt.Fprintf(a.out, "Fingerprint: %s\n", keys.Fingerprint(kp.Public))
	fmt.Fprintf(a.out, "Private key: %s\n", privPath)
	fmt.Fprintf(a.out, "Public key: %s\n", pubPath)
	return nil
}

func (a *app) keysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List identities in the key directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			ks := a.keyStore(cfg)
			entries, err := ks.List()
			if err != nil {
				return withCode(exitInternal, fmt.Errorf("list keys: %w", err))
			}
			if len(entries) == 0 {
				fmt.Fprintf(a.out, "No keys in %s\n", ks.Directory)
				return nil
			}
			for _, e := range entries {
				private := ""
				if e.HasPrivate {
					private = "\tprivate"
				}
				fmt.Fprintf(a.out, "%s\t%s\t%s%s\n", e.ID, e.Scheme, e.Fingerprint, private)
			}
			return nil
		},
	}
}

func (a *app) signCommand() *cobra.Command {
	var (
		privPath string
		data     string
		save     bool
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign data with a private key and print the signature as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if privPath == "" {
				return usageErrorf("missing --privkey-file")
			}
			if !cmd.Flags().Changed("data") {
				return usageErrorf("missing --data")
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			ks := a.keyStore(cfg)
			priv, _, err := ks.LoadPrivate(privPath)
			if err != nil {
				return keyFileError("--privkey-file", err)
			}
			sig, err := keys.Sign(priv, []byte(data))
			if err != nil {
				return withCode(exitUsage, err)
			}
			sigHex := hex.EncodeToString(sig)
			fmt.Fprintln(a.out, sigHex)
			if save {
				path, err := ks.SaveSignature(sigHex)
				if err != nil {
					return withCode(exitInternal, fmt.Errorf("save signature: %w", err))
				}
				fmt.Fprintf(a.errOut, "Signature saved to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&privPath, "privkey-file", "", "Path to the private key file")
	cmd.Flags().StringVar(&data, "data", "", "Data to sign (signed as UTF-8 bytes)")
	cmd.Flags().BoolVar(&save, "save", false, "Also write the signature to last_signature.txt in the key directory")
	return cmd
}
