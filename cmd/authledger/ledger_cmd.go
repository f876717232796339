package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"xdao.co/authledger/auth"
	"xdao.co/authledger/keys"
	"xdao.co/authledger/storage/archive"
	"xdao.co/authledger/storage/jsonfile"
)

func (a *app) registerCommand() *cobra.Command {
	var (
		pubPath string
		owner   string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a public key as an active identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pubPath == "" {
				return usageErrorf("missing --pubkey-file")
			}
			if !cmd.Flags().Changed("owner") {
				return usageErrorf("missing --owner")
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			pub, _, err := a.keyStore(cfg).LoadPublic(pubPath)
			if err != nil {
				return keyFileError("--pubkey-file", err)
			}
			reg, closeFn, err := a.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := reg.Register(cmd.Context(), pub, owner)
			if err != nil {
				return registryError(err)
			}
			fmt.Fprintln(a.out, "Identity registered.")
			fmt.Fprintf(a.out, "Fingerprint: %s\n", keys.Fingerprint(pub))
			fmt.Fprintf(a.out, "Owner: %s\n", rec.Owner)
			fmt.Fprintf(a.out, "Scheme: %s\n", rec.Scheme)
			fmt.Fprintf(a.out, "Registered: %s\n", rec.RegisteredAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&pubPath, "pubkey-file", "", "Path to the public key file")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner label recorded with the identity")
	return cmd
}

func (a *app) verifyCommand() *cobra.Command {
	var (
		pubPath string
		data    string
		sigHex  string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Authenticate a signature against the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pubPath == "" {
				return usageErrorf("missing --pubkey-file")
			}
			if !cmd.Flags().Changed("data") {
				return usageErrorf("missing --data")
			}
			if sigHex == "" {
				return usageErrorf("missing --signature")
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			pub, _, err := a.keyStore(cfg).LoadPublic(pubPath)
			if err != nil {
				return keyFileError("--pubkey-file", err)
			}
			// Undecodable hex is a signature that cannot verify; the
			// registry gate still runs first.
			sig, err := keys.DecodeHex(sigHex)
			if err != nil {
				sig = nil
			}

			reg, closeFn, err := a.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			authn := auth.New(reg, auth.WithLogger(a.logger(cfg)), auth.WithMetrics(a.metrics))
			d, err := authn.Authenticate(cmd.Context(), pub, []byte(data), sig)
			if err != nil {
				return registryError(err)
			}
			fmt.Fprintf(a.out, "Result: %s\n", d.Result)
			fmt.Fprintf(a.out, "Fingerprint: %s\n", d.Fingerprint)
			fmt.Fprintf(a.out, "Decision: %s\n", d.ID)
			switch d.Result {
			case auth.Accepted:
				fmt.Fprintln(a.out, "Signature is valid and the identity is authorized.")
				return nil
			case auth.RejectedUnregisteredOrRevoked:
				fmt.Fprintf(a.out, "Identity is %s.\n", d.Standing)
				return exitSilently(exitUnauthorized, "unauthorized identity")
			default:
				if d.Detail != "" {
					fmt.Fprintf(a.out, "Reason: %s\n", d.Detail)
				}
				return exitSilently(exitBadSignature, "bad signature")
			}
		},
	}
	cmd.Flags().StringVar(&pubPath, "pubkey-file", "", "Path to the signer's public key file")
	cmd.Flags().StringVar(&data, "data", "", "Data that was signed")
	cmd.Flags().StringVar(&sigHex, "signature", "", "Signature as hex")
	return cmd
}

func (a *app) showLedgerCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show-ledger",
		Short: "Print every registered identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, closeFn, err := a.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			recs, err := reg.All(cmd.Context())
			if err != nil {
				return registryError(err)
			}
			if asJSON {
				data, err := jsonfile.Encode(recs)
				if err != nil {
					return withCode(exitInternal, err)
				}
				_, err = a.out.Write(data)
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(a.out, "The ledger is empty.")
				return nil
			}
			for i, rec := range recs {
				if i > 0 {
					fmt.Fprintln(a.out)
				}
				fp := rec.PublicKey
				if pub, err := keys.DecodeHex(rec.PublicKey); err == nil {
					fp = keys.Fingerprint(pub)
				}
				fmt.Fprintf(a.out, "Public key: %s...\n", shorten(rec.PublicKey, 16))
				fmt.Fprintf(a.out, "  Fingerprint: %s\n", fp)
				fmt.Fprintf(a.out, "  Owner: %s\n", rec.Owner)
				fmt.Fprintf(a.out, "  Status: %s\n", rec.Status)
				fmt.Fprintf(a.out, "  Scheme: %s\n", rec.Scheme)
				fmt.Fprintf(a.out, "  Registered: %s\n", rec.RegisteredAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the registry document as JSON")
	return cmd
}

func (a *app) snapshotCommand() *cobra.Command {
	var writePath string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the content identifier of the current registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, closeFn, err := a.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			snap, err := reg.Snapshot(cmd.Context())
			if err != nil {
				return registryError(err)
			}
			if writePath != "" {
				if err := os.WriteFile(writePath, snap.Data, 0o644); err != nil {
					return withCode(exitInternal, fmt.Errorf("write snapshot: %w", err))
				}
			}
			if cfg.ArchiveDir != "" {
				arc, err := archive.New(cfg.ArchiveDir)
				if err != nil {
					return withCode(exitInternal, fmt.Errorf("open archive: %w", err))
				}
				if _, err := arc.Put(snap.Data, snap.Records, time.Now().UTC()); err != nil {
					return withCode(exitInternal, fmt.Errorf("archive snapshot: %w", err))
				}
			}
			fmt.Fprintln(a.out, snap.CID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&writePath, "write", "", "Also write the canonical snapshot bytes to this file")
	return cmd
}

func (a *app) historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List archived registry snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.ArchiveDir == "" {
				return usageErrorf("history requires --archive-dir")
			}
			arc, err := archive.New(cfg.ArchiveDir)
			if err != nil {
				return withCode(exitInternal, fmt.Errorf("open archive: %w", err))
			}
			entries, err := arc.History()
			if err != nil {
				return withCode(exitInternal, fmt.Errorf("read history: %w", err))
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No snapshots archived.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(a.out, "%s\t%d\t%s\n", e.At.Format(time.RFC3339), e.Records, e.CID)
			}
			return nil
		},
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
