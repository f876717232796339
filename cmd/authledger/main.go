package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xdao.co/authledger/internal/config"
	"xdao.co/authledger/internal/logging"
	"xdao.co/authledger/internal/metrics"
	"xdao.co/authledger/keys"
	"xdao.co/authledger/ledger"
	"xdao.co/authledger/storage/archive"
	"xdao.co/authledger/storage/backends"

	_ "xdao.co/authledger/storage/grpcstore"
	_ "xdao.co/authledger/storage/jsonfile"
	_ "xdao.co/authledger/storage/memory"
	_ "xdao.co/authledger/storage/sqlite"
)

// Exit statuses.
const (
	exitOK                = 0
	exitInternal          = 1
	exitUsage             = 2
	exitUnauthorized      = 3
	exitBadSignature      = 4
	exitAlreadyRegistered = 5
	exitStorage           = 6
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	return runWithEnv(args, out, errOut, nil)
}

// runWithEnv is run with environ in place of the process environment when
// non-nil.
func runWithEnv(args []string, out io.Writer, errOut io.Writer, environ map[string]string) int {
	a := &app{out: out, errOut: errOut, environ: environ}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.Execute()
	a.writeMetrics()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.silent {
			fmt.Fprintf(errOut, "error: %v\n", ee.err)
		}
		return ee.code
	}
	// Anything cobra rejected itself: unknown commands and flags.
	fmt.Fprintf(errOut, "error: %v\n", err)
	fmt.Fprintln(errOut, "Run 'authledger --help' for usage.")
	return exitUsage
}

type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func usageErrorf(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

// exitSilently ends the command with code after it has already reported the
// outcome on stdout.
func exitSilently(code int, reason string) error {
	return &exitError{code: code, err: errors.New(reason), silent: true}
}

// registryError maps a ledger error to its exit status.
func registryError(err error) error {
	switch {
	case ledger.IsKind(err, ledger.KindInvalidKey):
		return withCode(exitUsage, err)
	case ledger.IsAlreadyRegistered(err):
		return withCode(exitAlreadyRegistered, err)
	case ledger.IsKind(err, ledger.KindCorrupt):
		return withCode(exitStorage, fmt.Errorf("registry corrupted: %w", err))
	case ledger.IsStorage(err):
		return withCode(exitStorage, err)
	default:
		return withCode(exitInternal, err)
	}
}

// keyFileError maps a key file load failure: unreadable files are I/O
// errors, bad contents are invalid input.
func keyFileError(flag string, err error) error {
	if errors.Is(err, keys.ErrInvalidKey) {
		return withCode(exitUsage, fmt.Errorf("invalid %s: %w", flag, err))
	}
	return withCode(exitInternal, fmt.Errorf("read %s: %w", flag, err))
}

type app struct {
	out     io.Writer
	errOut  io.Writer
	environ map[string]string

	configPath  string
	backend     string
	ledgerPath  string
	keysDir     string
	archiveDir  string
	grpcTarget  string
	logLevel    string
	metricsFile string

	// metrics is set by loadConfig when a metrics file is configured.
	metrics     *metrics.Metrics
	metricsPath string
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "authledger",
		Short:         "Identity registry and signature authentication",
		Long:          "authledger registers public keys in a shared identity registry and authenticates\nsigned statements against it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unknown command %q", args[0])
			}
			cmd.SetOut(a.errOut)
			_ = cmd.Help()
			return exitSilently(exitUsage, "no command")
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file")
	flags.StringVar(&a.backend, "backend", "", "Registry backend ("+strings.Join(backends.Names(backends.UsageCLI), ", ")+")")
	flags.StringVar(&a.ledgerPath, "ledger", "", "Registry file for the jsonfile and sqlite backends")
	flags.StringVar(&a.keysDir, "keys-dir", "", "Directory holding key files")
	flags.StringVar(&a.archiveDir, "archive-dir", "", "Snapshot archive directory (optional)")
	flags.StringVar(&a.grpcTarget, "grpc-target", "", "ledgerd address for the grpc backend")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus counters to this file after the command")

	root.AddCommand(
		a.generateCommand(),
		a.recoverCommand(),
		a.keysCommand(),
		a.signCommand(),
		a.registerCommand(),
		a.verifyCommand(),
		a.showLedgerCommand(),
		a.snapshotCommand(),
		a.historyCommand(),
		a.backendsCommand(),
	)
	return root
}

// loadConfig layers command-line flags over the file and environment.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(a.configPath, a.environ)
	if err != nil {
		return config.Config{}, withCode(exitUsage, err)
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = a.backend
	}
	if flags.Changed("ledger") {
		cfg.Ledger = a.ledgerPath
	}
	if flags.Changed("keys-dir") {
		cfg.KeysDir = a.keysDir
	}
	if flags.Changed("archive-dir") {
		cfg.ArchiveDir = a.archiveDir
	}
	if flags.Changed("grpc-target") {
		cfg.GRPC.Target = a.grpcTarget
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = a.metricsFile
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "warn"
	}
	if err := cfg.Validate(backends.UsageCLI); err != nil {
		return config.Config{}, withCode(exitUsage, err)
	}
	if cfg.MetricsFile != "" && a.metrics == nil {
		a.metrics = metrics.New()
		a.metricsPath = cfg.MetricsFile
	}
	return cfg, nil
}

func (a *app) logger(cfg config.Config) *slog.Logger {
	log, err := logging.New(a.errOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return logging.Discard()
	}
	return log.With("backend", cfg.Backend)
}

// openRegistry opens the configured backend. The returned close function is
// never nil.
func (a *app) openRegistry(cfg config.Config) (*ledger.Registry, func(), error) {
	log := a.logger(cfg)
	store, err := backends.Open(cfg.Backend, backends.UsageCLI, cfg.BackendSettings())
	if err != nil {
		return nil, func() {}, withCode(exitStorage, fmt.Errorf("open registry: %w", err))
	}
	opts := []ledger.Option{ledger.WithLogger(log), ledger.WithMetrics(a.metrics)}
	if cfg.ArchiveDir != "" {
		arc, err := archive.New(cfg.ArchiveDir)
		if err != nil {
			_ = store.Close()
			return nil, func() {}, withCode(exitInternal, fmt.Errorf("open archive: %w", err))
		}
		opts = append(opts, ledger.WithArchive(arc))
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			log.Warn("close registry", "err", err)
		}
	}
	return ledger.New(store, opts...), closeFn, nil
}

// writeMetrics exports the counters of the finished command. Failures are
// reported but never change the exit status.
func (a *app) writeMetrics() {
	if a.metrics == nil {
		return
	}
	if err := a.metrics.WriteTextfile(a.metricsPath); err != nil {
		fmt.Fprintf(a.errOut, "warning: write metrics: %v\n", err)
	}
}

func (a *app) keyStore(cfg config.Config) *keys.KeyStore {
	return keys.NewKeyStore(cfg.KeysDir)
}

func (a *app) backendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registry backends built into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range backends.List(backends.UsageCLI) {
				if b.Description == "" {
					fmt.Fprintf(a.out, "%s\n", b.Name)
					continue
				}
				fmt.Fprintf(a.out, "%s\t%s\n", b.Name, b.Description)
			}
			return nil
		},
	}
}
