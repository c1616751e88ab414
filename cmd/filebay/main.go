// filebay is a self-hosted two-tier file vault daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/filebay/filebay/internal/audit"
	"github.com/filebay/filebay/internal/config"
	"github.com/filebay/filebay/internal/control"
	"github.com/filebay/filebay/internal/metrics"
	"github.com/filebay/filebay/internal/nfsexport"
	"github.com/filebay/filebay/internal/share"
	"github.com/filebay/filebay/internal/svc"
	"github.com/filebay/filebay/internal/sweep"
	"github.com/filebay/filebay/internal/vault"
	"github.com/filebay/filebay/internal/web"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string

	// Hidden flag set when invoked by the service manager.
	serviceRun bool
)

func main() {
	if svc.IsServiceMode(os.Args) {
		runAsService()
		return
	}

	rootCmd := &cobra.Command{
		Use:   "filebay",
		Short: "Filebay - self-hosted two-tier file vault",
		Long: `Filebay serves a permanent and a temporary (auto-expiring) storage
area over HTTP, with trash recovery, streamed zip downloads, share
links, and an optional read-only NFS export.

QUICK START:

  # Hash the admin password and put it in the config:
  filebay hash-password

  # Write a minimal config:
  cat > /etc/filebay/config.yaml <<EOF
  root_dir: /var/lib/filebay
  auth:
    password_hash: "<hash from above>"
  EOF

  # Run the daemon:
  filebay serve --config /etc/filebay/config.yaml

  # Or install it as a system service:
  sudo filebay service install --config /etc/filebay/config.yaml

For more help on any command, use: filebay <command> --help`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level")

	// Hidden service mode flag (used when running as a service)
	rootCmd.PersistentFlags().BoolVar(&serviceRun, "service-run", false, "Run as a service (internal use)")
	_ = rootCmd.PersistentFlags().MarkHidden("service-run")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the filebay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath())
		},
	}
	rootCmd.AddCommand(serveCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run all retention sweeps immediately",
		RunE:  runSweepNow,
	}
	rootCmd.AddCommand(sweepCmd)

	hashCmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for the config file",
		Long: `Read a password and print its bcrypt hash, suitable for the
auth.password_hash configuration field.`,
		RunE: runHashPassword,
	}
	rootCmd.AddCommand(hashCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("filebay %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(newTrashCmd())
	rootCmd.AddCommand(newServiceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return svc.DefaultConfigPath()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// runServe runs the daemon until ctx is canceled.
func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := vault.New(vault.Config{
		RootDir:         cfg.RootDir,
		PermanentSubdir: cfg.PermanentDir,
		TemporarySubdir: cfg.TemporaryDir,
		MaxUploadBytes:  cfg.MaxUploadSize.Bytes(),
	})
	if err != nil {
		return err
	}
	if err := store.EnsureRoots(); err != nil {
		return err
	}

	// A missing session secret is generated once and persisted next to
	// the data so sessions survive restarts.
	sessionSecret := cfg.Auth.SessionSecret
	if sessionSecret == "" {
		sessionSecret, err = config.EnsureSecret(filepath.Join(cfg.RootDir, "session.secret"))
		if err != nil {
			return err
		}
	}
	shareSecret := cfg.Share.Secret
	if shareSecret == "" {
		shareSecret = sessionSecret
	}

	shares, err := share.NewManager([]byte(shareSecret), cfg.Share.DefaultTTL.Std())
	if err != nil {
		return err
	}

	m := metrics.InitStoreMetrics(nil)
	auditLog := audit.NewLogger(log.With().Str("component", "audit").Logger())

	sweeper := sweep.New(store, sweep.Config{
		TrashInterval:    cfg.Sweep.TrashInterval.Std(),
		TrashRetention:   cfg.Sweep.TrashRetention.Std(),
		ContentInterval:  cfg.Sweep.ContentInterval.Std(),
		ContentRetention: cfg.Sweep.ContentRetention.Std(),
		StagingInterval:  cfg.Sweep.StagingInterval.Std(),
		StagingRetention: cfg.Sweep.StagingRetention.Std(),
	}, m)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	if cfg.ControlSocket != "" {
		ctl := control.NewServer(cfg.ControlSocket, store, sweeper, Version)
		if err := ctl.Start(); err != nil {
			// The daemon is useful without its control socket; keep going.
			log.Warn().Err(err).Msg("control socket unavailable")
		} else {
			defer func() { _ = ctl.Stop() }()
		}
	}

	if cfg.NFS.Enabled {
		nfsSrv := nfsexport.NewServer(cfg.NFS.Listen)
		if err := nfsSrv.Start(store); err != nil {
			return fmt.Errorf("start NFS export: %w", err)
		}
		defer func() { _ = nfsSrv.Stop() }()
	}

	srv := web.NewServer(cfg, store, shares, []byte(sessionSecret), m, auditLog)
	srv.SetVersion(Version)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info().
		Str("version", Version).
		Str("root", cfg.RootDir).
		Str("listen", cfg.Listen).
		Msg("filebay started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runAsService is invoked when started by the service manager.
func runAsService() {
	setupLogging()

	cfgPath := svc.DefaultConfigPath()
	for i, arg := range os.Args {
		if (arg == "--config" || arg == "-c") && i+1 < len(os.Args) {
			cfgPath = os.Args[i+1]
		}
	}

	prg := &svc.Program{
		ConfigPath: cfgPath,
		RunServe:   runServe,
	}
	svcCfg := &svc.ServiceConfig{
		Name:        svc.DefaultServiceName(),
		DisplayName: svc.DefaultDisplayName(),
		Description: svc.DefaultDescription(),
		ConfigPath:  cfgPath,
	}
	if err := svc.Run(prg, svcCfg); err != nil {
		log.Fatal().Err(err).Msg("service run failed")
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	setupLogging()
	client := control.NewClient(controlSocketPath())
	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}

	fmt.Printf("filebay %s, up %s\n", status.Version, (time.Duration(status.UptimeSeconds) * time.Second).String())
	for _, ns := range status.Namespaces {
		fmt.Printf("  %-10s %s (%d trash entries)\n", ns.Name, ns.Root, ns.TrashEntries)
	}
	return nil
}

func runSweepNow(cmd *cobra.Command, args []string) error {
	setupLogging()
	client := control.NewClient(controlSocketPath())
	result, err := client.SweepNow()
	if err != nil {
		log.Debug().Err(err).Msg("control socket unreachable, sweeping directly")
		return runSweepDirect()
	}

	fmt.Printf("sweep complete: %d trash, %d content, %d staging items removed\n",
		result.Removed["trash"], result.Removed["content"], result.Removed["staging"])
	return nil
}

// runSweepDirect runs the retention passes against the store without a
// daemon. Used when the control socket is not available.
func runSweepDirect() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	store, err := vault.New(vault.Config{
		RootDir:         cfg.RootDir,
		PermanentSubdir: cfg.PermanentDir,
		TemporarySubdir: cfg.TemporaryDir,
		MaxUploadBytes:  cfg.MaxUploadSize.Bytes(),
	})
	if err != nil {
		return err
	}

	now := time.Now()
	var trash, content, staging int
	for _, ns := range []vault.Namespace{vault.Permanent, vault.Temporary} {
		n, err := store.CleanupTrash(ns, now.Add(-cfg.Sweep.TrashRetention.Std()))
		if err != nil {
			return fmt.Errorf("trash sweep: %w", err)
		}
		trash += n
		n, err = store.CleanupStaging(ns, now.Add(-cfg.Sweep.StagingRetention.Std()))
		if err != nil {
			return fmt.Errorf("staging sweep: %w", err)
		}
		staging += n
	}
	content, err = store.CleanupExpiredContent(vault.Temporary, now.Add(-cfg.Sweep.ContentRetention.Std()))
	if err != nil {
		return fmt.Errorf("content sweep: %w", err)
	}

	fmt.Printf("sweep complete: %d trash, %d content, %d staging items removed\n",
		trash, content, staging)
	return nil
}

// controlSocketPath resolves the socket path from the config when one is
// given, falling back to the default.
func controlSocketPath() string {
	if cfgFile != "" {
		if cfg, err := config.Load(cfgFile); err == nil && cfg.ControlSocket != "" {
			return cfg.ControlSocket
		}
	}
	return control.DefaultSocketPath()
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}
