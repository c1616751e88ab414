package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/filebay/filebay/internal/svc"
)

var (
	serviceConfigPath string
	serviceName       string
	serviceUser       string
	forceInstall      bool
	logsFollow        bool
	logsLines         int
)

func newServiceCmd() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the filebay system service",
		Long: `Install, control, and manage filebay as a system service.

Supported platforms:
  - Linux (systemd)
  - macOS (launchd)
  - Windows (Service Control Manager)

Examples:
  sudo filebay service install --config /etc/filebay/config.yaml
  sudo filebay service start
  sudo filebay service status
  sudo filebay service logs --follow`,
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install filebay as a system service",
		Long: `Install filebay as a system service that starts automatically at boot.

Requires administrator/root privileges.`,
		RunE: runServiceInstall,
	}
	installCmd.Flags().StringVarP(&serviceConfigPath, "config", "c", "", "Path to configuration file")
	installCmd.Flags().StringVarP(&serviceName, "name", "n", "", "Service name (default: filebay)")
	installCmd.Flags().StringVar(&serviceUser, "user", "", "Run service as this user (Linux/macOS only)")
	installCmd.Flags().BoolVarP(&forceInstall, "force", "f", false, "Force reinstall if service already exists")
	serviceCmd.AddCommand(installCmd)

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the filebay system service",
		RunE:  runServiceUninstall,
	}
	uninstallCmd.Flags().StringVarP(&serviceName, "name", "n", "", "Service name")
	serviceCmd.AddCommand(uninstallCmd)

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the filebay service",
		RunE:  runServiceControl(svc.Start, "started"),
	}
	startCmd.Flags().StringVarP(&serviceName, "name", "n", "", "Service name")
	serviceCmd.AddCommand(startCmd)

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the filebay service",
		RunE:  runServiceControl(svc.Stop, "stopped"),
	}
	stopCmd.Flags().StringVarP(&serviceName, "name", "n", "", "Service name")
	serviceCmd.AddCommand(stopCmd)

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the filebay service",
		RunE:  runServiceControl(svc.Restart, "restarted"),
	}
	restartCmd.Flags().StringVarP(&serviceName, "name", "n", "", "Service name")
	serviceCmd.AddCommand(restartCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the filebay service status",
		RunE:  runServiceStatus,
	}
	statusCmd.Flags().StringVarP(&serviceName, "name", "n", "", "Service name")
	serviceCmd.AddCommand(statusCmd)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "View filebay service logs",
		RunE:  runServiceLogs,
	}
	logsCmd.Flags().StringVarP(&serviceName, "name", "n", "", "Service name")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVar(&logsLines, "lines", 50, "Number of log lines to show")
	serviceCmd.AddCommand(logsCmd)

	return serviceCmd
}

func serviceConfig() *svc.ServiceConfig {
	name := serviceName
	if name == "" {
		name = svc.DefaultServiceName()
	}
	cfgPath := serviceConfigPath
	if cfgPath == "" {
		cfgPath = svc.DefaultConfigPath()
	}
	return &svc.ServiceConfig{
		Name:        name,
		DisplayName: svc.DefaultDisplayName(),
		Description: svc.DefaultDescription(),
		ConfigPath:  cfgPath,
		UserName:    serviceUser,
	}
}

func runServiceInstall(cmd *cobra.Command, args []string) error {
	setupLogging()
	if err := svc.CheckPrivileges(); err != nil {
		return err
	}

	cfg := serviceConfig()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		log.Warn().Str("path", cfg.ConfigPath).Msg("config file not found; the service will fail to start until it exists")
	}

	if err := svc.Install(cfg, forceInstall); err != nil {
		return err
	}
	fmt.Printf("service %q installed\n", cfg.Name)
	fmt.Printf("start it with: sudo filebay service start\n")
	return nil
}

func runServiceUninstall(cmd *cobra.Command, args []string) error {
	setupLogging()
	if err := svc.CheckPrivileges(); err != nil {
		return err
	}
	cfg := serviceConfig()
	if err := svc.Uninstall(cfg); err != nil {
		return err
	}
	fmt.Printf("service %q uninstalled\n", cfg.Name)
	return nil
}

func runServiceControl(action func(*svc.ServiceConfig) error, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		setupLogging()
		if err := svc.CheckPrivileges(); err != nil {
			return err
		}
		cfg := serviceConfig()
		if err := action(cfg); err != nil {
			return err
		}
		fmt.Printf("service %q %s\n", cfg.Name, verb)
		return nil
	}
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	setupLogging()
	cfg := serviceConfig()
	status, err := svc.Status(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("service %q: %s\n", cfg.Name, svc.StatusString(status))
	return nil
}

func runServiceLogs(cmd *cobra.Command, args []string) error {
	cfg := serviceConfig()
	return svc.ViewLogs(svc.LogOptions{
		ServiceName: cfg.Name,
		Follow:      logsFollow,
		Lines:       logsLines,
	})
}
