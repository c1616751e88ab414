package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/filebay/filebay/internal/config"
	"github.com/filebay/filebay/internal/vault"
	"github.com/filebay/filebay/pkg/bytesize"
)

var trashTab string

// newTrashCmd builds the trash subcommands. They open the configured
// store directly rather than going through the daemon, so they work
// whether or not it is running.
func newTrashCmd() *cobra.Command {
	trashCmd := &cobra.Command{
		Use:   "trash",
		Short: "Inspect and manage the trash",
	}
	trashCmd.PersistentFlags().StringVar(&trashTab, "tab", "permanent", "namespace: permanent or temporary")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List trash entries",
		RunE:  runTrashList,
	}
	trashCmd.AddCommand(listCmd)

	restoreCmd := &cobra.Command{
		Use:   "restore <id>...",
		Short: "Restore trash entries to their original locations",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTrashRestore,
	}
	trashCmd.AddCommand(restoreCmd)

	purgeCmd := &cobra.Command{
		Use:   "purge <id>...",
		Short: "Permanently delete trash entries",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTrashPurge,
	}
	trashCmd.AddCommand(purgeCmd)

	return trashCmd
}

func openStore() (*vault.Store, vault.Namespace, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, 0, err
	}
	ns, err := vault.ParseNamespace(trashTab)
	if err != nil {
		return nil, 0, err
	}
	store, err := vault.New(vault.Config{
		RootDir:         cfg.RootDir,
		PermanentSubdir: cfg.PermanentDir,
		TemporarySubdir: cfg.TemporaryDir,
		MaxUploadBytes:  cfg.MaxUploadSize.Bytes(),
	})
	if err != nil {
		return nil, 0, err
	}
	return store, ns, nil
}

func runTrashList(cmd *cobra.Command, args []string) error {
	setupLogging()
	store, ns, err := openStore()
	if err != nil {
		return err
	}

	entries, err := store.ListTrash(ns)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("trash is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tORIGINAL PATH\tSIZE\tDELETED")
	for _, e := range entries {
		kind := ""
		if e.IsDirectory {
			kind = "/"
		}
		fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\t%s\n",
			e.ID, e.Name, kind, e.OriginalPath,
			bytesize.Format(e.SizeBytes),
			e.DeletedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

func runTrashRestore(cmd *cobra.Command, args []string) error {
	setupLogging()
	store, ns, err := openStore()
	if err != nil {
		return err
	}
	if err := store.RestoreFromTrash(ns, args); err != nil {
		return err
	}
	fmt.Printf("restored %d entries\n", len(args))
	return nil
}

func runTrashPurge(cmd *cobra.Command, args []string) error {
	setupLogging()
	store, ns, err := openStore()
	if err != nil {
		return err
	}
	if err := store.PurgeTrash(ns, args); err != nil {
		return err
	}
	fmt.Printf("purged %d entries\n", len(args))
	return nil
}
