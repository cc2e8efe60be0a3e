package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/directory"
)

func directoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Inspect the learned chat directory",
	}
	cmd.AddCommand(directoryListCmd())
	return cmd
}

func directoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the learned display-name to chat-id map",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %v\n", err)
				os.Exit(1)
			}
			stores, err := openStores(cfg.Storage)
			if err != nil {
				fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
				os.Exit(1)
			}
			defer stores.Close()

			cache, err := directory.New(stores.Directory)
			if err != nil {
				fmt.Fprintf(os.Stderr, "load directory: %v\n", err)
				os.Exit(1)
			}
			entries := cache.Entries()
			if len(entries) == 0 {
				fmt.Println("directory empty — it fills in as traffic is observed")
				return
			}
			for _, e := range entries {
				fmt.Printf("%-40s %s  (last seen %s)\n",
					e.DisplayName, e.StableID, e.LastSeen.Format("2006-01-02 15:04:05"))
			}
		},
	}
}
