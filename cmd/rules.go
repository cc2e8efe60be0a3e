package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the forwarding rule file",
	}
	cmd.AddCommand(rulesCheckCmd())
	cmd.AddCommand(rulesListCmd())
	return cmd
}

func loadRuleFile() ([]rules.RawRecord, *rules.Set, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	records, err := rules.LoadFile(config.ExpandHome(cfg.Rules.Path))
	if err != nil {
		return nil, nil, err
	}
	return records, rules.Build(records), nil
}

func rulesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the rule file and report dropped rows",
		Run: func(cmd *cobra.Command, args []string) {
			records, set, err := loadRuleFile()
			if err != nil {
				fmt.Fprintf(os.Stderr, "rule file invalid: %v\n", err)
				os.Exit(1)
			}
			dropped := len(records) - set.Len()
			fmt.Printf("%d rows, %d valid rules, %d dropped\n", len(records), set.Len(), dropped)
			if set.Len() == 0 {
				fmt.Fprintln(os.Stderr, "no valid rules — the relay would refuse to start")
				os.Exit(1)
			}
		},
	}
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the active rules in row order",
		Run: func(cmd *cobra.Command, args []string) {
			_, set, err := loadRuleFile()
			if err != nil {
				fmt.Fprintf(os.Stderr, "rule file invalid: %v\n", err)
				os.Exit(1)
			}
			for _, r := range set.Rules() {
				restrictions := make([]string, 0, len(r.Restrictions))
				for _, restriction := range r.Restrictions {
					if restriction != "" {
						restrictions = append(restrictions, restriction)
					}
				}
				line := fmt.Sprintf("row %d: %s -> %s", r.Row, r.Origin, r.Target)
				if len(restrictions) > 0 {
					line += " [" + strings.Join(restrictions, ", ") + "]"
				}
				fmt.Println(line)
			}
		},
	}
}
