package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillbridge/skillbridge/internal/output"
	"github.com/skillbridge/skillbridge/internal/store"
)

var (
	instancesFormat string
	instancesPrune  bool
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List bridge instances from the discovery registry",
	Long: `List the bridge instances known to the discovery registry. Running
bridges heartbeat into the registry; agent clients use it to find the
port of a named instance when several hosts run on one machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, err := output.ParseFormat(instancesFormat)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, appConfig.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if instancesPrune {
			pruned, err := st.PruneInstances(ctx, 5*time.Minute)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d stale instance(s)\n", pruned)
		}

		instances, err := st.ListInstances(ctx)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatInstances(instances)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(instancesCmd)
	instancesCmd.Flags().StringVarP(&instancesFormat, "format", "f", "table",
		"output format (table, json, markdown)")
	instancesCmd.Flags().BoolVar(&instancesPrune, "prune", false,
		"remove instances not seen in the last 5 minutes")
}
