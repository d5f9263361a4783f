package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillbridge/skillbridge/internal/output"
	"github.com/skillbridge/skillbridge/internal/registry"
)

var skillsFormat string

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the built-in demo skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(skillsFormat)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatSkills(registry.NewDemoTable().Entries())
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(skillsCmd)
	skillsCmd.Flags().StringVarP(&skillsFormat, "format", "f", "table",
		"output format (table, json, markdown)")
}
