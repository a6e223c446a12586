package cmd

import (
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportPath   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Solve and export the plan in the given format",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Output.Format = exportFormat
		if err := cfg.Output.Validate(); err != nil {
			return err
		}
		cfg.Output.Path = exportPath
		return run(cmd, cfg)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: json or csv")
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}
