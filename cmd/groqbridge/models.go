package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"phobos.org.uk/groqbridge/internal/api"
	"phobos.org.uk/groqbridge/internal/client"
	"phobos.org.uk/groqbridge/internal/model"
)

var modelsServer string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the selectable models",
	RunE: func(cmd *cobra.Command, args []string) error {
		var models []api.ModelInfo
		if modelsServer != "" {
			var err error
			if models, err = client.New(modelsServer).Models(cmd.Context()); err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			def := cfg.Selection()
			for _, m := range model.All() {
				models = append(models, api.ModelInfo{Name: m.String(), ID: m.ID(), Default: m == def})
			}
		}

		data := pterm.TableData{{"NAME", "ID", "DEFAULT"}}
		for _, m := range models {
			mark := ""
			if m.Default {
				mark = "*"
			}
			data = append(data, []string{m.Name, m.ID, mark})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
	},
}

func init() {
	modelsCmd.Flags().StringVar(&modelsServer, "server", "", "URL of a running panel")
}
