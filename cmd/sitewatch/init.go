package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/errors"
	"github.com/sitewatch-dev/sitewatch/internal/scaffold"
)

func initCmd() *cobra.Command {
	var (
		templateName string
		modulePath   string
		list         bool
	)

	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Create a new project",
		Long: `Init creates a new project directory with a sitewatch.json, a
server, a wasm front and an assets directory, ready for
'sitewatch watch'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, name := range scaffold.List() {
					tmpl, _ := scaffold.Get(name)
					info("%-10s %s", name, tmpl.Description)
				}
				return nil
			}
			if len(args) == 0 {
				return errors.Newf(errors.CategoryCLI, "project name required")
			}
			return runInit(args[0], templateName, modulePath)
		},
	}

	cmd.Flags().StringVarP(&templateName, "template", "t", "styled", "project template")
	cmd.Flags().StringVar(&modulePath, "module", "", "Go module path (default example.com/<name>)")
	cmd.Flags().BoolVar(&list, "list", false, "list the available templates")
	return cmd
}

func runInit(name, templateName, modulePath string) error {
	if modulePath == "" {
		modulePath = "example.com/" + name
	}

	dir, err := filepath.Abs(name)
	if err != nil {
		return err
	}
	if config.Exists(dir) {
		return errors.Newf(errors.CategoryCLI, "%s already contains a %s", name, config.ConfigFileName)
	}

	tmpl, err := scaffold.Get(templateName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := tmpl.Create(dir, scaffold.Config{
		ProjectName: name,
		ModulePath:  modulePath,
	}); err != nil {
		return err
	}

	success("created %s from the %s template", name, templateName)
	info("next steps:")
	info("  cd %s", name)
	info("  sitewatch watch")
	return nil
}
