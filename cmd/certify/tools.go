package main

import (
	"fmt"
	"os"

	"github.com/flanksource/certify"
	"github.com/flanksource/certify/fonts"
	"github.com/flanksource/certify/packager"
	"github.com/flanksource/certify/rasterizer"
	"github.com/flanksource/certify/store"
	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <fixtures.yaml>...",
		Short: "Import courses, templates and students from YAML into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := certify.Flags.UseFlags()
			if err != nil {
				return err
			}
			db, err := store.Open(config.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, path := range args {
				fixtures, err := store.ReadFixturesFile(path)
				if err != nil {
					return err
				}
				stats, err := db.Import(cmd.Context(), fixtures)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Printf("%s %s: %d courses, %d templates, %d students\n", okStyle.Render("imported"),
					path, stats.Courses, stats.Templates, stats.Students)
			}
			return nil
		},
	}
}

func newFontsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fonts",
		Short: "Show where the certificate font is searched and which rasterizers are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := certify.Flags.UseFlags()
			if err != nil {
				return err
			}
			renderer, resolver, err := certify.NewRenderer(config)
			if err != nil {
				return err
			}
			defer renderer.Close()

			fmt.Println(labelStyle.Render("Font candidates"))
			for _, path := range resolver.Candidates() {
				if _, err := os.Stat(path); err == nil {
					fmt.Printf("  %s %s\n", okStyle.Render("found  "), path)
				} else {
					fmt.Printf("  %s %s\n", warnStyle.Render("missing"), path)
				}
			}
			if asset, ok := resolver.Resolve(cmd.Context()); ok {
				fmt.Printf("%s %s (%s)\n", labelStyle.Render("Using"), asset.Path, asset.Family)
			} else {
				fmt.Printf("%s %s\n", warnStyle.Render("FontAssetMissing:"), fonts.FamilyList(nil))
			}

			chain, err := rasterizer.NewChainFromTypes(nil, config.Rasterizers.Options)
			if err != nil {
				return err
			}
			defer chain.Close()
			fmt.Println(labelStyle.Render("Rasterizers"))
			available := map[string]bool{}
			for _, name := range chain.Available() {
				available[name] = true
			}
			for _, name := range chain.Names() {
				if available[name] {
					fmt.Printf("  %s %s\n", okStyle.Render("available  "), name)
				} else {
					fmt.Printf("  %s %s\n", warnStyle.Render("unavailable"), name)
				}
			}
			return nil
		},
	}
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.pdf>...",
		Short: "Validate PDFs and print their page count and sizes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				info, err := packager.Inspect(data)
				if err != nil {
					fmt.Printf("%s %s: %v\n", failStyle.Render("invalid"), path, err)
					continue
				}
				fmt.Printf("%s %s: %d page(s) %v, %d bytes\n", okStyle.Render("ok"), path, info.Pages, info.Sizes, info.Bytes)
			}
			return nil
		},
	}
}
