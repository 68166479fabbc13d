package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/flanksource/certify"
	"github.com/spf13/cobra"
)

// Build information (set by goreleaser)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	labelStyle = lipgloss.NewStyle().Bold(true)
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "certify",
		Short: "Render course completion certificates as PNG or PDF",
		Long: `certify overlays student details onto certificate background images.

Templates and students live in a SQLite database (see 'certify import'), and are
served over HTTP by 'certify serve' or rendered directly with 'certify render'.`,
		Example: `  certify import fixtures.yaml
  certify render --template template.yaml --set name="Jane Doe" -o jane.pdf
  certify serve --config certify.yaml`,
		SilenceUsage: true,
	}
	certify.BindAllFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newBatchCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newFontsCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(getVersionInfo())
		},
	}
}

func getVersionInfo() string {
	return fmt.Sprintf("certify %s (commit: %s, built: %s, go: %s)",
		version, commit, date, runtime.Version())
}
