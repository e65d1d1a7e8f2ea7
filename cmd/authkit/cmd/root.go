package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/authkit/internal/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "authkit",
	Short: "authkit manages client-side authentication sessions",
	Long: `Inspect tokens, manage the locally persisted session and run a development
identity backend. Settings come from AUTHKIT_* environment variables and an
optional YAML file passed with --config.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
}

// openApp loads configuration and builds the application. Callers must
// Close it.
func openApp(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, cmd.ErrOrStderr())
}

var (
	keyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	keyWidth  = 18
)

// field prints one aligned key/value line.
func field(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s %v\n", keyStyle.Width(keyWidth).Render(key+":"), value)
}
