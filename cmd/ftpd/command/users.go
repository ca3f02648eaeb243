package command

import (
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpd/internal/config"
)

var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the accounts allowed to log in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfgPath, err := resolvePaths()
		if err != nil {
			return err
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		return printUsers(cmd.OutOrStdout(), cfg)
	},
}

// printUsers renders the configured accounts. Passwords are never shown.
func printUsers(w io.Writer, cfg *config.Config) error {
	adminRole := color.New(color.FgRed, color.Bold).Sprint("admin")

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Role", "Password")

	if cfg.Admin != nil {
		if err := table.Append([]string{cfg.Admin.Name, adminRole, passwordState(cfg.Admin.Password)}); err != nil {
			return err
		}
	}
	for _, u := range cfg.Users {
		if err := table.Append([]string{u.Name, "user", passwordState(u.Password)}); err != nil {
			return err
		}
	}
	return table.Render()
}

func passwordState(password string) string {
	if password == "" {
		return "none"
	}
	return "required"
}
