package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "teamhub",
	Short: "TeamHub - team collaboration backend",
	Long:  "TeamHub serves teams, boards and tasks with role-based access control. Every user's role is derived from their team relationships and kept in sync as memberships change.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus TEAMHUB_* environment)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
