package cmd

import (
	"fmt"

	"conduit/internal/version"

	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of conduit.`,
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("conduit version %s\n", info.String())
		fmt.Println(info.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
