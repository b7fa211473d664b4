package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the copier CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("copier version %s\n", version)
		fmt.Println("Master to follower trade mirroring with safety guards")
		fmt.Println("https://github.com/rustyeddy/copier")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
