package main

import (
	"fmt"
	"os"

	"github.com/furukawa-project/furukawad/cmd/furukawad"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "furukawad",
	Short: "furukawad",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(furukawad.Command)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
