package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zleao/coralph/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the coralph version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coralph %s\n", version.Get())
	},
}
