package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wikibot",
	Short: "Stardew Valley wiki bot for QQ groups",
	Long:  "A QQ group bot that answers Stardew Valley wiki queries, analyzes shared game logs, and chats via an AI provider.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
