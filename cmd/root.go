package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wryfox/localsend-go/cmd/recv"
	"github.com/wryfox/localsend-go/cmd/scan"
	"github.com/wryfox/localsend-go/cmd/send"
)

var rootCmd = &cobra.Command{
	Use:   "localsend-go",
	Short: "LocalSend node",
	Long:  "Peer-to-peer file sharing on the local network, speaking the LocalSend v2 protocol",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("Fail to execute", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(scan.Cmd)
	rootCmd.AddCommand(recv.Cmd)
	rootCmd.AddCommand(send.Cmd)
}
