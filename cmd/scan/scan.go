package scan

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/localsend/client"
	"github.com/wryfox/localsend-go/internal/localsend/discovery"
	lsutils "github.com/wryfox/localsend-go/internal/localsend/utils"
	"github.com/wryfox/localsend-go/internal/store"
)

var (
	timeout  int64
	withScan bool
)

var Cmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the local network for localsend instances",
	Long:  "Scan the local network for localsend instances",
	Run: func(cmd *cobra.Command, args []string) {
		slog.Info("Start scanning")

		cfg, err := config.New(config.Options{Alias: lsutils.GenAlias()})
		if err != nil {
			slog.Error("Fail to build config", "error", err)
			return
		}

		registry := store.NewRegistry()
		cl := client.New(cfg.DeviceInfo(), cfg.InsecureTLS)

		multicast, err := discovery.NewMulticast(cfg, registry, cl)
		if err != nil {
			slog.Error("Fail to create discoverer", "error", err)
			return
		}
		if err := multicast.Start(); err != nil {
			slog.Error("Fail to start discoverer", "error", err)
			return
		}
		multicast.AnnouncePresence()

		var scanner *discovery.Scanner
		if withScan {
			slog.Info("Performing HTTP subnet scan")
			scanner = discovery.NewScanner(cfg, registry, cl)
			scanner.Start()
		}

		<-time.After(time.Second * time.Duration(timeout))
		slog.Info("Stop scanning")

		multicast.Stop()
		if scanner != nil {
			scanner.Stop()
		}

		devlist := registry.All()

		if len(devlist) > 0 {
			fmt.Fprintf(os.Stdout, "Found Devices: \n")
			for _, info := range devlist {
				fmt.Fprintf(os.Stdout, "\tName: %s, Version: %s, Address: %s:%d, Protocol: %s\n",
					info.Alias, info.Version, info.IP, info.Port, info.Protocol)
			}
		} else {
			fmt.Fprintln(os.Stderr, "No device found")
		}
	},
}

func init() {
	Cmd.PersistentFlags().Int64VarP(&timeout, "timeout", "t", 4, "scan duration in seconds")
	Cmd.PersistentFlags().BoolVarP(&withScan, "subnet", "s", false, "also probe every host of the local /24 over HTTP")
}
