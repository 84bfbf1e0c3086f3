package send

import (
	"errors"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/localsend/client"
	lssend "github.com/wryfox/localsend-go/internal/localsend/send"
	lsutils "github.com/wryfox/localsend-go/internal/localsend/utils"
	"github.com/wryfox/localsend-go/internal/utils"
)

var (
	ip       string
	files    []string
	pin      string
	useHttps bool
	port     int
)

var Cmd = &cobra.Command{
	Use:   "send [files]...",
	Short: "Send files to a localsend instance",
	Long:  "Send files to a localsend instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ip == "" {
			return errors.New("IP address is required")
		}
		files = append(files, args...)
		if len(files) == 0 {
			return errors.New("File is required")
		}

		protocol := "http"
		if useHttps {
			protocol = "https"
		}

		cfg, err := config.New(config.Options{
			Alias:    lsutils.GenAlias(),
			Port:     port,
			Protocol: protocol,
		})
		if err != nil {
			return err
		}

		cl := client.New(cfg.DeviceInfo(), cfg.InsecureTLS)

		devinfo, err := cl.Info(ip, port, protocol)
		if err != nil {
			slog.Error("Fail to get device info", "remote", ip, "error", err)
			return nil
		}
		slog.Info("Sending to", "alias", devinfo.Alias, "remote", devinfo.IP)

		sender := lssend.NewFileSender(cl)
		sender.Init(devinfo)
		sender.SetPIN(pin)

		// try to add every file
		for _, file := range files {
			finfo, err := os.Stat(file)
			if err != nil {
				slog.Error("Fail to probe file", "file", file, "error", err)
				continue
			}
			if finfo.IsDir() {
				err = sender.AddDir(file)
			} else {
				err = sender.AddFile(file)
			}
			if err != nil {
				slog.Error("Fail to add, skipping...", "file", file, "error", err)
			}
		}

		bars := make(map[string]*progressbar.ProgressBar)
		sender.OnProgress(func(fileId, fileName string, sent, total int64, finished bool) {
			bar, ok := bars[fileId]
			if !ok {
				bar = progressbar.DefaultBytes(total, fileName)
				bars[fileId] = bar
			}
			bar.Set64(sent)
			if finished {
				bar.Finish()
			}
		})

		go func() {
			<-utils.WaitForSignal()

			slog.Info("Abort")
			if err := sender.Cancel(); err != nil {
				slog.Error("Fail to cancel", "error", err)
			}
		}()

		if err := sender.Start(); err != nil {
			slog.Error("Fail to send", "error", err)
			return nil
		}

		slog.Info("Done")
		return nil
	},
}

func init() {
	Cmd.PersistentFlags().StringVar(&ip, "ip", "", "IP address of the remote localsend instance")
	Cmd.PersistentFlags().StringSliceVarP(&files, "file", "f", []string{}, "File/Directory to be sent")
	Cmd.PersistentFlags().StringVarP(&pin, "pin", "p", "", "PIN code")
	Cmd.PersistentFlags().BoolVar(&useHttps, "https", false, "Use https towards the peer")
	Cmd.PersistentFlags().IntVar(&port, "port", config.DefaultPort, "Port of the remote protocol endpoint")
}
