package recv

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/localsend"
	lsrecv "github.com/wryfox/localsend-go/internal/localsend/recv"
	lsutils "github.com/wryfox/localsend-go/internal/localsend/utils"
	"github.com/wryfox/localsend-go/internal/models"
	"github.com/wryfox/localsend-go/internal/utils"
)

var (
	devname   string
	savetodir string
	pin       string
	useHttps  bool
	port      int
)

var Cmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive files from localsend instances",
	Long:  "Receive files from localsend instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol := "http"
		if useHttps {
			protocol = "https"
		}

		cfg, err := config.New(config.Options{
			Alias:    devname,
			Port:     port,
			Protocol: protocol,
			SaveDir:  savetodir,
			PIN:      pin,
		})
		if err != nil {
			return err
		}

		node := localsend.NewNode(cfg)

		// headless node: accept everything that passed the PIN gate
		node.Receiver().OnTransferRequest(func(sender models.DeviceInfo, files models.FileMetas) bool {
			slog.Info("Transfer requested", "from", sender.Alias, "files", len(files))
			return true
		})
		node.Receiver().OnTransferProgress(func(fileId, fileName string, received, total int64, bps float64, finished bool, completion *lsrecv.CompletionInfo) {
			if finished {
				slog.Info("File received", "file", fileName, "path", completion.FilePath,
					"seconds", completion.TotalTimeSeconds, "bytesPerSec", completion.AverageSpeed)
			}
		})

		if err := node.Init(); err != nil {
			return err
		}

		go func() {
			<-utils.WaitForSignal()
			slog.Info("Stop receiving")
			node.Stop()
		}()

		slog.Info("Waiting for files (Ctrl-C to terminate)", "alias", cfg.Alias, "dir", cfg.SaveDir)
		return node.Start()
	},
}

func init() {
	Cmd.PersistentFlags().StringVarP(&devname, "devname", "n", lsutils.GenAlias(), "Device name that is advertised")
	Cmd.PersistentFlags().StringVarP(&savetodir, "dir", "d", config.DefaultSaveDir, "Directory for received files")
	Cmd.PersistentFlags().StringVarP(&pin, "pin", "p", "", "PIN code required from senders")
	Cmd.PersistentFlags().BoolVar(&useHttps, "https", false, "Serve https with a self-signed certificate")
	Cmd.PersistentFlags().IntVar(&port, "port", config.DefaultPort, "Port of the protocol endpoint")
}
