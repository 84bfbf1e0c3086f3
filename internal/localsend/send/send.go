package send

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/wryfox/localsend-go/internal/localsend/client"
	"github.com/wryfox/localsend-go/internal/models"
)

// ProgressFunc reports outbound progress for one file.
type ProgressFunc func(fileId string, fileName string, sent int64, total int64, finished bool)

// FileSender negotiates one session with a remote peer and pushes every
// added file through it, sequentially.
type FileSender struct {
	client *client.Client
	remote models.DeviceInfo

	files   models.FileMetas
	tokens  models.FileTokens
	session string
	pin     string
	abort   atomic.Bool

	onProgress ProgressFunc
}

func NewFileSender(cl *client.Client) *FileSender {
	return &FileSender{
		client: cl,
		files:  make(models.FileMetas),
		tokens: make(models.FileTokens),
	}
}

func (fsp *FileSender) Init(target models.DeviceInfo) {
	fsp.abort.Store(false)
	fsp.session = ""
	fsp.remote = target

	clear(fsp.files)
	clear(fsp.tokens)
}

func (fsp *FileSender) SetPIN(pin string) {
	fsp.pin = pin
}

func (fsp *FileSender) OnProgress(fn ProgressFunc) {
	fsp.onProgress = fn
}

func (fsp *FileSender) AddFile(filePath string) error {
	fileMeta, err := models.GenFileMeta(filePath)
	if err != nil {
		return err
	}

	fsp.files[fileMeta.Id] = fileMeta
	return nil
}

func (fsp *FileSender) AddDir(dirPath string) error {
	return filepath.Walk(dirPath, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		return fsp.AddFile(path)
	})
}

// Start performs prepare-upload and streams every accepted file. Files
// the receiver issued no token for are skipped.
func (fsp *FileSender) Start() error {
	resp, err := fsp.client.PrepareUpload(fsp.remote, fsp.files, fsp.pin)
	if err != nil {
		return fmt.Errorf("PreUpload %v", err)
	}

	fsp.session = resp.SessionId
	fsp.tokens = resp.Tokens

	for fid, ftoken := range fsp.tokens {
		if fsp.abort.Load() {
			return nil
		}

		meta, ok := fsp.files[fid]
		if !ok {
			continue // unlikely, but check it anyway
		}

		err := fsp.client.UploadFile(fsp.remote, fsp.session, fid, ftoken, meta, func(sent, total int64, finished bool) {
			if fsp.onProgress != nil {
				fsp.onProgress(fid, meta.Filename, sent, total, finished)
			}
		})
		if err != nil {
			slog.Error("Fail to send file", "error", err, "fileId", fid)
			continue
		}
	}

	return nil
}

// Cancel aborts the transfer and tears the session down on the peer.
func (fsp *FileSender) Cancel() error {
	fsp.abort.Store(true)

	if fsp.session == "" {
		return nil
	}

	return fsp.client.CancelSession(fsp.remote, fsp.session)
}
