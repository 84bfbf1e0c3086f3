package models

import (
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/wryfox/localsend-go/internal/utils"
)

// FileMetadata contains optional file timestamp information
type FileMetadata struct {
	Modified string `json:"modified,omitempty"`
	Accessed string `json:"accessed,omitempty"`
}

type FileMeta struct {
	Id       string        `json:"id"`
	Filename string        `json:"fileName"`
	Size     int64         `json:"size"`
	FileMIME string        `json:"fileType"`
	Checksum string        `json:"sha256,omitempty"`
	Preview  string        `json:"preview,omitempty"`
	Metadata *FileMetadata `json:"metadata,omitempty"`
	FullPath string        `json:"-"`
}

// GenFileMeta builds the descriptor for a local file about to be sent.
// The MIME type comes from the extension when known, otherwise from
// sniffing the content.
func GenFileMeta(fpath string) (FileMeta, error) {
	fd, err := os.Stat(fpath)
	if err != nil {
		return FileMeta{}, err
	}

	checksum, err := utils.SHA256ofFile(fpath)
	if err != nil {
		return FileMeta{}, err
	}

	fileType := mime.TypeByExtension(filepath.Ext(fpath))
	if fileType == "" {
		if mtype, err := mimetype.DetectFile(fpath); err == nil {
			fileType = mtype.String()
		} else {
			fileType = "application/octet-stream"
		}
	}

	return FileMeta{
		Id:       uuid.NewString(),
		Filename: fd.Name(),
		Size:     fd.Size(),
		FileMIME: fileType,
		Checksum: checksum,
		Metadata: &FileMetadata{
			Modified: fd.ModTime().Format(time.RFC3339),
		},
		FullPath: fpath,
	}, nil
}
