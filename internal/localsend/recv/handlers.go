package recv

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"

	"github.com/wryfox/localsend-go/internal/localsend/constants"
	lserrors "github.com/wryfox/localsend-go/internal/localsend/errors"
	"github.com/wryfox/localsend-go/internal/models"
	"github.com/wryfox/localsend-go/internal/utils"
)

// progressInterval throttles in-stream progress events.
const progressInterval = 100 * time.Millisecond

var errOversizedBody = errors.New("payload exceeds the declared file size")

func (fr *FileReceiver) infoHandler(c *fiber.Ctx) error {
	return c.JSON(&fr.identity)
}

func (fr *FileReceiver) registerHandler(c *fiber.Ctx) error {
	var peer models.DeviceInfo

	if err := c.BodyParser(&peer); err != nil || peer.Fingerprint == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid body"})
	}

	// our own registration bouncing back through a proxy or scan
	if peer.Fingerprint != fr.identity.Fingerprint {
		peer.IP = fiberutils.CopyString(c.IP()) // strings in fiber are unsafe due to zero allocation
		if peer.Port == 0 {
			peer.Port = constants.DefaultPort
		}
		fr.registry.Put(peer)
	}

	return c.JSON(&fr.identity)
}

func (fr *FileReceiver) preUploadHandler(c *fiber.Ctx) error {
	// check pin if it's set; PIN replaces interactive confirmation
	pinRequired := fr.cfg.PIN != ""
	if pinRequired {
		if pin := c.Query("pin"); pin != fr.cfg.PIN {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "PIN required"})
		}
	}

	var metaReq models.PreUploadReq
	if err := c.BodyParser(&metaReq); err != nil || metaReq.Info == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid body"})
	}

	for fileId, meta := range metaReq.Files {
		if meta.Id != "" && meta.Id != fileId {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid body"})
		}
		if meta.Filename == "" || meta.Size < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid body"})
		}
	}

	// accepted with nothing to transfer
	if len(metaReq.Files) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	clientIP := fiberutils.CopyString(c.IP())
	sender := *metaReq.Info
	sender.IP = clientIP

	sess, err := fr.sessman.Create(sender, clientIP, metaReq.Files, !pinRequired)
	if err != nil {
		return c.Status(lserrors.Status(err)).JSON(fiber.Map{"message": err.Error()})
	}

	slog.Info("Accepting files", "remote", clientIP, "session", sess.Id, "files", len(metaReq.Files))

	return c.JSON(&models.PreUploadResp{
		SessionId: sess.Id,
		Tokens:    sess.Tokens(),
	})
}

func (fr *FileReceiver) uploadHandler(c *fiber.Ctx) error {
	sessionId := fiberutils.CopyString(c.Query("sessionId"))
	fileId := fiberutils.CopyString(c.Query("fileId"))
	token := fiberutils.CopyString(c.Query("token"))

	if sessionId == "" || fileId == "" || token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Missing parameters"})
	}

	// with streamed bodies fasthttp no longer rejects oversized requests
	// up front, so the limit is enforced on the declared length here
	if length := c.Request().Header.ContentLength(); int64(length) > fr.cfg.MaxUploadBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"message": "Request body exceeds the allowed size"})
	}

	clientIP := fiberutils.CopyString(c.IP())

	meta, err := fr.sessman.Authorize(sessionId, fileId, token, clientIP)
	if err != nil {
		return c.Status(lserrors.Status(err)).JSON(fiber.Map{"message": err.Error()})
	}

	dst, err := joinSafe(fr.saveToDir, meta.Filename)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid file name"})
	}
	if err := os.MkdirAll(filepath.Dir(dst), fs.ModePerm); err != nil {
		slog.Error("Fail to create save directory", "dir", filepath.Dir(dst), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Write error"})
	}

	var (
		cr       contentRange
		ranged   bool
		expected int64
	)
	if header := c.Get("X-Content-Range"); header != "" {
		cr, err = parseContentRange(header)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Malformed X-Content-Range"})
		}
		// reject before opening anything so an existing file is never
		// truncated by a bogus range
		if cr.Total != meta.Size {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Range total does not match the file size"})
		}

		received, _, _ := fr.sessman.FileStat(sessionId, fileId)
		if cr.Start != received {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Out-of-order chunk"})
		}

		ranged = true
		expected = cr.chunkLen()
	} else {
		expected = meta.Size
	}

	truncate := !ranged || cr.Start == 0
	fd, err := fr.sessman.OpenFile(sessionId, fileId, dst, truncate)
	if err != nil {
		if errors.Is(err, lserrors.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
		}
		slog.Error("Fail to open destination", "file", dst, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Write error"})
	}

	written, err := fr.streamBody(c, sessionId, fileId, meta, fd, expected)
	if err != nil {
		fr.sessman.CloseFile(sessionId, fileId)
		// roll back to the chunk's start so a retry of the range starts clean
		if ranged {
			os.Truncate(dst, cr.Start)
		}
		if errors.Is(err, errOversizedBody) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
		}
		// the session survives so the sender may retry the chunk
		slog.Error("Upload error", "remote", clientIP, "session", sessionId, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Write error"})
	}

	// a body shorter than its declared range must not complete the file;
	// roll the partial write back so a retry starts clean
	if ranged && written != cr.chunkLen() {
		fr.sessman.CloseFile(sessionId, fileId)
		os.Truncate(dst, cr.Start)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Chunk shorter than its range"})
	}

	total := fr.sessman.AddBytes(sessionId, fileId, written)

	terminal := total >= meta.Size
	if ranged {
		terminal = cr.terminal()
	}

	if terminal {
		return fr.finishFile(c, sessionId, fileId, meta, dst)
	}

	fr.emitProgress(sessionId, fileId, meta, total)

	return c.JSON(fiber.Map{
		"message":       "Chunk received",
		"bytesReceived": total,
		"totalBytes":    meta.Size,
	})
}

func (fr *FileReceiver) cancelHandler(c *fiber.Ctx) error {
	sessionId := c.Query("sessionId")
	if sessionId == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Missing sessionId"})
	}

	fr.sessman.Cancel(sessionId)

	return c.JSON(fiber.Map{"message": "Session canceled"})
}

// streamBody copies the request body to the write handle, one bounded
// buffer at a time, emitting throttled progress along the way. Payload
// beyond expected is refused without reaching the disk.
func (fr *FileReceiver) streamBody(c *fiber.Ctx, sessionId string, fileId string, meta models.FileMeta, fd *os.File, expected int64) (int64, error) {
	reader := c.Context().RequestBodyStream()

	baseline, started, _ := fr.sessman.FileStat(sessionId, fileId)
	lastEmit := time.Now()

	buf := make([]byte, constants.CopyBufferSize)
	limited := io.LimitReader(reader, expected)

	var written int64
	for {
		n, readErr := limited.Read(buf)
		if n > 0 {
			if _, err := fd.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)

			if fr.onProgress != nil && time.Since(lastEmit) >= progressInterval {
				lastEmit = time.Now()
				received := baseline + written
				fr.onProgress(fileId, meta.Filename, received, meta.Size, speed(received, started), false, nil)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, readErr
		}
	}

	var probe [1]byte
	if n, _ := reader.Read(probe[:]); n > 0 {
		return written, errOversizedBody
	}

	return written, nil
}

func (fr *FileReceiver) finishFile(c *fiber.Ctx, sessionId string, fileId string, meta models.FileMeta, dst string) error {
	received, started, _ := fr.sessman.FileStat(sessionId, fileId)
	elapsed := time.Since(started).Seconds()
	averageSpeed := speed(received, started)

	fr.sessman.CompleteFile(sessionId, fileId)

	if meta.Checksum != "" {
		if sum, err := utils.SHA256ofFile(dst); err != nil || sum != meta.Checksum {
			slog.Error("Checksum mismatch", "file", meta.Filename, "session", sessionId)
		}
	}

	if fr.onProgress != nil {
		fr.onProgress(fileId, meta.Filename, received, meta.Size, averageSpeed, true, &CompletionInfo{
			FilePath:         dst,
			TotalTimeSeconds: elapsed,
			AverageSpeed:     averageSpeed,
		})
	}

	slog.Info("Recv file", "file", meta.Filename, "size", meta.Size, "session", sessionId)

	return c.JSON(fiber.Map{"message": "File received"})
}

func (fr *FileReceiver) emitProgress(sessionId string, fileId string, meta models.FileMeta, received int64) {
	if fr.onProgress == nil {
		return
	}

	_, started, ok := fr.sessman.FileStat(sessionId, fileId)
	if !ok {
		return
	}

	fr.onProgress(fileId, meta.Filename, received, meta.Size, speed(received, started), false, nil)
}

// speed computes bytes/sec, reporting 0 for a zero elapsed time instead
// of Inf.
func speed(received int64, started time.Time) float64 {
	elapsed := time.Since(started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(received) / elapsed
}
