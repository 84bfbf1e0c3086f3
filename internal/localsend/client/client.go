package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/wryfox/localsend-go/internal/localsend/constants"
	lserrors "github.com/wryfox/localsend-go/internal/localsend/errors"
	"github.com/wryfox/localsend-go/internal/models"
)

// ProgressFunc is invoked before each chunk and once on completion.
type ProgressFunc func(bytesSent int64, total int64, finished bool)

// Client talks the LocalSend v2 HTTP surface of a remote peer.
type Client struct {
	self     models.DeviceInfo
	insecure bool

	chunkThreshold int64
	chunkSize      int64
}

func New(self models.DeviceInfo, insecureTLS bool) *Client {
	return &Client{
		self:           self,
		insecure:       insecureTLS,
		chunkThreshold: constants.ChunkThreshold,
		chunkSize:      constants.ChunkSize,
	}
}

func (cl *Client) prepareUri(req *fasthttp.Request, target models.DeviceInfo, path string) {
	remoteAddr := net.JoinHostPort(target.IP, strconv.Itoa(target.Port))

	req.Header.SetUserAgent("localsend-go")
	req.URI().SetPath(path)
	if target.Protocol == "https" {
		req.URI().SetScheme("https")
	} else {
		req.URI().SetScheme("http")
	}
	req.URI().SetHost(remoteAddr)
}

func (cl *Client) tune(agent *fiber.Agent, timeout time.Duration) *fiber.Agent {
	agent.Timeout(timeout)
	if cl.insecure {
		agent.InsecureSkipVerify()
	}
	return agent
}

// Info fetches the descriptor of a host, trying the preferred protocol
// first and the other one second. Unreachable or non-2xx hosts yield an
// error; the scanner treats that as "no peer here".
func (cl *Client) Info(ip string, port int, preferred string) (models.DeviceInfo, error) {
	other := "http"
	if preferred == "http" {
		other = "https"
	}

	var lastErr error
	for _, protocol := range []string{preferred, other} {
		target := models.DeviceInfo{IP: ip, Port: port, Protocol: protocol}

		info, err := cl.info(target)
		if err == nil {
			return info, nil
		}
		lastErr = err
	}

	return models.DeviceInfo{}, lastErr
}

func (cl *Client) info(target models.DeviceInfo) (models.DeviceInfo, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	cl.prepareUri(req, target, constants.InfoPath)
	req.Header.SetMethod(fiber.MethodGet)
	if err := agent.Parse(); err != nil {
		return models.DeviceInfo{}, err
	}

	status, b, errs := cl.tune(agent, constants.InfoTimeout).Bytes()
	if len(errs) != 0 {
		return models.DeviceInfo{}, errs[0]
	}
	if err := lserrors.ParseError(status); err != nil {
		return models.DeviceInfo{}, err
	}

	var info models.DeviceInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return models.DeviceInfo{}, err
	}
	info.IP = target.IP
	if info.Port == 0 {
		info.Port = target.Port
	}
	if info.Protocol == "" {
		info.Protocol = target.Protocol
	}

	return info, nil
}

// Register introduces this node to a peer and returns the peer's own
// descriptor from the response.
func (cl *Client) Register(target models.DeviceInfo) (models.DeviceInfo, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	cl.prepareUri(req, target, constants.RegisterPath)
	req.Header.SetMethod(fiber.MethodPost)
	if err := agent.Parse(); err != nil {
		return models.DeviceInfo{}, err
	}

	status, b, errs := cl.tune(agent, constants.RegisterTimeout).JSON(&cl.self).Bytes()
	if len(errs) != 0 {
		return models.DeviceInfo{}, errs[0]
	}
	if err := lserrors.ParseError(status); err != nil {
		return models.DeviceInfo{}, err
	}

	var peer models.DeviceInfo
	if err := json.Unmarshal(b, &peer); err != nil {
		return models.DeviceInfo{}, err
	}
	peer.IP = target.IP

	return peer, nil
}

// PrepareUpload negotiates a session for the given files. A 204 from the
// peer means everything was already accepted with nothing to transfer;
// that is reported as success with no tokens.
func (cl *Client) PrepareUpload(target models.DeviceInfo, files models.FileMetas, pin string) (models.PreUploadResp, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	cl.prepareUri(req, target, constants.PreuploadPath)
	req.Header.SetMethod(fiber.MethodPost)
	if pin != "" {
		req.URI().QueryArgs().Add("pin", pin)
	}
	if err := agent.Parse(); err != nil {
		return models.PreUploadResp{}, err
	}

	meta := models.PreUploadReq{
		Info:  &cl.self,
		Files: files,
	}

	status, b, errs := cl.tune(agent, constants.PreuploadTimeout).JSON(&meta).Bytes()
	if len(errs) != 0 {
		return models.PreUploadResp{}, errs[0]
	}

	err := lserrors.ParseError(status)
	if err == lserrors.ErrFinished {
		return models.PreUploadResp{Tokens: models.FileTokens{}}, nil
	}
	if err != nil {
		return models.PreUploadResp{}, err
	}

	var resp models.PreUploadResp
	if err := json.Unmarshal(b, &resp); err != nil {
		return models.PreUploadResp{}, err
	}

	return resp, nil
}

// UploadFile streams one negotiated file to the peer. Files above the
// chunk threshold are split into independent ranged requests, sent
// sequentially; the transfer stops at the first failed chunk.
func (cl *Client) UploadFile(target models.DeviceInfo, sessionId string, fileId string, token string, meta models.FileMeta, progress ProgressFunc) error {
	fd, err := os.Open(meta.FullPath)
	if err != nil {
		return err
	}
	defer fd.Close()

	if meta.Size <= cl.chunkThreshold {
		if progress != nil {
			progress(0, meta.Size, false)
		}

		err := cl.uploadChunk(target, sessionId, fileId, token, fd, meta.Size, "")
		if err != nil {
			return err
		}

		if progress != nil {
			progress(meta.Size, meta.Size, true)
		}
		return nil
	}

	for offset := int64(0); offset < meta.Size; offset += cl.chunkSize {
		chunkLen := cl.chunkSize
		if offset+chunkLen > meta.Size {
			chunkLen = meta.Size - offset
		}

		if progress != nil {
			progress(offset, meta.Size, false)
		}

		contentRange := fmt.Sprintf("bytes %d-%d/%d", offset, offset+chunkLen-1, meta.Size)
		section := io.NewSectionReader(fd, offset, chunkLen)

		err := cl.uploadChunk(target, sessionId, fileId, token, section, chunkLen, contentRange)
		if err != nil {
			return err
		}
	}

	if progress != nil {
		progress(meta.Size, meta.Size, true)
	}
	return nil
}

func (cl *Client) uploadChunk(target models.DeviceInfo, sessionId string, fileId string, token string, body io.Reader, size int64, contentRange string) error {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	cl.prepareUri(req, target, constants.UploadPath)
	req.Header.SetMethod(fiber.MethodPost)
	req.URI().QueryArgs().Add("sessionId", sessionId)
	req.URI().QueryArgs().Add("fileId", fileId)
	req.URI().QueryArgs().Add("token", token)
	if contentRange != "" {
		req.Header.Set("X-Content-Range", contentRange)
	}
	if err := agent.Parse(); err != nil {
		return err
	}

	status, _, errs := cl.tune(agent, constants.UploadTimeout).BodyStream(body, int(size)).Bytes()
	if len(errs) != 0 {
		return errs[0]
	}

	return lserrors.ParseError(status)
}

// CancelSession tears down a session on the peer. Cancelling an already
// gone session still answers 200 on the wire, so this is idempotent.
func (cl *Client) CancelSession(target models.DeviceInfo, sessionId string) error {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	cl.prepareUri(req, target, constants.CancelPath)
	req.Header.SetMethod(fiber.MethodPost)
	req.URI().QueryArgs().Add("sessionId", sessionId)
	if err := agent.Parse(); err != nil {
		return err
	}

	status, _, errs := cl.tune(agent, constants.CancelTimeout).Bytes()
	if len(errs) != 0 {
		return errs[0]
	}

	return lserrors.ParseError(status)
}
