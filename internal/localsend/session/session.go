package session

import (
	"os"
	"time"

	"github.com/wryfox/localsend-go/internal/models"
)

// fileState is the receive-side accounting for one negotiated file. The
// write handle is used only by the handler serving the current chunk;
// open/close transitions go through the manager's lock.
type fileState struct {
	bytesReceived int64
	startTime     time.Time
	fd            *os.File
	path          string
}

// Session is the receiver-owned record created by a successful
// prepare-upload. All mutation happens inside the manager's lock.
type Session struct {
	Id         string
	Sender     models.DeviceInfo
	ClientAddr string

	files    models.FileMetas
	tokens   models.FileTokens
	states   map[string]*fileState
	received map[string]struct{}

	lastActivity time.Time
	closed       bool
}

// Tokens returns the per-file upload tokens for the prepare-upload
// response.
func (sess *Session) Tokens() models.FileTokens {
	out := make(models.FileTokens, len(sess.tokens))
	for id, token := range sess.tokens {
		out[id] = token
	}
	return out
}

// Files returns the accepted file descriptors.
func (sess *Session) Files() models.FileMetas {
	out := make(models.FileMetas, len(sess.files))
	for id, meta := range sess.files {
		out[id] = meta
	}
	return out
}

func (sess *Session) finished() bool {
	return len(sess.received) == len(sess.files)
}

func (sess *Session) closeHandles() {
	for _, state := range sess.states {
		if state.fd != nil {
			state.fd.Close()
			state.fd = nil
		}
	}
}
