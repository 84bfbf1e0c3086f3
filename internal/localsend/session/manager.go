package session

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wryfox/localsend-go/internal/crypto"
	"github.com/wryfox/localsend-go/internal/localsend/constants"
	lserrors "github.com/wryfox/localsend-go/internal/localsend/errors"
	"github.com/wryfox/localsend-go/internal/models"
)

const vacuumInterval = 5 * time.Second

// TransferRequestFunc decides whether an inbound prepare-upload is
// accepted. It runs outside the manager lock and must not block for long.
type TransferRequestFunc func(sender models.DeviceInfo, files models.FileMetas) bool

// Manager owns every inbound session and all open write handles. One
// mutex guards the table. Chunk writes happen outside it; opening and
// closing write handles happens while it is held.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	transferRequest TransferRequestFunc
	idleTTL         time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		idleTTL:  constants.SessionIdleTTL,
		done:     make(chan struct{}),
	}
}

// OnTransferRequest installs the host's acceptance callback. It is not
// consulted when PIN auth already vetted the request.
func (man *Manager) OnTransferRequest(fn TransferRequestFunc) {
	man.transferRequest = fn
}

func (man *Manager) SetIdleTTL(ttl time.Duration) {
	man.idleTTL = ttl
}

// Start launches the vacuum loop that expires idle sessions.
func (man *Manager) Start() {
	go man.vacuumTask()
}

func (man *Manager) Stop() {
	man.stopOnce.Do(func() {
		close(man.done)
	})

	man.mu.Lock()
	ids := make([]string, 0, len(man.sessions))
	for id := range man.sessions {
		ids = append(ids, id)
	}
	man.mu.Unlock()

	for _, id := range ids {
		man.Cancel(id)
	}
}

func (man *Manager) vacuumTask() {
	ticker := time.NewTicker(vacuumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-man.done:
			return
		case <-ticker.C:
			man.expireIdle()
		}
	}
}

func (man *Manager) expireIdle() {
	man.mu.Lock()
	var expired []string
	for id, sess := range man.sessions {
		if time.Since(sess.lastActivity) > man.idleTTL {
			expired = append(expired, id)
		}
	}
	man.mu.Unlock()

	for _, id := range expired {
		slog.Info("Expire idle session", "session", id)
		man.Cancel(id)
	}
}

// blockedLocked reports whether an active session from another address
// occupies the receiver. Single peer at a time.
func (man *Manager) blockedLocked(clientIP string) bool {
	for _, sess := range man.sessions {
		if !sess.closed && sess.ClientAddr != clientIP {
			return true
		}
	}
	return false
}

// Create negotiates a new inbound session. confirm selects whether the
// transfer-request callback is consulted (it is skipped when a PIN
// already authenticated the sender). Exactly one of two racing peers
// wins; the loser gets ErrBlockedByOthers.
func (man *Manager) Create(sender models.DeviceInfo, clientIP string, files models.FileMetas, confirm bool) (*Session, error) {
	man.mu.Lock()
	if man.blockedLocked(clientIP) {
		man.mu.Unlock()
		return nil, lserrors.ErrBlockedByOthers
	}
	man.mu.Unlock()

	// consult the host outside the lock; it may prompt a human
	if confirm && man.transferRequest != nil {
		if !man.transferRequest(sender, files) {
			return nil, lserrors.ErrRejected
		}
	}

	sess := &Session{
		Id:           crypto.NewSessionId(),
		Sender:       sender,
		ClientAddr:   clientIP,
		files:        make(models.FileMetas, len(files)),
		tokens:       make(models.FileTokens, len(files)),
		states:       make(map[string]*fileState, len(files)),
		received:     make(map[string]struct{}, len(files)),
		lastActivity: time.Now(),
	}
	for id, meta := range files {
		sess.files[id] = meta
		sess.tokens[id] = crypto.NewFileToken()
	}

	man.mu.Lock()
	defer man.mu.Unlock()

	// re-check: another peer may have won while the host was deciding
	if man.blockedLocked(clientIP) {
		return nil, lserrors.ErrBlockedByOthers
	}
	man.sessions[sess.Id] = sess

	return sess, nil
}

// Authorize validates one upload chunk against the session and returns
// the file's descriptor. Each failure maps to its specific taxonomy
// error.
func (man *Manager) Authorize(sessionId string, fileId string, token string, clientIP string) (models.FileMeta, error) {
	man.mu.Lock()
	defer man.mu.Unlock()

	sess, ok := man.sessions[sessionId]
	if !ok || sess.closed {
		return models.FileMeta{}, lserrors.ErrNotFound
	}

	if sess.ClientAddr != clientIP {
		return models.FileMeta{}, lserrors.ErrIPMismatch
	}

	meta, ok := sess.files[fileId]
	if !ok {
		return models.FileMeta{}, lserrors.ErrNotFound
	}
	if _, done := sess.received[fileId]; done {
		return models.FileMeta{}, lserrors.ErrFileNotAccepted
	}

	if sess.tokens[fileId] != token {
		return models.FileMeta{}, lserrors.ErrBadToken
	}

	sess.lastActivity = time.Now()

	return meta, nil
}

// OpenFile opens (or reuses) the destination write handle for a chunk.
// truncate selects create/truncate semantics for the first chunk; later
// chunks append, reopening if a previous handle was closed.
func (man *Manager) OpenFile(sessionId string, fileId string, path string, truncate bool) (*os.File, error) {
	man.mu.Lock()
	defer man.mu.Unlock()

	sess, ok := man.sessions[sessionId]
	if !ok || sess.closed {
		return nil, lserrors.ErrNotFound
	}

	state, ok := sess.states[fileId]
	if !ok {
		state = &fileState{startTime: time.Now()}
		sess.states[fileId] = state
	}

	if truncate {
		if state.fd != nil {
			state.fd.Close()
		}
		fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
		if err != nil {
			return nil, err
		}
		state.fd = fd
		state.path = path
		state.bytesReceived = 0
		state.startTime = time.Now()
		return fd, nil
	}

	if state.fd != nil {
		return state.fd, nil
	}

	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	state.fd = fd
	state.path = path
	return fd, nil
}

// AddBytes accumulates received bytes for a file and returns the new
// total.
func (man *Manager) AddBytes(sessionId string, fileId string, n int64) int64 {
	man.mu.Lock()
	defer man.mu.Unlock()

	sess, ok := man.sessions[sessionId]
	if !ok {
		return 0
	}
	state, ok := sess.states[fileId]
	if !ok {
		return 0
	}

	state.bytesReceived += n
	sess.lastActivity = time.Now()

	return state.bytesReceived
}

// FileStat reports the progress accounting of one file.
func (man *Manager) FileStat(sessionId string, fileId string) (bytesReceived int64, started time.Time, ok bool) {
	man.mu.Lock()
	defer man.mu.Unlock()

	sess, exist := man.sessions[sessionId]
	if !exist {
		return 0, time.Time{}, false
	}
	state, exist := sess.states[fileId]
	if !exist {
		return 0, time.Time{}, false
	}

	return state.bytesReceived, state.startTime, true
}

// CloseFile closes a file's write handle after a write error, keeping the
// session alive so the sender may retry the chunk.
func (man *Manager) CloseFile(sessionId string, fileId string) {
	man.mu.Lock()
	defer man.mu.Unlock()

	sess, ok := man.sessions[sessionId]
	if !ok {
		return
	}
	state, ok := sess.states[fileId]
	if !ok || state.fd == nil {
		return
	}

	state.fd.Close()
	state.fd = nil
}

// CompleteFile marks a file fully written, closes its handle and tears
// the session down once every accepted file arrived. It reports whether
// the session finished.
func (man *Manager) CompleteFile(sessionId string, fileId string) (sessionDone bool) {
	man.mu.Lock()
	defer man.mu.Unlock()

	sess, ok := man.sessions[sessionId]
	if !ok {
		return false
	}

	if state, ok := sess.states[fileId]; ok {
		if state.fd != nil {
			state.fd.Close()
			state.fd = nil
		}
		delete(sess.states, fileId)
	}

	sess.received[fileId] = struct{}{}
	sess.lastActivity = time.Now()

	if sess.finished() {
		sess.closed = true
		delete(man.sessions, sessionId)

		slog.Info("Session done", "session", sessionId, "remote", sess.ClientAddr)
		return true
	}

	return false
}

// Cancel destroys a session, closing any open write handle. Partial files
// stay on disk. Cancelling an unknown session is a no-op.
func (man *Manager) Cancel(sessionId string) {
	man.mu.Lock()
	sess, ok := man.sessions[sessionId]
	if ok {
		sess.closed = true
		sess.closeHandles()
		delete(man.sessions, sessionId)
	}
	man.mu.Unlock()

	if ok {
		slog.Info("Session canceled", "session", sessionId, "remote", sess.ClientAddr)
	}
}

// Get returns a live session by id.
func (man *Manager) Get(sessionId string) (*Session, error) {
	man.mu.Lock()
	defer man.mu.Unlock()

	sess, ok := man.sessions[sessionId]
	if !ok || sess.closed {
		return nil, lserrors.ErrNotFound
	}

	return sess, nil
}

// Active reports the number of live sessions.
func (man *Manager) Active() int {
	man.mu.Lock()
	defer man.mu.Unlock()

	return len(man.sessions)
}
