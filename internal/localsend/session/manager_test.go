package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	lserrors "github.com/wryfox/localsend-go/internal/localsend/errors"
	"github.com/wryfox/localsend-go/internal/models"
)

func testSender() models.DeviceInfo {
	return models.NewDeviceInfo("Sender", "fp-sender", 53317, "http", "desktop", false)
}

func testFiles(ids ...string) models.FileMetas {
	files := make(models.FileMetas, len(ids))
	for _, id := range ids {
		files[id] = models.FileMeta{
			Id:       id,
			Filename: id + ".bin",
			Size:     4,
			FileMIME: "application/octet-stream",
		}
	}
	return files
}

func TestCreateIssuesTokens(t *testing.T) {
	man := NewManager()

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1", "f2"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(sess.Id) != 32 {
		t.Errorf("session id length = %d; want 32", len(sess.Id))
	}

	tokens := sess.Tokens()
	if len(tokens) != 2 {
		t.Fatalf("tokens = %d; want 2", len(tokens))
	}
	for id, token := range tokens {
		if len(token) != 32 {
			t.Errorf("token for %s length = %d; want 32", id, len(token))
		}
	}
	if tokens["f1"] == tokens["f2"] {
		t.Error("per-file tokens must differ")
	}
}

func TestCreateConsultsTransferRequest(t *testing.T) {
	man := NewManager()

	var asked bool
	man.OnTransferRequest(func(sender models.DeviceInfo, files models.FileMetas) bool {
		asked = true
		return false
	})

	_, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), true)
	if err != lserrors.ErrRejected {
		t.Errorf("err = %v; want ErrRejected", err)
	}
	if !asked {
		t.Error("transfer request callback was not consulted")
	}
	if man.Active() != 0 {
		t.Error("rejected request must not leave a session behind")
	}
}

func TestCreateSkipsCallbackWhenPinAuthed(t *testing.T) {
	man := NewManager()

	man.OnTransferRequest(func(models.DeviceInfo, models.FileMetas) bool {
		t.Error("callback must not run when PIN already authenticated")
		return false
	})

	if _, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestSinglePeerAdmission(t *testing.T) {
	man := NewManager()

	first, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}

	// a different peer is blocked
	if _, err := man.Create(testSender(), "192.168.1.6", testFiles("f1"), false); err != lserrors.ErrBlockedByOthers {
		t.Errorf("second peer err = %v; want ErrBlockedByOthers", err)
	}

	// the same address is not blocked by its own session
	if _, err := man.Create(testSender(), "192.168.1.5", testFiles("f2"), false); err != nil {
		t.Errorf("same-address create err = %v; want nil", err)
	}

	man.Cancel(first.Id)
}

func TestBlockedPeerAdmittedAfterCancel(t *testing.T) {
	man := NewManager()

	first, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := man.Create(testSender(), "192.168.1.6", testFiles("f1"), false); err != lserrors.ErrBlockedByOthers {
		t.Fatalf("expected ErrBlockedByOthers, got %v", err)
	}

	man.Cancel(first.Id)

	if _, err := man.Create(testSender(), "192.168.1.6", testFiles("f1"), false); err != nil {
		t.Errorf("retry after cancel err = %v; want nil", err)
	}
}

func TestAuthorizeTaxonomy(t *testing.T) {
	man := NewManager()

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	token := sess.Tokens()["f1"]

	tests := []struct {
		name      string
		sessionId string
		fileId    string
		token     string
		ip        string
		err       error
	}{
		{"ok", sess.Id, "f1", token, "192.168.1.5", nil},
		{"unknown session", "deadbeef", "f1", token, "192.168.1.5", lserrors.ErrNotFound},
		{"unknown file", sess.Id, "f9", token, "192.168.1.5", lserrors.ErrNotFound},
		{"bad token", sess.Id, "f1", "wrong", "192.168.1.5", lserrors.ErrBadToken},
		{"ip mismatch", sess.Id, "f1", token, "192.168.1.66", lserrors.ErrIPMismatch},
	}

	for _, tt := range tests {
		_, err := man.Authorize(tt.sessionId, tt.fileId, tt.token, tt.ip)
		if err != tt.err {
			t.Errorf("%s: err = %v; want %v", tt.name, err, tt.err)
		}
	}
}

func TestCompleteFileDestroysFinishedSession(t *testing.T) {
	man := NewManager()
	dir := t.TempDir()

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1", "f2"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, id := range []string{"f1", "f2"} {
		fd, err := man.OpenFile(sess.Id, id, filepath.Join(dir, id+".bin"), true)
		if err != nil {
			t.Fatalf("OpenFile(%s): %v", id, err)
		}
		if _, err := fd.Write([]byte("data")); err != nil {
			t.Fatalf("write: %v", err)
		}
		man.AddBytes(sess.Id, id, 4)
	}

	if done := man.CompleteFile(sess.Id, "f1"); done {
		t.Error("session must survive until every accepted file is received")
	}
	if man.Active() != 1 {
		t.Errorf("Active() = %d; want 1", man.Active())
	}

	if done := man.CompleteFile(sess.Id, "f2"); !done {
		t.Error("session must be destroyed when the last file completes")
	}
	if man.Active() != 0 {
		t.Errorf("Active() = %d; want 0", man.Active())
	}

	// a late chunk for the completed session answers not-found
	if _, err := man.Authorize(sess.Id, "f1", "any", "192.168.1.5"); err != lserrors.ErrNotFound {
		t.Errorf("late chunk err = %v; want ErrNotFound", err)
	}
}

func TestCompletedFileRejectsFurtherChunks(t *testing.T) {
	man := NewManager()
	dir := t.TempDir()

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1", "f2"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	token := sess.Tokens()["f1"]

	if _, err := man.OpenFile(sess.Id, "f1", filepath.Join(dir, "f1.bin"), true); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	man.CompleteFile(sess.Id, "f1")

	if _, err := man.Authorize(sess.Id, "f1", token, "192.168.1.5"); err != lserrors.ErrFileNotAccepted {
		t.Errorf("err = %v; want ErrFileNotAccepted", err)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	man := NewManager()

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	man.Cancel(sess.Id)
	man.Cancel(sess.Id) // second cancel must be indistinguishable
	man.Cancel("never-existed")

	if man.Active() != 0 {
		t.Errorf("Active() = %d; want 0", man.Active())
	}
}

func TestCancelClosesOpenHandles(t *testing.T) {
	man := NewManager()
	dir := t.TempDir()

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	path := filepath.Join(dir, "f1.bin")
	fd, err := man.OpenFile(sess.Id, "f1", path, true)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := fd.Write([]byte("pa")); err != nil {
		t.Fatalf("write: %v", err)
	}

	man.Cancel(sess.Id)

	// handle is closed now; writes must fail
	if _, err := fd.Write([]byte("rt")); err == nil {
		t.Error("write on closed handle must fail")
	}

	// the partial file remains on disk
	if _, err := os.Stat(path); err != nil {
		t.Errorf("partial file must remain: %v", err)
	}
}

func TestIdleSessionExpiry(t *testing.T) {
	man := NewManager()
	man.SetIdleTTL(10 * time.Millisecond)

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	man.expireIdle()

	if _, err := man.Get(sess.Id); err != lserrors.ErrNotFound {
		t.Errorf("Get after expiry = %v; want ErrNotFound", err)
	}
}

func TestOpenFileAppendReopens(t *testing.T) {
	man := NewManager()
	dir := t.TempDir()

	sess, err := man.Create(testSender(), "192.168.1.5", testFiles("f1"), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	path := filepath.Join(dir, "f1.bin")
	fd, err := man.OpenFile(sess.Id, "f1", path, true)
	if err != nil {
		t.Fatalf("OpenFile truncate: %v", err)
	}
	fd.Write([]byte("ab"))
	man.AddBytes(sess.Id, "f1", 2)

	// simulate a write error closing the handle between chunks
	man.CloseFile(sess.Id, "f1")

	fd2, err := man.OpenFile(sess.Id, "f1", path, false)
	if err != nil {
		t.Fatalf("OpenFile append: %v", err)
	}
	fd2.Write([]byte("cd"))
	man.CloseFile(sess.Id, "f1")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "abcd" {
		t.Errorf("file content = %q; want abcd", data)
	}

	if got, _, ok := man.FileStat(sess.Id, "f1"); !ok || got != 2 {
		t.Errorf("FileStat bytes = %d ok=%v; want 2 true", got, ok)
	}
}
