package server

import (
	"encoding/base64"
	"os"
	"time"
)

// uploadSession is the stop-and-wait receive state for one in-flight
// UPLOAD or SUPLOAD_FILE. It carries no internal mutex: the dispatcher's
// uploadMu guards both the map it is stored in and the session itself,
// since the idle reaper goroutine reads lastActivity and may close the
// file.
type uploadSession struct {
	dest         string
	file         *os.File
	bytesWritten int64
	lastActivity time.Time
}

func newUploadSession(dest string) (*uploadSession, error) {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &uploadSession{dest: dest, file: f, lastActivity: time.Now()}, nil
}

// handleData appends a base64-decoded chunk and acks it.
func (s *uploadSession) handleData(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	n, err := s.file.Write(data)
	if err != nil {
		return nil, err
	}
	s.bytesWritten += int64(n)
	s.lastActivity = time.Now()
	return []byte("ACK_DATA"), nil
}

// finish closes the destination file, terminal transition of the state
// machine.
func (s *uploadSession) finish() error {
	return s.file.Close()
}

// handleUpload implements the `UPLOAD <path>` command:
// resolve the destination beneath the client's current directory,
// register a fresh upload session, reply UPLOAD_READY.
func (d *Dispatcher) handleUpload(id ClientID, arg string) []byte {
	cwd := d.cwd(id)
	dest, err := resolvePathArg(d.root, cwd, arg)
	if err != nil {
		return errorReply(err)
	}

	sess, err := newUploadSession(dest)
	if err != nil {
		return errorReply(err)
	}

	d.uploadMu.Lock()
	d.uploads[id] = sess
	d.uploadMu.Unlock()

	return []byte("UPLOAD_READY")
}

// handleData and handleUploadDone continue an already-open upload session
// for this client. The same state machine is reused for
// bulk-upload files, which park their session under the same map keyed by
// ClientID (only one upload may be in flight per client at a time, which
// matches the stop-and-wait, single-outstanding-request transport model).
func (d *Dispatcher) handleData(id ClientID, b64 string) []byte {
	d.uploadMu.Lock()
	sess, ok := d.uploads[id]
	if !ok {
		d.uploadMu.Unlock()
		return []byte(errNoUploadSession)
	}

	reply, err := sess.handleData(b64)
	d.uploadMu.Unlock()
	if err != nil {
		d.log.WithField("client", string(id)).Errorf("upload data write failed: %v", err)
		return errorReply(err)
	}
	return reply
}

func (d *Dispatcher) handleUploadDone(id ClientID) []byte {
	d.uploadMu.Lock()
	sess, ok := d.uploads[id]
	if ok {
		delete(d.uploads, id)
	}
	d.uploadMu.Unlock()
	if !ok {
		return []byte(errNoUploadSession)
	}

	if err := sess.finish(); err != nil {
		return errorReply(err)
	}
	return []byte("UPLOAD_COMPLETE")
}

const errNoUploadSession = "ERR_NO_UPLOAD_SESSION"
