package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/apperrors"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/manifest"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/pathconfine"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/protocol"
)

func ensureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// syncResponseChunkBytes is the size response_chunks are split into
// before the client drains them with GET_SYNC_CHUNK.
const syncResponseChunkBytes = 1024

// SyncSession accumulates one client's manifest upload and, once
// processed, the chunked NEEDS_FILES response the client will drain.
type SyncSession struct {
	id       string
	owner    ClientID
	target   string
	expected int

	chunks     map[int]string
	manifestJS string

	responseChunks []string
	readyAt        time.Time
}

// handleSyncStart implements `SYNC_START <remote> <N>`: reject if the lock is held by another client, else
// acquire it, resolve the target directory, create it if absent, and
// allocate a session expecting N manifest chunks.
func (d *Dispatcher) handleSyncStart(id ClientID, remote, nStr string) []byte {
	n, err := strconv.Atoi(nStr)
	if err != nil || n <= 0 {
		return errorReply(apperrors.Newf(apperrors.KindMalformedFrame, "invalid chunk count %q", nStr))
	}

	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	if d.syncLock != "" && d.syncLock != id {
		return []byte(protocol.ReplySyncing)
	}

	target, err := pathconfine.Resolve(d.root, d.root.String(), remote)
	if err != nil {
		return errorReply(err)
	}
	if err := ensureDir(target); err != nil {
		return errorReply(apperrors.New(apperrors.KindFatalIO, err))
	}

	sess := &SyncSession{
		id:       uuid.NewString(),
		owner:    id,
		target:   target,
		expected: n,
		chunks:   make(map[int]string, n),
	}

	d.syncLock = id
	d.syncByID[sess.id] = sess
	d.syncByOwner[id] = sess.id

	return []byte(protocol.ReplySyncReady)
}

// handleSyncChunk implements `SYNC_CHUNK <i>/<N>`: append the body into the session's chunk buffer, keyed by
// index; the client sends sequentially under stop-and-wait, so receipt
// order already equals client order, but the index is still recorded
// directly rather than assumed.
func (d *Dispatcher) handleSyncChunk(id ClientID, indexArg, body string) []byte {
	idx, total, ok := parseChunkIndex(indexArg)
	if !ok {
		return errorReply(apperrors.Newf(apperrors.KindMalformedFrame, "malformed chunk index %q", indexArg))
	}

	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	sess, ok := d.currentSyncSession(id)
	if !ok {
		return []byte(protocol.ReplyErrNoSyncSession)
	}
	if total > 0 {
		sess.expected = total
	}
	sess.chunks[idx] = body

	return []byte(fmt.Sprintf("ACK_CHUNK %d", idx))
}

func parseChunkIndex(arg string) (idx, total int, ok bool) {
	parts := strings.SplitN(arg, "/", 2)
	i, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 2 {
		t, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, false
		}
		return i, t, true
	}
	return i, 0, true
}

// handleSyncFinish implements `SYNC_FINISH`:
// concatenate accumulated chunks in index order, parse as the client's
// manifest, diff against the target directory's server-side manifest,
// apply deletions immediately, and either reply SYNC_OK_NO_CHANGES
// (releasing the lock) or stage a NEEDS_FILES response for draining.
func (d *Dispatcher) handleSyncFinish(id ClientID) []byte {
	d.syncMu.Lock()
	sess, ok := d.currentSyncSession(id)
	if !ok {
		d.syncMu.Unlock()
		return []byte(protocol.ReplyErrNoSyncSession)
	}

	body := concatChunks(sess)
	target := sess.target
	d.syncMu.Unlock()

	var clientManifest manifest.Manifest
	if err := json.Unmarshal([]byte(body), &clientManifest); err != nil {
		d.releaseSyncSession(sess.id)
		return errorReply(apperrors.Newf(apperrors.KindMalformedFrame, "manifest decode failed: %v", err))
	}

	serverManifest, buildErr := manifest.Build(target)
	if buildErr != nil {
		d.log.WithField("sync_session", sess.id).Errorf("manifest build had errors: %v", buildErr)
	}

	toDelete, toFetch := manifest.Diff(clientManifest, serverManifest)
	if err := manifest.ApplyDeletions(target, toDelete); err != nil {
		d.log.WithField("sync_session", sess.id).Errorf("deletion errors: %v", err)
	}

	if len(toFetch) == 0 {
		d.releaseSyncSession(sess.id)
		return []byte(protocol.ReplySyncNoChanges)
	}

	payload := map[string]interface{}{
		"status": "NEEDS_FILES",
		"files":  toFetch,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		d.releaseSyncSession(sess.id)
		return errorReply(apperrors.New(apperrors.KindFatalIO, err))
	}

	chunks := splitChunks(string(encoded), syncResponseChunkBytes)

	d.syncMu.Lock()
	sess.responseChunks = chunks
	sess.readyAt = time.Now()
	d.syncMu.Unlock()

	return []byte(fmt.Sprintf("NEEDS_FILES_READY %d", len(chunks)))
}

// handleGetSyncChunk implements `GET_SYNC_CHUNK <i>`: return the i-th stored response chunk; on the final index,
// destroy the session and release the global lock.
func (d *Dispatcher) handleGetSyncChunk(id ClientID, indexArg string) []byte {
	idx, err := strconv.Atoi(indexArg)
	if err != nil {
		return errorReply(apperrors.Newf(apperrors.KindMalformedFrame, "malformed chunk index %q", indexArg))
	}

	d.syncMu.Lock()
	sess, ok := d.currentSyncSession(id)
	if !ok {
		d.syncMu.Unlock()
		return []byte(protocol.ReplyErrNoSyncSession)
	}
	if idx < 0 || idx >= len(sess.responseChunks) {
		d.syncMu.Unlock()
		return errorReply(apperrors.Newf(apperrors.KindNotFound, "chunk index out of range: %d", idx))
	}
	chunk := sess.responseChunks[idx]
	last := idx == len(sess.responseChunks)-1
	d.syncMu.Unlock()

	if last {
		d.releaseSyncSession(sess.id)
	}
	return []byte(chunk)
}

// currentSyncSession resolves the session for id, whether it owns it
// directly or the lock has already moved to a finished state. Caller
// must hold syncMu.
func (d *Dispatcher) currentSyncSession(id ClientID) (*SyncSession, bool) {
	sessID, ok := d.syncByOwner[id]
	if !ok {
		return nil, false
	}
	sess, ok := d.syncByID[sessID]
	return sess, ok
}

// releaseSyncSession destroys the session and releases the global lock
// if it is still held by the session's owner.
func (d *Dispatcher) releaseSyncSession(sessID string) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	sess, ok := d.syncByID[sessID]
	if !ok {
		return
	}
	delete(d.syncByID, sessID)
	delete(d.syncByOwner, sess.owner)
	if d.syncLock == sess.owner {
		d.syncLock = ""
	}
}

func concatChunks(sess *SyncSession) string {
	var b strings.Builder
	for i := 0; i < sess.expected; i++ {
		b.WriteString(sess.chunks[i])
	}
	return b.String()
}

func splitChunks(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var chunks []string
	for len(s) > 0 {
		end := size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
