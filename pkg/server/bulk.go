package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/apperrors"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/pathconfine"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/protocol"
)

// BulkSession tracks one bulk-upload directory tree: the
// session's bulk root and a last-activity timestamp for idle expiry.
// Files uploaded under SUPLOAD_FILE are validated against this root, not
// the client's ordinary navigation cwd.
type BulkSession struct {
	base         string
	lastActivity time.Time
}

// handleSuploadStructure implements `SUPLOAD_STRUCTURE <root>` plus
// body: create root and every listed subdirectory beneath the client's
// current directory, enforcing component-length and depth limits, then
// register a bulk session.
func (d *Dispatcher) handleSuploadStructure(id ClientID, rootArg, body string) []byte {
	cwd := d.cwd(id)
	base, err := resolvePathArg(d.root, cwd, rootArg)
	if err != nil {
		return []byte(fmt.Sprintf("%s %v", protocol.ReplyStructureErr, err))
	}
	if err := validateBulkComponents(rootArg); err != nil {
		return []byte(fmt.Sprintf("%s %v", protocol.ReplyStructureErr, err))
	}

	if err := os.MkdirAll(base, 0755); err != nil {
		return []byte(fmt.Sprintf("%s %v", protocol.ReplyStructureErr, err))
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := validateBulkComponents(line); err != nil {
			return []byte(fmt.Sprintf("%s %v", protocol.ReplyStructureErr, err))
		}
		sub, err := pathconfine.Resolve(d.root, base, line)
		if err != nil {
			return []byte(fmt.Sprintf("%s %v", protocol.ReplyStructureErr, err))
		}
		if err := os.MkdirAll(sub, 0755); err != nil {
			return []byte(fmt.Sprintf("%s %v", protocol.ReplyStructureErr, err))
		}
	}

	d.bulkMu.Lock()
	d.bulkByID[string(id)] = &BulkSession{base: base, lastActivity: time.Now()}
	d.bulkMu.Unlock()

	return []byte(protocol.ReplyStructureOK)
}

// validateBulkComponents checks every path component against the
// directory-structure limits (component length <=255, no ".." after
// normalization, total depth <=10).
func validateBulkComponents(relPath string) error {
	clean := strings.Trim(filepath.ToSlash(relPath), "/")
	if clean == "" {
		return nil
	}
	for _, part := range strings.Split(clean, "/") {
		if err := pathconfine.ValidateComponent(part); err != nil {
			return err
		}
	}
	return pathconfine.ValidateDepth(clean)
}

// handleSuploadFile implements `SUPLOAD_FILE <relpath>`:
// resolve relpath beneath the bulk session's root (not the client's
// navigation cwd), open it for append, reply FILE_READY.
func (d *Dispatcher) handleSuploadFile(id ClientID, relPath string) []byte {
	d.bulkMu.Lock()
	bulk, ok := d.bulkByID[string(id)]
	d.bulkMu.Unlock()
	if !ok {
		return []byte(protocol.ReplyErrNoSuploadSession)
	}

	if err := validateBulkComponents(relPath); err != nil {
		return errorReply(err)
	}
	dest, err := pathconfine.Resolve(d.root, bulk.base, relPath)
	if err != nil {
		return errorReply(err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errorReply(apperrors.New(apperrors.KindFatalIO, err))
	}

	sess, err := newUploadSession(dest)
	if err != nil {
		return errorReply(apperrors.New(apperrors.KindFatalIO, err))
	}

	d.uploadMu.Lock()
	d.uploads[id] = sess
	d.uploadMu.Unlock()

	d.bulkMu.Lock()
	bulk.lastActivity = time.Now()
	d.bulkMu.Unlock()

	return []byte(protocol.ReplyFileReady)
}

// handleSuploadComplete implements `SUPLOAD_COMPLETE`:
// close out the bulk session.
func (d *Dispatcher) handleSuploadComplete(id ClientID) []byte {
	d.bulkMu.Lock()
	_, ok := d.bulkByID[string(id)]
	if ok {
		delete(d.bulkByID, string(id))
	}
	d.bulkMu.Unlock()
	if !ok {
		return []byte(protocol.ReplyErrNoSuploadSession)
	}
	return []byte(protocol.ReplySuploadOK)
}
