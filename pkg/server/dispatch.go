package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/apperrors"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/pathconfine"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/protocol"
)

// dispatch parses one control frame and routes it to a verb handler,
// enforcing the sync-lock exclusivity rule first.
// Grounded on the subcommand-table idiom of cmd/noisefs/sync.go's
// handleSyncCommand, generalized from dispatch-by-subcommand to
// dispatch-by-verb.
func (d *Dispatcher) dispatch(id ClientID, payload []byte) []byte {
	frame := protocol.Parse(payload)
	if frame.Verb == "" {
		return []byte(protocol.ReplyErrUnknown)
	}

	if reply, blocked := d.enforceSyncLock(id, frame.Verb); blocked {
		return reply
	}

	switch frame.Verb {
	case protocol.VerbListFiles:
		return d.handleList(id)
	case protocol.VerbCD:
		return d.handleCD(id, frame.RestJoined(0))
	case protocol.VerbUpload:
		return d.handleUpload(id, frame.RestJoined(0))
	case protocol.VerbData:
		return d.handleData(id, frame.Arg(0))
	case protocol.VerbUploadDone:
		return d.handleUploadDone(id)
	case protocol.VerbDownload:
		return d.handleDownload(id, frame.RestJoined(0))
	case protocol.VerbKillServerFiles:
		return d.handleKill(id)
	case protocol.VerbSuploadStructure:
		return d.handleSuploadStructure(id, frame.Arg(0), frame.Body)
	case protocol.VerbSuploadFile:
		return d.handleSuploadFile(id, frame.RestJoined(0))
	case protocol.VerbSuploadComplete:
		return d.handleSuploadComplete(id)
	case protocol.VerbSyncStart:
		return d.handleSyncStart(id, frame.Arg(0), frame.Arg(1))
	case protocol.VerbSyncChunk:
		return d.handleSyncChunk(id, frame.Arg(0), frame.Body)
	case protocol.VerbSyncFinish:
		return d.handleSyncFinish(id)
	case protocol.VerbGetSyncChunk:
		return d.handleGetSyncChunk(id, frame.Arg(0))
	default:
		return []byte(protocol.ReplyErrUnknown)
	}
}

// enforceSyncLock rejects any frame that isn't part of the in-progress
// sync flow while the global lock is held, from every client including
// the lock's owner.
func (d *Dispatcher) enforceSyncLock(id ClientID, verb string) (reply []byte, blocked bool) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	if d.syncLock == "" {
		return nil, false
	}

	switch verb {
	case protocol.VerbSyncChunk, protocol.VerbSyncFinish, protocol.VerbGetSyncChunk:
		return nil, false
	default:
		return []byte(protocol.ReplySyncing), true
	}
}

func resolvePathArg(root pathconfine.Root, cwd, arg string) (string, error) {
	if arg == "" {
		return "", apperrors.Newf(apperrors.KindInvalidPath, "missing path argument")
	}
	return pathconfine.Resolve(root, cwd, arg)
}

func errorReply(err error) []byte {
	kind := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindInvalidPath:
		return []byte(fmt.Sprintf("ERR_INVALID_PATH %v", err))
	case apperrors.KindNotFound:
		return []byte(fmt.Sprintf("ERR_NOT_FOUND %v", err))
	case apperrors.KindSessionMissing:
		return []byte(fmt.Sprintf("ERR_NO_SYNC_SESSION %v", err))
	default:
		return []byte(fmt.Sprintf("ERR %v", err))
	}
}

// handleList implements `LIST_FILES`: directories first,
// suffixed with "/", then files; order within each group is not
// significant, so entries are alphabetized for a stable reply.
func (d *Dispatcher) handleList(id ClientID) []byte {
	cwd := d.cwd(id)
	entries, err := os.ReadDir(cwd)
	if err != nil {
		return errorReply(apperrors.New(apperrors.KindFatalIO, err))
	}

	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name()+"/")
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)

	parts := append([]string{"OK"}, dirs...)
	parts = append(parts, files...)
	return []byte(strings.Join(parts, " "))
}

// handleCD implements `CD <name>`.
func (d *Dispatcher) handleCD(id ClientID, arg string) []byte {
	cwd := d.cwd(id)
	target, err := pathconfine.ResolveForCD(d.root, cwd, arg)
	if err != nil {
		return []byte(fmt.Sprintf("CD_ERR %v", err))
	}

	rel, err := filepath.Rel(d.root.String(), target)
	if err != nil {
		return []byte(fmt.Sprintf("CD_ERR %v", err))
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = ""
	}

	d.setCwd(id, target)
	return []byte(fmt.Sprintf("CD_OK Now in /%s", rel))
}

// handleKill implements `KILL_SERVER_FILES`: recursively
// erase ROOT's contents and recreate it empty. Scope decided as
// recursive — see DESIGN.md.
func (d *Dispatcher) handleKill(id ClientID) []byte {
	root := d.root.String()
	entries, err := os.ReadDir(root)
	if err != nil {
		return errorReply(apperrors.New(apperrors.KindFatalIO, err))
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return errorReply(apperrors.New(apperrors.KindFatalIO, err))
		}
	}

	d.navMu.Lock()
	for cid := range d.nav {
		d.nav[cid] = root
	}
	d.navMu.Unlock()

	return []byte("KILL_OK server root cleared")
}
