package server

import (
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/apperrors"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/pathconfine"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/protocol"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/transport"
)

// downloadChunkBytes is the read size for each GET_CHUNK reply: at most 1024 bytes pre-encoding.
const downloadChunkBytes = 1024

// handleDownload implements `DOWNLOAD <name>`: resolve the
// file, open an ephemeral data endpoint, spawn a worker goroutine bound to
// it, and reply with the file size and the chosen port.
func (d *Dispatcher) handleDownload(id ClientID, arg string) []byte {
	cwd := d.cwd(id)
	path, err := pathconfine.ResolveForDownload(d.root, cwd, arg)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return []byte(fmt.Sprintf("ERR %s NOT_FOUND", arg))
		}
		return errorReply(err)
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return []byte(fmt.Sprintf("ERR %s NOT_FOUND", arg))
	}

	conn, err := net.ListenPacket("udp", "0.0.0.0:0")
	if err != nil {
		return errorReply(apperrors.New(apperrors.KindFatalIO, err))
	}

	worker := &DownloadWorker{
		path: path,
		name: arg,
		conn: conn,
		log:  d.log.WithComponent(fmt.Sprintf("download:%s", arg)),
	}
	go worker.run()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	return []byte(fmt.Sprintf("OK %s SIZE %d PORT %d", arg, info.Size(), port))
}

// DownloadWorker serves one file to one client over its own ephemeral
// UDP endpoint, independent of the control dispatcher.
// Grounded on the goroutine-per-unit-of-work pattern in
// pkg/infrastructure/workers/simple_pool.go: no shared pool state, no
// backpressure — a one-worker-per-download model needs none, and the
// Go scheduler is trusted to multiplex them.
type DownloadWorker struct {
	path string
	name string
	conn net.PacketConn
	log  interface {
		Debugf(string, ...interface{})
		Warnf(string, ...interface{})
		Errorf(string, ...interface{})
	}
}

func (w *DownloadWorker) run() {
	defer w.conn.Close()

	f, err := os.Open(w.path)
	if err != nil {
		w.log.Errorf("open for download: %v", err)
		return
	}
	defer f.Close()

	cfg := transport.DefaultConfig()
	idleDeadline := cfg.Timeout * time.Duration(cfg.Retries)

	// AWAIT_HANDSHAKE: expect DOWNLOAD <name>, reply DOWNLOAD_READY.
	if err := w.conn.SetReadDeadline(time.Now().Add(idleDeadline)); err != nil {
		return
	}
	buf := make([]byte, transport.MaxReplyBytes)
	n, from, err := w.conn.ReadFrom(buf)
	if err != nil {
		w.log.Warnf("handshake timed out or failed: %v", err)
		return
	}
	frame := protocol.Parse(buf[:n])
	if frame.Verb != protocol.VerbDownload {
		w.log.Warnf("unexpected handshake verb %q", frame.Verb)
		return
	}
	if _, err := w.conn.WriteTo([]byte(protocol.ReplyDownloadReady), from); err != nil {
		return
	}

	// SERVING: the first post-handshake verb selects the dialect.
	if err := w.conn.SetReadDeadline(time.Now().Add(idleDeadline)); err != nil {
		return
	}
	n, from, err = w.conn.ReadFrom(buf)
	if err != nil {
		return
	}
	frame = protocol.Parse(buf[:n])

	switch frame.Verb {
	case protocol.VerbGetChunk:
		w.serveSequential(f, from, frame, idleDeadline)
	case protocol.VerbFile:
		w.serveRandomAccess(f, from, frame, idleDeadline)
	default:
		w.log.Warnf("unexpected post-handshake verb %q, terminating", frame.Verb)
	}
}

// serveSequential implements the primary GET_CHUNK/DATA/TRANSFER_COMPLETE
// dialect.
func (w *DownloadWorker) serveSequential(f *os.File, from net.Addr, first protocol.Frame, idleDeadline time.Duration) {
	buf := make([]byte, transport.MaxReplyBytes)
	frame := first
	for {
		if frame.Verb != protocol.VerbGetChunk {
			w.log.Warnf("unexpected verb %q mid-transfer, terminating", frame.Verb)
			return
		}

		chunk := make([]byte, downloadChunkBytes)
		n, readErr := f.Read(chunk)
		if n == 0 {
			if readErr == io.EOF || readErr == nil {
				w.conn.WriteTo([]byte(protocol.ReplyTransferComplete), from)
				return
			}
			w.log.Errorf("read failed: %v", readErr)
			return
		}

		encoded := base64.StdEncoding.EncodeToString(chunk[:n])
		reply := []byte(fmt.Sprintf("%s %s", protocol.VerbData, encoded))
		if _, err := w.conn.WriteTo(reply, from); err != nil {
			return
		}

		if err := w.conn.SetReadDeadline(time.Now().Add(idleDeadline)); err != nil {
			return
		}
		rn, _, err := w.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		frame = protocol.Parse(buf[:rn])
	}
}

// serveRandomAccess implements the legacy FILE … GET START/END dialect,
// retained for backward compatibility with older clients and costing
// little once the worker already seeks within an open *os.File.
func (w *DownloadWorker) serveRandomAccess(f *os.File, from net.Addr, first protocol.Frame, idleDeadline time.Duration) {
	buf := make([]byte, transport.MaxReplyBytes)
	frame := first
	for {
		switch {
		case frame.Verb == protocol.VerbFile && len(frame.Fields) >= 4 && frame.Fields[1] == protocol.TokenGet && frame.Fields[2] == protocol.TokenStart:
			name := frame.Fields[0]
			start, errA := strconv.ParseInt(frame.Fields[3], 10, 64)
			end := start
			if len(frame.Fields) >= 6 && frame.Fields[4] == protocol.TokenEnd {
				end, _ = strconv.ParseInt(frame.Fields[5], 10, 64)
			}
			if errA != nil || end < start {
				w.log.Warnf("malformed range request: %v", frame)
				return
			}

			length := end - start + 1
			data := make([]byte, length)
			rn, err := f.ReadAt(data, start)
			if err != nil && err != io.EOF {
				w.log.Errorf("range read failed: %v", err)
				return
			}
			encoded := base64.StdEncoding.EncodeToString(data[:rn])
			reply := []byte(fmt.Sprintf("%s %s OK START %d END %d DATA %s", protocol.VerbFile, name, start, end, encoded))
			if _, err := w.conn.WriteTo(reply, from); err != nil {
				return
			}

		case frame.Verb == protocol.VerbFile && len(frame.Fields) >= 2 && frame.Fields[1] == protocol.TokenClose:
			name := frame.Fields[0]
			w.conn.WriteTo([]byte(fmt.Sprintf("%s %s %s", protocol.VerbFile, name, protocol.ReplyCloseOK)), from)
			return

		default:
			w.log.Warnf("unexpected legacy-dialect frame %q", strings.Join(frame.Fields, " "))
			return
		}

		if err := w.conn.SetReadDeadline(time.Now().Add(idleDeadline)); err != nil {
			return
		}
		n, _, err := w.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		frame = protocol.Parse(buf[:n])
	}
}
