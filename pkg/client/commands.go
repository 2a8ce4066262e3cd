package client

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/manifest"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/protocol"
)

const uploadChunkBytes = 1024

// List sends LIST_FILES and returns the raw reply.
func (c *Conn) List() (string, error) {
	return c.Exchange([]byte(protocol.VerbListFiles))
}

// CD sends `CD <name>` and returns the raw reply.
func (c *Conn) CD(name string) (string, error) {
	return c.Exchange([]byte(fmt.Sprintf("%s %s", protocol.VerbCD, name)))
}

// Kill sends KILL_SERVER_FILES and returns the raw reply. Callers are
// expected to have already confirmed this destructive action with the
// user (see Confirm in confirm.go).
func (c *Conn) Kill() (string, error) {
	return c.Exchange([]byte(protocol.VerbKillServerFiles))
}

// Upload reads localPath and sends it as remoteName via UPLOAD + a
// stop-and-wait DATA/ACK_DATA loop.
func (c *Conn) Upload(localPath, remoteName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	reply, err := c.Exchange([]byte(fmt.Sprintf("%s %s", protocol.VerbUpload, remoteName)))
	if err != nil {
		return err
	}
	if !strings.HasPrefix(reply, protocol.ReplyUploadReady) {
		return fmt.Errorf("unexpected upload reply: %s", reply)
	}

	var bar *progressBar
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		bar = newProgressBar(info.Size(), "upload "+remoteName)
	}

	buf := make([]byte, uploadChunkBytes)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			encoded := base64.StdEncoding.EncodeToString(buf[:n])
			reply, err := c.Exchange([]byte(fmt.Sprintf("%s %s", protocol.VerbData, encoded)))
			if err != nil {
				return err
			}
			if reply != protocol.ReplyAckData {
				return fmt.Errorf("unexpected data reply: %s", reply)
			}
			if bar != nil {
				bar.add(int64(n))
			}
		}
		if readErr != nil {
			break
		}
	}
	if bar != nil {
		bar.finish()
	}

	reply, err = c.Exchange([]byte(protocol.VerbUploadDone))
	if err != nil {
		return err
	}
	if reply != protocol.ReplyUploadComplete {
		return fmt.Errorf("unexpected completion reply: %s", reply)
	}
	return nil
}

// Download requests name and writes the reassembled bytes to destPath,
// handshaking on the ephemeral data endpoint the server announces.
func (c *Conn) Download(name, destPath string) error {
	reply, err := c.Exchange([]byte(fmt.Sprintf("%s %s", protocol.VerbDownload, name)))
	if err != nil {
		return err
	}
	if strings.HasPrefix(reply, "ERR") {
		return fmt.Errorf("download rejected: %s", reply)
	}

	var gotName string
	var size, port int
	if _, err := fmt.Sscanf(reply, "OK %s SIZE %d PORT %d", &gotName, &size, &port); err != nil {
		return fmt.Errorf("unparseable download reply %q: %w", reply, err)
	}

	dataAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", udpHost(c.server), port))
	if err != nil {
		return fmt.Errorf("resolve data endpoint: %w", err)
	}

	handshake, err := c.ExchangeAt(dataAddr, []byte(fmt.Sprintf("%s %s", protocol.VerbDownload, name)))
	if err != nil {
		return err
	}
	if string(handshake) != protocol.ReplyDownloadReady {
		return fmt.Errorf("unexpected download handshake: %s", handshake)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer out.Close()

	var bar *progressBar
	if size > 0 {
		bar = newProgressBar(int64(size), "download "+name)
	}

	for {
		reply, err := c.ExchangeAt(dataAddr, []byte(protocol.VerbGetChunk))
		if err != nil {
			return err
		}
		if string(reply) == protocol.ReplyTransferComplete {
			break
		}

		parts := strings.SplitN(string(reply), " ", 2)
		if len(parts) != 2 || parts[0] != protocol.VerbData {
			return fmt.Errorf("unexpected chunk reply: %s", reply)
		}
		data, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		if bar != nil {
			bar.add(int64(len(data)))
		}
	}
	if bar != nil {
		bar.finish()
	}
	return nil
}

func udpHost(addr net.Addr) string {
	if u, ok := addr.(*net.UDPAddr); ok {
		return u.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// SyncRun implements `sync run` for one pair:
// build the local manifest, upload it in chunks, and upload every file
// the server reports it is missing or holds a different version of.
func (c *Conn) SyncRun(pair SyncPair) error {
	localManifest, err := manifest.Build(pair.LocalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: manifest build had errors: %v\n", err)
	}
	encoded, err := json.Marshal(localManifest)
	if err != nil {
		return fmt.Errorf("encode local manifest: %w", err)
	}

	chunks := splitIntoChunks(string(encoded), 1024)

	reply, err := c.Exchange([]byte(fmt.Sprintf("%s %s %d", protocol.VerbSyncStart, pair.RemotePath, len(chunks))))
	if err != nil {
		return err
	}
	if reply == protocol.ReplySyncing {
		return fmt.Errorf("server busy: %s", reply)
	}
	if reply != protocol.ReplySyncReady {
		return fmt.Errorf("unexpected sync start reply: %s", reply)
	}

	for i, chunk := range chunks {
		frame := fmt.Sprintf("%s %d/%d\n%s", protocol.VerbSyncChunk, i, len(chunks), chunk)
		reply, err := c.Exchange([]byte(frame))
		if err != nil {
			return err
		}
		if reply != fmt.Sprintf("ACK_CHUNK %d", i) {
			return fmt.Errorf("unexpected chunk ack: %s", reply)
		}
	}

	reply, err = c.Exchange([]byte(protocol.VerbSyncFinish))
	if err != nil {
		return err
	}
	if reply == protocol.ReplySyncNoChanges {
		return nil
	}

	var k int
	if _, err := fmt.Sscanf(reply, "NEEDS_FILES_READY %d", &k); err != nil {
		return fmt.Errorf("unexpected finish reply: %s", reply)
	}

	var body strings.Builder
	for i := 0; i < k; i++ {
		reply, err := c.Exchange([]byte(fmt.Sprintf("%s %d", protocol.VerbGetSyncChunk, i)))
		if err != nil {
			return err
		}
		body.WriteString(reply)
	}

	var payload struct {
		Status string   `json:"status"`
		Files  []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(body.String()), &payload); err != nil {
		return fmt.Errorf("decode needs-files payload: %w", err)
	}

	for _, name := range payload.Files {
		// A leading "/" makes the server resolve the name against its
		// root, where the sync target lives, not the client's cwd.
		remoteName := "/" + strings.TrimPrefix(pair.RemotePath, "/") + "/" + name
		localSrc := filepath.Join(pair.LocalPath, filepath.FromSlash(name))
		if err := c.Upload(localSrc, remoteName); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to upload %s: %v\n", name, err)
		}
	}
	return nil
}

// BulkUpload implements `supload <local-directory>`:
// send the directory skeleton via SUPLOAD_STRUCTURE, then every file
// underneath via SUPLOAD_FILE + the same stop-and-wait DATA loop as a
// plain Upload, then SUPLOAD_COMPLETE.
func (c *Conn) BulkUpload(localDir string) error {
	rootName := filepath.Base(localDir)

	var dirs []string
	err := filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == localDir || !info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		dirs = append(dirs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk local directory: %w", err)
	}

	reply, err := c.Exchange([]byte(fmt.Sprintf("%s %s\n%s", protocol.VerbSuploadStructure, rootName, strings.Join(dirs, "\n"))))
	if err != nil {
		return err
	}
	if reply != protocol.ReplyStructureOK {
		return fmt.Errorf("structure rejected: %s", reply)
	}

	err = filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		relPath := filepath.ToSlash(rel)
		return c.uploadBulkFile(path, relPath)
	})
	if err != nil {
		return err
	}

	reply, err = c.Exchange([]byte(protocol.VerbSuploadComplete))
	if err != nil {
		return err
	}
	if reply != protocol.ReplySuploadOK {
		return fmt.Errorf("bulk upload completion rejected: %s", reply)
	}
	return nil
}

func (c *Conn) uploadBulkFile(localPath, relPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	reply, err := c.Exchange([]byte(fmt.Sprintf("%s %s", protocol.VerbSuploadFile, relPath)))
	if err != nil {
		return err
	}
	if reply != protocol.ReplyFileReady {
		return fmt.Errorf("file upload rejected for %s: %s", relPath, reply)
	}

	var bar *progressBar
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		bar = newProgressBar(info.Size(), relPath)
	}

	buf := make([]byte, uploadChunkBytes)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			encoded := base64.StdEncoding.EncodeToString(buf[:n])
			reply, err := c.Exchange([]byte(fmt.Sprintf("%s %s", protocol.VerbData, encoded)))
			if err != nil {
				return err
			}
			if reply != protocol.ReplyAckData {
				return fmt.Errorf("unexpected data reply for %s: %s", relPath, reply)
			}
			if bar != nil {
				bar.add(int64(n))
			}
		}
		if readErr != nil {
			break
		}
	}
	if bar != nil {
		bar.finish()
	}

	reply, err = c.Exchange([]byte(protocol.VerbUploadDone))
	if err != nil {
		return err
	}
	if reply != protocol.ReplyUploadComplete {
		return fmt.Errorf("unexpected completion reply for %s: %s", relPath, reply)
	}
	return nil
}

func splitIntoChunks(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for len(s) > 0 {
		end := size
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[:end])
		s = s[end:]
	}
	return out
}

// readLine is a small helper the interactive shell uses to prompt for
// free-form input.
func readLine(r *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
