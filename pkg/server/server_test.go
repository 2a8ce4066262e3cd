package server

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/config"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/protocol"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/transport"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Root = t.TempDir()
	d, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func fakeAddr(port int) net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
}

func TestListEmptyRoot(t *testing.T) {
	d := newTestDispatcher(t)
	reply := d.Dispatch([]byte(protocol.VerbListFiles), fakeAddr(1))
	assert.Equal(t, "OK", string(reply))
}

func TestListDirsBeforeFiles(t *testing.T) {
	d := newTestDispatcher(t)
	require.NoError(t, os.Mkdir(filepath.Join(d.root.String(), "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(d.root.String(), "a.txt"), []byte("x"), 0644))

	reply := d.Dispatch([]byte(protocol.VerbListFiles), fakeAddr(1))
	s := string(reply)
	assert.True(t, strings.Contains(s, "sub/"))
	assert.True(t, strings.Contains(s, "a.txt"))
	assert.True(t, strings.Index(s, "sub/") < strings.Index(s, "a.txt"))
}

func TestCDEscapeRejected(t *testing.T) {
	d := newTestDispatcher(t)
	reply := d.Dispatch([]byte("CD ../../etc"), fakeAddr(1))
	assert.True(t, strings.HasPrefix(string(reply), "CD_ERR"))
}

func TestCDIntoSubdirectory(t *testing.T) {
	d := newTestDispatcher(t)
	require.NoError(t, os.Mkdir(filepath.Join(d.root.String(), "sub"), 0755))

	reply := d.Dispatch([]byte("CD sub"), fakeAddr(1))
	assert.Equal(t, "CD_OK Now in /sub", string(reply))
}

func TestUnknownVerb(t *testing.T) {
	d := newTestDispatcher(t)
	reply := d.Dispatch([]byte("NONSENSE"), fakeAddr(1))
	assert.Equal(t, protocol.ReplyErrUnknown, string(reply))
}

func TestUploadRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	addr := fakeAddr(1)

	content := strings.Repeat("ab", 1300) // 2600 bytes: chunks of 1024, 1024 and 552
	reply := d.Dispatch([]byte("UPLOAD t.txt"), addr)
	assert.Equal(t, "UPLOAD_READY", string(reply))

	for i := 0; i < len(content); i += 1024 {
		end := i + 1024
		if end > len(content) {
			end = len(content)
		}
		chunk := content[i:end]
		b64 := base64.StdEncoding.EncodeToString([]byte(chunk))
		reply = d.Dispatch([]byte("DATA "+b64), addr)
		assert.Equal(t, "ACK_DATA", string(reply))
	}

	reply = d.Dispatch([]byte("UPLOAD_DONE"), addr)
	assert.Equal(t, "UPLOAD_COMPLETE", string(reply))

	written, err := os.ReadFile(filepath.Join(d.root.String(), "t.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, string(written))
}

func TestDownloadRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	addr := fakeAddr(2)

	content := strings.Repeat("xy", 2000)
	require.NoError(t, os.WriteFile(filepath.Join(d.root.String(), "f.bin"), []byte(content), 0644))

	reply := d.Dispatch([]byte("DOWNLOAD f.bin"), addr)
	s := string(reply)
	require.True(t, strings.HasPrefix(s, "OK f.bin SIZE"))

	var name string
	var size, port int
	_, err := fmt.Sscanf(s, "OK %s SIZE %d PORT %d", &name, &size, &port)
	require.NoError(t, err)
	assert.Equal(t, len(content), size)

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	dataAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
	xcfg := transport.Config{Timeout: 500 * time.Millisecond, Retries: 3}

	handshake, _, err := transport.Exchange(client, dataAddr, []byte("DOWNLOAD f.bin"), xcfg)
	require.NoError(t, err)
	assert.Equal(t, protocol.ReplyDownloadReady, string(handshake))

	var out strings.Builder
	for {
		reply, _, err := transport.Exchange(client, dataAddr, []byte(protocol.VerbGetChunk), xcfg)
		require.NoError(t, err)
		if string(reply) == protocol.ReplyTransferComplete {
			break
		}
		parts := strings.SplitN(string(reply), " ", 2)
		require.Equal(t, protocol.VerbData, parts[0])
		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		require.NoError(t, err)
		out.Write(decoded)
	}

	assert.Equal(t, content, out.String())
}

func TestSyncNoChangesReleasesLock(t *testing.T) {
	d := newTestDispatcher(t)
	addr := fakeAddr(3)

	require.NoError(t, os.Mkdir(filepath.Join(d.root.String(), "remote"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(d.root.String(), "remote", "same.txt"), []byte("same"), 0644))

	manifestJSON := `{"same.txt":"` + md5Hex("same") + `"}`

	reply := d.Dispatch([]byte("SYNC_START remote 1"), addr)
	assert.Equal(t, protocol.ReplySyncReady, string(reply))

	reply = d.Dispatch([]byte("SYNC_CHUNK 0/1\n"+manifestJSON), addr)
	assert.Equal(t, "ACK_CHUNK 0", string(reply))

	reply = d.Dispatch([]byte("SYNC_FINISH"), addr)
	assert.Equal(t, protocol.ReplySyncNoChanges, string(reply))

	// Lock released: a different client can now act freely.
	other := fakeAddr(4)
	reply = d.Dispatch([]byte(protocol.VerbListFiles), other)
	assert.True(t, strings.HasPrefix(string(reply), "OK"))
}

func TestSyncLockBlocksOtherClients(t *testing.T) {
	d := newTestDispatcher(t)
	a := fakeAddr(5)
	b := fakeAddr(6)

	reply := d.Dispatch([]byte("SYNC_START remote 1"), a)
	assert.Equal(t, protocol.ReplySyncReady, string(reply))

	reply = d.Dispatch([]byte(protocol.VerbListFiles), b)
	assert.Equal(t, protocol.ReplySyncing, string(reply))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
