package client

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Shell runs the interactive command loop: `cd`, `upload`, `supload`,
// `all`, `<filename>` (download), `kill`, `sync
// list|add|remove|run|auto`, and an empty line to exit.
type Shell struct {
	conn       *Conn
	configPath string
	store      *SyncConfigStore
	in         *bufio.Reader
}

// NewShell builds a shell bound to an already-dialed connection and a
// sync_config.json path.
func NewShell(conn *Conn, configPath string) (*Shell, error) {
	store, err := LoadSyncConfigStore(configPath)
	if err != nil {
		return nil, err
	}
	return &Shell{conn: conn, configPath: configPath, store: store, in: bufio.NewReader(os.Stdin)}, nil
}

// Run drives the prompt loop until the user enters an empty line.
func (s *Shell) Run() {
	for {
		line, err := readLine(s.in, "> ")
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if err := s.dispatch(line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (s *Shell) dispatch(line string) error {
	fields := strings.Fields(line)
	verb := fields[0]

	switch verb {
	case "cd":
		return s.cmdCD(fields)
	case "upload":
		return s.cmdUpload(fields)
	case "supload":
		return s.cmdSupload(fields)
	case "all":
		return s.cmdAll()
	case "kill":
		return s.cmdKill()
	case "sync":
		return s.cmdSync(fields[1:])
	default:
		return s.cmdDownload(verb)
	}
}

func (s *Shell) cmdCD(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("usage: cd <name>")
	}
	reply, err := s.conn.CD(fields[1])
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func (s *Shell) cmdUpload(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("usage: upload <local-path>")
	}
	local := fields[1]
	name := filepath.Base(local)
	if err := s.conn.Upload(local, name); err != nil {
		return err
	}
	fmt.Printf("uploaded %s\n", name)
	return nil
}

func (s *Shell) cmdSupload(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("usage: supload <local-directory>")
	}
	return s.conn.BulkUpload(fields[1])
}

// cmdAll implements `all`: list the current directory, then download
// every entry that is not a directory (entries ending in "/" per
// handleList's convention in pkg/server/dispatch.go).
func (s *Shell) cmdAll() error {
	reply, err := s.conn.List()
	if err != nil {
		return err
	}

	fields := strings.Fields(reply)
	if len(fields) == 0 || fields[0] != "OK" {
		return fmt.Errorf("unexpected list reply: %s", reply)
	}

	for _, name := range fields[1:] {
		if strings.HasSuffix(name, "/") {
			continue
		}
		if err := s.cmdDownload(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to download %s: %v\n", name, err)
		}
	}
	return nil
}

func (s *Shell) cmdDownload(name string) error {
	dest := filepath.Base(name)
	if err := s.conn.Download(name, dest); err != nil {
		return err
	}
	fmt.Printf("downloaded %s\n", dest)
	return nil
}

func (s *Shell) cmdKill() error {
	ok, err := Confirm("This will delete everything on the server. Continue?")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("aborted")
		return nil
	}
	reply, err := s.conn.Kill()
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func (s *Shell) cmdSync(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sync list|add|remove|run|auto")
	}

	switch args[0] {
	case "list":
		for _, p := range s.store.List() {
			fmt.Printf("%d: %s -> %s\n", p.ID, p.LocalPath, p.RemotePath)
		}
		return nil

	case "add":
		if len(args) < 3 {
			return fmt.Errorf("usage: sync add <local-path> <remote-path>")
		}
		id, err := s.store.Add(args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("added pair %d\n", id)
		return nil

	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("usage: sync remove <id>")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid id: %s", args[1])
		}
		removed, err := s.store.Remove(id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no such pair: %d", id)
		}
		fmt.Printf("removed pair %d\n", id)
		return nil

	case "run":
		for _, p := range s.store.List() {
			if err := s.conn.SyncRun(p); err != nil {
				fmt.Fprintf(os.Stderr, "sync %d failed: %v\n", p.ID, err)
				continue
			}
			fmt.Printf("synced pair %d\n", p.ID)
		}
		return nil

	case "auto":
		pairs := s.store.List()
		if len(pairs) == 0 {
			return fmt.Errorf("no sync pairs configured")
		}
		watcher, err := NewAutoWatcher(s.conn, pairs)
		if err != nil {
			return err
		}
		fmt.Println("watching for changes, press Ctrl+C to stop")
		watcher.Run()
		return nil

	default:
		return fmt.Errorf("unknown sync subcommand: %s", args[0])
	}
}
