// Package server implements the control dispatcher, upload receiver,
// download worker, bulk-upload session, and sync coordinator. The
// dispatcher owns all shared state (navigation map, bulk/sync session
// maps, sync lock) behind its own mutexes — none of it is exposed as a
// free package-level global.
package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/config"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/logging"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/pathconfine"
	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/transport"
)

// ClientID identifies a client by its observed (ip, port) tuple.
// There is no handshake; identity is implicit in the UDP source
// address.
type ClientID string

func clientID(addr net.Addr) ClientID { return ClientID(addr.String()) }

// Dispatcher is the control endpoint's request router and all shared
// per-client/per-session state it mediates.
type Dispatcher struct {
	root   pathconfine.Root
	cfg    *config.Config
	log    *logging.Logger
	xport  transport.Config

	navMu sync.Mutex
	nav   map[ClientID]string // current directory, absolute, beneath root

	bulkMu   sync.Mutex
	bulkByID map[string]*BulkSession

	syncMu      sync.Mutex
	syncLock    ClientID // "" when unheld
	syncByID    map[string]*SyncSession
	syncByOwner map[ClientID]string // owner -> session id, for routing

	uploadMu sync.Mutex
	uploads  map[ClientID]*uploadSession

	reaperStop chan struct{}
	reaperWG   sync.WaitGroup
}

// New creates a Dispatcher rooted at cfg.Server.Root.
func New(cfg *config.Config) (*Dispatcher, error) {
	root, err := pathconfine.NewRoot(cfg.Server.Root)
	if err != nil {
		return nil, fmt.Errorf("establish confinement root: %w", err)
	}

	d := &Dispatcher{
		root:        root,
		cfg:         cfg,
		log:         logging.Global().WithComponent("dispatcher"),
		xport:       transport.Config{Timeout: cfg.Timeout(), Retries: cfg.Transport.Retries},
		nav:         make(map[ClientID]string),
		bulkByID:    make(map[string]*BulkSession),
		syncByID:    make(map[string]*SyncSession),
		syncByOwner: make(map[ClientID]string),
		uploads:     make(map[ClientID]*uploadSession),
		reaperStop:  make(chan struct{}),
	}
	d.startReaper()
	return d, nil
}

// Root returns the confinement root this dispatcher serves.
func (d *Dispatcher) Root() pathconfine.Root { return d.root }

// cwd returns the client's current directory, defaulting to root on first
// contact.
func (d *Dispatcher) cwd(id ClientID) string {
	d.navMu.Lock()
	defer d.navMu.Unlock()
	if dir, ok := d.nav[id]; ok {
		return dir
	}
	d.nav[id] = d.root.String()
	return d.root.String()
}

func (d *Dispatcher) setCwd(id ClientID, dir string) {
	d.navMu.Lock()
	defer d.navMu.Unlock()
	d.nav[id] = dir
}

// Close stops background maintenance goroutines.
func (d *Dispatcher) Close() {
	close(d.reaperStop)
	d.reaperWG.Wait()
}

// Dispatch parses and routes one received control frame, enforcing the
// sync-lock exclusivity rule before handing off to a verb handler. It
// always returns a non-nil reply frame, even for handler panics.
func (d *Dispatcher) Dispatch(payload []byte, from net.Addr) (reply []byte) {
	id := clientID(from)
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("handler panic: %v", r)
			reply = []byte("ERR_INTERNAL")
		}
	}()
	reply = d.dispatch(id, payload)
	if reply == nil {
		d.log.Error("handler produced nil reply, this is a bug")
		return []byte("ERR_INTERNAL")
	}
	return reply
}

// startReaper launches the single background sweep goroutine that expires
// idle upload, bulk, and sync sessions and force-releases a stuck sync
// lock. The ticker +
// ctx/stop select loop is grounded on pkg/resilience/health_monitor.go's
// monitorComponent periodic-check idiom.
func (d *Dispatcher) startReaper() {
	d.reaperWG.Add(1)
	go func() {
		defer d.reaperWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-d.reaperStop:
				return
			case <-ticker.C:
				d.reapUploads()
				d.reapBulkSessions()
				d.reapSyncLock()
			}
		}
	}()
}

func (d *Dispatcher) reapUploads() {
	idleAfter := time.Duration(d.cfg.Sync.UploadIdleMinutes) * time.Minute
	d.uploadMu.Lock()
	defer d.uploadMu.Unlock()
	for id, sess := range d.uploads {
		if time.Since(sess.lastActivity) > idleAfter {
			sess.file.Close()
			delete(d.uploads, id)
			d.log.WithField("client", string(id)).Warn("upload session expired idle")
		}
	}
}

func (d *Dispatcher) reapBulkSessions() {
	idleAfter := time.Duration(d.cfg.Sync.BulkIdleMinutes) * time.Minute
	d.bulkMu.Lock()
	defer d.bulkMu.Unlock()
	for id, sess := range d.bulkByID {
		if time.Since(sess.lastActivity) > idleAfter {
			delete(d.bulkByID, id)
			d.log.WithField("bulk_session", id).Warn("bulk session expired idle")
		}
	}
}

func (d *Dispatcher) reapSyncLock() {
	idleAfter := time.Duration(d.cfg.Sync.LockIdleMinutes) * time.Minute
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	for id, sess := range d.syncByID {
		if sess.readyAt.IsZero() {
			continue
		}
		if time.Since(sess.readyAt) > idleAfter {
			d.log.WithField("sync_session", id).Warn("sync session watchdog force-released lock")
			delete(d.syncByID, id)
			delete(d.syncByOwner, sess.owner)
			if d.syncLock == sess.owner {
				d.syncLock = ""
			}
		}
	}
}
