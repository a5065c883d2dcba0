package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngprep/internal/infra"
)

// Listener runs an http.Server as a lifecycle component.
type Listener struct {
	name string
	srv  *http.Server

	mu   sync.Mutex
	addr net.Addr
}

func NewListener(name, addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Listener {
	return &Listener{
		name: name,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout,
			WriteTimeout:      writeTimeout,
		},
	}
}

func (l *Listener) Name() string {
	return l.name
}

// Start binds synchronously so address errors surface here, then serves in background.
func (l *Listener) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.srv.Addr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.addr = ln.Addr()
	l.mu.Unlock()

	entry := log.WithFields(log.Fields{"context": l.name, "addr": ln.Addr().String()})
	entry.Info("listening")
	go infra.GoRecoverable(0, l.name, func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Error("server stopped")
		}
	})
	return nil
}

func (l *Listener) Stop(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

// Addr is the bound address, nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}
