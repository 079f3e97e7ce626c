package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"medvive-settlement/pkg/config"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHttpServer),
	fx.Invoke(Run),
)

type Server struct {
	server   *http.Server
	cert     atomic.Pointer[tls.Certificate]
	certPath string
	keyPath  string
	done     chan struct{}
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

func NewHttpServer(p Params) (*Server, error) {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.Server.Addr),
			Handler:           p.Handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
		},
		certPath: cfg.TLS.CertPath,
		keyPath:  cfg.TLS.KeyPath,
		done:     make(chan struct{}),
	}

	if !cfg.TLS.Enable {
		return srv, nil
	}

	if err := srv.loadCert(); err != nil {
		return nil, fmt.Errorf("load TLS certificate: %w", err)
	}
	srv.server.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return srv.cert.Load(), nil
		},
	}
	return srv, nil
}

func (s *Server) loadCert() error {
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		return err
	}
	s.cert.Store(&cert)
	return nil
}

// watchCert reloads the key pair whenever either file changes. A failed
// reload keeps serving the previous certificate.
func (s *Server) watchCert() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("failed to create certificate watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	for _, path := range []string{s.certPath, s.keyPath} {
		if err := watcher.Add(path); err != nil {
			zap.L().Warn("failed to watch certificate file", zap.String("path", path), zap.Error(err))
		}
	}

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.loadCert(); err != nil {
				zap.L().Error("failed to reload TLS certificate", zap.Error(err))
				continue
			}
			zap.L().Info("TLS certificate reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("certificate watcher error", zap.Error(err))
		}
	}
}

func (s *Server) serve() {
	var err error
	if s.server.TLSConfig != nil {
		zap.L().Info("Starting HTTP server with TLS", zap.String("addr", s.server.Addr))
		err = s.server.ListenAndServeTLS("", "")
	} else {
		zap.L().Info("Starting HTTP server", zap.String("addr", s.server.Addr))
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		zap.L().Fatal("HTTP server exited", zap.Error(err))
	}
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if srv.server.TLSConfig != nil {
				go srv.watchCert()
			}
			go srv.serve()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Shutting down HTTP server")
			close(srv.done)
			return srv.server.Shutdown(ctx)
		},
	})
}
