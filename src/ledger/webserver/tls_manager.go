package webserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// TLSReloader serves the current key pair and swaps it when the files on
// disk change.
type TLSReloader struct {
	certFile string
	keyFile  string
	lg       *zap.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

func NewTLSReloader(certFile, keyFile string, lg *zap.Logger) (*TLSReloader, error) {
	r := &TLSReloader{certFile: certFile, keyFile: keyFile, lg: lg}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *TLSReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	r.lg.Info("TLS certificates loaded", zap.String("cert", r.certFile))
	return nil
}

// Watch reloads the key pair on changes until ctx is done. The parent
// directories are watched so renamed-in files are picked up too.
func (r *TLSReloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dirs := map[string]struct{}{filepath.Dir(r.certFile): {}, filepath.Dir(r.keyFile): {}}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go func() {
		defer w.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !r.watches(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := r.reload(); err != nil {
						r.lg.Warn("certificate reload failed, keeping previous pair", zap.Error(err))
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.lg.Error("certificate watcher", zap.Error(err))
			}
		}
	}()
	return nil
}

func (r *TLSReloader) watches(name string) bool {
	name = filepath.Clean(name)
	return name == filepath.Clean(r.certFile) || name == filepath.Clean(r.keyFile)
}

func (r *TLSReloader) GetCertificate() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.cert, nil
	}
}

func (r *TLSReloader) GetConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate(),
		MinVersion:     tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}
}
