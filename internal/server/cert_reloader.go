package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"engagemeter/internal/errors"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = time.Second

// ReloadStats counts certificate reload attempts
type ReloadStats struct {
	ReloadCount        int64     `json:"reload_count"`
	ReloadSuccessCount int64     `json:"reload_success_count"`
	ReloadFailureCount int64     `json:"reload_failure_count"`
	LastReloadTime     time.Time `json:"last_reload_time"`
	LastReloadSuccess  bool      `json:"last_reload_success"`
	LastReloadError    string    `json:"last_reload_error,omitempty"`
}

// CertReloader serves a keypair loaded from disk and swaps it when the files change
type CertReloader struct {
	mu sync.RWMutex

	certFile string
	keyFile  string

	cert     *tls.Certificate
	notAfter time.Time
	stats    ReloadStats

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}
	running    bool

	onReload func(success bool, notAfter time.Time, err error)
	logger   *errors.Logger
}

// NewCertReloader loads the initial keypair; the watcher is not started
func NewCertReloader(certFile, keyFile string, debounceDelay time.Duration, logger *errors.Logger) (*CertReloader, error) {
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("TLS certificate and key files are required")
	}
	if debounceDelay <= 0 {
		debounceDelay = defaultDebounceDelay
	}

	cr := &CertReloader{
		certFile:      certFile,
		keyFile:       keyFile,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		logger:        logger,
	}

	cert, notAfter, err := loadKeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	cr.cert = cert
	cr.notAfter = notAfter
	return cr, nil
}

func loadKeyPair(certFile, keyFile string) (*tls.Certificate, time.Time, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load server cert/key from files: %w", err)
	}

	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to parse server certificate: %w", err)
		}
		cert.Leaf = leaf
	}
	return &cert, leaf.NotAfter, nil
}

// OnReload registers a callback invoked after every reload attempt
func (cr *CertReloader) OnReload(fn func(success bool, notAfter time.Time, err error)) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.onReload = fn
}

// GetCertificate is the tls.Config.GetCertificate hook
func (cr *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return cr.cert, nil
}

// Reload reads the keypair again. The previous one stays in use on failure.
func (cr *CertReloader) Reload() error {
	cert, notAfter, err := loadKeyPair(cr.certFile, cr.keyFile)

	cr.mu.Lock()
	cr.stats.ReloadCount++
	cr.stats.LastReloadTime = time.Now()
	cr.stats.LastReloadSuccess = err == nil
	if err != nil {
		cr.stats.ReloadFailureCount++
		cr.stats.LastReloadError = err.Error()
	} else {
		cr.stats.ReloadSuccessCount++
		cr.stats.LastReloadError = ""
		cr.cert = cert
		cr.notAfter = notAfter
	}
	callback := cr.onReload
	current := cr.notAfter
	cr.mu.Unlock()

	if cr.logger != nil {
		if err != nil {
			cr.logger.LogError(err, "Failed to reload TLS certificates")
		} else {
			cr.logger.Info("TLS certificates reloaded successfully", "not_after", notAfter)
		}
	}
	if callback != nil {
		callback(err == nil, current, err)
	}
	return err
}

// CheckExpiry returns the time left before the served certificate expires
func (cr *CertReloader) CheckExpiry() (time.Duration, error) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	if cr.cert == nil {
		return 0, fmt.Errorf("no certificate loaded")
	}
	return time.Until(cr.notAfter), nil
}

// NotAfter returns the expiry of the served certificate
func (cr *CertReloader) NotAfter() time.Time {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return cr.notAfter
}

// GetStats returns a snapshot of the reload counters
func (cr *CertReloader) GetStats() ReloadStats {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return cr.stats
}

// Start begins watching the certificate files for changes
func (cr *CertReloader) Start() error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.running {
		return fmt.Errorf("certificate watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Directories catch atomic writes done by rename
	dirs := map[string]bool{}
	for _, file := range cr.WatchedFiles() {
		dirs[filepath.Dir(file)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	cr.fsWatcher = watcher
	cr.running = true
	go cr.watchLoop(watcher)

	if cr.logger != nil {
		cr.logger.Info("Certificate file watcher started",
			"files", cr.WatchedFiles(),
			"debounce_delay", cr.debounceDelay)
	}
	return nil
}

// Stop stops the certificate file watcher
func (cr *CertReloader) Stop() error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if !cr.running {
		return nil
	}

	close(cr.stopChan)
	if cr.debounceTimer != nil {
		cr.debounceTimer.Stop()
	}
	cr.running = false

	if err := cr.fsWatcher.Close(); err != nil {
		if cr.logger != nil {
			cr.logger.LogError(err, "Failed to close file system watcher")
		}
		return err
	}

	if cr.logger != nil {
		cr.logger.Info("Certificate file watcher stopped")
	}
	return nil
}

func (cr *CertReloader) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if cr.shouldProcessEvent(event) {
				cr.scheduleReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if cr.logger != nil {
				cr.logger.LogError(err, "File watcher error")
			}

		case <-cr.reloadChan:
			_ = cr.Reload()

		case <-cr.stopChan:
			return
		}
	}
}

// shouldProcessEvent reports whether event touches a watched file
func (cr *CertReloader) shouldProcessEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	for _, file := range cr.WatchedFiles() {
		if name == filepath.Clean(file) || filepath.Base(name) == filepath.Base(file) {
			return true
		}
	}
	return false
}

// scheduleReload restarts the debounce timer
func (cr *CertReloader) scheduleReload() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if !cr.running {
		return
	}
	if cr.debounceTimer != nil {
		cr.debounceTimer.Stop()
	}
	cr.debounceTimer = time.AfterFunc(cr.debounceDelay, func() {
		select {
		case cr.reloadChan <- struct{}{}:
		default:
		}
	})
}

// IsRunning returns whether the watcher is currently running
func (cr *CertReloader) IsRunning() bool {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return cr.running
}

// WatchedFiles returns the certificate and key paths
func (cr *CertReloader) WatchedFiles() []string {
	return []string{cr.certFile, cr.keyFile}
}
