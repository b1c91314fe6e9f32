package sweep

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// DefaultToolName is the lock enumeration utility shipped in the bundle.
const DefaultToolName = "handle.exe"

// Provisioner installs the enumeration utility from a bundle into a root
// directory on the worker machine.
type Provisioner struct {
	Bundle fs.FS
	Name   string
	Logger *zap.Logger
}

// Path returns where the tool lives under root.
func (p *Provisioner) Path(root string) string {
	return filepath.Join(root, p.name())
}

// EnsureInstalled copies the tool under root unless it is already present,
// and returns its path. The existence check and copy hold a file lock so
// concurrent sweeps on one machine copy at most once.
func (p *Provisioner) EnsureInstalled(root string) (string, error) {
	target := p.Path(root)
	if exists(target) {
		return target, nil
	}
	if p.Bundle == nil {
		return "", fmt.Errorf("install %s: no bundle configured", p.name())
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("install %s: %w", p.name(), err)
	}

	lock := flock.New(target + ".lock")
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("install %s: acquiring lock: %w", p.name(), err)
	}
	defer func() { _ = lock.Unlock() }()

	if exists(target) {
		return target, nil
	}
	if err := p.copy(target); err != nil {
		return "", fmt.Errorf("install %s: %w", p.name(), err)
	}
	p.logger().Info("installed enumeration tool", zap.String("path", target))
	return target, nil
}

func (p *Provisioner) copy(target string) error {
	src, err := p.Bundle.Open(p.name())
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := target + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

func (p *Provisioner) name() string {
	if p.Name == "" {
		return DefaultToolName
	}
	return p.Name
}

func (p *Provisioner) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
