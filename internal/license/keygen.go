// internal/license/keygen.go
package license

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"

	"github.com/keygen-sh/keygen-go/v3"
	"go.uber.org/zap"
)

var (
	ErrExpired  = errors.New("license has expired")
	ErrNotFound = errors.New("license not found")
)

// Config identifies the Keygen product the trader is licensed under.
// An empty Key disables the check.
type Config struct {
	Key     string
	Account string
	Product string
	Token   string
}

func (c Config) Enabled() bool {
	return c.Key != ""
}

// keygen-go keeps its settings in package globals.
var keygenMu sync.Mutex

type validateFunc func(ctx context.Context, fingerprint string) (*keygen.License, error)
type activateFunc func(ctx context.Context, lic *keygen.License, fingerprint string) (*keygen.Machine, error)

// KeygenValidator handles license validation using Keygen.sh
type KeygenValidator struct {
	cfg    Config
	logger *zap.Logger

	validate    validateFunc
	activate    activateFunc
	fingerprint func() (string, error)
}

func NewKeygenValidator(cfg Config, logger *zap.Logger) *KeygenValidator {
	return &KeygenValidator{
		cfg:         cfg,
		logger:      logger.Named("license"),
		validate:    keygenValidate(cfg),
		activate:    keygenActivate,
		fingerprint: machineFingerprint,
	}
}

func keygenValidate(cfg Config) validateFunc {
	return func(ctx context.Context, fingerprint string) (*keygen.License, error) {
		keygenMu.Lock()
		defer keygenMu.Unlock()
		keygen.Account = cfg.Account
		keygen.Product = cfg.Product
		keygen.Token = cfg.Token
		keygen.LicenseKey = cfg.Key
		return keygen.Validate(ctx, fingerprint)
	}
}

func keygenActivate(ctx context.Context, lic *keygen.License, fingerprint string) (*keygen.Machine, error) {
	return lic.Activate(ctx, fingerprint)
}

// ValidateLicense validates the configured key, activating this machine on
// first use. It is a no-op when no key is configured.
func (kv *KeygenValidator) ValidateLicense(ctx context.Context) error {
	if !kv.cfg.Enabled() {
		kv.logger.Debug("License check disabled")
		return nil
	}
	kv.logger.Info("🔑 Validating license", zap.String("key", mask(kv.cfg.Key)))

	fingerprint, err := kv.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}

	lic, err := kv.validate(ctx, fingerprint)
	switch {
	case errors.Is(err, keygen.ErrLicenseNotActivated):
		kv.logger.Info("License not activated, attempting activation")
		machine, activateErr := kv.activate(ctx, lic, fingerprint)
		if activateErr != nil {
			return fmt.Errorf("failed to activate license: %w", activateErr)
		}
		kv.logger.Info("License activated successfully",
			zap.String("machine_id", machine.ID),
			zap.String("fingerprint", fingerprint),
		)

	case errors.Is(err, keygen.ErrLicenseExpired):
		return ErrExpired

	case err != nil:
		return fmt.Errorf("license validation failed: %w", err)
	}

	if lic == nil {
		return ErrNotFound
	}

	kv.logger.Info("License validation successful", zap.String("license_id", lic.ID))
	return nil
}

// HeartbeatLicense re-validates to keep the machine activation alive.
func (kv *KeygenValidator) HeartbeatLicense(ctx context.Context) error {
	if !kv.cfg.Enabled() {
		return nil
	}
	fingerprint, err := kv.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}
	if _, err := kv.validate(ctx, fingerprint); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	kv.logger.Debug("License heartbeat sent successfully")
	return nil
}

// machineFingerprint: sha256(hostname-mac-os).
func machineFingerprint() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var mac string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			mac = iface.HardwareAddr.String()
			break
		}
	}
	if mac == "" {
		return "", errors.New("no network interfaces found")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return fingerprintOf(hostname, mac, runtime.GOOS), nil
}

func fingerprintOf(hostname, mac, goos string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", hostname, mac, goos)))
	return fmt.Sprintf("%x", hash)
}

func mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..."
}
