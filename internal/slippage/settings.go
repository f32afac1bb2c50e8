// internal/slippage/settings.go
package slippage

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const (
	// DefaultTolerance is used until the user picks another value.
	DefaultTolerance = 1.0

	storageKey = "slippage.tolerance"
)

// Presets are the quick-pick tolerances offered next to the custom field.
var Presets = []float64{1, 3, 5}

// ErrInvalidTolerance is returned by Set for values outside (0, 100).
var ErrInvalidTolerance = errors.New("slippage tolerance must be a finite number in (0, 100)")

// KV is the persisted key-value contract the settings service writes through.
type KV interface {
	GetString(key string) (string, bool, error)
	SetString(key, value string) error
}

// Settings owns the process-wide slippage tolerance and its persistence.
// Trade attempts never read it directly; callers capture Get() at submission.
type Settings struct {
	mu     sync.RWMutex
	kv     KV
	value  float64
	subs   map[int]func(float64)
	nextID int
	logger *zap.Logger
}

// NewSettings loads the stored tolerance, falling back to DefaultTolerance
// when nothing valid is stored.
func NewSettings(kv KV, logger *zap.Logger) (*Settings, error) {
	if kv == nil {
		return nil, fmt.Errorf("settings store is nil")
	}
	s := &Settings{
		kv:     kv,
		value:  DefaultTolerance,
		subs:   make(map[int]func(float64)),
		logger: logger.Named("slippage"),
	}

	raw, found, err := kv.GetString(storageKey)
	if err != nil {
		return nil, fmt.Errorf("read slippage setting: %w", err)
	}
	if !found {
		return s, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !Valid(v) {
		s.logger.Warn("Ignoring invalid stored slippage tolerance",
			zap.String("stored", raw),
			zap.Float64("default", DefaultTolerance))
		return s, nil
	}
	s.value = v
	return s, nil
}

// Valid reports whether v may be stored as a tolerance.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 && v < 100
}

// IsPreset reports whether v is one of Presets.
func IsPreset(v float64) bool {
	for _, p := range Presets {
		if p == v {
			return true
		}
	}
	return false
}

// Get returns the current tolerance percentage.
func (s *Settings) Get() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set validates, persists and publishes v. Invalid values are rejected and
// the previous tolerance is kept.
func (s *Settings) Set(v float64) error {
	if !Valid(v) {
		s.logger.Debug("Rejected slippage tolerance", zap.Float64("value", v))
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, v)
	}

	s.mu.Lock()
	if v == s.value {
		s.mu.Unlock()
		return nil
	}
	if err := s.kv.SetString(storageKey, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist slippage setting: %w", err)
	}
	s.value = v
	subs := make([]func(float64), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.logger.Info("Slippage tolerance updated", zap.Float64("tolerance", v))
	for _, fn := range subs {
		fn(v)
	}
	return nil
}

// Subscribe registers fn for future changes and returns a function that removes it.
func (s *Settings) Subscribe(fn func(float64)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
