// internal/wallet/session.go
package wallet

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Session supplies the authenticated address, if any.
type Session interface {
	Address() (common.Address, bool)
}

// StaticSession is a Session whose wallet can be swapped at runtime
// (log in / log out from the terminal front-end).
type StaticSession struct {
	mu     sync.RWMutex
	wallet *Wallet
}

// NewSession returns a session logged in as w; nil means logged out.
func NewSession(w *Wallet) *StaticSession {
	return &StaticSession{wallet: w}
}

// Address implements Session.
func (s *StaticSession) Address() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wallet == nil {
		return common.Address{}, false
	}
	return s.wallet.Address(), true
}

// Wallet returns the current wallet or nil.
func (s *StaticSession) Wallet() *Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet
}

// Login replaces the current wallet.
func (s *StaticSession) Login(w *Wallet) {
	s.mu.Lock()
	s.wallet = w
	s.mu.Unlock()
}

// Logout clears the current wallet.
func (s *StaticSession) Logout() {
	s.Login(nil)
}
