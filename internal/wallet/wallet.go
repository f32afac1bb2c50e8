// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"crypto/ecdsa"
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// DefaultDerivationPath is the first account of the standard Ethereum path.
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// Wallet представляет EVM-кошелёк.
type Wallet struct {
	Name       string
	PrivateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewWallet создаёт кошелёк из hex-encoded приватного ключа (с 0x или без).
func NewWallet(privateKeyHex string) (*Wallet, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if raw == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return fromKey(key), nil
}

// FromMnemonic derives a wallet from a BIP-39 mnemonic.
func FromMnemonic(mnemonic, derivationPath string) (*Wallet, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}
	if strings.TrimSpace(derivationPath) == "" {
		derivationPath = DefaultDerivationPath
	}

	hw, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}
	account, err := hw.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}
	key, err := hw.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("private key failed: %w", err)
	}
	return fromKey(key), nil
}

func fromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx signs tx with an EIP-155 signer for chainID.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewEIP155Signer(chainID), w.PrivateKey)
}

// LoadWallets загружает кошельки из CSV-файла с колонками: [Name, PrivateKeyHex].
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		w, err := NewWallet(record[1])
		if err != nil {
			continue
		}
		w.Name = strings.TrimSpace(record[0])
		wallets[w.Name] = w
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no valid wallets in %s", path)
	}
	return wallets, nil
}
