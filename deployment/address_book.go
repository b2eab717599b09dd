package deployment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/ntzs/deployments/chain"
)

var (
	ErrInvalidChainSelector = errors.New("invalid chain selector")
	ErrChainNotFound        = errors.New("chain not found")
	ErrAddressNotFound      = errors.New("address not found")
	ErrAmbiguousAddress     = errors.New("ambiguous address")
)

// ContractType is a simple string type for identifying contract types.
type ContractType string

func (ct ContractType) String() string {
	return string(ct)
}

// Contract types recorded by the deployer.
const (
	Admin         ContractType = "Admin"
	Forwarder     ContractType = "Forwarder"
	Ntzs          ContractType = "NTZS"
	ProxyAdmin    ContractType = "ProxyAdmin"
	TokenMint     ContractType = "SPLTokenMint"
	TokenMetadata ContractType = "MetaplexMetadata"
	Program       ContractType = "Program"
)

// Labels distinguishing the two halves of a proxied contract.
const (
	LabelProxy          = "proxy"
	LabelImplementation = "implementation"
)

type TypeAndVersion struct {
	Type    ContractType   `json:"Type"`
	Version semver.Version `json:"Version"`
	Labels  LabelSet       `json:"Labels,omitempty"`
}

func (tv TypeAndVersion) String() string {
	if len(tv.Labels) == 0 {
		return fmt.Sprintf("%s %s", tv.Type, tv.Version.String())
	}

	return fmt.Sprintf("%s %s %s", tv.Type, tv.Version.String(), tv.Labels.String())
}

func NewTypeAndVersion(t ContractType, v semver.Version, labels ...string) TypeAndVersion {
	return TypeAndVersion{
		Type:    t,
		Version: v,
		Labels:  NewLabelSet(labels...),
	}
}

// AddressBook stores contract addresses across chains, keyed by chain selector. The type and
// version is stored rather than derived because the deployed contracts do not expose it.
// EVM addresses are always stored in EIP-55 form and Solana addresses must be valid base58
// public keys. All methods return results in sorted order.
type AddressBook interface {
	Save(chainSelector uint64, address string, tv TypeAndVersion) error
	Addresses() (map[uint64]map[string]TypeAndVersion, error)
	AddressesForChain(chain uint64) (map[string]TypeAndVersion, error)
	// Merge adds the addresses of other, e.g. new deployments into an existing book.
	Merge(other AddressBook) error
}

type AddressBookMap struct {
	addressesByChain *treemap.Map // map[uint64]*treemap.Map[string]TypeAndVersion
	mtx              sync.RWMutex
}

func (m *AddressBookMap) save(chainSelector uint64, address string, typeAndVersion TypeAndVersion) error {
	family, err := chain.FamilyOf(chainSelector)
	if err != nil {
		return fmt.Errorf("chain selector %d: %w: %w", chainSelector, ErrInvalidChainSelector, err)
	}

	addr, err := chain.ParseAddress(family, address)
	if err != nil {
		return fmt.Errorf("address %q on chain %d: %w", address, chainSelector, err)
	}
	if addr.IsZero() {
		return fmt.Errorf("address cannot be empty: %w", chain.ErrInvalidAddress)
	}

	if typeAndVersion.Type == "" {
		return errors.New("type cannot be empty")
	}

	chainAddresses, exists := m.addressesByChain.Get(chainSelector)
	if !exists {
		chainAddresses = treemap.NewWithStringComparator()
		m.addressesByChain.Put(chainSelector, chainAddresses)
	}

	chainMap := chainAddresses.(*treemap.Map)
	if _, exists := chainMap.Get(addr.String()); exists {
		return fmt.Errorf("address %s already exists for chain %d", addr, chainSelector)
	}
	chainMap.Put(addr.String(), typeAndVersion)

	return nil
}

// Save saves an address for a given chain selector. It errors if the address is already
// recorded for that chain.
func (m *AddressBookMap) Save(chainSelector uint64, address string, typeAndVersion TypeAndVersion) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.save(chainSelector, address, typeAndVersion)
}

func (m *AddressBookMap) Addresses() (map[uint64]map[string]TypeAndVersion, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	result := make(map[uint64]map[string]TypeAndVersion)

	it := m.addressesByChain.Iterator()
	for it.Next() {
		result[it.Key().(uint64)] = toMap(it.Value().(*treemap.Map))
	}

	return result, nil
}

func (m *AddressBookMap) AddressesForChain(chainSelector uint64) (map[string]TypeAndVersion, error) {
	if _, err := chain.FamilyOf(chainSelector); err != nil {
		return nil, fmt.Errorf("chain selector %d: %w: %w", chainSelector, ErrInvalidChainSelector, err)
	}

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	chainAddresses, exists := m.addressesByChain.Get(chainSelector)
	if !exists {
		return nil, fmt.Errorf("chain selector %d: %w", chainSelector, ErrChainNotFound)
	}

	return toMap(chainAddresses.(*treemap.Map)), nil
}

func toMap(chainMap *treemap.Map) map[string]TypeAndVersion {
	result := make(map[string]TypeAndVersion, chainMap.Size())
	it := chainMap.Iterator()
	for it.Next() {
		result[it.Key().(string)] = it.Value().(TypeAndVersion)
	}

	return result
}

// Merge merges the addresses from another address book into this one.
// It errors on any existing address and leaves the book unchanged in that case.
func (m *AddressBookMap) Merge(ab AddressBook) error {
	addresses, err := ab.Addresses()
	if err != nil {
		return err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	staged := &AddressBookMap{addressesByChain: m.clone()}
	for chainSelector, chainAddresses := range addresses {
		for address, typeAndVersion := range chainAddresses {
			if err := staged.save(chainSelector, address, typeAndVersion); err != nil {
				return err
			}
		}
	}
	m.addressesByChain = staged.addressesByChain

	return nil
}

func (m *AddressBookMap) clone() *treemap.Map {
	out := treemap.NewWith(utils.UInt64Comparator)
	it := m.addressesByChain.Iterator()
	for it.Next() {
		chainMap := treemap.NewWithStringComparator()
		for addr, tv := range toMap(it.Value().(*treemap.Map)) {
			chainMap.Put(addr, tv)
		}
		out.Put(it.Key(), chainMap)
	}

	return out
}

func NewMemoryAddressBook() *AddressBookMap {
	return &AddressBookMap{
		addressesByChain: treemap.NewWith(utils.UInt64Comparator),
	}
}

// NewMemoryAddressBookFromMap builds a book from addressesByChain, validating every entry.
func NewMemoryAddressBookFromMap(addressesByChain map[uint64]map[string]TypeAndVersion) (*AddressBookMap, error) {
	ab := NewMemoryAddressBook()
	for chainSelector, addresses := range addressesByChain {
		for address, tv := range addresses {
			if err := ab.save(chainSelector, address, tv); err != nil {
				return nil, err
			}
		}
	}

	return ab, nil
}

// SearchAddressBook returns the single address on chain recorded with type typ and all of the
// given labels. More than one match is an error wrapping ErrAmbiguousAddress, e.g. after a
// redeploy left the previous contracts in the book.
func SearchAddressBook(ab AddressBook, chainSelector uint64, typ ContractType, labels ...string) (string, error) {
	addrs, err := ab.AddressesForChain(chainSelector)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, addr := range sortedKeys(addrs) {
		tv := addrs[addr]
		if tv.Type == typ && tv.Labels.Contains(labels...) {
			matches = append(matches, addr)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s on chain %d: %w", typ, chainSelector, ErrAddressNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s on chain %d: %w: %d matches %v", typ, chainSelector, ErrAmbiguousAddress, len(matches), matches)
	}
}

// AddressBookContains reports whether addrToFind is recorded on the chain, in any case for EVM.
// A chain without entries contains nothing.
func AddressBookContains(ab AddressBook, chainSelector uint64, addrToFind string) (bool, error) {
	family, err := chain.FamilyOf(chainSelector)
	if err != nil {
		return false, fmt.Errorf("chain selector %d: %w: %w", chainSelector, ErrInvalidChainSelector, err)
	}
	want, err := chain.ParseAddress(family, addrToFind)
	if err != nil {
		return false, err
	}

	addrs, err := ab.AddressesForChain(chainSelector)
	if errors.Is(err, ErrChainNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, ok := addrs[want.String()]

	return ok, nil
}
