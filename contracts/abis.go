package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// OwnableABI covers the Ownable functions of Admin, Forwarder, Ntzs and ProxyAdmin.
const OwnableABI = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"transferOwnership","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]}
]`

// ProxyAdminABI is the OpenZeppelin v5 ProxyAdmin interface.
const ProxyAdminABI = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"transferOwnership","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
	{"type":"function","name":"UPGRADE_INTERFACE_VERSION","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"upgradeAndCall","stateMutability":"payable","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]}
]`

var (
	Ownable    = sync.OnceValue(func() abi.ABI { return mustParse(OwnableABI) })
	ProxyAdmin = sync.OnceValue(func() abi.ABI { return mustParse(ProxyAdminABI) })
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}

	return parsed
}
