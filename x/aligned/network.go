package aligned

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Network is an Aligned deployment.
type Network string

const (
	Devnet       Network = "devnet"
	Holesky      Network = "holesky"
	HoleskyStage Network = "holesky-stage"
	Mainnet      Network = "mainnet"
)

// Deployment holds the well-known endpoints and contracts of a network.
// BatcherURL is the public endpoint of the network's batcher. The batcher
// client speaks JSON frames only, so a public batcher with another frame
// codec must be replaced through the batcher url setting.
type Deployment struct {
	ChainID               uint64
	BatcherURL            string
	BatcherPaymentService common.Address
	ServiceManager        common.Address
}

var deployments = map[Network]Deployment{
	Devnet: {
		ChainID:               31337,
		BatcherURL:            "ws://localhost:8080",
		BatcherPaymentService: common.HexToAddress("0x7bc06c482DEAd17c0e297aFbC32f6e63d3846650"),
		ServiceManager:        common.HexToAddress("0x1613beB3B2C4f22Ee086B2b38C1476A3cE7f78E8"),
	},
	Holesky: {
		ChainID:               17000,
		BatcherURL:            "wss://batcher.alignedlayer.com",
		BatcherPaymentService: common.HexToAddress("0x815aeCA64a974297942D2Bbf034ABEe22a38A003"),
		ServiceManager:        common.HexToAddress("0x58F280BeBE9B34c9939C3C39e0890C81f163B623"),
	},
	HoleskyStage: {
		ChainID:               17000,
		BatcherURL:            "wss://stage.batcher.alignedlayer.com",
		BatcherPaymentService: common.HexToAddress("0x7577Ec4ccC1E6C529162ec8019A49C13F6DAd98b"),
		ServiceManager:        common.HexToAddress("0x9C5231FC88059C086Ea95712d105A2026048c39B"),
	},
	Mainnet: {
		ChainID:               1,
		BatcherURL:            "wss://mainnet.batcher.alignedlayer.com",
		BatcherPaymentService: common.HexToAddress("0xb0567184A52cB40956df6333510d6eF35B89C8de"),
		ServiceManager:        common.HexToAddress("0xeF2A435e5EE44B2041100EF8cbC8ae035166606c"),
	},
}

// ParseNetwork resolves a network name.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	if n == "holesky_stage" {
		n = HoleskyStage
	}
	if _, ok := deployments[n]; !ok {
		return "", fmt.Errorf("unknown network %q", s)
	}
	return n, nil
}

// Deployment returns the deployment of n.
func (n Network) Deployment() (Deployment, error) {
	d, ok := deployments[n]
	if !ok {
		return Deployment{}, fmt.Errorf("unknown network %q", string(n))
	}
	return d, nil
}

func (n Network) String() string { return string(n) }
