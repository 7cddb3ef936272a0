// Generates a dev signing key for the gateway and prints it as .env lines:
// PRIVATE_KEY (hex, no 0x) and the Ethereum address that must be funded in
// the batcher payment service.
package main

import (
	"flag"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	rpcURL := flag.String("rpc-url", "https://ethereum-holesky-rpc.publicnode.com", "RPC_URL written next to the key")
	flag.Parse()

	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	fmt.Printf("PRIVATE_KEY=%x\n", crypto.FromECDSA(key))
	fmt.Printf("RPC_URL=%s\n", *rpcURL)
	fmt.Printf("# address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
}
