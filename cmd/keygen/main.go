// Command keygen prints a fresh Curve25519 key pair. Use it to provision
// SYSTEM_PRIVATE_KEY and SYSTEM_PUBLIC_KEY for a new deployment; the private
// half must never be registered in the key directory.
package main

import (
	"fmt"
	"os"

	"github.com/lailtonjunior/ceriv-faltas/internal/pkg/chat/crypto"
)

func main() {
	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate keypair: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("SYSTEM_PRIVATE_KEY=%s\n", pair.PrivateKey)
	fmt.Printf("SYSTEM_PUBLIC_KEY=%s\n", pair.PublicKey)
}
