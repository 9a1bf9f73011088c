// genkey generates an Ed25519 producer keypair for manual registration.
// The plaza and agent commands generate and persist their own keys; this
// tool is for registering producers by hand with curl and cmd/sign.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func main() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Public key (base64):  %s\n", base64.StdEncoding.EncodeToString(pub))
	fmt.Printf("Private key (base64): %s\n", base64.StdEncoding.EncodeToString(priv))
	fmt.Println()
	fmt.Println("Register the public key with POST /register, then sign producer")
	fmt.Println("requests with cmd/sign using the private key.")
}
