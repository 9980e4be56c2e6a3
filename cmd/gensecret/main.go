package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// Mints a hex-encoded key for the SECRET_KEY setting
const secretKeyLen = 32

func main() {
	key := make([]byte, secretKeyLen)

	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "generate secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(key))
}
