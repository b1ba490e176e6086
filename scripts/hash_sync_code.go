package main

import (
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// hash_sync_code.go - prints the stored hash of a site sync code, for seeding
// the sites table by hand in development.
//
// Usage:
//   go run scripts/hash_sync_code.go <sync_code>

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/hash_sync_code.go <sync_code>")
		os.Exit(1)
	}

	fmt.Println(domain.HashSyncCode(os.Args[1]))
}
