package main

import (
	"fmt"
	"log"

	"agentbackend/core"
)

func main() {
	log.Printf("🔑 Generating new callback token...")

	// Shared-secret token the backtest, brokerage and deployment integrations
	// present on the callback endpoints
	token, err := core.NewSecretKey("cbtok")
	if err != nil {
		log.Fatalf("❌ Failed to generate callback token: %v", err)
	}

	fmt.Printf("Generated callback token: %s\n", token)
	log.Printf("✅ Successfully generated callback token")
}
