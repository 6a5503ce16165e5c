// Package main provides a one-shot probe of the lookup provider balance.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lookup-tracker/internal/adapter"
	"github.com/lookup-tracker/internal/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := adapter.NewProviderClient(&cfg.Provider)
	if err != nil {
		log.Fatalf("Failed to create provider client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := client.CheckBalance(ctx)
	if err != nil {
		log.Fatalf("Balance check failed: %v", err)
	}

	icon := "❌"
	switch res.Status {
	case "SUCCESS":
		icon = "✅"
	case "REVIEW", "PENDING":
		icon = "⚠️"
	}

	fmt.Printf("%s Balance: %s\nStatus: %s", icon, adapter.FormatBalance(res.Balance), res.Status)
	if res.Message != "" {
		fmt.Printf(" (%s)", res.Message)
	}
	fmt.Println()
}
