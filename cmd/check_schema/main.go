package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Elias24978/safety-app/pkg/recordstore"
	"github.com/Elias24978/safety-app/pkg/schema"
)

func main() {
	schemaPath := flag.String("schema", "", "schema mapping file (default: built-in v1 mapping)")
	offline := flag.Bool("offline", false, "only validate the mapping file")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout for remote checks")
	flag.Parse()

	_ = godotenv.Load()

	mapping, err := schema.Load(*schemaPath)
	if err != nil {
		exitErr(err)
	}
	if *offline {
		fmt.Printf("Schema %s is valid.\n", mapping.Version)
		return
	}

	apiKey := strings.TrimSpace(os.Getenv("AIRTABLE_KEY"))
	if apiKey == "" {
		exitErr(errors.New("AIRTABLE_KEY is required (or pass -offline)"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	checks := []struct {
		name   string
		envKey string
		check  func(context.Context, schema.MetadataSource) error
	}{
		{"dc3", "AIRTABLE_BASE_ID_DC3", mapping.CheckDC3},
		{"applications", "AIRTABLE_BASE_ID_BOLSA", mapping.CheckApplications},
	}
	for _, c := range checks {
		baseID := strings.TrimSpace(os.Getenv(c.envKey))
		if baseID == "" {
			fmt.Fprintf(os.Stderr, "skip %s: %s not set\n", c.name, c.envKey)
			continue
		}
		client, err := recordstore.NewClient(recordstore.Config{
			APIKey:  apiKey,
			BaseID:  baseID,
			BaseURL: os.Getenv("AIRTABLE_BASE_URL"),
		})
		if err != nil {
			exitErr(err)
		}
		if err := c.check(ctx, client); err != nil {
			exitErr(fmt.Errorf("%s: %w", c.name, err))
		}
		fmt.Printf("%s: ok\n", c.name)
	}

	fmt.Println("Schema check passed.")
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "schema check failed: %v\n", err)
	os.Exit(1)
}
