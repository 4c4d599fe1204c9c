package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"courier-relay/config"
	"courier-relay/internal/repository"
	"courier-relay/pkg/database"

	"github.com/jackc/pgx/v5/pgxpool"
)

const usage = `
Courier Relay - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create the relay schema
  down        Drop the relay schema
  status      Show database connection and table status
  seed-dev    Seed development identities with device keys
  reset       Drop all tables and re-create the schema (DANGEROUS)
  truncate    Truncate all tables (DANGEROUS)

Flags:
  -seed-pass string   Password for seeded identities (default "courier-dev")
  -devices int        Devices per seeded identity (default 2)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go reset
`

func main() {
	seedPass := flag.String("seed-pass", "courier-dev", "Password for seeded identities")
	devices := flag.Int("devices", 2, "Devices per seeded identity")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	ctx := context.Background()
	cfg := config.LoadConfig()
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer pool.Close()

	switch command {
	case "up":
		runUp(ctx, pool)
	case "down":
		runDown(ctx, pool)
	case "status":
		showStatus(ctx, pool)
	case "seed-dev":
		runSeedDev(ctx, pool, *seedPass, *devices)
	case "reset":
		runReset(ctx, pool)
	case "truncate":
		runTruncate(ctx, pool)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runUp(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("🚀 Creating schema...")

	if err := repository.InitSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Schema created successfully!")
}

func runDown(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⬇️  Dropping schema...")

	if err := repository.DropSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Drop failed: %v", err)
	}

	log.Println("✅ Schema dropped successfully!")
}

func showStatus(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("🔍 Checking database status...")

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range repository.Tables() {
		exists, err := repository.TableExists(ctx, pool, table)
		if err != nil {
			log.Printf("⚠️  Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := repository.TableCount(ctx, pool, table)
			log.Printf("✅ Table %-22s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-22s does not exist", table)
		}
	}
}

func runSeedDev(ctx context.Context, pool *pgxpool.Pool, password string, devices int) {
	log.Println("🌱 Seeding development identities...")

	cfg := database.DefaultSeedConfig()
	cfg.Password = password
	cfg.DevicesEach = devices

	seeded, err := database.Seed(ctx,
		repository.NewIdentityRepository(pool),
		repository.NewDeviceDirectory(pool),
		cfg)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("📊 Seed Summary:")
	for _, ident := range seeded {
		log.Printf("   - %s (password %q)", ident.Handle, password)
		for _, dev := range ident.Devices {
			path := fmt.Sprintf("%s-%s.pem", ident.Handle, dev.DeviceID)
			if err := os.WriteFile(path, []byte(dev.PrivateKeyPEM), 0o600); err != nil {
				log.Printf("     ⚠️  device %s: could not write key file: %v", dev.DeviceID, err)
				continue
			}
			log.Printf("     device %s, private key written to %s", dev.DeviceID, path)
		}
	}
	log.Println("✅ Development seeding completed!")
}

func runReset(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⚠️  WARNING: This will DROP all tables and re-create the schema!")
	log.Println("⚠️  Press Ctrl+C within 5 seconds to cancel...")
	time.Sleep(5 * time.Second)

	log.Println("🗑️  Dropping all tables...")
	if err := repository.DropSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Failed to drop tables: %v", err)
	}

	log.Println("🚀 Re-creating schema...")
	if err := repository.InitSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Database reset completed!")
}

func runTruncate(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⚠️  WARNING: This will TRUNCATE all tables!")

	if err := repository.TruncateAll(ctx, pool); err != nil {
		log.Fatalf("❌ Truncate failed: %v", err)
	}

	log.Println("✅ All tables truncated!")
}
