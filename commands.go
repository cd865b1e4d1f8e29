package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/clipforge-media/clipforge/internal/store"
)

// runMigrateCommand handles the 'migrate' subcommand dispatching.
func runMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		printMigrateHelp()
		os.Exit(1)
	}
	action := args[0]

	migrationsFS := store.MigrationsFS()

	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch action {
	case "up":
		handleMigrateUp(db, migrationsFS)

	case "down":
		handleMigrateDown(db, migrationsFS)

	case "status":
		handleMigrateStatus(db, migrationsFS)

	case "version":
		if len(args) < 2 {
			fatalf("Usage: clipforge migrate version <version_number>")
		}
		handleMigrateVersion(db, migrationsFS, args[1])

	case "force":
		if len(args) < 2 {
			fatalf("Usage: clipforge migrate force <version_number>")
		}
		handleMigrateForce(db, migrationsFS, args[1])

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		printMigrateHelp()
		os.Exit(1)
	}
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", v...)
	os.Exit(1)
}

func handleMigrateUp(db *store.DB, migrationsFS fs.FS) {
	fmt.Println("Running migrations...")
	if err := db.MigrateUp(migrationsFS); err != nil {
		fatalf("Migration up failed: %v", err)
	}
	version, dirty, _ := db.MigrateVersion(migrationsFS)
	fmt.Printf("All migrations applied. Current version: %d (dirty: %v)\n", version, dirty)
}

func handleMigrateDown(db *store.DB, migrationsFS fs.FS) {
	fmt.Println("Rolling back one migration...")
	if err := db.MigrateDown(migrationsFS); err != nil {
		fatalf("Migration down failed: %v", err)
	}
	version, dirty, _ := db.MigrateVersion(migrationsFS)
	fmt.Printf("Rolled back. Current version: %d (dirty: %v)\n", version, dirty)
}

func handleMigrateStatus(db *store.DB, migrationsFS fs.FS) {
	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		fatalf("Failed to get migration status: %v", err)
	}
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Dirty: %v\n", dirty)
	if dirty {
		fmt.Println()
		fmt.Println("WARNING: a migration failed mid-execution. Inspect the")
		fmt.Println("database, fix any issues, then run: clipforge migrate force <version>")
	}
}

func handleMigrateVersion(db *store.DB, migrationsFS fs.FS, versionStr string) {
	var target uint
	if _, err := fmt.Sscanf(versionStr, "%d", &target); err != nil {
		fatalf("Invalid version number: %s", versionStr)
	}
	fmt.Printf("Migrating to version %d...\n", target)
	if err := db.MigrateTo(migrationsFS, target); err != nil {
		fatalf("Migration to version %d failed: %v", target, err)
	}
	fmt.Printf("Migrated to version %d\n", target)
}

func handleMigrateForce(db *store.DB, migrationsFS fs.FS, versionStr string) {
	var force int
	if _, err := fmt.Sscanf(versionStr, "%d", &force); err != nil {
		fatalf("Invalid version number: %s", versionStr)
	}

	fmt.Printf("WARNING: forcing migration version to %d\n", force)
	fmt.Println("This should only be used to recover from a dirty migration state.")
	fmt.Print("Continue? [y/N]: ")
	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		fmt.Println("Aborted")
		return
	}

	if err := db.MigrateForce(migrationsFS, force); err != nil {
		fatalf("Force migration failed: %v", err)
	}
	fmt.Printf("Migration version forced to %d\n", force)
}

func printMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: clipforge migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  version <N>     Migrate to specific version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  clipforge migrate up")
	fmt.Println("  clipforge migrate status")
	fmt.Println("  clipforge -db-path clips.db migrate up")
}
