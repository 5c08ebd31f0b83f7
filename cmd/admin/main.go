package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/admin"
	"github.com/tendant/simple-publish/pkg/simplepublish/scan"
	memorystore "github.com/tendant/simple-publish/pkg/simplepublish/store/memory"
	pgstore "github.com/tendant/simple-publish/pkg/simplepublish/store/postgres"
)

const usage = `Simple Publish Admin CLI

A lightweight admin tool for the publish queue that only requires database access.

USAGE:
  admin <command> [options]

COMMANDS:
  list      List queue items with optional filtering
  count     Count queue items with optional filtering
  stats     Get aggregated queue statistics
  sweep     Recover stranded items and apply retention

ENVIRONMENT VARIABLES:
  DATABASE_URL      PostgreSQL connection string (required for postgres)
  DATABASE_TYPE     Database type: postgres or memory (default: memory)

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  # List all queue items
  admin list

  # List failed items for one target
  admin list --status=failed --target=twitter

  # List items out of retry budget
  admin list --exhausted

  # List with pagination
  admin list --limit=10 --offset=0

  # Count pending items
  admin count --status=pending

  # Get statistics
  admin stats

  # Requeue items stuck in publishing for over 30 minutes
  admin sweep --stuck-after=30m

  # Preview a sweep with a retention window
  admin sweep --retention=720h --dry-run

  # Output as JSON
  admin list --json
  admin stats --json

OPTIONS (for list/count/stats):
  --status=<status>        Filter by status (pending, ready, publishing, published, failed)
  --target=<name>          Filter by destination target
  --priority=<priority>    Filter by priority (low, normal, high, urgent)
  --kind=<kind>            Filter by content kind (post, article, image, video, story)
  --exhausted              Only items out of retry budget
  --with-errors            Only items carrying a publish error
  --limit=<n>              Maximum results (list only, default: 100)
  --offset=<n>             Pagination offset (list only, default: 0)
  --json                   Output as JSON

OPTIONS (for sweep):
  --stuck-after=<dur>      Requeue items stuck longer than this (default: 10m)
  --retention=<dur>        Purge terminal items older than this (default: keep forever)
  --dry-run                Report what a sweep would do without changing anything
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	// Check for help
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Println(usage)
		os.Exit(0)
	}

	store, err := createStore()
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	adminSvc := admin.New(store)

	// Execute command
	switch command {
	case "list":
		filters, useJSON := parseFilters(os.Args[2:])
		handleList(ctx, adminSvc, filters, useJSON)
	case "count":
		filters, useJSON := parseFilters(os.Args[2:])
		handleCount(ctx, adminSvc, filters, useJSON)
	case "stats":
		filters, useJSON := parseFilters(os.Args[2:])
		handleStats(ctx, adminSvc, filters, useJSON)
	case "sweep":
		handleSweep(ctx, store, os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func createStore() (simplepublish.ItemStore, error) {
	dbType := getEnv("DATABASE_TYPE", "memory")

	switch dbType {
	case "postgres":
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for postgres")
		}

		poolConfig, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database URL: %w", err)
		}

		pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		// Test connection
		if err := pool.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		return pgstore.NewWithPool(pool), nil

	case "memory":
		return memorystore.New(), nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s (use 'postgres' or 'memory')", dbType)
	}
}

func parseFilters(args []string) (admin.ItemFilters, bool) {
	filters := admin.ItemFilters{}
	useJSON := false

	// Default pagination
	defaultLimit := 100
	defaultOffset := 0
	filters.Limit = &defaultLimit
	filters.Offset = &defaultOffset

	for _, arg := range args {
		if arg == "--json" {
			useJSON = true
			continue
		}

		// Parse key=value flags
		key, value := parseFlag(arg)

		switch key {
		case "status":
			if status := simplepublish.ItemStatus(value); status.IsValid() {
				filters.Status = &status
			}
		case "target":
			filters.Target = &value
		case "priority":
			if priority := simplepublish.Priority(value); priority.IsValid() {
				filters.Priority = &priority
			}
		case "kind":
			if kind := simplepublish.ContentKind(value); kind.IsValid() {
				filters.Kind = &kind
			}
		case "exhausted":
			filters.OnlyExhausted = true
		case "with-errors":
			filters.OnlyWithErrors = true
		case "limit":
			if n, err := strconv.Atoi(value); err == nil {
				filters.Limit = &n
			}
		case "offset":
			if n, err := strconv.Atoi(value); err == nil {
				filters.Offset = &n
			}
		}
	}

	return filters, useJSON
}

func parseFlag(arg string) (string, string) {
	if len(arg) > 2 && arg[:2] == "--" {
		arg = arg[2:]
		for i, c := range arg {
			if c == '=' {
				return arg[:i], arg[i+1:]
			}
		}
		return arg, "true"
	}
	return "", ""
}

func handleList(ctx context.Context, adminSvc admin.AdminService, filters admin.ItemFilters, useJSON bool) {
	resp, err := adminSvc.ListAllItems(ctx, admin.ListItemsRequest{
		Filters: filters,
	})
	if err != nil {
		log.Fatalf("Failed to list items: %v", err)
	}

	if useJSON {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
		return
	}

	// Table output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSTATUS\tPRIORITY\tKIND\tTARGETS\tRETRIES\tSCHEDULED\tCREATED\n")

	for _, item := range resp.Items {
		scheduled := "-"
		if !item.ScheduledFor.IsZero() {
			scheduled = item.ScheduledFor.Format("2006-01-02 15:04:05")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			item.ID.String()[:8]+"...",
			item.Status,
			item.Priority,
			item.Payload.Kind,
			truncate(strings.Join(item.Targets, ","), 30),
			item.RetryCount,
			item.MaxRetries,
			scheduled,
			item.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d of %d", len(resp.Items), resp.TotalCount)
	if resp.HasMore {
		fmt.Printf(" (has more, use --offset=%d to continue)", resp.Offset+resp.Limit)
	}
	fmt.Println()
}

func handleCount(ctx context.Context, adminSvc admin.AdminService, filters admin.ItemFilters, useJSON bool) {
	resp, err := adminSvc.CountItems(ctx, admin.CountRequest{
		Filters: filters,
	})
	if err != nil {
		log.Fatalf("Failed to count items: %v", err)
	}

	if useJSON {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Total count: %d\n", resp.Count)
}

func handleStats(ctx context.Context, adminSvc admin.AdminService, filters admin.ItemFilters, useJSON bool) {
	resp, err := adminSvc.GetStatistics(ctx, admin.StatisticsRequest{
		Filters: filters,
		Options: admin.DefaultStatisticsOptions(),
	})
	if err != nil {
		log.Fatalf("Failed to get statistics: %v", err)
	}

	if useJSON {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
		return
	}

	stats := resp.Statistics

	fmt.Println("=== Queue Statistics ===")
	fmt.Printf("\nTotal Count: %d\n", stats.TotalCount)
	fmt.Printf("Out of Retry Budget: %d\n", stats.Exhausted)

	if len(stats.ByStatus) > 0 {
		fmt.Println("\nBy Status:")
		for status, count := range stats.ByStatus {
			fmt.Printf("  %-15s: %d\n", status, count)
		}
	}

	if len(stats.ByTarget) > 0 {
		fmt.Println("\nBy Target:")
		for target, count := range stats.ByTarget {
			fmt.Printf("  %-15s: %d\n", target, count)
		}
	}

	if len(stats.ByPriority) > 0 {
		fmt.Println("\nBy Priority:")
		for priority, count := range stats.ByPriority {
			fmt.Printf("  %-15s: %d\n", priority, count)
		}
	}

	if len(stats.ByKind) > 0 {
		fmt.Println("\nBy Kind:")
		for kind, count := range stats.ByKind {
			fmt.Printf("  %-15s: %d\n", kind, count)
		}
	}

	if stats.OldestItem != nil && stats.NewestItem != nil {
		fmt.Println("\nTime Range:")
		fmt.Printf("  Oldest: %s\n", stats.OldestItem.Format(time.RFC3339))
		fmt.Printf("  Newest: %s\n", stats.NewestItem.Format(time.RFC3339))
	}

	if stats.NextScheduled != nil {
		fmt.Printf("\nNext Scheduled: %s\n", stats.NextScheduled.Format(time.RFC3339))
	}

	fmt.Printf("\nComputed at: %s\n", resp.ComputedAt.Format(time.RFC3339))
}

func handleSweep(ctx context.Context, store simplepublish.ItemStore, args []string) {
	opts := scan.SweepOptions{}

	for _, arg := range args {
		key, value := parseFlag(arg)
		switch key {
		case "stuck-after":
			d, err := time.ParseDuration(value)
			if err != nil {
				log.Fatalf("Invalid --stuck-after duration: %v", err)
			}
			opts.StuckAfter = d
		case "retention":
			d, err := time.ParseDuration(value)
			if err != nil {
				log.Fatalf("Invalid --retention duration: %v", err)
			}
			opts.Retention = d
		case "dry-run":
			opts.DryRun = true
		}
	}

	scanner := scan.New(store)
	result, err := scanner.Sweep(ctx, opts)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	mode := ""
	if opts.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("Sweep complete%s: scanned=%d requeued=%d purged=%d\n",
		mode, result.Scanned, result.Requeued, result.Purged)
	if len(result.FailedIDs) > 0 {
		fmt.Printf("Failed to repair %d items:\n", len(result.FailedIDs))
		for _, id := range result.FailedIDs {
			fmt.Printf("  %s\n", id)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
