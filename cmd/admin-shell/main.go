package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/admin"
	"github.com/tendant/simple-publish/pkg/simplepublish/config"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	// Load server configuration
	serverConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Build service and store
	svc, store, err := serverConfig.Build(context.Background())
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}

	// Start admin shell
	shell := NewAdminShell(svc, admin.New(store))
	shell.Run()
}

// AdminShell provides an interactive admin interface over the publish queue
type AdminShell struct {
	service  simplepublish.Service
	adminSvc admin.AdminService
}

// NewAdminShell creates a new admin shell
func NewAdminShell(service simplepublish.Service, adminSvc admin.AdminService) *AdminShell {
	return &AdminShell{
		service:  service,
		adminSvc: adminSvc,
	}
}

// Run starts the interactive admin shell
func (s *AdminShell) Run() {
	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	fmt.Println("=== Simple Publish Admin Shell ===")
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	for {
		fmt.Print("admin> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		command := parts[0]

		switch command {
		case "help", "h":
			s.showHelp()
		case "exit", "quit", "q":
			fmt.Println("Goodbye!")
			return
		case "list", "ls":
			s.handleList(ctx, parts[1:])
		case "count":
			s.handleCount(ctx, parts[1:])
		case "stats":
			s.handleStats(ctx)
		case "status":
			s.handleStatus(ctx)
		case "get":
			s.handleGet(ctx, parts[1:])
		case "publish":
			s.handlePublish(ctx, parts[1:])
		case "test":
			s.handleTest(ctx, parts[1:])
		case "tick":
			s.handleTick(ctx)
		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", command)
		}
	}
}

func (s *AdminShell) showHelp() {
	help := `
Available Commands:

  list, ls              List queue items
  list <status>         List items in a specific status

  count                 Count all queue items
  count <status>        Count items in a specific status

  stats                 Show aggregated queue statistics
  status                Show queue depth, targets, and breaker states

  get <item-id>         Get details for a specific item
  publish <item-id>     Publish a specific item immediately
  test <item-id>        Run readiness checks against each target
  tick                  Promote due scheduled items

  help, h               Show this help message
  exit, quit, q         Exit admin shell

Examples:
  list
  list failed
  count pending
  stats
  get 550e8400-e29b-41d4-a716-446655440000
  publish 550e8400-e29b-41d4-a716-446655440000
`
	fmt.Println(help)
}

func parseStatusArg(args []string) (*simplepublish.ItemStatus, bool) {
	if len(args) == 0 {
		return nil, true
	}
	status := simplepublish.ItemStatus(args[0])
	if !status.IsValid() {
		fmt.Printf("Invalid status: %s\n", args[0])
		return nil, false
	}
	return &status, true
}

func (s *AdminShell) handleList(ctx context.Context, args []string) {
	filters := admin.ItemFilters{}
	limit := 20
	filters.Limit = &limit

	status, ok := parseStatusArg(args)
	if !ok {
		return
	}
	filters.Status = status

	resp, err := s.adminSvc.ListAllItems(ctx, admin.ListItemsRequest{
		Filters: filters,
	})
	if err != nil {
		fmt.Printf("Error listing items: %v\n", err)
		return
	}

	if len(resp.Items) == 0 {
		fmt.Println("No items found")
		return
	}

	fmt.Printf("%-36s  %-10s  %-8s  %-8s  %-7s  %s\n", "ID", "Status", "Priority", "Kind", "Retries", "Targets")
	fmt.Println(strings.Repeat("-", 100))
	for _, item := range resp.Items {
		targets := strings.Join(item.Targets, ",")
		if len(targets) > 25 {
			targets = targets[:22] + "..."
		}
		fmt.Printf("%-36s  %-10s  %-8s  %-8s  %d/%d      %s\n",
			item.ID.String(),
			item.Status,
			item.Priority,
			item.Payload.Kind,
			item.RetryCount,
			item.MaxRetries,
			targets,
		)
	}
	fmt.Printf("\nTotal: %d", len(resp.Items))
	if resp.HasMore {
		fmt.Printf(" (showing first %d, use the admin CLI for pagination)", limit)
	}
	fmt.Println()
}

func (s *AdminShell) handleCount(ctx context.Context, args []string) {
	filters := admin.ItemFilters{}

	status, ok := parseStatusArg(args)
	if !ok {
		return
	}
	filters.Status = status

	resp, err := s.adminSvc.CountItems(ctx, admin.CountRequest{
		Filters: filters,
	})
	if err != nil {
		fmt.Printf("Error counting items: %v\n", err)
		return
	}

	fmt.Printf("Total count: %d\n", resp.Count)
}

func (s *AdminShell) handleStats(ctx context.Context) {
	resp, err := s.adminSvc.GetStatistics(ctx, admin.StatisticsRequest{
		Options: admin.DefaultStatisticsOptions(),
	})
	if err != nil {
		fmt.Printf("Error getting statistics: %v\n", err)
		return
	}

	stats := resp.Statistics
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
	fmt.Println()
}

func (s *AdminShell) handleStatus(ctx context.Context) {
	report, err := s.service.Status(ctx)
	if err != nil {
		fmt.Printf("Error getting status: %v\n", err)
		return
	}

	fmt.Printf("\nQueue Size: %d\n", report.QueueSize)
	fmt.Printf("Targets: %s\n", strings.Join(report.Targets, ", "))

	if len(report.Items) > 0 {
		fmt.Println("\nItems:")
		for status, count := range report.Items {
			fmt.Printf("  %-15s: %d\n", status, count)
		}
	}

	if len(report.Breakers) > 0 {
		fmt.Println("\nBreakers:")
		for _, breaker := range report.Breakers {
			fmt.Printf("  %-15s: %s (consecutive failures: %d)\n",
				breaker.Target, breaker.State, breaker.ConsecutiveFailures)
		}
	}
	fmt.Println()
}

func (s *AdminShell) handleGet(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: get <item-id>")
		return
	}

	itemID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Printf("Invalid item ID: %s\n", args[0])
		return
	}

	item, err := s.service.Item(ctx, itemID)
	if err != nil {
		fmt.Printf("Error getting item: %v\n", err)
		return
	}

	// Pretty print as JSON
	data, _ := json.MarshalIndent(item, "", "  ")
	fmt.Println(string(data))
}

func (s *AdminShell) handlePublish(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: publish <item-id>")
		return
	}

	itemID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Printf("Invalid item ID: %s\n", args[0])
		return
	}

	result, err := s.service.PublishNow(ctx, itemID)
	if err != nil {
		fmt.Printf("Error publishing item: %v\n", err)
		return
	}

	fmt.Printf("Published: succeeded=%d failed=%d requeued=%d elapsed=%s\n",
		result.Succeeded, result.Failed, result.Requeued, result.Elapsed)
}

func (s *AdminShell) handleTest(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: test <item-id>")
		return
	}

	itemID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Printf("Invalid item ID: %s\n", args[0])
		return
	}

	results, err := s.service.TestReadiness(ctx, itemID)
	if err != nil {
		fmt.Printf("Error testing item: %v\n", err)
		return
	}

	for target, result := range results {
		verdict := "compatible"
		if !result.Compatible {
			verdict = "incompatible"
		}
		fmt.Printf("%-15s: score=%d %s\n", target, result.Score, verdict)
		for _, issue := range result.Issues {
			fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Field, issue.Message)
		}
	}
}

func (s *AdminShell) handleTick(ctx context.Context) {
	result, err := s.service.Tick(ctx)
	if err != nil {
		fmt.Printf("Error running tick: %v\n", err)
		return
	}

	fmt.Printf("Tick complete: checked=%d promoted=%d held=%d\n",
		result.Checked, result.Promoted, result.Held)
}
