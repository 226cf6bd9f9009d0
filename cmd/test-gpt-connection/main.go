package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/domain/workflow"
	"github.com/garyjia/budget-approval/internal/infrastructure/external/openai"
)

func main() {
	// Parse command line flags
	apiKey := flag.String("key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	baseURL := flag.String("base-url", "", "Override the OpenAI API base URL")
	model := flag.String("model", "gpt-4o-mini", "Chat model to query")
	promptsPath := flag.String("prompts", "", "Path to a prompts YAML file (built-in prompts when empty)")
	timeout := flag.Duration("timeout", 30*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// Initialize logger
	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Get API key from flag or environment
	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "ERROR: OPENAI_API_KEY not set and no --key flag provided\n")
		fmt.Fprintf(os.Stderr, "Usage: test-gpt-connection --key sk-... [--model gpt-4o-mini] [--prompts <path>] [--timeout 30s]\n")
		os.Exit(1)
	}

	fmt.Println("=== Insights Connection Test ===")
	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", *model)
	fmt.Printf("  API key length: %d chars\n", len(*apiKey))
	if len(*apiKey) >= 4 {
		fmt.Printf("  API key prefix: %s...\n", (*apiKey)[:4])
	}
	if *baseURL != "" {
		fmt.Printf("  Base URL: %s\n", *baseURL)
	}
	fmt.Printf("  Timeout: %v\n", *timeout)
	fmt.Println()

	prompts, err := openai.LoadPrompts(*promptsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load prompts: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Prompts loaded")

	generator := openai.NewInsightsGenerator(openai.Config{
		APIKey:  *apiKey,
		BaseURL: *baseURL,
		Model:   *model,
	}, prompts, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("Requesting insights for a sample request...")
	start := time.Now()
	result, err := generator.GenerateInsights(ctx, sampleInput(time.Now()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Insights request failed after %v: %v\n", time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}
	fmt.Printf("✓ Response received in %v\n\n", time.Since(start).Round(time.Millisecond))

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

// sampleInput builds a two-item request waiting on its second approval level
func sampleInput(now time.Time) *port.InsightsInput {
	submitted := now.Add(-2 * time.Hour)
	items := []*entity.LineItem{
		{ItemNumber: 1, EmployeeID: "E-1001", EmployeeName: "Ann Lee", Location: "Manila", HireDate: "2024-02-01",
			ItemType: entity.ItemTypeBonus, Amount: decimal.NewFromInt(1500)},
		{ItemNumber: 2, EmployeeID: "E-1002", EmployeeName: "Ben Cruz", Location: "Manila", HireDate: "2025-06-15",
			ItemType: entity.ItemTypeDeduction, Amount: decimal.NewFromInt(200), IsDeduction: true},
	}
	request := &entity.ApprovalRequest{
		RequestNumber:      fmt.Sprintf("REQ-%d-000001", now.Year()),
		Title:              "Quarterly retention bonus",
		OverallStatus:      entity.RequestStatusInProgress,
		TotalRequestAmount: entity.NetAmount(items),
		LineItemCount:      len(items),
		SubmittedDate:      &submitted,
	}
	budget := &entity.BudgetConfiguration{
		Name:         "Retention 2026",
		Currency:     "USD",
		MaxLimit:     decimal.NewFromInt(50000),
		ControlLimit: decimal.NewFromInt(1000),
		Location:     "Manila",
	}
	levels := []*entity.ApprovalLevelRecord{
		{ApprovalLevel: entity.LevelOne, LevelName: entity.LevelName(entity.LevelOne), Status: entity.LevelStatusApproved, ApprovedBy: "mgr-1", ApprovalDate: &submitted},
		{ApprovalLevel: entity.LevelTwo, LevelName: entity.LevelName(entity.LevelTwo), Status: entity.LevelStatusPending},
		{ApprovalLevel: entity.LevelThree, LevelName: entity.LevelName(entity.LevelThree), Status: entity.LevelStatusPending},
		{ApprovalLevel: entity.LevelPayroll, LevelName: entity.LevelName(entity.LevelPayroll), Status: entity.LevelStatusPending},
	}
	return &port.InsightsInput{
		Request:   request,
		Budget:    budget,
		LineItems: items,
		Levels:    levels,
		Stage:     workflow.ComputeStage(levels, request.OverallStatus).String(),
	}
}
