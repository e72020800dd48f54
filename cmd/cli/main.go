package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/app"
	"github.com/dvloznov/savings-autopilot/internal/config"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
	"github.com/dvloznov/savings-autopilot/internal/logger"
)

func main() {
	log := logger.New("savings-cli")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-rule":
		runCreateRule(log)
	case "list-rules":
		runListRules(log)
	case "history":
		runHistory(log)
	case "run-batch":
		runBatch(log)
	case "detect-income":
		runDetectIncome(log)
	case "surplus":
		runSurplus(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Savings Autopilot CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  create-rule    Create a new automated transfer rule")
	fmt.Println("  list-rules     List transfer rules")
	fmt.Println("  history        Show transfer execution history")
	fmt.Println("  run-batch      Trigger one batch sweep")
	fmt.Println("  detect-income  Detect recurring income for an account")
	fmt.Println("  surplus        Calculate the transferable surplus for an account")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// build loads configuration and wires every backend for one command run.
func build(log zerolog.Logger) (*app.Deps, *config.Config) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	deps, err := app.Build(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	return deps, cfg
}

func runCreateRule(log zerolog.Logger) {
	fs := flag.NewFlagSet("create-rule", flag.ExitOnError)
	goalID := fs.String("goal", "", "Goal ID the rule feeds")
	userID := fs.String("user", "", "Owning user ID")
	sourceID := fs.String("source", "", "Source account ID")
	targetID := fs.String("target", "", "Target subaccount ID")
	transferType := fs.String("type", "FIXED_AMOUNT", "Transfer type: FIXED_AMOUNT, PERCENTAGE_INCOME, INCOME_BASED, SMART_SURPLUS")
	amount := fs.Float64("amount", 0, "Amount (or percentage for percentage types)")
	frequency := fs.String("frequency", "MONTHLY", "Frequency: DAILY, WEEKLY, BIWEEKLY, MONTHLY, QUARTERLY")
	start := fs.String("start", "", "Start date (YYYY-MM-DD, defaults to today)")
	maxPerPeriod := fs.Float64("cap", 0, "Maximum transfer per period (0 = uncapped)")
	fs.Parse(os.Args[2:])

	if *goalID == "" || *userID == "" || *sourceID == "" || *targetID == "" {
		log.Fatal().Msg("Usage: cli create-rule -goal ID -user ID -source ID -target ID -amount N")
	}

	startDate := time.Now().Truncate(24 * time.Hour)
	if *start != "" {
		parsed, err := time.Parse("2006-01-02", *start)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid start date")
		}
		startDate = parsed
	}

	tt := domain.TransferType(*transferType)
	req := &domain.CreateRuleRequest{
		GoalID:                    *goalID,
		UserID:                    *userID,
		SourceAccountID:           *sourceID,
		TargetSubaccountID:        *targetID,
		TransferType:              tt,
		Amount:                    *amount,
		Frequency:                 domain.Frequency(*frequency),
		StartDate:                 startDate,
		MaximumTransferPerPeriod:  *maxPerPeriod,
		IncomeDetectionEnabled:    tt == domain.TransferTypePercentageIncome || tt == domain.TransferTypeIncomeBased,
		SurplusCalculationEnabled: tt == domain.TransferTypeSmartSurplus,
	}

	rule, err := domain.NewTransferRule(req, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid rule")
	}

	deps, _ := build(log)
	defer deps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := deps.Rules.CreateRule(ctx, rule); err != nil {
		log.Fatal().Err(err).Msg("Failed to create rule")
	}

	fmt.Printf("Created rule %s (%s %s, next execution %s)\n",
		rule.ID, rule.TransferType, rule.Frequency, rule.NextExecutionDate.Format("2006-01-02"))
}

func runListRules(log zerolog.Logger) {
	fs := flag.NewFlagSet("list-rules", flag.ExitOnError)
	userID := fs.String("user", "", "Filter by user ID")
	limit := fs.Int("limit", 50, "Maximum rules to list")
	fs.Parse(os.Args[2:])

	deps, _ := build(log)
	defer deps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rules, err := deps.Rules.ListRules(ctx, *userID, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list rules")
	}

	fmt.Printf("\n=== Transfer Rules (%d) ===\n", len(rules))
	for _, rule := range rules {
		state := "active"
		if !rule.IsActive {
			state = "inactive"
		}
		fmt.Printf("\n%s [%s]\n", rule.ID, state)
		fmt.Printf("   Type:      %s %.2f %s\n", rule.TransferType, rule.Amount, rule.Frequency)
		fmt.Printf("   User/Goal: %s -> %s\n", rule.UserID, rule.GoalID)
		fmt.Printf("   Next run:  %s\n", rule.NextExecutionDate.Format("2006-01-02"))
		if rule.LastError != "" {
			fmt.Printf("   Last err:  %s (retry %d/%d)\n", rule.LastError, rule.RetryCount, rule.MaxRetries)
		}
	}
	fmt.Println()
}

func runHistory(log zerolog.Logger) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	userID := fs.String("user", "", "Filter by user ID")
	ruleID := fs.String("rule", "", "Filter by rule ID")
	limit := fs.Int("limit", 20, "Maximum records to list")
	fs.Parse(os.Args[2:])

	deps, _ := build(log)
	defer deps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	records, err := deps.Records.QueryHistory(ctx, engine.HistoryFilter{
		UserID: *userID,
		RuleID: *ruleID,
		Limit:  *limit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query history")
	}

	fmt.Printf("\n=== Transfer History (%d) ===\n", len(records))
	for _, rec := range records {
		fmt.Printf("\n%s  %-10s %.2f\n", rec.CreatedAt.Format("2006-01-02 15:04"), rec.Status, rec.Amount)
		fmt.Printf("   Rule: %s\n", rec.RuleID)
		if rec.ExternalTransactionID != "" {
			fmt.Printf("   Txn:  %s\n", rec.ExternalTransactionID)
		}
		if rec.ErrorMessage != "" {
			fmt.Printf("   Err:  %s\n", rec.ErrorMessage)
		}
	}
	fmt.Println()
}

func runBatch(log zerolog.Logger) {
	fs := flag.NewFlagSet("run-batch", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	deps, _ := build(log)
	defer deps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := deps.Batch.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch sweep failed")
	}

	fmt.Println("\n=== Batch Report ===")
	fmt.Printf("Processed:   %d\n", report.Processed)
	fmt.Printf("Succeeded:   %d\n", report.Succeeded)
	fmt.Printf("Failed:      %d\n", report.Failed)
	fmt.Printf("Skipped:     %d\n", report.Skipped)
	fmt.Printf("Total moved: %.2f\n", report.TotalMoved)
}

func runDetectIncome(log zerolog.Logger) {
	fs := flag.NewFlagSet("detect-income", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	accountID := fs.String("account", "", "Source account ID")
	window := fs.Int("window", 0, "Analysis window in days (defaults to configuration)")
	fs.Parse(os.Args[2:])

	if *userID == "" || *accountID == "" {
		log.Fatal().Msg("Usage: cli detect-income -user ID -account ID")
	}

	deps, cfg := build(log)
	defer deps.Close()

	windowDays := cfg.AnalysisWindowDays
	if *window > 0 {
		windowDays = *window
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	txs, err := deps.Transactions.GetAccountTransactions(ctx, *userID, *accountID, time.Now().AddDate(0, 0, -windowDays))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch transactions")
	}

	analysis, err := deps.Detector.Detect(txs)
	if err != nil {
		log.Fatal().Err(err).Msg("No recurring income detected")
	}

	fmt.Printf("\n=== Income Analysis (%d day window) ===\n", windowDays)
	fmt.Printf("Monthly income: %.2f (confidence %.2f)\n", analysis.MonthlyIncome, analysis.Confidence)
	for i, p := range analysis.Patterns {
		fmt.Printf("\n%d. %s (%s)\n", i+1, p.SourceDescription, p.IncomeType)
		fmt.Printf("   Amount:     %.2f every %.1f days\n", p.Amount, p.FrequencyDays)
		fmt.Printf("   Seen:       %d times, last %s\n", p.OccurrenceCount, p.LastOccurrence.Format("2006-01-02"))
		fmt.Printf("   Next due:   %s\n", p.NextExpectedDate.Format("2006-01-02"))
		fmt.Printf("   Confidence: %.2f\n", p.ConfidenceScore)
	}
	fmt.Println()
}

func runSurplus(log zerolog.Logger) {
	fs := flag.NewFlagSet("surplus", flag.ExitOnError)
	userID := fs.String("user", "", "User ID")
	accountID := fs.String("account", "", "Source account ID")
	window := fs.Int("window", 0, "Analysis window in days (defaults to configuration)")
	buffer := fs.Float64("buffer", -1, "Safety buffer percent (defaults to configuration)")
	fs.Parse(os.Args[2:])

	if *userID == "" || *accountID == "" {
		log.Fatal().Msg("Usage: cli surplus -user ID -account ID")
	}

	deps, cfg := build(log)
	defer deps.Close()

	windowDays := cfg.AnalysisWindowDays
	if *window > 0 {
		windowDays = *window
	}
	bufferPercent := cfg.SafetyBufferPercent
	if *buffer >= 0 {
		bufferPercent = *buffer
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	txs, err := deps.Transactions.GetAccountTransactions(ctx, *userID, *accountID, time.Now().AddDate(0, 0, -windowDays))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch transactions")
	}

	calc, err := deps.Surplus.Calculate(txs, bufferPercent, windowDays)
	if err != nil {
		log.Fatal().Err(err).Msg("Surplus calculation failed")
	}

	fmt.Printf("\n=== Surplus Analysis (%d day window) ===\n", windowDays)
	fmt.Printf("Monthly income:       %.2f\n", calc.TotalIncome)
	fmt.Printf("Essential spending:   %.2f\n", calc.EssentialExpenses)
	fmt.Printf("Discretionary:        %.2f\n", calc.DiscretionaryExpenses)
	fmt.Printf("Safety buffer:        %.2f\n", calc.SafetyBuffer)
	fmt.Printf("Surplus:              %.2f\n", calc.CalculatedSurplus)
	fmt.Printf("Recommended transfer: %.2f (confidence %.2f)\n", calc.RecommendedTransferAmount, calc.ConfidenceLevel)
}
