package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"jobtally/internal/normalize"
	"jobtally/internal/query"
)

var topN int

var topCmd = &cobra.Command{
	Use:   "top <company|tag|title|volume>",
	Short: "Show the leading keys of a dimension",
	Long:  "Prints the keys with the most listings along the given dimension, largest first. Volume keys are source|day pairs.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTop,
}

var (
	countTag     string
	countCompany string
	countTitle   string
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count listings matching a key",
	Long:  "Counts stored listings carrying the given tag, company, or title. Exactly one of --tag, --company, --title must be set.",
	RunE:  runCount,
}

var trendDays int

var trendCmd = &cobra.Command{
	Use:   "trend <tag>",
	Short: "Show a tag's daily posting counts",
	Long:  "Prints one row per UTC day of the window, including zero days, with a bar for scale.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrend,
}

func init() {
	topCmd.Flags().IntVarP(&topN, "limit", "n", 10, "number of rows (0 = all)")
	countCmd.Flags().StringVar(&countTag, "tag", "", "count listings with this tag")
	countCmd.Flags().StringVar(&countCompany, "company", "", "count listings at this company")
	countCmd.Flags().StringVar(&countTitle, "title", "", "count listings with this title")
	trendCmd.Flags().IntVar(&trendDays, "days", 30, "window size in days")

	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(trendCmd)
}

// fold applies the same case and whitespace folding the normalizer uses, so
// query arguments match stored keys.
func fold(s string) string {
	return strings.ToLower(normalize.CleanText(s))
}

func dimensionFor(name string) (query.Dimension, bool) {
	switch name {
	case "company":
		return query.ByCompany, true
	case "tag":
		return query.ByTag, true
	case "title":
		return query.ByTitle, true
	case "volume":
		return query.ByVolume, true
	default:
		return "", false
	}
}

func runTop(cmd *cobra.Command, args []string) error {
	dim, ok := dimensionFor(args[0])
	if !ok {
		return fmt.Errorf("unknown dimension %q (want company, tag, title, or volume)", args[0])
	}

	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	_, engine, _, closeStore, err := openPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to open pipeline", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	entries, err := engine.TopBy(context.Background(), dim, topN)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no listings stored, run an ingestion first")
		return nil
	}

	heading := strings.ToUpper(args[0][:1]) + args[0][1:]
	fmt.Printf("%-40s %s\n", heading, "Listings")
	fmt.Println(strings.Repeat("─", 49))
	for _, e := range entries {
		fmt.Printf("%-40s %d\n", e.Key, e.Count)
	}
	return nil
}

func runCount(cmd *cobra.Command, args []string) error {
	var dim query.Dimension
	var key string
	set := 0
	if countTag != "" {
		dim, key = query.ByTag, fold(countTag)
		set++
	}
	if countCompany != "" {
		dim, key = query.ByCompany, fold(countCompany)
		set++
	}
	if countTitle != "" {
		dim, key = query.ByTitle, fold(countTitle)
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of --tag, --company, --title must be set")
	}

	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	_, engine, _, closeStore, err := openPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to open pipeline", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	n, err := engine.CountMatching(context.Background(), dim, func(k string) bool { return k == key })
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", n)
	return nil
}

func runTrend(cmd *cobra.Command, args []string) error {
	if trendDays <= 0 {
		return fmt.Errorf("--days must be positive, got %d", trendDays)
	}
	tag := fold(args[0])

	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	_, engine, _, closeStore, err := openPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to open pipeline", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	window := time.Duration(trendDays) * 24 * time.Hour
	buckets, err := engine.Trend(context.Background(), tag, window, time.Now())
	if err != nil {
		return err
	}

	peak := 0
	for _, b := range buckets {
		if b.Count > peak {
			peak = b.Count
		}
	}

	fmt.Printf("%q over the last %d days:\n", tag, trendDays)
	for _, b := range buckets {
		bar := ""
		if peak > 0 {
			// Scale bars to 40 columns at the peak.
			bar = strings.Repeat("█", b.Count*40/peak)
		}
		fmt.Printf("%s %4d %s\n", b.Day, b.Count, bar)
	}
	return nil
}
