package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanShishkin/clamjuice/internal/config"
	"github.com/IvanShishkin/clamjuice/internal/core"
	"github.com/IvanShishkin/clamjuice/internal/history"
	"github.com/IvanShishkin/clamjuice/internal/logging"
	"github.com/IvanShishkin/clamjuice/internal/profiles"
	"github.com/IvanShishkin/clamjuice/internal/report"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorOrange = "\033[38;5;208m"
	colorYellow = "\033[38;5;220m"
	colorGray   = "\033[38;5;245m"
	colorCyan   = "\033[36m"
)

var (
	version    = core.Version
	verbose    bool
	configFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clamjuice",
		Short: "ClamJuice - ClamAV signature database filter",
		Long: `Reduce ClamAV signature databases to the platforms and file types a host
actually needs, producing a smaller database that loads faster and uses less memory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			printMainBanner()
			cmd.Help()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $HOME/.clamjuice.yaml)")

	// Disable built-in help command
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Add commands
	rootCmd.AddCommand(filterCmd())
	rootCmd.AddCommand(profilesCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(helpCmd())

	return rootCmd
}

// printMainBanner prints the main banner
func printMainBanner() {
	fmt.Println()
	fmt.Printf("%s%sCLAMJUICE%s\n", colorBold, colorOrange, colorReset)
	fmt.Printf("%sClamAV Signature Filter v%s%s\n", colorGray, version, colorReset)
	fmt.Println()
}

// filterFlags holds the filter command line options
type filterFlags struct {
	input            string
	output           string
	profile          string
	excludePlatforms []string
	includePlatforms []string
	ndbTypes         []int
	excludeTypes     []string
	alwaysKeep       []string
	alwaysKeepRegex  []string
	workers          int
	reportFormat     string
	reportFile       string
	profilesPath     string
	historyDB        string
	noHistory        bool
	skipUnchanged    bool
	sigtool          string
	logFile          string
}

// applyFlags overrides config values with the flags that were given
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *filterFlags) {
	changed := cmd.Flags().Changed

	if f.profile != "" {
		cfg.Profile = f.profile
	}
	if len(f.excludePlatforms) > 0 {
		cfg.ExcludePlatforms = f.excludePlatforms
	}
	if len(f.includePlatforms) > 0 {
		cfg.IncludePlatforms = f.includePlatforms
	}
	if len(f.ndbTypes) > 0 {
		cfg.NDBTypes = f.ndbTypes
	}
	if len(f.excludeTypes) > 0 {
		cfg.ExcludeTypes = f.excludeTypes
	}
	if changed("always-keep") {
		cfg.AlwaysKeep = f.alwaysKeep
	}
	if len(f.alwaysKeepRegex) > 0 {
		cfg.AlwaysKeepRegex = f.alwaysKeepRegex
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if f.reportFormat != "" {
		cfg.ReportFormat = f.reportFormat
	}
	if f.reportFile != "" {
		cfg.OutputFile = f.reportFile
	}
	if f.profilesPath != "" {
		cfg.ProfilesPath = f.profilesPath
	}
	if f.historyDB != "" {
		cfg.HistoryDB = f.historyDB
	}
	if f.noHistory {
		cfg.HistoryDB = ""
	}
	if changed("skip-unchanged") {
		cfg.SkipUnchanged = f.skipUnchanged
	}
	if f.sigtool != "" {
		cfg.SigtoolPath = f.sigtool
	}
	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}
}

// filterCmd creates the filter command
func filterCmd() *cobra.Command {
	f := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter a signature database",
		Long: `Unpack a CVD/CLD container (or copy a database directory) and write a filtered
copy of every signature database to the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate flags before doing anything
			if err := validateFlags(f); err != nil {
				fmt.Printf("\n  %s✗ Invalid parameter:%s %s\n\n", colorRed, colorReset, err.Error())
				return err
			}

			// Load configuration
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, f)

			log, err := logging.New(logging.Options{Verbose: verbose, File: cfg.LogFile})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
				return err
			}
			defer log.Close()
			if cfg.ConfigFile != "" {
				log.Debug("Loaded config", zap.String("file", cfg.ConfigFile))
			}

			// Print banner
			printBanner(f.input, f.output, cfg.Profile)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := core.NewRunner(cfg, log.Logger)

			// Set up progress callback
			lastPhase := ""
			runner.SetProgressCallback(func(phase string, current, total int, message string) {
				// Clear previous line if same phase
				if lastPhase == phase && phase == "filter" && !verbose {
					fmt.Print("\033[1A\033[K")
				}
				lastPhase = phase

				switch phase {
				case "extract":
					fmt.Printf("  %s%s%s\n", colorGray, message, colorReset)
				case "filter":
					if total > 0 {
						pct := float64(current) / float64(total) * 100
						barWidth := 30
						filled := int(float64(barWidth) * float64(current) / float64(total))
						bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
						fmt.Printf("  %sFiltering:%s [%s%s%s] %s%.1f%%%s (%d/%d) %s%s%s\n",
							colorGray, colorReset, colorOrange, bar, colorReset, colorOrange, pct, colorReset,
							current, total, colorGray, message, colorReset)
					}
				}
			})

			results, err := runner.Run(ctx, f.input, f.output)
			if err != nil {
				log.Error("Filter run failed", zap.Error(err))
				return err
			}

			// Print report path if generated
			if results.ReportPath != "" {
				fmt.Printf("  %sReport:%s    %s%s%s\n", colorGray, colorReset, colorOrange, results.ReportPath, colorReset)
				fmt.Println()
			}

			return nil
		},
	}

	// Flags
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Input CVD/CLD file, signature file or database directory")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory for the filtered database")
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "Use a predefined filtering profile")
	cmd.Flags().StringSliceVarP(&f.excludePlatforms, "exclude-platforms", "e", nil, "Platforms to EXCLUDE (comma-separated, e.g. Win,Doc,Osx)")
	cmd.Flags().StringSliceVar(&f.includePlatforms, "include-platforms", nil, "Platforms to INCLUDE, excludes all others (comma-separated)")
	cmd.Flags().IntSliceVar(&f.ndbTypes, "ndb-types", nil, "NDB target types to keep (comma-separated, e.g. 0,6,7)")
	cmd.Flags().StringSliceVar(&f.excludeTypes, "exclude-types", nil, "Signature formats to remove entirely (comma-separated, e.g. mdb,hsb)")
	cmd.Flags().StringSliceVar(&f.alwaysKeep, "always-keep", nil, "Name markers that are never filtered (default: eicar)")
	cmd.Flags().StringSliceVar(&f.alwaysKeepRegex, "always-keep-regex", nil, "Name patterns that are never filtered")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Number of files processed in parallel (default: CPU cores)")
	cmd.Flags().StringVarP(&f.reportFormat, "report", "r", "", "Report format: text, json, md (default: console output)")
	cmd.Flags().StringVar(&f.reportFile, "report-file", "", "Report file path")
	cmd.Flags().StringVar(&f.profilesPath, "profiles-path", "", "Additional profile YAML file or directory")
	cmd.Flags().StringVar(&f.historyDB, "history-db", "", "Run history database (default: ~/.clamjuice/history.db)")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record the run")
	cmd.Flags().BoolVar(&f.skipUnchanged, "skip-unchanged", false, "Skip the run when input and policy match the last run")
	cmd.Flags().StringVar(&f.sigtool, "sigtool", "", "Path to the sigtool binary")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Write a rotating log file")

	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")

	return cmd
}

// validateFlags checks flag values that do not need the configuration
func validateFlags(f *filterFlags) error {
	// Validate report format
	if f.reportFormat != "" {
		validFormats := []string{"text", "json", "md", "markdown"}
		if !contains(validFormats, f.reportFormat) {
			return fmt.Errorf("--report must be one of: %s (got: %s)", strings.Join(validFormats, ", "), f.reportFormat)
		}
	}

	if len(f.includePlatforms) > 0 && len(f.excludePlatforms) > 0 {
		return fmt.Errorf("cannot specify both --exclude-platforms and --include-platforms")
	}

	if f.workers < 0 {
		return fmt.Errorf("--workers must not be negative (got: %d)", f.workers)
	}

	if f.noHistory && f.skipUnchanged {
		return fmt.Errorf("--skip-unchanged needs the run history, remove --no-history")
	}

	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// printBanner prints the startup banner
func printBanner(input, output, profile string) {
	printMainBanner()
	fmt.Printf("  %sInput:%s     %s\n", colorGray, colorReset, input)
	fmt.Printf("  %sOutput:%s    %s\n", colorGray, colorReset, output)
	if profile != "" {
		fmt.Printf("  %sProfile:%s   %s\n", colorGray, colorReset, profile)
	}
	fmt.Println()
}

// profilesCmd creates the profiles command
func profilesCmd() *cobra.Command {
	var profilesPath string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List available filtering profiles",
		Long:  `Display the built-in filtering profiles and any loaded from --profiles-path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if profilesPath != "" {
				cfg.ProfilesPath = profilesPath
			}

			table, err := profiles.LoadTable(cfg.ProfilesPath)
			if err != nil {
				return err
			}

			fmt.Printf("%s%sAvailable Filtering Profiles%s\n\n", colorBold, colorOrange, colorReset)
			for _, p := range table.Profiles() {
				fmt.Printf("  %s%s%s\n", colorBold, p.Name, colorReset)
				if p.Description != "" {
					fmt.Printf("    %sDescription:%s %s\n", colorGray, colorReset, p.Description)
				}
				if len(p.ExcludePlatforms) > 0 {
					fmt.Printf("    %sExcludes:%s    %s\n", colorGray, colorReset, strings.Join(p.ExcludePlatforms, ", "))
				}
				if len(p.IncludePlatforms) > 0 {
					fmt.Printf("    %sIncludes:%s    %s\n", colorGray, colorReset, strings.Join(p.IncludePlatforms, ", "))
				}
				if len(p.ExcludeTypes) > 0 {
					fmt.Printf("    %sExcluded file types:%s %s\n", colorGray, colorReset, strings.Join(p.ExcludeTypes, ", "))
				}
				if len(p.NDBTypes) > 0 {
					fmt.Printf("    %sNDB types:%s   %s\n", colorGray, colorReset, joinInts(p.NDBTypes))
				}
				fmt.Println()
			}

			fmt.Printf("%s%sKnown platform prefixes%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  %s\n\n", strings.Join(table.Platforms(), ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&profilesPath, "profiles-path", "", "Additional profile YAML file or directory")
	return cmd
}

// historyCmd creates the history command
func historyCmd() *cobra.Command {
	var (
		limit     int
		historyDB string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent filter runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if historyDB != "" {
				cfg.HistoryDB = historyDB
			}
			if cfg.HistoryDB == "" {
				return fmt.Errorf("run history is disabled (history_db is empty)")
			}

			db, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Printf("  %sNo runs recorded in %s%s\n", colorGray, cfg.HistoryDB, colorReset)
				return nil
			}

			for _, r := range runs {
				profile := r.Profile
				if profile == "" {
					profile = "custom"
				}
				fmt.Printf("  %s#%d%s %s  %s%s%s\n", colorBold, r.ID, colorReset,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), colorCyan, profile, colorReset)
				fmt.Printf("      %s%s -> %s%s\n", colorGray, r.InputPath, r.OutputPath, colorReset)
				fmt.Printf("      kept %s of %s signatures, %s -> %s, %s",
					humanize.Comma(int64(r.Kept)), humanize.Comma(int64(r.Read)),
					humanize.Bytes(uint64(r.SizeBefore)), humanize.Bytes(uint64(r.SizeAfter)),
					report.FormatDuration(r.Duration))
				if r.Malformed > 0 {
					fmt.Printf(", %s%d malformed%s", colorYellow, r.Malformed, colorReset)
				}
				fmt.Printf(" (%s)\n", humanize.Time(r.StartedAt))
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "Run history database")
	return cmd
}

// helpCmd creates a detailed help command
func helpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "help",
		Short: "Show detailed help and documentation",
		Long:  `Display complete documentation including all commands, flags, and examples.`,
		Run: func(cmd *cobra.Command, args []string) {
			printMainBanner()

			fmt.Printf("%s%sABOUT%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  ClamJuice removes signatures for platforms and file types a host never\n")
			fmt.Printf("  sees from ClamAV databases (NDB, HDB, MDB, HSB, LDB). Comments and\n")
			fmt.Printf("  EICAR test signatures are always kept.\n\n")

			fmt.Printf("%s%sCOMMANDS%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  %sfilter%s            Filter a signature database\n", colorBold, colorReset)
			fmt.Printf("  %sprofiles%s          List available filtering profiles\n", colorBold, colorReset)
			fmt.Printf("  %shistory%s           Show recent filter runs\n", colorBold, colorReset)

			fmt.Printf("\n%s%sFILTER FLAGS%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  %s-i, --input%s <path>         CVD/CLD file, signature file or directory\n", colorBold, colorReset)
			fmt.Printf("  %s-o, --output%s <dir>         Output directory\n", colorBold, colorReset)
			fmt.Printf("  %s-p, --profile%s <name>       %slinux-only%s, %sembedded%s, %smail-server%s, %sweb-server%s\n",
				colorBold, colorReset, colorCyan, colorReset, colorCyan, colorReset, colorCyan, colorReset, colorCyan, colorReset)
			fmt.Printf("  %s-e, --exclude-platforms%s    Platforms to exclude (e.g. Win,Doc,Osx)\n", colorBold, colorReset)
			fmt.Printf("  %s--include-platforms%s        Platforms to keep, all others are removed\n", colorBold, colorReset)
			fmt.Printf("  %s--ndb-types%s                NDB target types to keep (0 any, 6 ELF, 7 ASCII, ...)\n", colorBold, colorReset)
			fmt.Printf("  %s--exclude-types%s            Formats to remove entirely (e.g. mdb,hsb)\n", colorBold, colorReset)
			fmt.Printf("  %s--always-keep%s              Name markers never filtered (default: eicar)\n", colorBold, colorReset)
			fmt.Printf("  %s--skip-unchanged%s           Skip when input and policy match the last run\n", colorBold, colorReset)
			fmt.Printf("  %s--workers%s <n>              Files processed in parallel\n", colorBold, colorReset)

			fmt.Printf("\n%s%sREPORT FLAGS%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  %s-r, --report%s <fmt>         Report format: %stext%s, %sjson%s, %smd%s\n",
				colorBold, colorReset, colorCyan, colorReset, colorCyan, colorReset, colorCyan, colorReset)
			fmt.Printf("  %s--report-file%s <file>       Report file path\n", colorBold, colorReset)

			fmt.Printf("\n%s%sGLOBAL FLAGS%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  %s-v, --verbose%s              Enable verbose logging\n", colorBold, colorReset)
			fmt.Printf("  %s--config%s <file>            Config file (default: $HOME/.clamjuice.yaml)\n", colorBold, colorReset)
			fmt.Printf("  %s--version%s                  Show version\n", colorBold, colorReset)

			fmt.Printf("\n%s%sEXAMPLES%s\n\n", colorBold, colorOrange, colorReset)
			fmt.Printf("  %s# Use a predefined profile%s\n", colorGray, colorReset)
			fmt.Printf("  clamjuice filter -i /var/lib/clamav/main.cvd -o ./filtered -p linux-only\n\n")
			fmt.Printf("  %s# Exclude Windows and Office%s\n", colorGray, colorReset)
			fmt.Printf("  clamjuice filter -i main.cvd -o ./filtered -e Win,Doc,Xls\n\n")
			fmt.Printf("  %s# Keep only specific platforms%s\n", colorGray, colorReset)
			fmt.Printf("  clamjuice filter -i main.cvd -o ./filtered --include-platforms Unix,Linux,Pdf\n\n")
			fmt.Printf("  %s# Remove entire formats%s\n", colorGray, colorReset)
			fmt.Printf("  clamjuice filter -i main.cvd -o ./filtered --exclude-types mdb,hsb\n\n")
			fmt.Printf("  %s# After freshclam, only when something changed%s\n", colorGray, colorReset)
			fmt.Printf("  clamjuice filter -i /var/lib/clamav/daily.cld -o /srv/clamav -p linux-only --skip-unchanged\n\n")
		},
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
