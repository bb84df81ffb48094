package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	settingsPath        string
	toolsPath           string
	storePathFlag       string
	anthropicKey        string
	geminiKey           string
	extractorPromptPath string
	extractorSchemaPath string
	auditorPromptPath   string
	auditorSchemaPath   string
	debugMode           bool

	generateCount  int
	generateForce  bool
	generateWide   bool
	generateAll    bool
	generateMaxAge int

	validateAll bool

	remediateIssueRef string
	remediateAttempt  int
)

var rootCmd = &cobra.Command{
	Use:   "releasedeck",
	Short: "Release infographic pipeline for developer tools",
	Long: `Turns scraped release notes into validated feature summaries and
rendered infographics, with accuracy audits against the original source.`,
}

var generateCmd = &cobra.Command{
	Use:   "generate [tool] [version]",
	Short: "Generate infographics for a release",
	Long: `Resolves the best available source content for a release, extracts
features with the text service, validates them, and renders the
infographic. Without a version the tool's latest release is used.
With --all, every release missing an artifact is processed instead.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		config := mustLoadConfig()
		proc := mustBuildProcessor(config, true)
		opts := GenerateOptions{Count: generateCount, Force: generateForce, Wide: generateWide}

		if generateAll {
			results, err := proc.GenerateAllMissing(generateMaxAge, opts)
			if err != nil {
				log.Fatalf("Batch generation failed: %v", err)
			}
			if FailedCount(results) > 0 {
				os.Exit(1)
			}
			return
		}

		if len(args) == 0 {
			log.Fatal("Tool required: releasedeck generate <tool> [version], or use --all")
		}
		version := ""
		if len(args) > 1 {
			version = args[1]
		}

		result, err := proc.Generate(ToolID(args[0]), version, opts)
		if err != nil {
			log.Fatalf("Generation failed: %v", err)
		}
		if result.Status == StatusFailed {
			os.Exit(1)
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [tool] [version]",
	Short: "Audit persisted extractions for accuracy",
	Long: `Re-checks persisted feature sets against their stored source content,
classifying every claim as verified, inferred, or fabricated. Exits
non-zero if any fabricated claim is found, so it can gate a review
process. With --all, every release with a cached extraction is audited.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		config := mustLoadConfig()
		proc := mustBuildProcessor(config, false)

		if !validateAll && len(args) == 0 {
			log.Fatal("Tool required: releasedeck validate <tool> [version], or use --all")
		}
		var tool ToolID
		version := ""
		if len(args) > 0 {
			tool = ToolID(args[0])
		}
		if len(args) > 1 {
			version = args[1]
		}

		summary, err := proc.Validate(tool, version, validateAll)
		if err != nil {
			log.Fatalf("Audit failed: %v", err)
		}
		if !summary.Clean() {
			os.Exit(1)
		}
	},
}

var remediateCmd = &cobra.Command{
	Use:   "remediate <tool> <version>",
	Short: "Recover a release that failed standard generation",
	Long: `Runs the alternative sourcing strategies for one release under a hard
cap on text-service calls: a direct changelog section parse, secondary
URL probing, and inference from the release's own sparse notes. Always
writes a result document; a release that genuinely does not warrant an
infographic is a normal outcome, not an error.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		config := mustLoadConfig()
		store := mustLoadStore(config)
		text := mustTextGenerator()
		image := mustImageGenerator(config)

		rem := NewRemediator(config, NewPageFetcher(), text, image, store)
		result, err := rem.Remediate(ToolID(args[0]), args[1], remediateIssueRef, remediateAttempt)
		if err != nil {
			log.Fatalf("Remediation failed: %v", err)
		}
		if result.Status == RemediationError {
			os.Exit(1)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List releases in the store and their artifact status",
	Run: func(cmd *cobra.Command, args []string) {
		config := mustLoadConfig()
		store := mustLoadStore(config)

		for _, rel := range store.Releases() {
			marker := "–"
			if rel.HasArtifact() {
				marker = "✓"
			}
			fmt.Printf("%s %-10s %-12s %s\n", marker, rel.Tool, rel.Version, rel.Date.Format("2006-01-02"))
		}
	},
}

func mustLoadConfig() *Config {
	if err := ensureConfigExists(); err != nil {
		log.Fatalf("Failed to bootstrap configuration: %v", err)
	}

	overrides := &ConfigOverrides{}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	if toolsPath != "" {
		overrides.ToolsPath = &toolsPath
	}
	if extractorPromptPath != "" {
		overrides.ExtractorPromptPath = &extractorPromptPath
	}
	if extractorSchemaPath != "" {
		overrides.ExtractorSchemaPath = &extractorSchemaPath
	}
	if auditorPromptPath != "" {
		overrides.AuditorPromptPath = &auditorPromptPath
	}
	if auditorSchemaPath != "" {
		overrides.AuditorSchemaPath = &auditorSchemaPath
	}

	config, err := NewConfig(overrides)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return config
}

func mustLoadStore(config *Config) *ReleaseStore {
	path := config.Settings.StorePath
	if storePathFlag != "" {
		path = storePathFlag
	}
	store, err := LoadReleaseStore(path)
	if err != nil {
		log.Fatalf("Failed to load release store: %v", err)
	}
	return store
}

func mustTextGenerator() TextGenerator {
	if anthropicKey == "" {
		anthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	text, err := NewAnthropicGenerator(anthropicKey)
	if err != nil {
		log.Fatal("API key required: use --api-key flag or ANTHROPIC_API_KEY environment variable")
	}
	return text
}

func mustImageGenerator(config *Config) ImageGenerator {
	if geminiKey == "" {
		geminiKey = os.Getenv("GEMINI_API_KEY")
	}
	image, err := NewGeminiImageGenerator(geminiKey, config.Settings.Image.Model)
	if err != nil {
		log.Fatal("Image key required: use --gemini-api-key flag or GEMINI_API_KEY environment variable")
	}
	return image
}

// mustBuildProcessor wires the pipeline. withImages is off for audit-only
// commands so they do not demand an image key.
func mustBuildProcessor(config *Config, withImages bool) *Processor {
	store := mustLoadStore(config)
	text := mustTextGenerator()

	var image ImageGenerator
	if withImages {
		image = mustImageGenerator(config)
	}

	compare := NewCompareClient(os.Getenv("GITHUB_TOKEN"))
	return NewProcessor(config, store, NewPageFetcher(), compare, text, image)
}

func init() {
	cobra.OnInitialize(func() {
		// A missing .env file is fine; the environment may carry the keys.
		_ = godotenv.Load()
		SetDebugMode(debugMode)
	})

	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to custom settings file")
	rootCmd.PersistentFlags().StringVar(&toolsPath, "tools", "", "Path to custom tool registry file")
	rootCmd.PersistentFlags().StringVar(&storePathFlag, "store", "", "Path to the release store (overrides settings)")
	rootCmd.PersistentFlags().StringVar(&anthropicKey, "api-key", "", "Anthropic API key")
	rootCmd.PersistentFlags().StringVar(&geminiKey, "gemini-api-key", "", "Gemini API key for image rendering")
	rootCmd.PersistentFlags().StringVar(&extractorPromptPath, "extractor-prompt", "", "Path to custom extractor prompt file")
	rootCmd.PersistentFlags().StringVar(&extractorSchemaPath, "extractor-schema", "", "Path to custom extractor schema file")
	rootCmd.PersistentFlags().StringVar(&auditorPromptPath, "auditor-prompt", "", "Path to custom auditor prompt file")
	rootCmd.PersistentFlags().StringVar(&auditorSchemaPath, "auditor-schema", "", "Path to custom auditor schema file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	generateCmd.Flags().IntVar(&generateCount, "count", 0, "Number of features to extract (0 uses the configured default)")
	generateCmd.Flags().BoolVar(&generateForce, "force", false, "Regenerate even if an artifact already exists")
	generateCmd.Flags().BoolVar(&generateWide, "wide", false, "Also render the 16x9 format")
	generateCmd.Flags().BoolVar(&generateAll, "all", false, "Process every release missing an artifact")
	generateCmd.Flags().IntVar(&generateMaxAge, "max-age-days", 7, "With --all, only consider releases this recent (0 for no cutoff)")

	validateCmd.Flags().BoolVar(&validateAll, "all", false, "Audit every release with a cached extraction")

	remediateCmd.Flags().StringVar(&remediateIssueRef, "issue", "", "Issue reference to record in the result")
	remediateCmd.Flags().IntVar(&remediateAttempt, "attempt", 1, "Attempt number for the result document")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(remediateCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
