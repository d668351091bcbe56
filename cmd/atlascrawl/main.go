// Command atlascrawl drives one headless crawl from the command line,
// producing a self-describing Atlas archive directory. It generalizes the
// teacher's cmd/jsfindcrack/main.go cobra wiring (PersistentPreRunE config
// load, signal-driven graceful shutdown, box-drawn summary) from a single
// JS-scraping profile to the full engine configuration surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/atlascrawl/atlas/internal/checkpoint"
	"github.com/atlascrawl/atlas/internal/engineconfig"
	"github.com/atlascrawl/atlas/internal/logging"
	"github.com/atlascrawl/atlas/internal/model"
	"github.com/atlascrawl/atlas/internal/policy"
	"github.com/atlascrawl/atlas/internal/privacy"
	"github.com/atlascrawl/atlas/internal/ratelimit"
	"github.com/atlascrawl/atlas/internal/render"
	"github.com/atlascrawl/atlas/internal/scheduler"
	"github.com/atlascrawl/atlas/internal/urlnorm"
	"github.com/atlascrawl/atlas/internal/writer"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	configFile string
	verbose    bool
	logLevel   string

	seedURLs    []string
	outAtlas    string
	renderMode  string
	replayTier  string
	concurrency int
	maxDepth    int
	maxPages    int
	maxErrors   int
	resume      bool
	respectRobots bool
)

var rootCmd = &cobra.Command{
	Use:     "atlascrawl",
	Short:   "Headless crawler that produces self-describing Atlas archives",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := engineconfig.Load(configFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logCfg := logging.Config{
			Level:      cfg.Logging.Level,
			LogDir:     cfg.Logging.LogDir,
			MaxSize:    cfg.Logging.Rotation.MaxSize,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAge:     cfg.Logging.Rotation.MaxAge,
			Compress:   cfg.Logging.Rotation.Compress,
			Console:    true,
		}
		if logLevel != "" {
			logCfg.Level = logLevel
		}
		if err := logging.Init(logCfg); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		if verbose {
			logging.Infof("verbose mode enabled")
		}
		return nil
	},
	RunE: runCrawl,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("atlascrawl %s\n", Version)
		fmt.Printf("built: %s\n", BuildTime)
	},
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := engineconfig.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(seedURLs) > 0 {
		cfg.Seeds = seedURLs
	}
	if outAtlas != "" {
		cfg.OutAtlas = outAtlas
	}
	if renderMode != "" {
		cfg.Render.Mode = engineconfig.RenderMode(renderMode)
	}
	if replayTier != "" {
		cfg.Replay.Tier = engineconfig.ReplayTier(replayTier)
	}
	if concurrency > 0 {
		cfg.Render.Concurrency = concurrency
	}
	if cmd.Flags().Changed("max-depth") {
		cfg.MaxDepth = maxDepth
	}
	if cmd.Flags().Changed("max-pages") {
		cfg.MaxPages = maxPages
	}
	if cmd.Flags().Changed("max-errors") {
		cfg.MaxErrors = maxErrors
	}
	if cmd.Flags().Changed("respect-robots") {
		cfg.Robots.Respect = respectRobots
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	crawlID := crawlIDFor(cfg)

	redactor := privacy.New(privacy.Policy{
		StripCookies:      cfg.Privacy.StripCookies,
		StripAuthHeaders:  cfg.Privacy.StripAuthHeaders,
		RedactInputValues: cfg.Privacy.RedactInputValues,
		RedactForms:       cfg.Privacy.RedactForms,
	})

	fetcher := render.NewHTTPFetcher(time.Duration(cfg.Render.TimeoutMs)*time.Millisecond, cfg.HTTP.UserAgent, cfg.Render.MaxBytesPerPage, redactor)

	var seedHosts []string
	for _, s := range cfg.Seeds {
		if h, err := urlnorm.Host(s); err == nil {
			seedHosts = append(seedHosts, h)
		}
	}

	gate, err := policy.New(policy.Config{
		AllowedSchemes: []string{"http", "https"},
		FollowExternal: cfg.Discovery.FollowExternal,
		SeedHosts:      seedHosts,
		AllowPatterns:  cfg.Discovery.AllowURLs,
		DenyPatterns:   cfg.Discovery.DenyURLs,
		BlockList:      cfg.Discovery.BlockList,
		RespectRobots:  cfg.Robots.Respect,
		OverrideRobots: cfg.Robots.OverrideUsed,
		UserAgent:      cfg.HTTP.UserAgent,
	}, fetcher)
	if err != nil {
		return fmt.Errorf("building policy gate: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		GlobalRPS:      cfg.HTTP.RPS,
		GlobalBurst:    int(cfg.HTTP.RPS) + 1,
		PerOriginRPS:   cfg.HTTP.PerHostRPS,
		PerOriginBurst: int(cfg.HTTP.PerHostRPS) + 1,
	})

	renderer, err := buildRenderer(cfg, fetcher)
	if err != nil {
		return fmt.Errorf("building renderer: %w", err)
	}
	defer renderer.Close()

	var blobs *writer.BlobStore
	if cfg.Replay.Tier == engineconfig.ReplayFull {
		blobs, err = writer.NewBlobStore(cfg.OutAtlas + "/blobs")
		if err != nil {
			return fmt.Errorf("building blob store: %w", err)
		}
	}

	deps := scheduler.Deps{Gate: gate, Limiter: limiter, Renderer: renderer, Blobs: blobs}
	schedCfg := scheduler.Config{
		CrawlID:           crawlID,
		ToolVersion:       "atlascrawl/" + Version,
		Seeds:             cfg.Seeds,
		OutDir:            cfg.OutAtlas,
		Concurrency:       cfg.Render.Concurrency,
		MaxDepth:          cfg.MaxDepth,
		MaxPages:          cfg.MaxPages,
		MaxErrors:         cfg.MaxErrors,
		ParamPolicy:       engineParamPolicy(cfg.Discovery.ParamPolicy),
		RenderMode:        string(cfg.Render.Mode),
		ReplayTier:        string(cfg.Replay.Tier),
		Redactor:          redactor,
		HeartbeatInterval: 5 * time.Second,
		CheckpointEvery:   time.Duration(cfg.Checkpoint.EverySeconds) * time.Second,
		BucketCap:         1024,
	}

	var sched *scheduler.Scheduler
	if resume && checkpoint.Exists(cfg.OutAtlas, crawlID) {
		snap, err := checkpoint.Load(cfg.OutAtlas, crawlID)
		if err != nil {
			return fmt.Errorf("loading checkpoint: %w", err)
		}
		logging.Infof("resuming crawl %s from checkpoint saved at %s", crawlID, snap.SavedAt)
		sched, err = scheduler.Resume(schedCfg, deps, snap)
		if err != nil {
			return fmt.Errorf("resuming scheduler: %w", err)
		}
	} else {
		sched, err = scheduler.New(schedCfg, deps)
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Warnf("received signal %v, cancelling and finalizing the archive", sig)
		sched.Cancel()
		cancel()
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting crawl: %w", err)
	}

	if !verbose {
		go watchProgress(sched.Subscribe())
	}

	m := sched.Wait()
	printSummary(m)
	logging.Infof("crawl complete: %s", cfg.OutAtlas)
	return nil
}

func buildRenderer(cfg *engineconfig.Config, fetcher *render.HTTPFetcher) (render.Renderer, error) {
	if cfg.Render.Mode == engineconfig.RenderRaw {
		return fetcher, nil
	}
	return render.NewRodRenderer(render.RodRendererConfig{
		Headless:    true,
		Mode:        string(cfg.Render.Mode),
		NavTimeout:  time.Duration(cfg.Render.TimeoutMs) * time.Millisecond,
		SettleTime:  500 * time.Millisecond,
		Concurrency: cfg.Render.Concurrency,
	})
}

func engineParamPolicy(p engineconfig.ParamPolicy) urlnorm.Policy {
	switch p {
	case engineconfig.ParamKeep:
		return urlnorm.PolicyKeep
	case engineconfig.ParamSample:
		return urlnorm.PolicySample
	default:
		return urlnorm.PolicyStrip
	}
}

func crawlIDFor(cfg *engineconfig.Config) string {
	return fmt.Sprintf("atlas-%d", stableSeedHash(cfg.Seeds))
}

func stableSeedHash(seeds []string) uint32 {
	sorted := append([]string(nil), seeds...)
	sort.Strings(sorted)
	var h uint32 = 2166136261
	for _, s := range sorted {
		for i := 0; i < len(s); i++ {
			h ^= uint32(s[i])
			h *= 16777619
		}
	}
	return h
}

// watchProgress renders a console progress bar from the scheduler's event
// feed, counting page_done events against an open-ended total, until the
// feed closes (crawl finished).
func watchProgress(events <-chan model.EventRecord) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	for ev := range events {
		if ev.Code == "page_done" {
			bar.Add(1)
		}
	}
	bar.Finish()
	fmt.Println()
}

func printSummary(m model.Manifest) {
	fmt.Println("==================================================")
	fmt.Println("crawl summary")
	fmt.Println("==================================================")
	fmt.Printf("crawl id:          %s\n", m.Provenance.CrawlID)
	fmt.Printf("pages crawled:     %d\n", m.Stats.PagesCrawled)
	fmt.Printf("pages failed:      %d\n", m.Stats.PagesFailed)
	fmt.Printf("pages skipped:     %d\n", m.Stats.PagesSkipped)
	fmt.Printf("edges discovered:  %d\n", m.Stats.EdgesDiscovered)
	fmt.Printf("assets captured:   %d\n", m.Stats.AssetsCaptured)
	fmt.Printf("errors:            %d\n", m.Stats.ErrorsTotal)
	fmt.Printf("bytes downloaded:  %.2f MB\n", float64(m.Stats.BytesDownloaded)/(1024*1024))
	fmt.Printf("duration:          %d ms\n", m.Stats.ProcessingTimeMillis)
	fmt.Printf("exit code:         %d\n", m.Provenance.ExitCode)
	fmt.Println("==================================================")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to the atlas config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose console output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace|debug|info|warn|error)")

	rootCmd.Flags().StringSliceVarP(&seedURLs, "seed", "u", nil, "seed URL, may be given multiple times")
	rootCmd.Flags().StringVarP(&outAtlas, "out", "o", "", "output archive directory")
	rootCmd.Flags().StringVarP(&renderMode, "render-mode", "m", "", "render mode (raw|prerender|full)")
	rootCmd.Flags().StringVar(&replayTier, "replay-tier", "", "replay capability tier (html|html+css|full)")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker concurrency")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", -1, "maximum crawl depth, -1 for unbounded")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum page count, 0 for unbounded")
	rootCmd.Flags().IntVar(&maxErrors, "max-errors", -1, "error budget before cancelling, -1 for unbounded")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "resume from a prior checkpoint if one exists")
	rootCmd.Flags().BoolVar(&respectRobots, "respect-robots", true, "honor robots.txt disallow rules")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
