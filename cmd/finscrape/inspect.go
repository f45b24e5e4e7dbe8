package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/extractor"
	"github.com/IshaanNene/finscrape/internal/fetcher"
	"github.com/IshaanNene/finscrape/internal/filter"
	"github.com/IshaanNene/finscrape/internal/parser"
	"github.com/IshaanNene/finscrape/internal/storage"
	"github.com/IshaanNene/finscrape/internal/types"
)

var (
	extractRender bool
	extractTitle  string
	linksTarget   string
	pendingLimit  int
	pendingAck    bool
)

const previewLength = 500

// extractCmd creates the "extract" subcommand.
func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract [url]",
		Short: "Extract and score a single article",
		Long: `Run the extraction methods against one article URL, then evaluate the
result with the relevance filter. Nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtract,
	}
	cmd.Flags().BoolVar(&extractRender, "render", false, "allow the headless browser fallback")
	cmd.Flags().StringVar(&extractTitle, "title", "", "title to score alongside the content")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := config.ValidateURL(args[0]); err != nil {
		return fmt.Errorf("invalid URL %q: %w", args[0], err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Browser.Enabled = extractRender
	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := fetcher.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer client.Close()

	f, err := filter.New(cfg.Filter)
	if err != nil {
		return fmt.Errorf("build filter: %w", err)
	}
	ex := extractor.New(cfg.Extractor, client, logger,
		extractor.WithRender(client.RenderEnabled()),
		extractor.WithTimeouts(cfg.Timeout),
		extractor.WithUserAgent(client.NextUserAgent),
		extractor.WithTransport(client.Transport()),
		extractor.WithCookieJar(client.CookieJar()),
	)

	res := ex.Extract(ctx, args[0])
	if res.Empty() {
		fmt.Println("No content extracted.")
		return nil
	}
	v := f.Evaluate(extractTitle, res.Text)

	fmt.Printf("Method:    %s\n", res.Method)
	fmt.Printf("Length:    %d\n", res.Score())
	if v.Accepted {
		fmt.Printf("Verdict:   accepted (score %d)\n", v.Final)
	} else {
		fmt.Printf("Verdict:   rejected (%s, score %d)\n", v.Reason, v.Final)
	}
	if v.Pattern != "" {
		fmt.Printf("Pattern:   %s\n", v.Pattern)
	}
	if len(v.KeywordMatches) > 0 {
		fmt.Printf("Keywords:  %v\n", v.KeywordMatches)
	}
	fmt.Printf("\n%s\n", preview(res.Text))
	return nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	return string([]rune(s)[:previewLength]) + "…"
}

// linksCmd creates the "links" subcommand.
func linksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links [url]",
		Short: "Discover candidate article links on a landing page",
		Long: `Fetch a landing page and apply a target's link rules to it. The target is
chosen with --target, or by matching the URL against configured targets.`,
		Args: cobra.ExactArgs(1),
		RunE: runLinks,
	}
	cmd.Flags().StringVar(&linksTarget, "target", "", "name of the target whose rules to apply")
	return cmd
}

func runLinks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, ok := findTarget(cfg, linksTarget, args[0])
	if !ok {
		if linksTarget != "" {
			return fmt.Errorf("unknown target %q", linksTarget)
		}
		return fmt.Errorf("no target configured for %s; pass --target", args[0])
	}
	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := fetcher.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer client.Close()

	mode := types.ModePlain
	if cfg.RenderLanding(t) && client.RenderEnabled() {
		mode = types.ModeRendered
	}
	host := ""
	if u, err := url.Parse(args[0]); err == nil {
		host = u.Hostname()
	}
	resp, err := client.Get(ctx, args[0], mode, cfg.Timeout(host))
	if err != nil {
		return fmt.Errorf("fetch landing page: %w", err)
	}

	candidates := parser.NewDiscoverer(cfg.Parser, logger).DiscoverResponse(resp, t.Links)
	if len(candidates) == 0 {
		return types.ErrNoLinks
	}
	for i, c := range candidates {
		fmt.Printf("%2d. %s\n    %s\n", i+1, c.Title, c.URL)
	}
	return nil
}

// findTarget looks a target up by name, falling back to its landing URL.
func findTarget(cfg *config.Config, name, rawURL string) (types.Target, bool) {
	for _, tc := range cfg.Targets {
		if name != "" && strings.EqualFold(tc.Name, name) {
			return tc.Target(), true
		}
		if name == "" && strings.TrimRight(tc.URL, "/") == strings.TrimRight(rawURL, "/") {
			return tc.Target(), true
		}
	}
	return types.Target{}, false
}

// targetsCmd creates the "targets" subcommand.
func targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List configured targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tACTIVE\tRENDER\tRULES\tURL")
			for _, tc := range cfg.Targets {
				fmt.Fprintf(tw, "%s\t%v\t%v\t%d\t%s\n", tc.Name, tc.IsActive(), tc.Render, len(tc.Links), tc.URL)
			}
			return tw.Flush()
		},
	}
}

// pendingCmd creates the "pending" subcommand.
func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List stored articles not yet consumed",
		Long: `List stored articles that downstream generation has not picked up yet,
oldest first. With --ack the listed articles are marked as consumed.`,
		Args: cobra.NoArgs,
		RunE: runPending,
	}
	cmd.Flags().IntVar(&pendingLimit, "limit", 20, "maximum records to list (0 = all)")
	cmd.Flags().BoolVar(&pendingAck, "ack", false, "mark listed records as consumed")
	return cmd
}

func runPending(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	ctx := cmd.Context()

	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	records, err := store.Pending(ctx, pendingLimit)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTARGET\tSCORE\tSCRAPED\tTITLE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.TargetName, r.Metadata.FinalScore, r.ScrapedAt.Format("2006-01-02 15:04"), r.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !pendingAck {
		return nil
	}
	for _, r := range records {
		if err := store.Ack(ctx, r.ID); err != nil {
			return fmt.Errorf("ack %s: %w", r.ID, err)
		}
	}
	fmt.Printf("\nAcknowledged %d records\n", len(records))
	return nil
}
