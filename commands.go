package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ChaseHampton/lapida/internal/assets"
	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/discovery"
	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/duplicates"
	"github.com/ChaseHampton/lapida/internal/page"
	"github.com/ChaseHampton/lapida/internal/processor"
	"github.com/ChaseHampton/lapida/internal/resolver"
	"github.com/ChaseHampton/lapida/internal/search"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const stopTimeout = 30 * time.Second

var (
	watch      bool
	asJSON     bool
	searchPage int
	filters    search.SearchFilters
	archLimit  int
	archResume bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the API base for the configured origin",
	Long: `Checks the cached API base, then probes /api/health on each port in
LAPIDA_API_PORTS on the origin host, in order. Prints the first base that
answers as Lapida, or the origin's /api fallback when none does.

With --watch the check repeats every LAPIDA_MONITOR_INTERVAL_SECS and each
status change is printed.`,
	Args: cobra.NoArgs,
	RunE: runWithApp(runDiscover),
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Resolve a public path to a memorial or company",
	Long: `Resolves a path the way the web router does:

  /<slug>                 memorial slug, share token, id, then company
  /memorial/<identifier>  share token, slug, then id
  /company/<identifier>   company slug, then id

Reserved first segments such as /search or /login are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runWithApp(runResolve),
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memorials",
	Long: `Without filter flags the query is matched client side against every
memorial's name, biography, location and epitaph. Any filter flag switches to
the server side structured search.

Examples:
  lapida search ivan
  lapida search --name "Ivan Petrov" --death-date 1990-04-01 --page 2`,
	Args: cobra.ArbitraryArgs,
	RunE: runWithApp(runSearch),
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <url>...",
	Short: "Rewrite asset URLs against the current API origin",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWithApp(runNormalize),
}

var candlesCmd = &cobra.Command{
	Use:   "candles <path>",
	Short: "List the candles and flowers still burning on a memorial",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithApp(runCandles),
}

var archiveCmd = &cobra.Command{
	Use:   "archive [query]",
	Short: "Snapshot structured search results into SQL Server",
	Long: `Starts a collection for the given search, queues one row per result
page, then drains the queued pages with PROCESSOR_MAX_CONCURRENCY workers.
Memorials already archived are recorded as duplicates.

With --resume no collection is started; pages left reserved or pending by an
earlier run are processed.`,
	Args: cobra.ArbitraryArgs,
	RunE: runWithApp(runArchive),
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&filters.Name, "name", "", "Full name contains")
	cmd.Flags().StringVar(&filters.BirthDate, "birth-date", "", "Birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filters.DeathDate, "death-date", "", "Death date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filters.BirthPlace, "birth-place", "", "Birth place contains")
	cmd.Flags().StringVar(&filters.BurialPlace, "burial-place", "", "Burial place contains")
	cmd.Flags().StringVar(&filters.SortBy, "sort-by", "", "fullName, birthDate, deathDate, createdAt or views")
	cmd.Flags().StringVar(&filters.SortOrder, "sort-order", "", "asc or desc")
}

func init() {
	discoverCmd.Flags().BoolVar(&watch, "watch", false, "Keep checking and print status changes")
	resolveCmd.Flags().BoolVar(&asJSON, "json", false, "Print the resolved document as JSON")

	addFilterFlags(searchCmd)
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "Result page")

	addFilterFlags(archiveCmd)
	archiveCmd.Flags().IntVar(&archLimit, "limit", 0, "Results per page (default SEARCH_PAGE_SIZE)")
	archiveCmd.Flags().BoolVar(&archResume, "resume", false, "Only process pages queued by earlier runs")
}

func runDiscover(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if !watch {
		res, err := a.discoverer.Discover(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Base)
		switch {
		case res.Fallback:
			fmt.Fprintln(out, "status: unreachable, using fallback")
		case res.Cached:
			fmt.Fprintln(out, "status: online (cached)")
		default:
			fmt.Fprintln(out, "status: online")
		}
		return nil
	}

	monitor := discovery.NewMonitor(a.discoverer, a.cfg.DiscoveryConfig.MonitorInterval, func(s discovery.Status, base string) {
		fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.TimeOnly), s, base)
	}, a.logger)
	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runResolve(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	res, err := resolver.New(a.api, a.logger).ResolvePath(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}
	norm, err := assets.NewResolver(a.discoverer).Normalizer(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		var doc any
		if res.Memorial != nil {
			doc = norm.Memorial(*res.Memorial)
		} else {
			doc = norm.Company(*res.Company)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "matched by\t%s (after %d lookups)\n", res.Lookup, len(res.Attempts))
	if m := res.Memorial; m != nil {
		fmt.Fprintf(w, "memorial\t%s\n", m.DisplayName())
		fmt.Fprintf(w, "id\t%s\n", m.ID)
		fmt.Fprintf(w, "public path\t%s\n", m.PublicPath())
		fmt.Fprintf(w, "lived\t%s\n", lifespan(*m))
		if m.ProfileImage != "" {
			fmt.Fprintf(w, "photo\t%s\n", norm.URL(m.ProfileImage))
		}
	} else {
		c := res.Company
		fmt.Fprintf(w, "company\t%s\n", c.Name)
		fmt.Fprintf(w, "id\t%s\n", c.ID)
		if len(c.Reviews) > 0 {
			fmt.Fprintf(w, "rating\t%.1f (%d reviews)\n", c.AverageRating(), len(c.Reviews))
		}
		if c.Logo != "" {
			fmt.Fprintf(w, "logo\t%s\n", norm.URL(c.Logo))
		}
	}
	return w.Flush()
}

func runSearch(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	structured := !filters.IsEmpty() || filters.SortBy != "" || filters.SortOrder != ""
	if !structured && query == "" {
		return errors.New("a query or at least one filter is required")
	}
	if err := search.ValidateFilters(filters); err != nil {
		return err
	}

	pageSize := a.cfg.SearchConfig.PageSize
	done := make(chan search.State, 1)
	engine := search.NewEngine(ctx, a.api, search.Options{
		PageSize:       pageSize,
		QueryDebounce:  a.cfg.SearchConfig.QueryDebounce,
		FilterDebounce: a.cfg.SearchConfig.FilterDebounce,
		Logger:         a.logger,
		OnChange: func(s search.State) {
			if s.Loading || s.Mode == search.ModeIdle {
				return
			}
			select {
			case done <- s:
			default:
			}
		},
	})
	defer engine.Close()

	if query != "" {
		engine.SetQuery(query)
	}
	if structured {
		engine.SetFilters(filters)
	}
	engine.SetPage(searchPage)

	var state search.State
	select {
	case state = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if state.Err != nil {
		return state.Err
	}

	results := state.Results
	if state.Mode == search.ModeQuick {
		results = search.PageOf(results, state.Page, pageSize)
	}
	printResults(cmd.OutOrStdout(), state, results)
	return nil
}

func printResults(out io.Writer, state search.State, results []domain.Memorial) {
	fmt.Fprintf(out, "%d found, page %d of %d\n", state.Total, state.Page, max(state.TotalPages, 1))
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLIVED\tBURIED\tPATH")
	for _, m := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.DisplayName(), lifespan(m), m.BurialPlace, m.PublicPath())
	}
	w.Flush()
}

func lifespan(m domain.Memorial) string {
	year := func(date string) string {
		if len(date) >= 4 {
			return date[:4]
		}
		return "?"
	}
	return year(m.BirthDate) + "-" + year(m.DeathDate)
}

func runNormalize(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	norm, err := assets.NewResolver(a.discoverer).Normalizer(ctx)
	if err != nil {
		return err
	}
	for _, raw := range args {
		fmt.Fprintln(cmd.OutOrStdout(), norm.URL(raw))
	}
	return nil
}

func runCandles(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	res, err := resolver.New(a.api, a.logger).ResolvePath(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}
	if res.Memorial == nil {
		return fmt.Errorf("%s is a company page: %w", args[0], domain.ErrNotFound)
	}

	now := time.Now()
	m := res.Memorial
	active := domain.ActiveItems(m.VirtualItems, now)
	candles, flowers := domain.CountActive(m.VirtualItems, now)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d candles, %d flowers\n", m.DisplayName(), candles, flowers)
	if len(active) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tLEFT\tEXPIRES\tCOMMENT")
	for _, item := range active {
		left := domain.Remaining(item, now).Truncate(time.Minute)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Type, left, item.ExpiresAt().Local().Format(time.DateTime), item.Comment)
	}
	return w.Flush()
}

func runArchive(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg := a.cfg.ProcessorConfig
	logger := a.logger

	dbw, err := db.NewDb(config.NewDbConfig(), a.cfg.Tvp)
	if err != nil {
		return err
	}
	defer dbw.Close()

	norm, err := assets.NewResolver(a.discoverer).Normalizer(ctx)
	if err != nil {
		return err
	}

	dproc := duplicates.NewDuplicateProcessor(cfg, dbw, logger)
	dproc.Start(ctx)
	writer := processor.NewMemorialWriter(dbw, cfg, logger)
	writer.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if err := writer.Stop(stopCtx); err != nil {
			logger.Error("memorial writer did not stop cleanly", zap.Error(err))
		}
		if err := dproc.Stop(stopCtx); err != nil {
			logger.Error("duplicate processor did not stop cleanly", zap.Error(err))
		}
	}()

	memproc := processor.NewMemorialProcessor(ctx, dbw, writer, dproc, norm.Memorial, logger)
	proc := processor.NewProcessor(a.api, memproc, cfg, logger)

	if !archResume {
		params := search.SearchParams{
			Query:   strings.TrimSpace(strings.Join(args, " ")),
			Filters: filters,
			Limit:   archLimit,
		}
		if params.Limit <= 0 {
			params.Limit = a.cfg.SearchConfig.PageSize
		}
		collectionId, err := proc.CollectionStart(ctx, dbw, params)
		if err != nil {
			return fmt.Errorf("failed to start collection: %w", err)
		}
		logger.Info("collection started", zap.Int("collection_id", collectionId))
	}

	pproc := processor.NewPageProcessor(dbw, cfg, logger)
	pproc.Start(ctx)
	err = page.NewPager(proc, dbw, pproc, cfg, logger).WorkerPool(ctx)
	completed, failed := pproc.Stats()
	fields := []zap.Field{
		zap.Int64("pages_completed", completed),
		zap.Int64("pages_failed", failed),
		zap.Int("memorials_seen", memproc.SeenCount()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("archive interrupted, reserved pages are picked up by --resume", fields...)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to complete collection: %w", err)
	}
	logger.Info("archive completed", fields...)
	return nil
}
