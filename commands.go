package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/ncv/internal/comments"
	"github.com/bryan-buckman/ncv/internal/config"
	"github.com/bryan-buckman/ncv/internal/database"
	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
	"github.com/bryan-buckman/ncv/internal/server"
)

var errNoToken = errors.New("no Notion token: set NCV_NOTION_TOKEN or pass --token")

// app holds state shared by all commands.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string
	token     string
	asJSON    bool

	cfg *config.Config
	log zerolog.Logger
	out io.Writer
	err io.Writer
	now func() time.Time
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, err: errOut, now: time.Now}

	root := &cobra.Command{
		Use:   "ncv",
		Short: "ncv - Notion comment viewer",
		Long: `ncv collects the comments of a Notion page, its sub-pages and database
records into one list, and explains why pages cannot be read.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format (json, console)")

	root.AddCommand(a.serveCmd(), a.commentsCmd(), a.diagnoseCmd(), a.searchCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(cfg, a.err)
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(cfg.Level())
}

// client builds a Notion client from the configuration.
func (a *app) client(token string, log zerolog.Logger) comments.Remote {
	return notion.NewClient(token,
		notion.WithBaseURL(a.cfg.NotionAPIURL),
		notion.WithVersion(a.cfg.NotionVersion),
		notion.WithHTTPClient(&http.Client{Timeout: a.cfg.NotionTimeout}),
		notion.WithRateLimit(a.cfg.NotionRPS, int(math.Ceil(a.cfg.NotionRPS))),
		notion.WithLogger(log),
	)
}

// engine returns an engine using the CLI token.
func (a *app) engine() (*comments.Engine, error) {
	token := a.token
	if token == "" {
		token = a.cfg.NotionToken
	}
	if token == "" {
		return nil, errNoToken
	}
	return comments.New(a.client(token, a.log), comments.WithLogger(a.log), comments.WithClock(a.now)), nil
}

func (a *app) tokenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.token, "token", "", "Notion integration token (default: NCV_NOTION_TOKEN)")
	cmd.Flags().BoolVar(&a.asJSON, "json", false, "Print JSON instead of a table")
}

func (a *app) serveCmd() *cobra.Command {
	var listen, dbURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			if dbURL != "" {
				a.cfg.DBURL = dbURL
			}

			store, err := database.Open(a.cfg.DBURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer store.Close()
			a.log.Info().Str("db", store.DatabaseType()).Str("base_url", a.cfg.BaseURL).Msg("database opened")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(a.cfg, store, a.client, a.log).Start(ctx, a.cfg.Listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (default: :8080)")
	cmd.Flags().StringVar(&dbURL, "db", "", "Database URL (default: ncv.db)")
	return cmd
}

func (a *app) commentsCmd() *cobra.Command {
	var (
		noSubPages bool
		opts       model.Options
		user       model.UserRef
	)
	cmd := &cobra.Command{
		Use:   "comments <page-id-or-url>",
		Short: "List the comments under a page or database",
		Long: `List the comments under a page or database.

Examples:
  ncv comments https://www.notion.so/acme/Roadmap-0123456789abcdef0123456789abcdef
  ncv comments 0123456789abcdef0123456789abcdef --unresolved --stale-days 7
  ncv comments <id> --mine --user-name "Ada Lovelace"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			opts.IncludeSubPages = !noSubPages
			res, err := e.Aggregate(cmd.Context(), args[0], opts, user)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(res)
			}
			a.printComments(res)
			return nil
		},
	}
	a.tokenFlags(cmd)
	f := cmd.Flags()
	f.BoolVar(&noSubPages, "no-subpages", false, "Only read the given page")
	f.BoolVar(&opts.FilterUnresolved, "unresolved", false, "Hide resolved comments")
	f.IntVar(&opts.FilterNoReplyDays, "stale-days", 0, "Only show comments without a reply for this many days")
	f.BoolVar(&opts.FilterMyComments, "mine", false, "Only show comments mentioning or answered by --user-id/--user-name")
	f.StringVar(&user.ID, "user-id", "", "Notion user ID for --mine")
	f.StringVar(&user.Name, "user-name", "", "Notion user name for --mine")
	return cmd
}

func (a *app) diagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose <page-id-or-url>",
		Short: "Explain whether the integration can read a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			d := e.Diagnose(cmd.Context(), args[0])
			recs := comments.Recommendations(d)
			if a.asJSON {
				return a.printJSON(struct {
					model.Diagnosis
					Recommendations []string `json:"recommendations"`
				}{d, recs})
			}
			a.printDiagnosis(d, recs)
			return nil
		},
	}
	a.tokenFlags(cmd)
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find pages and databases shared with the integration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			results, err := e.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(results)
			}
			table := a.table("ID", "Title", "URL")
			for _, r := range results {
				table.Append([]string{r.ID, r.Title, r.URL})
			}
			table.Render()
			return nil
		},
	}
	a.tokenFlags(cmd)
	return cmd
}

// --- Output ---

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) table(header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(a.out)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	return t
}

func (a *app) printComments(res *model.AggregateResult) {
	if res.IsDatabase {
		fmt.Fprintf(a.out, "Database: %s\n", res.DatabaseName)
	}
	table := a.table("Page", "Author", "Comment", "Replies", "Last reply", "Status")
	now := a.now()
	for _, c := range res.Comments {
		status := "open"
		if c.IsResolved {
			status = "resolved"
		}
		table.Append([]string{
			c.PageTitle,
			c.Author.String(),
			truncate(c.Content, 60),
			strconv.Itoa(len(c.Thread)),
			humanize.RelTime(c.LastRepliedAt, now, "ago", "from now"),
			status,
		})
	}
	table.Render()
	fmt.Fprintf(a.out, "%s\n", plural(len(res.Comments), "comment", "comments"))
	if res.HasPermissionIssues {
		fmt.Fprintf(a.err, "warning: %s could not be read; share them with the integration:\n", plural(len(res.NotFoundPageIDs), "page", "pages"))
		for _, id := range res.NotFoundPageIDs {
			fmt.Fprintf(a.err, "  %s\n", notion.PageURL(id))
		}
	}
}

func (a *app) printDiagnosis(d model.Diagnosis, recs []string) {
	fmt.Fprintf(a.out, "ID:       %s\n", d.NormalizedID)
	fmt.Fprintf(a.out, "Access:   %t\n", d.Access)
	fmt.Fprintf(a.out, "Kind:     %s\n", d.Kind)
	if d.Title != "" {
		fmt.Fprintf(a.out, "Title:    %s\n", d.Title)
	}
	if d.ParentKind != "" {
		fmt.Fprintf(a.out, "Parent:   %s %s\n", d.ParentKind, d.ParentID)
	}
	if info := d.CollectionInfo; info != nil {
		fmt.Fprintf(a.out, "Database: %s (access: %t)\n", info.Name, info.Access)
	}
	if d.Error != "" {
		fmt.Fprintf(a.out, "Error:    %s\n", d.Error)
	}
	fmt.Fprintln(a.out, "\nRecommendations:")
	for _, r := range recs {
		fmt.Fprintf(a.out, "  - %s\n", r)
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}
