package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/autocomplete"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/pico"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/sqlite"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("vocabctl failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vocabctl",
		Usage: "Offline tooling for the PICO vocabulary snapshot and article store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: func(c *cli.Context) error {
			slog.SetDefault(logger.New(c.App.ErrWriter, c.String("log-level"), "text"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Convert a JSON vocabulary snapshot to msgpack",
				ArgsUsage: "<in.json> <out.msgpack>",
				Action:    convertCommand,
			},
			{
				Name:      "complete",
				Usage:     "Run an autocomplete lookup against a snapshot",
				ArgsUsage: "<partial term>",
				Action:    completeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "snapshot",
						Aliases: []string{"s"},
						Usage:   "Path to the vocabulary snapshot (.json or .msgpack)",
						Value:   "data/pico_mesh_vocabulary.json",
					},
					&cli.IntFlag{
						Name:  "min-chars",
						Usage: "Prefixes shorter than this are returned unranked",
						Value: autocomplete.DefaultMinChars,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Maximum number of suggestions",
						Value: autocomplete.DefaultTopK,
					},
				},
			},
			{
				Name:      "compile",
				Usage:     "Print the SQL a structured query renders to",
				ArgsUsage: `'[{"classes":"population","mesh_ui":"D003920"}]'`,
				Action:    compileCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dialect",
						Usage: "SQL dialect (postgres, sqlite)",
						Value: "postgres",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Row cap rendered as LIMIT",
						Value: 10,
					},
				},
			},
			{
				Name:      "load-articles",
				Usage:     "Load annotated articles from JSON into a SQLite store",
				ArgsUsage: "<articles.json>",
				Action:    loadArticlesCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to the SQLite database file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "update-type",
						Usage: "Data source recorded in the update log",
						Value: "pubmed_update",
					},
					&cli.TimestampFlag{
						Name:   "source-date",
						Usage:  "Date of the source data (YYYY-MM-DD), defaults to now",
						Layout: "2006-01-02",
					},
				},
			},
		},
	}
}

func convertCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: vocabctl convert <in.json> <out.msgpack>")
	}
	in, out := c.Args().Get(0), c.Args().Get(1)

	entries, err := vocabulary.LoadSnapshot(in)
	if err != nil {
		return err
	}
	if _, err := vocabulary.Build(entries); err != nil {
		return err
	}
	if err := vocabulary.WriteSnapshot(out, entries); err != nil {
		return err
	}
	slog.Info("snapshot converted", "in", in, "out", out, "entries", len(entries))
	return nil
}

func completeCommand(c *cli.Context) error {
	idx, err := vocabulary.LoadIndex(c.String("snapshot"))
	if err != nil {
		return err
	}
	query := strings.Join(c.Args().Slice(), " ")
	res := autocomplete.Lookup(idx, query, c.Int("min-chars"), c.Int("top-k"))
	slog.Debug("lookup", "query", query, "tier", res.Tier, "matches", len(res.Entries))

	enc := json.NewEncoder(c.App.Writer)
	for _, e := range res.Entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func compileCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: vocabctl compile '<json selections>'")
	}
	var selections []pico.Selection
	if err := json.Unmarshal([]byte(c.Args().First()), &selections); err != nil {
		return fmt.Errorf("parsing selections: %w", err)
	}
	dialect, err := pico.DialectFor(c.String("dialect"))
	if err != nil {
		return err
	}
	q, err := pico.Compile(selections)
	if err != nil {
		return err
	}
	if q.Empty() {
		fmt.Fprintln(c.App.Writer, "-- empty query: no store call")
		return nil
	}
	query, args, err := pico.Render(dialect, q, c.Int("limit"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, query)
	for i, a := range args {
		fmt.Fprintf(c.App.Writer, "-- arg %d: %v\n", i+1, a)
	}
	return nil
}

type articleRecord struct {
	PMID          string            `json:"pmid"`
	Title         string            `json:"title"`
	Population    []sqlite.MeshTerm `json:"population"`
	Interventions []sqlite.MeshTerm `json:"interventions"`
	Outcomes      []sqlite.MeshTerm `json:"outcomes"`
}

func loadArticlesCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: vocabctl load-articles --db <path> <articles.json>")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("reading articles: %w", err)
	}
	var records []articleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing articles: %w", err)
	}

	store, err := sqlite.Open(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	articles := make([]sqlite.Article, 0, len(records))
	for _, r := range records {
		articles = append(articles, sqlite.Article{
			PMID:          r.PMID,
			Title:         r.Title,
			Population:    r.Population,
			Interventions: r.Interventions,
			Outcomes:      r.Outcomes,
		})
	}
	if err := store.InsertArticles(c.Context, articles...); err != nil {
		return err
	}
	sourceDate := time.Now()
	if ts := c.Timestamp("source-date"); ts != nil {
		sourceDate = *ts
	}
	if err := store.RecordUpdate(c.Context, c.String("update-type"), sourceDate); err != nil {
		return err
	}
	slog.Info("articles loaded",
		"db", c.String("db"),
		"count", len(articles),
		"update_type", c.String("update-type"),
		"source_date", sourceDate.Format(time.DateOnly),
	)
	return nil
}
