package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/query"
	"github.com/rubiojr/datacatalog/pkg/search"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Raw query document, as accepted by the REST API",
			},
			&cli.StringSliceFlag{
				Name:  "org",
				Usage: "Restrict private results to these organizations. Can be used multiple times",
			},
			&cli.BoolFlag{
				Name:  "public",
				Usage: "Only public data sets",
			},
			&cli.BoolFlag{
				Name:  "private",
				Usage: "Only private data sets",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:  "count",
				Usage: "Only print the number of matches",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			doc := c.String("query")
			if doc == "" {
				var err error
				doc, err = textQuery(strings.Join(c.Args().Slice(), " "), c.Int("limit"))
				if err != nil {
					return err
				}
			}
			params := search.SearchParams{
				Query:     doc,
				Auth:      catalog.AuthContext{IsAdmin: true, OrgUUIDs: c.StringSlice("org")},
				Filtering: filtering(c.Bool("public"), c.Bool("private")),
			}
			return searchCatalog(ctx, c.String("config"), c.Bool("debug"), params, c.Bool("count"))
		},
	}
}

// textQuery builds a query document for a plain text search.
func textQuery(text string, limit int) (string, error) {
	doc := map[string]any{"size": limit}
	if text != "" {
		doc["query"] = text
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("building query: %w", err)
	}
	return string(data), nil
}

func filtering(public, private bool) query.DatasetFiltering {
	switch {
	case private:
		return query.OnlyPrivate
	case public:
		return query.OnlyPublic
	}
	return query.PrivateAndPublic
}

func searchCatalog(ctx context.Context, configPath string, debug bool, params search.SearchParams, countOnly bool) error {
	cfg, err := loadConfig(configPath, debug)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	svc := search.NewSearchService(st)
	if countOnly {
		total, err := svc.Count(ctx, params.Auth, params.Filtering)
		if err != nil {
			return fmt.Errorf("counting: %w", err)
		}
		fmt.Println(printer.Sprintf("%d", total))
		return nil
	}

	results, err := svc.Search(ctx, params)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	fmt.Print(formatResults(results))
	return nil
}
