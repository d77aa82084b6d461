package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/store"
	"github.com/urfave/cli/v3"
)

// IndexCommand creates the index command and its subcommands
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Manage the catalog index",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create the index and its mapping if missing",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(ctx, c, func(ctx context.Context, s store.Store) error {
						if err := s.CreateIndex(ctx); err != nil {
							return fmt.Errorf("creating index: %w", err)
						}
						fmt.Println("Index ready")
						return nil
					})
				},
			},
			{
				Name:  "drop",
				Usage: "Delete every catalog entry",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Don't ask for confirmation",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if !c.Bool("yes") {
						return fmt.Errorf("refusing to drop the index without --yes")
					}
					return withStore(ctx, c, func(ctx context.Context, s store.Store) error {
						if err := s.DropIndex(ctx); err != nil {
							return fmt.Errorf("dropping index: %w", err)
						}
						fmt.Println("Index dropped")
						return nil
					})
				},
			},
			{
				Name:      "load",
				Usage:     "Index a JSON array of entries, each with an id field",
				ArgsUsage: "<file>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("expected the path of a JSON file")
					}
					path := c.Args().First()
					return withStore(ctx, c, func(ctx context.Context, s store.Store) error {
						return loadEntries(ctx, s, path)
					})
				},
			},
		},
	}
}

func withStore(ctx context.Context, c *cli.Command, fn func(context.Context, store.Store) error) error {
	cfg, err := loadConfig(c.String("config"), c.Bool("debug"))
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)
	return fn(ctx, st)
}

func loadEntries(ctx context.Context, s store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("%s must hold a JSON array of entries: %w", path, err)
	}
	if err := s.CreateIndex(ctx); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	tr := catalog.NewTransformer()
	indexed, skipped := 0, 0
	for i, doc := range docs {
		id, entry, err := tr.TransformWithID(doc)
		if err != nil {
			fmt.Printf("Skipping entry %d: %v\n", i, err)
			skipped++
			continue
		}
		if _, err := s.Index(ctx, id, entry); err != nil {
			return fmt.Errorf("indexing %s: %w", id, err)
		}
		indexed++
	}
	fmt.Println(printer.Sprintf("Indexed %d entries, skipped %d", indexed, skipped))
	return nil
}
