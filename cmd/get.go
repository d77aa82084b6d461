package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// GetCommand creates the get command
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a catalog entry as JSON",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one entry ID")
			}
			return getEntry(ctx, c.String("config"), c.Bool("debug"), c.Args().First())
		},
	}
}

func getEntry(ctx context.Context, configPath string, debug bool, id string) error {
	cfg, err := loadConfig(configPath, debug)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	hit, err := st.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("getting %s: %w", id, err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(hit)
}
