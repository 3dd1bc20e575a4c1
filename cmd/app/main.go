package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/sowilo/internal"
	pkgconfig "github.com/starford/sowilo/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func export(defaultFormat string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		designID := cmd.Args().First()
		if designID == "" {
			return fmt.Errorf("usage: %s <design-id>", cmd.Name)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		format := defaultFormat
		if f := cmd.String("format"); f != "" {
			format = f
		}
		out, err := internal.Export(ctx, designID, format, internal.WithConfig(cfg))
		if err != nil {
			return fmt.Errorf("export %s: %w", designID, err)
		}
		_, err = fmt.Fprintln(os.Stdout, out)
		return err
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "sowilo",
		Usage:  "Visual HTML design editor backend with undo history, draft recovery and retried saves",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the editing tools over MCP on stdio",
				Action: mcp,
			},
			{
				Name:      "export",
				Usage:     "Print a stored design",
				ArgsUsage: "<design-id>",
				Action:    export("html"),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "html, markdown or outline",
					},
				},
			},
			{
				Name:      "outline",
				Usage:     "Print the element tree of a stored design",
				ArgsUsage: "<design-id>",
				Action:    export("outline"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
