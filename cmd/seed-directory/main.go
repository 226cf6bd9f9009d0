package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/config"
	"github.com/garyjia/budget-approval/internal/container"
	"github.com/garyjia/budget-approval/internal/infrastructure/directoryfile"
	"github.com/garyjia/budget-approval/pkg/utils"
)

// Loads organizations and users from a YAML fixture into the approval database
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	dirPath := flag.String("file", "configs/directory.example.yaml", "path to the directory YAML file")
	dryRun := flag.Bool("dry-run", false, "validate the directory file without writing")
	flag.Parse()

	file, err := directoryfile.Load(*dirPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ %s: %d organizations, %d users\n", *dirPath, len(file.Organizations), len(file.Users))
	if *dryRun {
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "seed-directory",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, file, logger); err != nil {
		logger.Error("Failed to seed directory", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, file *directoryfile.File, logger *zap.Logger) error {
	ctx := context.Background()
	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	defer c.Close()

	summary, err := directoryfile.Apply(ctx, c.DB(), c.Directory(), file, logger)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Seeded %d organizations and %d users into %s\n",
		summary.Organizations, summary.Users, cfg.Database.Path)
	return nil
}
