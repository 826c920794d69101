//	@title			Confras API
//	@version		1.0
//	@description	Multi-tenant event pages: organizers sign up for a page at /festa/{slug}, guests send payment receipts, organizers approve them.

//	@contact.name	Confras Support
//	@contact.email	suporte@confras.app

//	@license.name	MIT
//	@license.url	http://opensource.org/licenses/MIT

//	@BasePath	/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and JWT token.

package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "confras",
		Short:   "Confras event pages server",
		Version: Version,
		// Running the binary without a subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the configuration and builds the logger every command
// starts from.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	if gin.Mode() == gin.DebugMode || cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapConfig.Build()
}
