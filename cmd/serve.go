package cmd

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/handlers"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog browser web server",
	Long:  `Start a read-only web server with HTML and JSON views of the catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") {
			port = cfg.Server.Port
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.EnsureSchema(cmd.Context()); err != nil {
			return err
		}

		app := fiber.New(fiber.Config{
			AppName:               "lprwatch",
			DisableStartupMessage: true,
		})
		app.Use(fiberlogger.New())

		handlers.Register(app, db, logger)

		ctx, cancel := signalContext()
		defer cancel()
		go func() {
			<-ctx.Done()
			_ = app.Shutdown()
		}()

		logger.Info("starting server", zap.String("port", port))
		if err := app.Listen(":" + port); err != nil {
			logger.Error("failed to start server", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
}
