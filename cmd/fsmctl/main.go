// Command fsmctl has two subcommands: validate loads an FSM declaration
// file, validates it, and reports its diagnostics; serve runs the
// order-flow HTTP example service, which does not read a declaration
// file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/fla/fsmtask/config"
	"github.com/fla/fsmtask/examples/orderservice"
	"github.com/fla/fsmtask/validate"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("could not set GOMAXPROCS", zap.Error(err))
	}

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("fsmctl failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "fsmctl",
		Short: "Validate and run finite state machine declarations",
	}
	root.AddCommand(newValidateCmd(logger))
	root.AddCommand(newServeCmd(logger))
	return root
}

func newValidateCmd(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <declaration-file>",
		Short: "Validate an FSM declaration file and print its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			model, err := loader.LoadModel(args[0])
			if err != nil {
				return fmt.Errorf("load declaration: %w", err)
			}

			spec, diags := validate.Validate(model)
			if diags != nil {
				for _, d := range diags {
					logger.Warn("diagnostic", zap.String("kind", string(d.Kind)), zap.String("message", d.Message))
				}
				return fmt.Errorf("%d diagnostics reported", len(diags))
			}

			logger.Info("declaration is valid",
				zap.String("fsm", spec.Name),
				zap.Int("states", len(spec.States)),
				zap.Int("events", len(spec.Events)))
			return nil
		},
	}
}

func newServeCmd(logger *zap.Logger) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the order-flow HTTP example service",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := orderservice.New(logger)
			if err != nil {
				return fmt.Errorf("build order service: %w", err)
			}
			logger.Info("order service listening", zap.String("addr", addr))
			return orderservice.Serve(context.Background(), addr, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}
