package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var imagePath string
	var pretty bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the products in a local image and print the results as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// stdout carries the JSON result
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			a, err := buildApp(signalCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			image, err := a.preparer.Prepare(data)
			if err != nil {
				return err
			}
			results, err := a.service.ResolveAll(signalCtx, image, a.catalog)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetEscapeHTML(false)
			if pretty {
				encoder.SetIndent("", "  ")
			}
			return encoder.Encode(results)
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path to the product photo")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}
