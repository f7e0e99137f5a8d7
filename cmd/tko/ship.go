package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tomlord1122/takeout/internal/config"
	"github.com/Tomlord1122/takeout/internal/deploy"
)

func newBuildCmd(cfg func() *config.Config) *cobra.Command {
	var image string
	var push bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the container image (and optionally push it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg().Deploy
			if image != "" {
				c.Image = image
			}
			d := deploy.NewDeployer(c, deploy.NewExecRunner(".", c.StepTimeout))
			if err := d.Build(cmd.Context()); err != nil {
				return err
			}
			if push {
				return d.Push(cmd.Context())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Image tag (env DEPLOY_IMAGE)")
	cmd.Flags().BoolVar(&push, "push", false, "Push the image after building")
	return cmd
}

func newDeployCmd(cfg func() *config.Config) *cobra.Command {
	var (
		image     string
		services  []string
		healthURL string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build, push and roll out the services, then wait for health",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg().Deploy
			if image != "" {
				c.Image = image
			}
			if len(services) > 0 {
				c.Services = services
			}
			if healthURL != "" {
				c.HealthURL = healthURL
			}
			d := deploy.NewDeployer(c, deploy.NewExecRunner(".", c.StepTimeout))
			return d.Deploy(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Image tag (env DEPLOY_IMAGE)")
	cmd.Flags().StringSliceVar(&services, "service", nil, "Service to deploy; repeatable (env DEPLOY_SERVICES)")
	cmd.Flags().StringVar(&healthURL, "health-url", "", "URL that must answer 2xx after the rollout")
	return cmd
}

func newWaitCmd(cfg func() *config.Config) *cobra.Command {
	var interval, timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Poll an HTTP endpoint or container until it is healthy",
	}
	cmd.PersistentFlags().DurationVar(&interval, "interval", 0, "Poll interval (default from DEPLOY_POLL_INTERVAL)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Give up after this long (default from DEPLOY_TIMEOUT)")

	resolve := func() (time.Duration, time.Duration) {
		c := cfg().Deploy
		i, t := c.PollInterval, c.Timeout
		if interval > 0 {
			i = interval
		}
		if timeout > 0 {
			t = timeout
		}
		return i, t
	}

	httpCmd := &cobra.Command{
		Use:   "http <url>",
		Short: "Wait until the URL answers 2xx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, t := resolve()
			if err := deploy.WaitForHTTP(cmd.Context(), args[0], i, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is healthy\n", args[0])
			return nil
		},
	}

	containerCmd := &cobra.Command{
		Use:   "container <name>",
		Short: "Wait until the docker container is healthy or running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, t := resolve()
			runner := deploy.NewExecRunner("", 0)
			if err := deploy.WaitForContainer(cmd.Context(), runner, args[0], i, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "container %s is healthy\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(httpCmd, containerCmd)
	return cmd
}
