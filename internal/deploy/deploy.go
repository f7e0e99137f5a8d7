package deploy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tomlord1122/takeout/internal/config"
	applog "github.com/Tomlord1122/takeout/internal/logger"
)

// Deployer builds the image, pushes it and rolls it out with uncloud.
type Deployer struct {
	cfg    config.DeployConfig
	runner Runner
	log    *zap.Logger
}

func NewDeployer(cfg config.DeployConfig, runner Runner) *Deployer {
	return &Deployer{cfg: cfg, runner: runner, log: applog.Named("deploy")}
}

func (d *Deployer) Build(ctx context.Context) error {
	d.log.Info("building image", zap.String("image", d.cfg.Image))
	_, err := d.runner.Run(ctx, "docker", "build", "-t", d.cfg.Image, ".")
	return err
}

func (d *Deployer) Push(ctx context.Context) error {
	d.log.Info("pushing image", zap.String("image", d.cfg.Image))
	_, err := d.runner.Run(ctx, "docker", "push", d.cfg.Image)
	return err
}

// Deploy runs build, push, one `uc deploy` per service and the health wait.
// It stops at the first failing step.
func (d *Deployer) Deploy(ctx context.Context) error {
	if err := d.Build(ctx); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := d.Push(ctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	for _, svc := range d.cfg.Services {
		args := []string{}
		if d.cfg.Context != "" {
			args = append(args, "--context", d.cfg.Context)
		}
		args = append(args, "deploy", "--yes", svc)
		d.log.Info("deploying service", zap.String("service", svc))
		if _, err := d.runner.Run(ctx, "uc", args...); err != nil {
			return fmt.Errorf("deploy %s: %w", svc, err)
		}
	}
	if d.cfg.HealthURL == "" {
		return nil
	}
	d.log.Info("waiting for health", zap.String("url", d.cfg.HealthURL))
	if err := WaitForHTTP(ctx, d.cfg.HealthURL, d.cfg.PollInterval, d.cfg.Timeout); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	d.log.Info("deploy complete")
	return nil
}
