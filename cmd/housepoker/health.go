package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/housepoker/internal/server"
)

// HealthCmd waits for a running server to report healthy. It suits
// container health checks and deploy scripts.
type HealthCmd struct {
	URL     string        `default:"http://localhost:8080" help:"Server base URL"`
	Timeout time.Duration `default:"10s" help:"How long to wait"`
}

func (c *HealthCmd) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	if err := server.WaitForHealthy(ctx, c.URL); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}
