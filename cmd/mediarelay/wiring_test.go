package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/admission"
	"mediarelay/internal/config"
	"mediarelay/internal/descriptions"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/transport"
	"mediarelay/internal/transport/transporttest"
	"mediarelay/internal/worker/queue"
)

func withConfig(t *testing.T, mutate func(c *config.Config)) {
	t.Helper()
	prev := cfg
	cfg = config.Default()
	cfg.Scratch.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	t.Cleanup(func() { cfg = prev })
}

func discard() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestNewCoordinatorFollowsOrder(t *testing.T) {
	withConfig(t, func(c *config.Config) {
		c.Delivery.Order = []string{config.StrategyReupload, config.StrategyDirect}
	})
	dir, err := openScratch(context.Background(), discard())
	require.NoError(t, err)

	c, err := newCoordinator(transporttest.New(), dir, discard())
	require.NoError(t, err)
	assert.Equal(t, []string{"reupload", "direct"}, c.Strategies())
}

func TestNewCoordinatorRejectsUnknownStrategy(t *testing.T) {
	withConfig(t, func(c *config.Config) {
		c.Delivery.Order = []string{"carrier-pigeon"}
	})
	dir, err := openScratch(context.Background(), discard())
	require.NoError(t, err)

	_, err = newCoordinator(transporttest.New(), dir, discard())
	require.Error(t, err)
}

func TestMemoryBackends(t *testing.T) {
	withConfig(t, nil)

	q, table := newQueue(nil)
	assert.IsType(t, &queue.MemoryQueue{}, q)
	assert.IsType(t, &admission.MemoryTable{}, table)
	assert.IsType(t, &descriptions.MemoryStore{}, newDescriptions(nil))
}

func TestAdmissionDisabled(t *testing.T) {
	withConfig(t, func(c *config.Config) { c.Admission.Enabled = false })

	_, table := newQueue(nil)
	assert.Nil(t, table)
}

func TestPace(t *testing.T) {
	withConfig(t, func(c *config.Config) { c.Delivery.SendInterval = 0 })
	rec := transporttest.New()
	assert.Same(t, rec, pace(rec).(*transporttest.Recorder))

	withConfig(t, nil)
	assert.IsType(t, &transport.Paced{}, pace(rec))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "mediarelay dev\n", out.String())
}
