// Package registrytesting holds the fixtures shared by the registry tests: a
// logger and, for the integration tests, a blob store container on the
// azurite emulator.
package registrytesting

import (
	"context"
	"testing"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"
)

type TestContext struct {
	Log    logger.Logger
	Storer *azblob.Storer
	T      *testing.T
}

type TestConfig struct {
	TestLabelPrefix string
	LogLevel        string // can be "" defaults to NOOP
	Container       string // can be "" defaults to TestLabelPrefix
}

// NewTestContext provides a logger only. Use NewAzuriteTestContext for tests
// that need the blob store.
func NewTestContext(t *testing.T, cfg TestConfig) TestContext {
	level := cfg.LogLevel
	if level == "" {
		level = "NOOP"
	}
	logger.New(level)
	t.Cleanup(logger.OnExit)
	return TestContext{
		T:   t,
		Log: logger.Sugar.WithServiceName(cfg.TestLabelPrefix),
	}
}

func NewAzuriteTestContext(t *testing.T, cfg TestConfig) TestContext {
	c := NewTestContext(t, cfg)

	container := cfg.Container
	if container == "" {
		container = cfg.TestLabelPrefix
	}

	var err error
	c.Storer, err = azblob.NewDev(azblob.NewDevConfigFromEnv(), container)
	if err != nil {
		t.Fatalf("failed to connect to blob store emulator: %v", err)
	}
	client := c.Storer.GetServiceClient()
	// Note: we expect a 'already exists' error here and ignore it.
	_, _ = client.CreateContainer(context.Background(), container, nil)
	return c
}

func (c *TestContext) GetLog() logger.Logger { return c.Log }

func (c *TestContext) GetStorer() *azblob.Storer { return c.Storer }

func (c *TestContext) DeleteBlobsByPrefix(blobPrefixPath string) {
	var blobs []string
	var marker azblob.ListMarker
	for {
		r, err := c.Storer.List(
			context.Background(),
			azblob.WithListPrefix(blobPrefixPath), azblob.WithListMarker(marker))
		require.NoError(c.T, err)

		for _, i := range r.Items {
			blobs = append(blobs, *i.Name)
		}
		if len(r.Items) == 0 || r.Marker == nil {
			break
		}
		marker = r.Marker
	}
	for _, blobPath := range blobs {
		require.NoError(c.T, c.Storer.Delete(context.Background(), blobPath))
	}
}
