package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashmon/internal/cache"
	"cashmon/internal/config"
	"cashmon/internal/core"
)

func testConfig() *config.Config {
	return &config.Config{
		ModelPath:        "../../configs/model.yaml",
		ClusterCacheSize: 16,
		ClusterCacheTTL:  time.Minute,
	}
}

func TestBuildPipeline(t *testing.T) {
	caches := cache.NewManager(nil)
	t.Cleanup(caches.Stop)

	p, err := BuildPipeline(testConfig(), nil, caches)
	require.NoError(t, err)
	assert.Len(t, p.Schema(), 29)

	day := civil.Date{Year: 2024, Month: time.February, Day: 14}
	results, err := p.ScoreBatch(context.Background(), []core.Transaction{{
		ID:          "t1",
		BookingDate: day,
		ValueDate:   day,
		Description: "Coupon payment",
		NetAmount:   1500,
		ClientID:    "C1",
		MarketValue: 1e6,
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Cluster)
}

func TestBuildPipelineMissingArtifact(t *testing.T) {
	cfg := testConfig()
	cfg.ModelPath = "does-not-exist.yaml"
	_, err := BuildPipeline(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load model artifact")
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", "json")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = SetupLogger("bogus", "")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
