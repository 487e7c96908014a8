package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"session": {"userId": "u-1"},
		"bus": {"url": "wss://bus.example.com/stream"},
		"rest": {"baseUrl": "https://api.example.com"}
	}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "u-1", loaded.UserID)
	assert.Equal(t, "u-1", loaded.SessionID)
	assert.Equal(t, defaultQueueCapacity, loaded.QueueCapacity)
	assert.Equal(t, defaultReconnectMin, loaded.ReconnectMin)
	assert.Equal(t, 30*time.Second, loaded.Staleness.Position)
	assert.Equal(t, 60*time.Second, loaded.Staleness.BuyingPower)
	assert.True(t, loaded.Features.EnableFills)
	assert.False(t, loaded.Features.EnableProfiling)
}

func TestResolveOverrides(t *testing.T) {
	disabled := false
	loaded, err := Resolve(FileConfig{
		Session:   SessionConfig{UserID: "u-1", SessionID: "desk-3"},
		Bus:       BusConfig{URL: "wss://bus", QueueCapacity: 64, ReconnectMinMs: 100, ReconnectMaxMs: 5000},
		Rest:      RestConfig{BaseURL: "https://api", TimeoutMs: 1500},
		Staleness: StalenessConfig{PriceMs: 2000},
		Refresh:   RefreshConfig{PositionsMs: 3000},
		Features:  FeatureFlagsConfig{EnableFills: &disabled},
	})
	require.NoError(t, err)
	assert.Equal(t, "desk-3", loaded.SessionID)
	assert.Equal(t, 64, loaded.QueueCapacity)
	assert.Equal(t, 100*time.Millisecond, loaded.ReconnectMin)
	assert.Equal(t, 1500*time.Millisecond, loaded.RestTimeout)
	assert.Equal(t, 2*time.Second, loaded.Staleness.Price)
	assert.Equal(t, 30*time.Second, loaded.Staleness.Position)
	assert.Equal(t, 3*time.Second, loaded.PositionsRefresh)
	assert.False(t, loaded.Features.EnableFills)
}

func TestResolveRejectsMissingFields(t *testing.T) {
	_, err := Resolve(FileConfig{
		Bus:  BusConfig{URL: "wss://bus"},
		Rest: RestConfig{BaseURL: "https://api"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "userId")

	_, err = Resolve(FileConfig{
		Session: SessionConfig{UserID: "u-1"},
		Rest:    RestConfig{BaseURL: "https://api"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus url")

	_, err = Resolve(FileConfig{
		Session: SessionConfig{UserID: "u-1"},
		Bus:     BusConfig{URL: "wss://bus", ReconnectMinMs: 5000, ReconnectMaxMs: 100},
		Rest:    RestConfig{BaseURL: "https://api"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect")
}
