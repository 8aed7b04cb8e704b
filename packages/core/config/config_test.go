package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

func TestFindAndLoadConfig(t *testing.T) {
	t.Run("defaults when nothing is found", func(t *testing.T) {
		cfg, path, err := FindAndLoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.True(t, cfg.IsDefault())
		assert.True(t, cfg.GetParallelizeTestCollections())
	})

	t.Run("json", func(t *testing.T) {
		dir := t.TempDir()
		content := `{"stopOnFail": true, "maxParallelThreads": 4, "explicit": "on"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hitrun.json"), []byte(content), 0644))

		cfg, path, err := FindAndLoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "hitrun.json"), path)
		assert.True(t, cfg.GetStopOnFail())
		assert.Equal(t, 4, cfg.MaxParallelThreads)
		assert.Equal(t, "on", cfg.Explicit)
		assert.Equal(t, "conservative", cfg.ParallelAlgorithm, "unset fields keep defaults")
	})

	t.Run("yaml", func(t *testing.T) {
		dir := t.TempDir()
		content := "parallelizeTestCollections: false\nparallelAlgorithm: aggressive\nlongRunningTestSeconds: 5\nreporters: [console, junit]\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".hitrun.yaml"), []byte(content), 0644))

		cfg, _, err := FindAndLoadConfig(dir)
		require.NoError(t, err)
		assert.False(t, cfg.GetParallelizeTestCollections())
		assert.Equal(t, "aggressive", cfg.ParallelAlgorithm)
		assert.Equal(t, 5, cfg.LongRunningTestSeconds)
		assert.Equal(t, []string{"console", "junit"}, cfg.Reporters)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hitrun.json"), []byte(`{"explicit": "maybe"}`), 0644))

		_, _, err := FindAndLoadConfig(dir)
		assert.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.MaxParallelThreads = 8
	base.Reporters = []string{"console"}

	merged := base.Merge(&Config{
		StopOnFail: BoolPtr(true),
		Explicit:   "only",
		Reporters:  []string{"json"},
	})

	assert.True(t, merged.GetStopOnFail())
	assert.Equal(t, "only", merged.Explicit)
	assert.Equal(t, 8, merged.MaxParallelThreads)
	assert.Equal(t, []string{"json"}, merged.Reporters)
	assert.False(t, base.GetStopOnFail(), "merge does not mutate the receiver")
	assert.Same(t, base, base.Merge(nil))
}

func TestOptions(t *testing.T) {
	seed := int64(42)
	cfg := DefaultConfig().Merge(&Config{
		ParallelizeTestCollections: BoolPtr(false),
		MaxParallelThreads:         runner.Unlimited,
		ParallelAlgorithm:          "aggressive",
		FailSkips:                  BoolPtr(true),
		LongRunningTestSeconds:     3,
		Order:                      "random",
		Seed:                       &seed,
	})

	opts, err := cfg.Options(nil)
	require.NoError(t, err)
	assert.True(t, opts.DisableParallelization)
	assert.Equal(t, runner.Unlimited, opts.MaxParallelThreads)
	assert.Equal(t, runner.Aggressive, opts.ParallelAlgorithm)
	assert.Equal(t, runner.ExplicitOff, opts.Explicit)
	assert.True(t, opts.FailSkips)
	assert.Equal(t, 3*time.Second, opts.LongRunningTestTime)
	assert.Equal(t, model.RandomOrderer{Seed: 42}, opts.TestCaseOrderer)
	require.NotNil(t, opts.Seed)
	assert.Equal(t, int64(42), *opts.Seed)
}

func TestOrderers(t *testing.T) {
	for order, want := range map[string]model.TestCaseOrderer{
		"default":     model.DefaultTestCaseOrderer{},
		"displayName": model.DisplayNameOrderer{},
		"declaration": model.DeclarationOrderer{},
	} {
		cfg := &Config{Order: order}
		got, err := cfg.orderer()
		require.NoError(t, err)
		assert.Equal(t, want, got, order)
	}

	_, err := (&Config{Order: "alphabetical"}).orderer()
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.HistoryDB = "history.db"

	for _, name := range []string{"hitrun.json", "hitrun.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveConfig(path))
		loaded, _, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "history.db", loaded.HistoryDB, name)
	}
}
