package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sfisum/pkg/sfisum/config"
	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/engine"
	"github.com/jamesainslie/sfisum/pkg/sfisum/hasher"
	"github.com/jamesainslie/sfisum/pkg/sfisum/output"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Decode(v)
	require.NoError(t, err)
	return cfg
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestEngineOptions(t *testing.T) {
	viper.Reset()
	cfg := testConfig(t)
	cfg.Threshold = "4MiB"
	cfg.Workers.Small = 3
	cfg.Exclude = []string{"*.tmp"}
	cfg.OutputDir = "/tmp/manifests"

	opts, err := engineOptions(cfg)
	require.NoError(t, err)

	assert.Equal(t, 4*types.MiB, opts.Hasher.Threshold)
	assert.Equal(t, 3, opts.Hasher.SmallWorkers)
	assert.GreaterOrEqual(t, opts.Hasher.LargeWorkers, 1)
	assert.Equal(t, cfg.ProgressInterval, opts.Hasher.ProgressInterval)
	assert.Equal(t, []string{"*.tmp"}, opts.Exclude)
	assert.Equal(t, "/tmp/manifests", opts.OutputDir)
}

func TestEngineOptionsBadThreshold(t *testing.T) {
	viper.Reset()
	cfg := testConfig(t)
	cfg.Threshold = "lots"

	_, err := engineOptions(cfg)
	assert.ErrorIs(t, err, types.ErrInvalidSize)
}

func TestDispatchGenerateThenValidate(t *testing.T) {
	viper.Reset()
	viper.Set("no_progress", true)
	dir := writeTree(t, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "bravo",
	})

	opts, err := engineOptions(testConfig(t))
	require.NoError(t, err)

	for _, typ := range digest.Types() {
		t.Run(typ.Name(), func(t *testing.T) {
			outDir := t.TempDir()
			opts.OutputDir = outDir

			res, err := dispatch(context.Background(), runRequest{
				mode: engine.ModeGenerate,
				hash: typ,
				base: dir,
				save: true,
			}, opts)
			require.NoError(t, err)
			assert.Equal(t, "generate", res.Mode)
			assert.Equal(t, 2, res.Files)
			assert.Equal(t, 2, res.Hashed)
			require.NotEmpty(t, res.SavedTo)
			assert.Equal(t, outDir, filepath.Dir(res.SavedTo))
			assert.Equal(t, "."+typ.Suffix(), filepath.Ext(res.SavedTo))

			req, err := manifestRequest([]string{res.SavedTo, dir})
			require.NoError(t, err)
			assert.Equal(t, typ, req.hash)
			req.mode = engine.ModeValidate

			res, err = dispatch(context.Background(), req, opts)
			require.NoError(t, err)
			assert.Equal(t, "validate", res.Mode)
			assert.Equal(t, 0, res.Events)
			assert.Empty(t, res.Categories)
		})
	}
}

func TestDispatchRefreshReportsChanges(t *testing.T) {
	viper.Reset()
	viper.Set("no_progress", true)
	dir := writeTree(t, map[string]string{"keep.txt": "same", "gone.txt": "bye"})

	opts, err := engineOptions(testConfig(t))
	require.NoError(t, err)
	opts.OutputDir = t.TempDir()

	res, err := dispatch(context.Background(), runRequest{
		mode: engine.ModeGenerate, hash: digest.TypeSHA256, base: dir, save: true,
	}, opts)
	require.NoError(t, err)
	saved := res.SavedTo

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello"), 0o644))

	res, err = dispatch(context.Background(), runRequest{
		mode: engine.ModeFastRefresh, hash: digest.TypeSHA256, manifest: saved, base: dir,
	}, opts)
	require.NoError(t, err)

	gone := res.Category(output.KeyOnlyInManifest)
	require.NotNil(t, gone)
	assert.Equal(t, []string{filepath.Join(dir, "gone.txt")}, gone.Paths)

	added := res.Category(output.KeyOnlyOnDisk)
	require.NotNil(t, added)
	assert.Equal(t, []string{filepath.Join(dir, "new.txt")}, added.Paths)
	assert.Empty(t, res.SavedTo)
}

func TestDispatchFullRefreshNotImplemented(t *testing.T) {
	viper.Reset()
	viper.Set("no_progress", true)

	_, err := dispatch(context.Background(), runRequest{
		mode: engine.ModeFullRefresh, hash: digest.TypeMD5, manifest: "x.md5", base: t.TempDir(),
	}, engine.Options{})
	assert.ErrorIs(t, err, engine.ErrNotImplemented)
}

func TestDispatchInterruptedWalk(t *testing.T) {
	viper.Reset()
	viper.Set("no_progress", true)
	dir := writeTree(t, map[string]string{"a.txt": "alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := dispatch(ctx, runRequest{mode: engine.ModeGenerate, hash: digest.TypeMD5, base: dir, save: true}, engine.Options{})
	require.ErrorIs(t, err, hasher.ErrInterrupted)
	require.NotNil(t, res)
	assert.Empty(t, res.SavedTo)
}

func TestDispatchUnknownType(t *testing.T) {
	_, err := dispatch(context.Background(), runRequest{mode: engine.ModeGenerate, hash: digest.Type(99)}, engine.Options{})
	assert.ErrorIs(t, err, digest.ErrUnknownType)
}

func TestManifestRequestMissingFile(t *testing.T) {
	viper.Reset()
	_, err := manifestRequest([]string{filepath.Join(t.TempDir(), "nope.txt")})
	assert.Error(t, err)
}

func TestExitError(t *testing.T) {
	var err error = &exitError{code: exitFindings}
	var ee *exitError
	if !errors.As(err, &ee) {
		t.Fatal("errors.As failed for exitError")
	}
	if ee.code != 2 {
		t.Errorf("code = %d, want 2", ee.code)
	}
	if ee.Error() != "" {
		t.Errorf("Error() = %q, want empty", ee.Error())
	}
}
