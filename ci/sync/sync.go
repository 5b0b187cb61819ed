package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/linksync/ci/util"
	"github.com/sidkik/linksync/pkg/config"
)

type step struct {
	name    string
	ops     []fsOp
	roots   []func(mockFs) string
	execute []string
	checks  []fsOp
}

func local(fs mockFs) string    { return fs.local }
func external(fs mockFs) string { return fs.external }

// Test runs the file synchronization tests against the given binary.
func Test(t *testing.T, binary string) {
	t.Run("Pull", func(t *testing.T) {
		testPull(t, binary)
	})
	t.Run("Push", func(t *testing.T) {
		testPush(t, binary)
	})
	t.Run("Sync", func(t *testing.T) {
		testSync(t, binary)
	})
	t.Run("Exclude", func(t *testing.T) {
		testExclude(t, binary)
	})
	t.Run("Automatic", func(t *testing.T) {
		testAutomatic(t, binary)
	})
}

func setup(t *testing.T, binary string, direction config.Direction, trigger config.Trigger) (mockFs, *util.TestHelper) {
	fs, err := newMockFs()
	require.NoError(t, err)

	helper := util.NewTestHelper(binary, fs.project, fs.homeDir)
	require.NoError(t, helper.WriteSettings(config.Settings{
		EnableAutomaticWarning: false,
		NotifyViaLog:           true,
		ShowConfirmation:       true,
	}))

	_, err = helper.Run(context.Background(), "init", "assets",
		"--external", fs.external, "--direction", string(direction),
		"--trigger", string(trigger))
	require.NoError(t, err)
	return fs, helper
}

func runSteps(t *testing.T, fs mockFs, helper *util.TestHelper, steps []step) {
	for _, step := range steps {
		for i, op := range step.ops {
			require.NoError(t, op(fs, step.roots[i](fs)), step.name)
		}

		args := append([]string{"execute", "assets", "--yes"}, step.execute...)
		_, err := helper.Run(context.Background(), args...)
		require.NoError(t, err, step.name)

		for _, check := range step.checks {
			for _, root := range []string{fs.local, fs.external} {
				assert.NoError(t, check(fs, root), step.name)
			}
		}
	}
}

func testPull(t *testing.T, binary string) {
	fs, helper := setup(t, binary, config.Pull, config.Manual)
	defer fs.cleanup()

	refFile := randomFile("textures/wood.png")
	other := randomFile("readme.txt")
	newer := refFile.WithContents("local edit").WithModTime(refFile.modTime.Add(time.Minute))

	runSteps(t, fs, helper, []step{
		{
			name:   "CreateExternal",
			ops:    []fsOp{createFile(refFile), createFile(other)},
			roots:  []func(mockFs) string{external, external},
			checks: []fsOp{shouldExist(refFile), shouldExist(other)},
		},
		{
			name:    "ForceOverwritesLocalEdits",
			ops:     []fsOp{createFile(newer)},
			roots:   []func(mockFs) string{local},
			execute: []string{"--force"},
			checks:  []fsOp{shouldExist(refFile)},
		},
		{
			name:   "RemoveExternal",
			ops:    []fsOp{removeFile(refFile.path)},
			roots:  []func(mockFs) string{external},
			checks: []fsOp{shouldNotExist(refFile.path), shouldExist(other)},
		},
	})
}

func testPush(t *testing.T, binary string) {
	fs, helper := setup(t, binary, config.Push, config.Manual)
	defer fs.cleanup()

	refFile := randomFile("models/tree.obj")
	changed := refFile.WithContents("changed").WithMode(0600).
		WithModTime(refFile.modTime.Add(time.Hour))

	runSteps(t, fs, helper, []step{
		{
			name:   "CreateLocal",
			ops:    []fsOp{createFile(refFile)},
			roots:  []func(mockFs) string{local},
			checks: []fsOp{shouldExist(refFile)},
		},
		{
			name:   "ChangeLocal",
			ops:    []fsOp{createFile(changed)},
			roots:  []func(mockFs) string{local},
			checks: []fsOp{shouldExist(changed)},
		},
		{
			name:   "RemoveLocal",
			ops:    []fsOp{removeFile(refFile.path)},
			roots:  []func(mockFs) string{local},
			checks: []fsOp{shouldNotExist(refFile.path)},
		},
	})
}

func testSync(t *testing.T, binary string) {
	fs, helper := setup(t, binary, config.Sync, config.Manual)
	defer fs.cleanup()

	localFile := randomFile("local.txt")
	externalFile := randomFile("external.txt")
	older := randomFile("shared.txt")
	newer := older.WithContents("newer").WithModTime(older.modTime.Add(time.Minute))

	runSteps(t, fs, helper, []step{
		{
			name: "MergeBothSides",
			ops: []fsOp{createFile(localFile), createFile(externalFile),
				createFile(older), createFile(newer)},
			roots:  []func(mockFs) string{local, external, local, external},
			checks: []fsOp{shouldExist(localFile), shouldExist(externalFile), shouldExist(newer)},
		},
		{
			name:   "PropagateDeletion",
			ops:    []fsOp{removeFile(externalFile.path)},
			roots:  []func(mockFs) string{local},
			checks: []fsOp{shouldNotExist(externalFile.path), shouldExist(localFile)},
		},
	})
}

func testExclude(t *testing.T, binary string) {
	fs, helper := setup(t, binary, config.Pull, config.Manual)
	defer fs.cleanup()

	excluded := randomFile("generated/cache.bin")
	included := randomFile("included.txt")
	require.NoError(t, createFile(excluded)(fs, fs.external))
	require.NoError(t, createFile(included)(fs, fs.external))

	_, err := helper.Run(context.Background(), "exclude",
		filepath.Join(fs.external, "generated"))
	require.NoError(t, err)

	_, err = helper.Run(context.Background(), "execute", "assets", "--yes")
	require.NoError(t, err)

	assert.NoError(t, shouldExist(included)(fs, fs.local))
	assert.NoError(t, shouldNotExist(excluded.path)(fs, fs.local))
	assert.NoError(t, shouldNotExist("generated")(fs, fs.local))
}

func testAutomatic(t *testing.T, binary string) {
	fs, helper := setup(t, binary, config.Pull, config.Automatic)
	defer fs.cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stdout, errChan, err := helper.Start(ctx, "watch")
	require.NoError(t, err)
	require.NoError(t, util.WaitForOutput(ctx, stdout, "Watching 1 links"))

	refFile := randomFile("auto/sprite.png")
	require.NoError(t, createFile(refFile)(fs, fs.external))
	assert.True(t, util.TestWithRetry(ctx, func() bool {
		return shouldExist(refFile)(fs, fs.local) == nil
	}), "automatic link never synchronized")

	require.NoError(t, removeFile(refFile.path)(fs, fs.external))
	assert.True(t, util.TestWithRetry(ctx, func() bool {
		return shouldNotExist(refFile.path)(fs, fs.local) == nil
	}), "automatic link never propagated the deletion")

	cancel()
	for err := range errChan {
		assert.NoError(t, err)
	}
}
