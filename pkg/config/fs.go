package config

import (
	"path"

	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/paths"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

func parentDir(p string) string {
	return path.Dir(paths.NormalizeSlashes(p))
}
