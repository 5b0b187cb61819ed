package sync

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

func stat(path string) (os.FileInfo, bool) {
	fi, err := fs.Stat(path)
	if err != nil {
		return nil, false
	}
	return fi, true
}

func exists(path string) bool {
	_, ok := stat(path)
	return ok
}

func dirExists(path string) bool {
	fi, ok := stat(path)
	return ok && fi.IsDir()
}

// modTime returns the modification time of the path. Missing paths are
// older than any real file.
func modTime(path string) time.Time {
	fi, ok := stat(path)
	if !ok {
		return time.Time{}
	}
	return fi.ModTime()
}
