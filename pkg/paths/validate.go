package paths

import (
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/errors"
)

// ValidateExternalRoot checks whether `root` can be used as an external
// directory of a link whose local directory is `localRoot`. The project
// directory is the base of `conv`.
func ValidateExternalRoot(fs afero.Fs, conv Converter, root, localRoot string) error {
	if root == "" {
		return errors.InvalidRoot{Path: root, Reason: "the path is empty"}
	}

	abs := conv.ToAbsolute(root)
	exists, err := afero.Exists(fs, abs)
	if err != nil {
		return errors.WithContext(err, "stat")
	}
	if !exists {
		return errors.InvalidRoot{Path: root, Reason: "the directory does not exist"}
	}

	if isDir, err := afero.IsDir(fs, abs); err != nil || !isDir {
		return errors.InvalidRoot{Path: root, Reason: "the path is not a directory"}
	}

	if localRoot != "" {
		localRoot = conv.ToAbsolute(localRoot)
		if IsInside(localRoot, abs) {
			return errors.InvalidRoot{Path: root,
				Reason: "must not be the local directory or one of its parents"}
		}
		if IsInside(abs, localRoot) {
			return errors.InvalidRoot{Path: root,
				Reason: "must not be inside the local directory"}
		}
	}

	if conv.Base != "" {
		if IsInside(conv.Base, abs) {
			return errors.InvalidRoot{Path: root,
				Reason: "must not be a parent directory of the current project"}
		}
		if IsInside(abs, conv.Base) {
			return errors.InvalidRoot{Path: root,
				Reason: "must be outside the current project"}
		}
	}
	return nil
}
