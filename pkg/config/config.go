package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	goVersion "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/sidkik/linksync/pkg/errors"
)

// parseConfigErrTemplate is a template for when the CLI fails to parse yaml
// configuration files. This can happen for a multitude of reasons, including
// extraneous fields and incorrect field types. However, the yaml library
// constructs errors in a way that loses context, and so we can only pass the
// error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// CurrentVersion is the version written to newly created configuration
// files.
const CurrentVersion = "1.0.0"

// SupportedVersions is the range of configuration file versions that this
// binary understands.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

var supportedVersions = goVersion.MustConstraints(goVersion.NewConstraint(SupportedVersions))

type configInterface interface {
	getVersion() string
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of linksync.\n"+
		"Expected a version matching %q, but got %q.", err.path, err.exp, err.actual)
}

func parseConfig(path string, config configInterface) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	err = yaml.Unmarshal(configBytes, config)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if !isSupportedVersion(config.getVersion()) {
		return incompatibleVersionError{path, SupportedVersions, config.getVersion()}
	}

	// Do a strict unmarshal to check for any extra fields. We do a non-strict
	// unmarshal first so that we can catch version errors before erroring on
	// extra fields.
	err = yaml.UnmarshalStrict(configBytes, config, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}

func isSupportedVersion(version string) bool {
	parsed, err := goVersion.NewVersion(version)
	if err != nil {
		return false
	}
	return supportedVersions.Check(parsed)
}

func writeConfig(path string, config interface{}) error {
	configBytes, err := yaml.Marshal(config)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := fs.MkdirAll(parentDir(path), 0755); err != nil {
		return errors.WithContext(err, "create parent directory")
	}

	if err := afero.WriteFile(fs, path, configBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}
