package errors

import (
	"fmt"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// InvalidRoot represents an external directory that can't take part in a
// link.
type InvalidRoot struct {
	Path   string
	Reason string
}

func (err InvalidRoot) Error() string {
	return fmt.Sprintf("invalid external directory %q: %s", err.Path, err.Reason)
}

// UnknownLink is returned when a link is referenced by a name that isn't
// registered.
type UnknownLink struct {
	Name string
}

func (err UnknownLink) Error() string {
	return fmt.Sprintf("no link named %q", err.Name)
}

// FriendlyMessage implements the friendlyError interface.
func (err UnknownLink) FriendlyMessage() string {
	return fmt.Sprintf("There is no link named %q in this project.\n"+
		"Run `linksync status` to see the available links.", err.Name)
}
