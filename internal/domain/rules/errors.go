package rules

import "fmt"

// MalformedTreeError reports a node that is neither a valid split nor a valid leaf
type MalformedTreeError struct {
	TreeID    int
	NodeIndex int
	Path      string // L/R steps from the root, empty for the root itself
	Reason    string
}

func (e *MalformedTreeError) Error() string {
	path := e.Path
	if path == "" {
		path = "root"
	}
	return fmt.Sprintf("malformed tree %d at node %d (%s): %s", e.TreeID, e.NodeIndex, path, e.Reason)
}

// ConfigurationError reports an invalid numeric or enum setting
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Field, e.Value, e.Reason)
}
