package declare

const (
	// Identifier is the reserved global function name scripts call to
	// declare a dependency.
	Identifier = "include"

	// Latest is the constraint used for declarations without a version.
	// It always resolves through the registry, never purely from cache.
	Latest = "latest"
)

// Site is one include() call found in a script.
type Site struct {
	Name       string `json:"name"`               // Package name (string literal)
	Version    string `json:"version,omitempty"`  // Version constraint literal, empty when absent
	HasVersion bool   `json:"has_version"`        // Whether a version argument was given
	Variable   string `json:"variable,omitempty"` // Nearest enclosing variable or assignment target, if any
	Line       int    `json:"line"`               // 1-based line of the call, 0 when unknown
	Column     int    `json:"column"`             // 1-based column of the call, 0 when unknown
}

// Constraint returns the normalized version constraint: the declared
// version, or [Latest] when none (or an empty one) was given.
func (s Site) Constraint() string {
	if !s.HasVersion || s.Version == "" {
		return Latest
	}
	return s.Version
}

// Spec returns "name@constraint", the form used for include table keys and
// npm install arguments.
func (s Site) Spec() string {
	return s.Name + "@" + s.Constraint()
}

func (s Site) String() string { return s.Spec() }
