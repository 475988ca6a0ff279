package compiler

type WarningKind string

const (
	// EmptySelector: a tag matched no host, or a host selector named an unknown host.
	EmptySelector WarningKind = "EmptySelector"
	// ServiceOmitted: an optional service produced no rules.
	ServiceOmitted WarningKind = "ServiceOmitted"
	// UnknownService: a requested service name is not in the catalog.
	UnknownService WarningKind = "UnknownService"
)

type Warning struct {
	Kind     WarningKind
	Service  string
	Selector string
	Message  string
}

// Report describes one compilation run alongside its rule table.
type Report struct {
	RunID      string
	Services   int
	Omitted    []string
	Candidates int
	Rules      int
	// Broad counts rules with an "any" or wider than /16 endpoint, or a port
	// span over 100.
	Broad    int
	Warnings []Warning
}
