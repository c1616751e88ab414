package vault

import "fmt"

// Namespace selects one of the two managed content trees.
type Namespace int

// The two namespaces. Permanent content lives until deleted; Temporary
// content is additionally expired by the retention sweep.
const (
	Permanent Namespace = iota
	Temporary
)

// Namespaces lists both namespaces in a fixed order, for callers that
// operate on every tree (root creation, sweeps, capacity reports).
var Namespaces = []Namespace{Permanent, Temporary}

// String returns the wire name of the namespace.
func (n Namespace) String() string {
	switch n {
	case Permanent:
		return "permanent"
	case Temporary:
		return "temporary"
	default:
		return fmt.Sprintf("namespace(%d)", int(n))
	}
}

// ParseNamespace parses a wire name ("permanent" or "temporary").
func ParseNamespace(s string) (Namespace, error) {
	switch s {
	case "permanent":
		return Permanent, nil
	case "temporary":
		return Temporary, nil
	default:
		return 0, fmt.Errorf("unknown namespace %q: %w", s, ErrInvalidArgument)
	}
}

// SortField selects the listing sort key.
type SortField int

// Listing sort keys.
const (
	SortByName SortField = iota
	SortByModified
	SortBySize
)

// ParseSortField parses a wire name ("name", "modified", "size").
// An empty string defaults to name order.
func ParseSortField(s string) (SortField, error) {
	switch s {
	case "", "name":
		return SortByName, nil
	case "modified":
		return SortByModified, nil
	case "size":
		return SortBySize, nil
	default:
		return 0, fmt.Errorf("unknown sort field %q: %w", s, ErrInvalidArgument)
	}
}

// SortDirection orders a listing ascending or descending.
type SortDirection int

// Listing sort directions.
const (
	Ascending SortDirection = iota
	Descending
)

// ParseSortDirection parses a wire name ("asc" or "desc").
// An empty string defaults to ascending.
func ParseSortDirection(s string) (SortDirection, error) {
	switch s {
	case "", "asc":
		return Ascending, nil
	case "desc":
		return Descending, nil
	default:
		return 0, fmt.Errorf("unknown sort direction %q: %w", s, ErrInvalidArgument)
	}
}
