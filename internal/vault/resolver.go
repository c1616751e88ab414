package vault

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Reserved subdirectory names under each namespace root.
const (
	trashDirName   = ".trash"
	stagingDirName = ".uploading"
)

// invalidNameChars are rejected in leaf names on every platform so trees
// stay portable across host filesystems.
const invalidNameChars = `<>:"/\|?*`

// caseInsensitiveFS reports whether containment checks fold case, matching
// the default filesystem behavior of the platform.
var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// Resolver validates caller-supplied relative paths against one absolute
// namespace root. Resolution is purely lexical: symlinks are not followed,
// and the cleaned result must stay inside the root.
type Resolver struct {
	root string // absolute, cleaned, no trailing separator
}

// NewResolver creates a resolver for the given root directory. The root
// does not need to exist yet.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalize root %q: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root this resolver guards.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve validates rel (either slash style, possibly empty) and returns
// the absolute path it names inside the root. Every rejection wraps
// ErrPathInvalid. An empty path resolves to the root itself.
func (r *Resolver) Resolve(rel string) (string, error) {
	if rel == "" {
		return r.root, nil
	}
	// Null bytes could truncate paths on some filesystems
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("null bytes not allowed: %w", ErrPathInvalid)
	}
	// Colons cover drive letters ("C:") and NTFS alternate data streams
	if strings.ContainsRune(rel, ':') {
		return "", fmt.Errorf("volume indicators not allowed: %w", ErrPathInvalid)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return "", fmt.Errorf("absolute paths not allowed: %w", ErrPathInvalid)
	}
	// Check for path traversal: ".." as a component (not "..." which is valid).
	// Split on both forward and back slashes to handle all platforms.
	for _, sep := range []string{"/", "\\"} {
		for _, part := range strings.Split(rel, sep) {
			if part == ".." {
				return "", fmt.Errorf("path traversal not allowed: %w", ErrPathInvalid)
			}
		}
	}

	joined := filepath.Join(r.root, filepath.FromSlash(strings.ReplaceAll(rel, "\\", "/")))
	if joined != r.root && !hasPathPrefix(joined, r.root) {
		return "", fmt.Errorf("resolved path escapes root: %w", ErrPathInvalid)
	}
	return joined, nil
}

// hasPathPrefix reports whether p lies under root (root itself excluded).
func hasPathPrefix(p, root string) bool {
	prefix := root + string(filepath.Separator)
	if caseInsensitiveFS {
		return len(p) >= len(prefix) && strings.EqualFold(p[:len(prefix)], prefix)
	}
	return strings.HasPrefix(p, prefix)
}

// ValidateLeafName checks a single path component supplied as a new file or
// directory name. Reserved namespace subdirectory names are refused so user
// content can never shadow the trash or staging trees.
func ValidateLeafName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty: %w", ErrInvalidArgument)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid name %q: %w", name, ErrInvalidArgument)
	}
	if strings.ContainsAny(name, invalidNameChars) {
		return fmt.Errorf("name %q contains invalid characters: %w", name, ErrInvalidArgument)
	}
	for _, c := range name {
		if c < 0x20 {
			return fmt.Errorf("name contains control characters: %w", ErrInvalidArgument)
		}
	}
	if isReservedName(name) {
		return fmt.Errorf("name %q is reserved: %w", name, ErrIllegalOperation)
	}
	return nil
}

func isReservedName(name string) bool {
	return name == trashDirName || name == stagingDirName
}

// firstSegment returns the leading component of a relative path, with both
// slash styles treated as separators.
func firstSegment(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = strings.TrimPrefix(rel, "/")
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}
