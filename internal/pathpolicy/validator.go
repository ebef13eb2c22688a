package pathpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Operation names the filesystem action a path is being validated for.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
	OpGlob   Operation = "glob"
	OpGrep   Operation = "grep"
)

func (op Operation) mutating() bool {
	return op == OpWrite || op == OpEdit || op == OpDelete
}

// Code is one of the rejection reasons spec §4.2 names.
type Code string

const (
	CodeOutsideAllowed  Code = "OUTSIDE_ALLOWED"
	CodeBlockedByPolicy Code = "BLOCKED_BY_POLICY"
	CodeNotInAllowlist  Code = "NOT_IN_ALLOWLIST"
	CodeReadOnly        Code = "READ_ONLY"
	CodeInvalidPath     Code = "INVALID_PATH"
)

// ValidationError is returned for every rejected path; callers switch on
// Code rather than parsing Error().
type ValidationError struct {
	Code Code
	Path string
	Op   Operation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Path, e.Op)
}

// Result is the successful outcome of Validate.
type Result struct {
	NormalizedRealPath string
	IsReadonly         bool
	IsDirectory        bool
}

// defaultBlocklist matches spec §4.2 step 4's default set.
var defaultBlocklist = []string{"*.env", "*.key", ".git/**", "__pycache__/**", "*.pyc"}

// Validator is bound to one configured session (via Resolver.Get) and
// performs the translate-then-validate chain for each path operation.
type Validator struct {
	session *session
}

// Resolve performs only canonical→real translation (step 1-2), without
// the policy checks — used by callers (e.g. the sandbox envelope) that
// need the real path of an already-validated location.
func (v *Validator) Resolve(canonical string) (real string, readonly bool, err error) {
	return v.translate(canonical)
}

// Validate runs the full spec §4.2 chain for one (path, operation) pair.
func (v *Validator) Validate(canonical string, op Operation) (Result, error) {
	if err := checkControlChars(canonical); err != nil {
		return Result{}, &ValidationError{CodeInvalidPath, canonical, op}
	}

	trimmed := strings.TrimSpace(canonical)
	if trimmed == "" || trimmed == "." {
		return Result{
			NormalizedRealPath: v.session.cfg.WorkspacePath,
			IsReadonly:         false,
			IsDirectory:        true,
		}, nil
	}

	real, readonly, err := v.translate(canonical)
	if err != nil {
		return Result{}, &ValidationError{CodeOutsideAllowed, canonical, op}
	}

	resolvedReal, isNewFile := resolveSymlinks(real)

	if !v.withinKnownRoot(resolvedReal) {
		return Result{}, &ValidationError{CodeOutsideAllowed, canonical, op}
	}

	if matchesAny(defaultBlocklist, canonicalForm(canonical)) {
		return Result{}, &ValidationError{CodeBlockedByPolicy, canonical, op}
	}

	if allow := v.session.cfg.AllowedPatterns; len(allow) > 0 && !matchesAny(allow, canonicalForm(canonical)) {
		return Result{}, &ValidationError{CodeNotInAllowlist, canonical, op}
	}

	if op.mutating() && (readonly || v.underReadOnlyPrefix(canonical)) {
		return Result{}, &ValidationError{CodeReadOnly, canonical, op}
	}

	info, statErr := os.Stat(resolvedReal)
	isDir := statErr == nil && info.IsDir()
	if isNewFile {
		isDir = false
	}

	return Result{
		NormalizedRealPath: resolvedReal,
		IsReadonly:         readonly,
		IsDirectory:        isDir,
	}, nil
}

// translate maps a canonical path to (real path, is-readonly-overlay).
func (v *Validator) translate(canonical string) (string, bool, error) {
	p := strings.TrimSpace(canonical)
	p = strings.TrimPrefix(p, "/workspace")
	p = strings.TrimPrefix(p, "/")

	switch {
	case strings.HasPrefix(p, "external/ro/"):
		rest := strings.TrimPrefix(p, "external/ro/")
		name, tail := splitFirstSegment(rest)
		if ov, ok := v.session.overlays["ro/"+name]; ok {
			return filepath.Join(ov.RealPath, tail), true, nil
		}
		if ov, ok := v.session.overlays["ro/"]; ok {
			return filepath.Join(ov.RealPath, rest), true, nil
		}
		return "", false, fmt.Errorf("pathpolicy: no read-only overlay named %q", name)

	case strings.HasPrefix(p, "external/rw/"):
		rest := strings.TrimPrefix(p, "external/rw/")
		name, tail := splitFirstSegment(rest)
		if ov, ok := v.session.overlays["rw/"+name]; ok {
			return filepath.Join(ov.RealPath, tail), false, nil
		}
		if ov, ok := v.session.overlays["rw/"]; ok {
			return filepath.Join(ov.RealPath, rest), false, nil
		}
		return "", false, fmt.Errorf("pathpolicy: no read-write overlay named %q", name)

	case strings.HasPrefix(p, "external/persistent"):
		rest := strings.TrimPrefix(p, "external/persistent")
		rest = strings.TrimPrefix(rest, "/")
		ov, ok := v.session.overlays["persistent"]
		if !ok {
			return "", false, fmt.Errorf("pathpolicy: no persistent storage configured")
		}
		return filepath.Join(ov.RealPath, rest), false, nil

	default:
		// Relative paths and bare filenames normalize to <workspace>/…
		return filepath.Join(v.session.cfg.WorkspacePath, p), false, nil
	}
}

// withinKnownRoot is the boundary check of step 3: the real path must be
// a descendant of the workspace or one of the declared overlay roots.
func (v *Validator) withinKnownRoot(real string) bool {
	roots := []string{v.session.cfg.WorkspacePath}
	for _, ov := range v.session.overlays {
		roots = append(roots, ov.RealPath)
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		if isDescendant(root, real) {
			return true
		}
	}
	return false
}

// underReadOnlyPrefix reports whether canonical falls under a
// configured read-only prefix (e.g. the skills directory) independent
// of the overlay-level readonly flag.
func (v *Validator) underReadOnlyPrefix(canonical string) bool {
	for _, p := range v.session.cfg.SkillsPaths {
		if strings.HasPrefix(canonical, p) {
			return true
		}
	}
	return false
}

func splitFirstSegment(p string) (head, rest string) {
	idx := strings.IndexByte(p, '/')
	if idx < 0 {
		return p, ""
	}
	return p[:idx], p[idx+1:]
}

// canonicalForm is the form blocklist/allowlist patterns match against:
// the canonical path stripped of its leading /workspace, so patterns
// like ".git/**" match at the workspace root. Paths under an overlay keep
// their "external/..." prefix, so there only patterns that match the
// basename (see matchesAny) apply.
func canonicalForm(canonical string) string {
	p := strings.TrimPrefix(strings.TrimSpace(canonical), "/workspace")
	return strings.TrimPrefix(p, "/")
}

func matchesAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
		// doublestar.Match requires a full-path match; also check
		// basename for patterns like "*.env" applied anywhere in the tree.
		if ok, _ := doublestar.Match(pat, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// maxPathLength matches Linux's PATH_MAX; paths beyond it fail
// gracefully rather than panicking deep in a syscall.
const maxPathLength = 4096

func checkControlChars(path string) error {
	if len(path) > maxPathLength {
		return fmt.Errorf("pathpolicy: path exceeds %d bytes", maxPathLength)
	}
	for _, r := range path {
		if r == 0 || (r < 0x20 && r != '\t') {
			return fmt.Errorf("pathpolicy: control character in path")
		}
	}
	return nil
}

// resolveSymlinks follows symlinks in real, treating a broken symlink
// (or a path whose parent exists but leaf doesn't) as "new file under
// parent" per spec §4.2 edge cases, rather than failing.
func resolveSymlinks(real string) (resolved string, isNewFile bool) {
	resolved, err := filepath.EvalSymlinks(real)
	if err == nil {
		return resolved, false
	}
	parent := filepath.Dir(real)
	parentResolved, perr := filepath.EvalSymlinks(parent)
	if perr != nil {
		return real, true
	}
	return filepath.Join(parentResolved, filepath.Base(real)), true
}

// isDescendant reports whether target is root or lies under root.
func isDescendant(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}
