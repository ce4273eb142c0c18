package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DerivePattern turns an example file name into a glob matching every file
// of the same experiment. Each stamp match in the base name becomes a "*";
// the rest of the name is matched literally. The search stays in the seed's
// own directory.
func DerivePattern(seed string, stamps []*regexp.Regexp) (string, error) {
	dir, base := filepath.Split(seed)
	if base == "" || base == "." || base == ".." {
		return "", fmt.Errorf("%w: %q has no file name", ErrPattern, seed)
	}

	covered := make([]bool, len(base))
	for _, re := range stamps {
		for _, loc := range re.FindAllStringIndex(base, -1) {
			for i := loc[0]; i < loc[1]; i++ {
				covered[i] = true
			}
		}
	}

	var b strings.Builder
	for i := 0; i < len(base); i++ {
		if covered[i] {
			if i == 0 || !covered[i-1] {
				b.WriteByte('*')
			}
			continue
		}
		switch base[i] {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(base[i])
	}

	pattern := b.String()
	if strings.Trim(pattern, "*") == "" {
		return "", fmt.Errorf("%w: %q is made entirely of variable parts", ErrPattern, base)
	}
	return filepath.Join(dir, pattern), nil
}

// ResolveFiles lists the regular files matching pattern, sorted by path.
func ResolveFiles(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrPattern, pattern, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrIO, m, err)
		}
		paths = append(paths, abs)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no files match %q", ErrNotFound, pattern)
	}

	sort.Strings(paths)
	return paths, nil
}

// hasExtension reports whether path ends in ext, ignoring case.
func hasExtension(path, ext string) bool {
	if ext == "" {
		return true
	}
	return strings.EqualFold(filepath.Ext(path), ext)
}
