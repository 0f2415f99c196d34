// Package bundle classifies an uploaded file tree into secret configuration
// and public code, applying ignore patterns and size ceilings, and builds a
// file-tree summary of the project layout.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/buildvault/buildvault/internal/common"
)

// FileRecord identifies one file within an uploaded tree.
type FileRecord struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash,omitempty"`
}

// ProcessedBundle is the partitioner's output: the two content groups are
// disjoint, and together with Ignored they cover the full input set.
type ProcessedBundle struct {
	SecretFiles map[string][]byte
	CodeFiles   map[string][]byte
	Ignored     []string
}

// Limits are the size ceilings enforced during partitioning. A zero value
// disables the corresponding check.
type Limits struct {
	MaxSecretFileSize int64
	MaxSecretTotal    int64
	MaxCodeTotal      int64
}

// Options configure one partitioning run. Nil pattern slices fall back to
// the package defaults; callers may override either list independently.
type Options struct {
	IgnorePatterns []string
	SecretPatterns []string
	Limits         Limits
}

// Result is everything a single upload learns about its file set.
type Result struct {
	Bundle      *ProcessedBundle
	Tree        *FileTreeNode
	Records     []FileRecord
	ProjectType string
	FileCount   int
}

// Partition classifies files into secrets, code and ignored groups.
// Classification is deterministic: it depends only on the file set and the
// patterns, never on map iteration order. Size-ceiling violations fail the
// whole operation; a partial partition is never returned.
func Partition(files map[string][]byte, opts Options) (*Result, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: empty file set", common.ErrValidation)
	}

	ignorePatterns := opts.IgnorePatterns
	if ignorePatterns == nil {
		ignorePatterns = DefaultIgnorePatterns
	}
	secretPatterns := opts.SecretPatterns
	if secretPatterns == nil {
		secretPatterns = DefaultSecretPatterns
	}

	paths := make([]string, 0, len(files))
	dirs := make(map[string]struct{})
	for p := range files {
		if p == "" || strings.HasPrefix(p, "/") || hasDotDot(p) {
			return nil, fmt.Errorf("%w: bad path %q", common.ErrValidation, p)
		}
		for i := range p {
			if p[i] == '/' {
				dirs[p[:i]] = struct{}{}
			}
		}
		paths = append(paths, p)
	}
	// No path may name both a file and a directory of another file.
	for _, p := range paths {
		if _, ok := dirs[p]; ok {
			return nil, fmt.Errorf("%w: %q is both a file and a directory", common.ErrValidation, p)
		}
	}
	sort.Strings(paths)

	b := &ProcessedBundle{
		SecretFiles: make(map[string][]byte),
		CodeFiles:   make(map[string][]byte),
		Ignored:     []string{},
	}

	var secretTotal, codeTotal int64

	for _, p := range paths {
		content := files[p]
		size := int64(len(content))

		switch {
		case matchesAnySegment(p, ignorePatterns):
			b.Ignored = append(b.Ignored, p)

		case matchesBase(p, secretPatterns):
			if opts.Limits.MaxSecretFileSize > 0 && size > opts.Limits.MaxSecretFileSize {
				return nil, fmt.Errorf("%w: secret file %s is %d bytes", common.ErrBundleTooLarge, p, size)
			}
			secretTotal += size
			if opts.Limits.MaxSecretTotal > 0 && secretTotal > opts.Limits.MaxSecretTotal {
				return nil, fmt.Errorf("%w: secret bundle exceeds %d bytes", common.ErrBundleTooLarge, opts.Limits.MaxSecretTotal)
			}
			b.SecretFiles[p] = content

		default:
			codeTotal += size
			if opts.Limits.MaxCodeTotal > 0 && codeTotal > opts.Limits.MaxCodeTotal {
				return nil, fmt.Errorf("%w: code bundle exceeds %d bytes", common.ErrBundleTooLarge, opts.Limits.MaxCodeTotal)
			}
			b.CodeFiles[p] = content
		}
	}

	records := make([]FileRecord, 0, len(b.SecretFiles)+len(b.CodeFiles))
	for _, p := range paths {
		content, ok := b.CodeFiles[p]
		if !ok {
			content, ok = b.SecretFiles[p]
		}
		if !ok {
			continue // ignored
		}
		sum := sha256.Sum256(content)
		records = append(records, FileRecord{
			Path:        p,
			Size:        int64(len(content)),
			ContentHash: "sha256:" + hex.EncodeToString(sum[:]),
		})
	}

	return &Result{
		Bundle:      b,
		Tree:        buildTree(paths, files, b.Ignored, time.Now().UTC()),
		Records:     records,
		ProjectType: detectProjectType(paths),
		FileCount:   len(paths),
	}, nil
}

// matchesAnySegment reports whether any segment of p matches one of the
// patterns, so "node_modules" ignores the whole subtree wherever it sits.
func matchesAnySegment(p string, patterns []string) bool {
	for _, seg := range strings.Split(p, "/") {
		for _, pat := range patterns {
			if ok, err := path.Match(pat, seg); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// matchesBase reports whether the base name of p matches one of the patterns.
func matchesBase(p string, patterns []string) bool {
	base := path.Base(p)
	for _, pat := range patterns {
		if ok, err := path.Match(pat, base); err == nil && ok {
			return true
		}
	}
	return false
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func detectProjectType(paths []string) string {
	present := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if !strings.Contains(p, "/") {
			present[p] = struct{}{}
		}
	}
	for _, m := range projectMarkers {
		if _, ok := present[m.file]; ok {
			return m.label
		}
	}
	return "unknown"
}
