package bundle

import (
	"mime"
	"path"
	"strings"
	"time"
)

// Node kinds.
const (
	KindFile      = "file"
	KindDirectory = "directory"
)

// FileTreeNode is the logical project layout, built once per upload and
// read-only thereafter. Child ordering carries no meaning.
type FileTreeNode struct {
	Name         string                   `json:"name"`
	Kind         string                   `json:"kind"`
	Size         int64                    `json:"size,omitempty"`
	Path         string                   `json:"path"`
	Children     map[string]*FileTreeNode `json:"children,omitempty"`
	LastModified time.Time                `json:"last_modified"`
	MimeType     string                   `json:"mime_type,omitempty"`
}

// buildTree assembles the file tree for every non-ignored input file.
func buildTree(paths []string, files map[string][]byte, ignored []string, now time.Time) *FileTreeNode {
	skip := make(map[string]struct{}, len(ignored))
	for _, p := range ignored {
		skip[p] = struct{}{}
	}

	root := &FileTreeNode{
		Name:         ".",
		Kind:         KindDirectory,
		Path:         ".",
		Children:     make(map[string]*FileTreeNode),
		LastModified: now,
	}

	for _, p := range paths {
		if _, ok := skip[p]; ok {
			continue
		}

		node := root
		segments := strings.Split(p, "/")
		for i, seg := range segments {
			last := i == len(segments)-1
			child, ok := node.Children[seg]
			if !ok {
				child = &FileTreeNode{
					Name:         seg,
					Path:         strings.Join(segments[:i+1], "/"),
					LastModified: now,
				}
				if last {
					child.Kind = KindFile
					child.Size = int64(len(files[p]))
					child.MimeType = mimeTypeFor(seg)
				} else {
					child.Kind = KindDirectory
					child.Children = make(map[string]*FileTreeNode)
				}
				node.Children[seg] = child
			}
			node = child
		}
	}

	return root
}

func mimeTypeFor(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
