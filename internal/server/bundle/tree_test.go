package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree_NestedLayout(t *testing.T) {
	res, err := Partition(map[string][]byte{
		"main.go":          []byte("package main"),
		"internal/app.go":  []byte("package app"),
		"internal/util.go": []byte("package app"),
		"README.md":        []byte("# demo"),
	}, Options{})
	require.NoError(t, err)

	root := res.Tree
	assert.Equal(t, KindDirectory, root.Kind)
	require.Contains(t, root.Children, "internal")

	dir := root.Children["internal"]
	assert.Equal(t, KindDirectory, dir.Kind)
	assert.Equal(t, "internal", dir.Path)
	assert.Len(t, dir.Children, 2)

	file := dir.Children["app.go"]
	require.NotNil(t, file)
	assert.Equal(t, KindFile, file.Kind)
	assert.Equal(t, "internal/app.go", file.Path)
	assert.Equal(t, int64(len("package app")), file.Size)
}

func TestBuildTree_ExcludesIgnored(t *testing.T) {
	res, err := Partition(map[string][]byte{
		"main.go":            []byte("ok"),
		"node_modules/x.js":  []byte("junk"),
		"node_modules/y.js":  []byte("junk"),
		"src/node_modules/z": []byte("junk"),
	}, Options{})
	require.NoError(t, err)

	root := res.Tree
	assert.NotContains(t, root.Children, "node_modules")
	assert.NotContains(t, root.Children, "src")
	assert.Contains(t, root.Children, "main.go")
}

func TestBuildTree_MimeTypes(t *testing.T) {
	res, err := Partition(map[string][]byte{
		"doc.html": []byte("<html>"),
		"blob.bin": []byte{0x00},
	}, Options{})
	require.NoError(t, err)

	assert.Contains(t, res.Tree.Children["doc.html"].MimeType, "text/html")
	assert.Equal(t, "application/octet-stream", res.Tree.Children["blob.bin"].MimeType)
}
