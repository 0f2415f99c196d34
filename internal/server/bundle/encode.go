package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/buildvault/buildvault/internal/common"
)

// EncodeFiles serializes a file map into a single storable blob.
// encoding/json sorts map keys, so identical file sets always produce
// identical bytes and therefore identical content ids.
func EncodeFiles(files map[string][]byte) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to encode", common.ErrValidation)
	}
	blob, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling files: %v", common.ErrValidation, err)
	}
	return blob, nil
}

// DecodeFiles is the inverse of EncodeFiles.
func DecodeFiles(blob []byte) (map[string][]byte, error) {
	var files map[string][]byte
	if err := json.Unmarshal(blob, &files); err != nil {
		return nil, fmt.Errorf("%w: bad file blob", common.ErrValidation)
	}
	return files, nil
}
