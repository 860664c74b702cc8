package engine

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/takoyaki-db/bitmapdb/bitindex"
	"github.com/takoyaki-db/bitmapdb/bitmap"
)

func (m *IndexManager) metadataPath() string {
	return m.tableName + ".txt"
}

// load parses the whitespace-separated metadata file format of spec.md §6,
// restoring nextRecordID, the existence bitmap and every attribute's
// BitmapIndex. A missing file leaves m empty, which is not an error.
func (m *IndexManager) load() error {
	data, err := os.ReadFile(m.metadataPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "engine: read metadata %q", m.metadataPath())
	}

	tokens := strings.Fields(string(data))
	pos := 0
	next := func() (string, error) {
		if pos >= len(tokens) {
			return "", errors.Wrap(MalformedMetadata, "unexpected end of metadata file")
		}
		tok := tokens[pos]
		pos++
		return tok, nil
	}
	nextUint := func() (uint64, error) {
		tok, err := next()
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(MalformedMetadata, "expected integer, got %q", tok)
		}
		return v, nil
	}

	nextRecordID, err := nextUint()
	if err != nil {
		return err
	}
	attributeCount, err := nextUint()
	if err != nil {
		return err
	}
	existenceTok, err := next()
	if err != nil {
		return err
	}
	existence, err := bitmap.Decode(existenceTok)
	if err != nil {
		return err
	}

	attrNames := make([]string, 0, attributeCount)
	indexes := make(map[string]*bitindex.BitmapIndex, attributeCount)
	for i := uint64(0); i < attributeCount; i++ {
		name, err := next()
		if err != nil {
			return err
		}
		valueCount, err := nextUint()
		if err != nil {
			return err
		}
		idx := bitindex.New(nextRecordID)
		for j := uint64(0); j < valueCount; j++ {
			value, err := next()
			if err != nil {
				return err
			}
			encoded, err := next()
			if err != nil {
				return err
			}
			bm, err := bitmap.Decode(encoded)
			if err != nil {
				return err
			}
			if err := idx.LoadValue(value, bm); err != nil {
				return err
			}
		}
		attrNames = append(attrNames, name)
		indexes[name] = idx
	}

	m.nextRecordID = nextRecordID
	m.existence = existence
	m.attrNames = attrNames
	m.indexes = indexes
	return nil
}

// save writes the metadata file in the format load expects, in attrNames
// order (insertion order), and within each attribute in the BitmapIndex's
// ascending value order (spec.md §6: "stable ... if written in the stored
// ordered-map order").
func (m *IndexManager) save() error {
	var out strings.Builder
	fmt.Fprintf(&out, "%d %d %s\n", m.nextRecordID, len(m.attrNames), m.existence.Encode())
	for _, name := range m.attrNames {
		idx := m.indexes[name]
		fmt.Fprintf(&out, "%s %d\n", name, idx.Len())
		idx.Values(func(value string, bm *bitmap.Bitmap) bool {
			fmt.Fprintf(&out, "%s %s\n", value, bm.Encode())
			return true
		})
	}
	return os.WriteFile(m.metadataPath(), []byte(out.String()), 0o644)
}

// MalformedMetadata is returned by load when the metadata file's token
// stream does not match the expected shape.
var MalformedMetadata = errors.New("engine: malformed metadata file")
