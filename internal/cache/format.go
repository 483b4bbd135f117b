package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/partgrid/internal/catalog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	ctymsgpack "github.com/zclconf/go-cty/cty/msgpack"
)

var (
	// ErrCacheCorrupt is returned for artifacts that cannot be trusted:
	// bad framing, checksum mismatch or undecodable records.
	ErrCacheCorrupt = errors.New("cache corrupt")
	// ErrCacheStale is returned when a validity policy refuses an entry.
	ErrCacheStale = errors.New("cache stale")
)

// FormatVersion is bumped whenever the record layout changes.
const FormatVersion uint16 = 1

var magic = [8]byte{'P', 'G', 'C', 'A', 'C', 'H', 'E', 0}

const headerSize = len(magic) + 2 + sha256.Size

// artifact is the body of a cache file. Field order is the encoding order.
type artifact struct {
	Root     string          `msgpack:"root"`
	Catalogs []catalogRecord `msgpack:"catalogs"`
}

type catalogRecord struct {
	Token   string         `msgpack:"token"`
	Sources []sourceRecord `msgpack:"sources"`
	Parts   []partRecord   `msgpack:"parts"`
}

type sourceRecord struct {
	Path    string `msgpack:"path"`
	ModTime int64  `msgpack:"mod_time"`
}

type partRecord struct {
	TypeName string          `msgpack:"type"`
	Metadata []metadataEntry `msgpack:"metadata"`
	Exports  []exportRecord  `msgpack:"exports"`
	Imports  []importRecord  `msgpack:"imports"`
}

type exportRecord struct {
	Member   string          `msgpack:"member"`
	Contract string          `msgpack:"contract"`
	Metadata []metadataEntry `msgpack:"metadata"`
}

type importRecord struct {
	Member           string   `msgpack:"member"`
	Contract         string   `msgpack:"contract"`
	RequiredMetadata []string `msgpack:"required_metadata"`
	TypeIdentity     string   `msgpack:"type_identity"`
	Cardinality      string   `msgpack:"cardinality"`
	Prerequisite     bool     `msgpack:"prerequisite"`
	Recomposable     bool     `msgpack:"recomposable"`
}

// metadataEntry stores a cty value with its type so it can be decoded
// without a schema.
type metadataEntry struct {
	Key   string `msgpack:"key"`
	Type  []byte `msgpack:"type"`
	Value []byte `msgpack:"value"`
}

// encode frames the artifact: magic, version, SHA-256 of the body, body.
func encode(a *artifact) ([]byte, error) {
	var body bytes.Buffer
	enc := msgpack.NewEncoder(&body)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("encoding cache artifact: %w", err)
	}
	sum := sha256.Sum256(body.Bytes())

	out := make([]byte, 0, headerSize+body.Len())
	out = append(out, magic[:]...)
	out = binary.BigEndian.AppendUint16(out, FormatVersion)
	out = append(out, sum[:]...)
	return append(out, body.Bytes()...), nil
}

func decode(data []byte) (*artifact, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: artifact is %d bytes, shorter than its header", ErrCacheCorrupt, len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: not a cache artifact", ErrCacheCorrupt)
	}
	if v := binary.BigEndian.Uint16(data[len(magic):]); v != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrCacheCorrupt, v, FormatVersion)
	}
	want := data[len(magic)+2 : headerSize]
	body := data[headerSize:]
	if sum := sha256.Sum256(body); !bytes.Equal(sum[:], want) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCacheCorrupt)
	}
	var a artifact
	if err := msgpack.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	return &a, nil
}

func encodeMetadata(md definition.Metadata) ([]metadataEntry, error) {
	keys := md.Keys()
	if len(keys) == 0 {
		return nil, nil
	}
	out := make([]metadataEntry, 0, len(keys))
	for _, k := range keys {
		v, _ := md.Get(k)
		ty, err := ctyjson.MarshalType(v.Type())
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		val, err := ctymsgpack.Marshal(v, v.Type())
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		out = append(out, metadataEntry{Key: k, Type: ty, Value: val})
	}
	return out, nil
}

func decodeMetadata(entries []metadataEntry) (definition.Metadata, error) {
	if len(entries) == 0 {
		return definition.Metadata{}, nil
	}
	m := make(map[string]cty.Value, len(entries))
	for _, e := range entries {
		ty, err := ctyjson.UnmarshalType(e.Type)
		if err != nil {
			return definition.Metadata{}, fmt.Errorf("metadata %q type: %w", e.Key, err)
		}
		v, err := ctymsgpack.Unmarshal(e.Value, ty)
		if err != nil {
			return definition.Metadata{}, fmt.Errorf("metadata %q value: %w", e.Key, err)
		}
		m[e.Key] = v
	}
	return definition.NewMetadata(m)
}

func encodePart(def *definition.PartDefinition) (partRecord, error) {
	md, err := encodeMetadata(def.Metadata)
	if err != nil {
		return partRecord{}, fmt.Errorf("part %s: %w", def.TypeName, err)
	}
	rec := partRecord{TypeName: def.TypeName, Metadata: md}
	for _, e := range def.Exports {
		md, err := encodeMetadata(e.Metadata)
		if err != nil {
			return partRecord{}, fmt.Errorf("part %s export %s: %w", def.TypeName, e.Member, err)
		}
		rec.Exports = append(rec.Exports, exportRecord{Member: e.Member, Contract: e.ContractName, Metadata: md})
	}
	for _, i := range def.Imports {
		required := definition.ToConstraint(i.Constraint.ContractName, i.Constraint.RequiredMetadata...).RequiredMetadata
		rec.Imports = append(rec.Imports, importRecord{
			Member:           i.Member,
			Contract:         i.Constraint.ContractName,
			RequiredMetadata: required,
			TypeIdentity:     i.Constraint.TypeIdentity,
			Cardinality:      i.Cardinality.String(),
			Prerequisite:     i.Prerequisite,
			Recomposable:     i.Recomposable,
		})
	}
	return rec, nil
}

func decodePart(rec partRecord) (*definition.PartDefinition, error) {
	md, err := decodeMetadata(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", rec.TypeName, err)
	}
	exports := make([]*definition.ExportDefinition, 0, len(rec.Exports))
	for _, e := range rec.Exports {
		emd, err := decodeMetadata(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("part %s export %s: %w", rec.TypeName, e.Member, err)
		}
		exports = append(exports, definition.NewExportDefinition(e.Contract, emd, e.Member))
	}
	imports := make([]*definition.ImportDefinition, 0, len(rec.Imports))
	for _, i := range rec.Imports {
		card, err := definition.ParseCardinality(i.Cardinality)
		if err != nil {
			return nil, fmt.Errorf("part %s import %s: %w", rec.TypeName, i.Member, err)
		}
		c := definition.ToConstraint(i.Contract, i.RequiredMetadata...)
		if i.TypeIdentity != "" {
			c = c.WithTypeIdentity(i.TypeIdentity)
		}
		imports = append(imports, &definition.ImportDefinition{
			Member:       i.Member,
			Constraint:   c,
			Cardinality:  card,
			Prerequisite: i.Prerequisite,
			Recomposable: i.Recomposable,
		})
	}
	return definition.NewPartDefinition(rec.TypeName, md, exports, imports, nil), nil
}

func encodeSources(sources []catalog.Source) []sourceRecord {
	if len(sources) == 0 {
		return nil
	}
	out := make([]sourceRecord, 0, len(sources))
	for _, s := range sources {
		rec := sourceRecord{Path: s.Path}
		// UnixNano is undefined for the zero time.
		if !s.ModTime.IsZero() {
			rec.ModTime = s.ModTime.UnixNano()
		}
		out = append(out, rec)
	}
	return out
}

func decodeSources(recs []sourceRecord) []catalog.Source {
	if len(recs) == 0 {
		return nil
	}
	out := make([]catalog.Source, 0, len(recs))
	for _, r := range recs {
		src := catalog.Source{Path: r.Path}
		if r.ModTime != 0 {
			src.ModTime = time.Unix(0, r.ModTime)
		}
		out = append(out, src)
	}
	return out
}
