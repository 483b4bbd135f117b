package manifest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/partgrid/internal/ctxlog"
	"github.com/specialistvlad/partgrid/internal/definition"
	"github.com/specialistvlad/partgrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// Extension is the file extension of part manifests.
const Extension = ".hcl"

// DescriptionKey is the part metadata key a manifest description is stored
// under.
const DescriptionKey = "Description"

// File is one parsed manifest file.
type File struct {
	Path    string
	ModTime time.Time
	Parts   []*definition.PartDefinition
}

// Load parses every manifest found under paths (files or directories, in
// lexical order). Missing paths are skipped.
func Load(ctx context.Context, paths ...string) ([]*File, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Manifest loader started.", "path_count", len(paths))

	filePaths, err := fsutil.CollectFiles(paths, Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to walk manifest paths: %w", err)
	}
	if len(filePaths) == 0 {
		logger.Warn("No manifest files found.", "paths", paths)
		return nil, nil
	}
	logger.Debug("Discovered manifest files.", "count", len(filePaths))

	parser := hclparse.NewParser()
	files := make([]*File, 0, len(filePaths))
	for _, path := range filePaths {
		f, err := parseFile(parser, path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		logger.Debug("Loaded manifest file.", "file", path, "parts", len(f.Parts))
	}
	return files, nil
}

// ParseFile parses a single manifest file.
func ParseFile(path string) (*File, error) {
	return parseFile(hclparse.NewParser(), path)
}

func parseFile(parser *hclparse.Parser, path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing manifest %s: %w", path, err)
	}
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	parts, err := decode(hclFile)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &File{Path: path, ModTime: info.ModTime(), Parts: parts}, nil
}

// Parse decodes manifest source held in memory.
func Parse(filename string, src []byte) ([]*definition.PartDefinition, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL source %s: %w", filename, diags)
	}
	return decode(hclFile)
}

func decode(hclFile *hcl.File) ([]*definition.PartDefinition, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, diags
	}
	parts := make([]*definition.PartDefinition, 0, len(root.Parts))
	for _, pb := range root.Parts {
		def, err := translatePart(pb)
		if err != nil {
			return nil, err
		}
		parts = append(parts, def)
	}
	return parts, nil
}

func translatePart(pb *partBlock) (*definition.PartDefinition, error) {
	md, err := metadataFromValue(pb.Metadata)
	if err != nil {
		return nil, fmt.Errorf("part '%s': %w", pb.Type, err)
	}
	if pb.Description != "" {
		md = md.With(DescriptionKey, cty.StringVal(pb.Description))
	}

	exports := make([]*definition.ExportDefinition, 0, len(pb.Exports))
	seen := make(map[string]bool)
	for _, eb := range pb.Exports {
		if seen[eb.Member] {
			return nil, fmt.Errorf("part '%s': export member '%s' declared twice", pb.Type, eb.Member)
		}
		seen[eb.Member] = true

		emd, err := metadataFromValue(eb.Metadata)
		if err != nil {
			return nil, fmt.Errorf("part '%s', export '%s': %w", pb.Type, eb.Member, err)
		}
		if eb.TypeIdentity != "" {
			emd = emd.With(definition.TypeIdentityKey, cty.StringVal(eb.TypeIdentity))
		}
		contract := eb.Contract
		if contract == "" {
			contract = eb.Member
		}
		exports = append(exports, definition.NewExportDefinition(contract, emd, eb.Member))
	}

	imports := make([]*definition.ImportDefinition, 0, len(pb.Imports))
	seen = make(map[string]bool)
	for _, ib := range pb.Imports {
		if seen[ib.Member] {
			return nil, fmt.Errorf("part '%s': import member '%s' declared twice", pb.Type, ib.Member)
		}
		seen[ib.Member] = true

		card, err := definition.ParseCardinality(ib.Cardinality)
		if err != nil {
			return nil, fmt.Errorf("part '%s', import '%s': %w", pb.Type, ib.Member, err)
		}
		contract := ib.Contract
		if contract == "" {
			contract = ib.Member
		}
		c := definition.ToConstraint(contract, ib.RequiredMetadata...)
		if ib.TypeIdentity != "" {
			c = c.WithTypeIdentity(ib.TypeIdentity)
		}
		prerequisite := true
		if ib.Prerequisite != nil {
			prerequisite = *ib.Prerequisite
		}
		imports = append(imports, &definition.ImportDefinition{
			Member:       ib.Member,
			Constraint:   c,
			Cardinality:  card,
			Recomposable: ib.Recomposable,
			Prerequisite: prerequisite,
		})
	}

	return definition.NewPartDefinition(pb.Type, md, exports, imports, nil), nil
}

func metadataFromValue(v *cty.Value) (definition.Metadata, error) {
	if v == nil || v.IsNull() {
		return definition.Metadata{}, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return definition.Metadata{}, fmt.Errorf("metadata must be an object, got %s", ty.FriendlyName())
	}
	entries := make(map[string]cty.Value)
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		entries[k.AsString()] = ev
	}
	return definition.NewMetadata(entries)
}
