package manifest

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes every top-level block a manifest file may hold.
type fileRoot struct {
	Parts  []*partBlock `hcl:"part,block"`
	Remain hcl.Body     `hcl:",remain"`
}

// partBlock is the `part "<type>" { ... }` block.
type partBlock struct {
	Type        string         `hcl:"type,label"`
	Description string         `hcl:"description,optional"`
	Metadata    *cty.Value     `hcl:"metadata,optional"`
	Exports     []*exportBlock `hcl:"export,block"`
	Imports     []*importBlock `hcl:"import,block"`
}

// exportBlock is `export "<member>" { ... }`. The contract defaults to the
// member name.
type exportBlock struct {
	Member       string     `hcl:"member,label"`
	Contract     string     `hcl:"contract,optional"`
	TypeIdentity string     `hcl:"type_identity,optional"`
	Metadata     *cty.Value `hcl:"metadata,optional"`
}

// importBlock is `import "<member>" { ... }`. Imports are prerequisites
// unless `prerequisite = false`.
type importBlock struct {
	Member           string   `hcl:"member,label"`
	Contract         string   `hcl:"contract,optional"`
	Cardinality      string   `hcl:"cardinality,optional"`
	Recomposable     bool     `hcl:"recomposable,optional"`
	Prerequisite     *bool    `hcl:"prerequisite,optional"`
	RequiredMetadata []string `hcl:"required_metadata,optional"`
	TypeIdentity     string   `hcl:"type_identity,optional"`
}
