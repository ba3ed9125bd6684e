package manifest

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes every top-level block of a manifest file.
type fileRoot struct {
	Artifacts []*artifactBlock `hcl:"artifact,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type artifactBlock struct {
	Name         string          `hcl:"name,label"`
	Include      []string        `hcl:"include,optional"`
	ContentRoots []string        `hcl:"content_roots,optional"`
	Await        []string        `hcl:"await,optional"`
	Static       []string        `hcl:"static,optional"`
	Bindings     []*bindingBlock `hcl:"binding,block"`
	Plugins      []*pluginBlock  `hcl:"plugin,block"`

	file string
}

type bindingBlock struct {
	Name    string     `hcl:"name,label"`
	Factory string     `hcl:"factory"`
	Args    *cty.Value `hcl:"args,optional"`
}

type pluginBlock struct {
	Name    string        `hcl:"name,label"`
	Entries []*entryBlock `hcl:"entry,block"`
}

type entryBlock struct {
	Key     string     `hcl:"key,label"`
	Factory string     `hcl:"factory"`
	Args    *cty.Value `hcl:"args,optional"`
}
