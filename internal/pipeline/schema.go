package pipeline

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot is decoded from every pipeline file.
type fileRoot struct {
	Ops []*opBlock `hcl:"op,block"`
}

type opBlock struct {
	Kind      string         `hcl:"kind,label"`
	Name      string         `hcl:"name,label"`
	Inputs    hcl.Expression `hcl:"inputs,optional"`
	QueueSize *int           `hcl:"queue_size,optional"`
	Sampler   *samplerBlock  `hcl:"sampler,block"`
	Body      hcl.Body       `hcl:",remain"`
}

// samplerBlock holds the settings of both sampler kinds. Each kind ignores
// the settings of the other.
type samplerBlock struct {
	Kind        string `hcl:"kind,label"`
	Start       int    `hcl:"start,optional"`
	Count       int    `hcl:"count,optional"`
	Seed        uint64 `hcl:"seed,optional"`
	Replacement bool   `hcl:"replacement,optional"`
	NumSamples  int    `hcl:"num_samples,optional"`
}
