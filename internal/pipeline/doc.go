// Package pipeline builds execution trees from HCL pipeline files.
//
// A pipeline file declares operators as labelled blocks. The first label is
// the operator kind, the second a name unique across every loaded file:
//
//	op "generator" "people" {
//	  columns = ["id", "name"]
//	  rows    = [[1, "ann"], [2, "bob"]]
//	  sampler "random" {
//	    seed = 7
//	  }
//	}
//
//	op "map" "shout" {
//	  inputs = [op.people]
//	  column = "name"
//	  expr   = upper(row.name)
//	}
//
// Inputs are references of the form op.<name>; their order is the child
// order of the node. Every attribute besides inputs, queue_size and the
// sampler block is decoded by the factory registered for the kind. The one
// operator that is nobody's input becomes the root of the tree.
package pipeline
