package optree

import (
	"fmt"
	"hash/crc32"
	"strings"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// crcMaskDelta is the offset of the masked CRC-32C format used by
// record-oriented storage files.
const crcMaskDelta = 0xa282ead8

// GenerateCRC fingerprints the subtree rooted at n. It covers operator
// kinds, their Describe and Fingerprint output, queue sizes, worker counts,
// samplers and the shape of the subtree. Ids, flags, state and counters do not
// contribute, so equal pipelines built twice get equal values.
func GenerateCRC(n *Node) uint32 {
	var b strings.Builder
	writeCanonical(&b, n, 0)
	return maskCRC(crc32.Checksum([]byte(b.String()), castagnoli))
}

func maskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

func writeCanonical(b *strings.Builder, n *Node, depth int) {
	if n == nil {
		return
	}
	fmt.Fprintf(b, "%d|%s|q=%d|w=%d|p=%d", depth, n.op.Name(), n.queueSize, n.op.NumWorkers(), n.op.NumProducers())
	if d, ok := n.op.(Describer); ok {
		fmt.Fprintf(b, "|d=%s", d.Describe())
	}
	if f, ok := n.op.(Fingerprinter); ok {
		fmt.Fprintf(b, "|f=%q", f.Fingerprint())
	}
	if n.sampler != nil {
		fmt.Fprintf(b, "|s=%s", n.sampler.Describe())
	}
	fmt.Fprintf(b, "|c=%d\n", len(n.children))
	for _, c := range n.children {
		writeCanonical(b, c, depth+1)
	}
}
