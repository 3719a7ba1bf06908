package clusterdescriptor

// Builder assembles a Descriptor incrementally, mirroring how the original
// parser fills in chip info, harvesting and Ethernet connections in
// separate passes before a single verify_cluster_descriptor_info call.
type Builder struct {
	d *Descriptor
}

func NewBuilder() *Builder {
	return &Builder{d: &Descriptor{
		chips:       make(map[ChipID]ChipInfo),
		connections: make(map[EthEndpoint]EthEndpoint),
		mmioCapable: make(map[ChipID]bool),
		closestMMIO: make(map[ChipID]ChipID),
	}}
}

func (b *Builder) AddChip(id ChipID, info ChipInfo) *Builder {
	b.d.chips[id] = info
	b.d.mmioCapable[id] = info.MMIO

	return b
}

// Connect records a symmetric Ethernet link between two (chip, channel)
// endpoints; both directions are stored so ConnectedTo works from either
// side.
func (b *Builder) Connect(a, bEnd EthEndpoint) *Builder {
	b.d.connections[a] = bEnd
	b.d.connections[bEnd] = a

	return b
}

// SetClosestMMIOChip records the MMIO-capable chip a non-MMIO chip resolves
// to, per the descriptor's closest_mmio_chip_of closure (spec.md §3).
func (b *Builder) SetClosestMMIOChip(nonMMIO, closest ChipID) *Builder {
	b.d.closestMMIO[nonMMIO] = closest

	return b
}

// Finish returns the built Descriptor and its verification result. Callers
// decide whether to treat a non-OK result as fatal; Cluster construction
// always does.
func (b *Builder) Finish() (*Descriptor, VerificationResult) {
	return b.d, b.d.Verify()
}
