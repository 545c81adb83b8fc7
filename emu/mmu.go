// Package emu provides functional RV32IMAFD emulation.
package emu

// AccessType selects the translation-cache slot and the permission check
// for an address translation. There is one slot per access class so that
// instruction fetch, loads and stores of each width never evict each
// other's hot page.
type AccessType uint8

// Access classes.
const (
	AccessFetch AccessType = iota
	AccessLoad8
	AccessLoad16
	AccessLoad32
	AccessLoad64
	AccessStore8
	AccessStore16
	AccessStore32
	AccessStore64

	numAccessTypes
)

// isStore reports whether the access class writes memory.
func (a AccessType) isStore() bool {
	return a >= AccessStore8
}

// isFetch reports whether the access class is an instruction fetch.
func (a AccessType) isFetch() bool {
	return a == AccessFetch
}

// pageFaultCause maps an access class to its page-fault cause code.
func (a AccessType) pageFaultCause() uint32 {
	switch {
	case a.isFetch():
		return CauseInstPageFault
	case a.isStore():
		return CauseStorePageFault
	default:
		return CauseLoadPageFault
	}
}

// Sv32 PTE bits.
const (
	pteV uint32 = 1 << 0
	pteR uint32 = 1 << 1
	pteW uint32 = 1 << 2
	pteX uint32 = 1 << 3
	pteU uint32 = 1 << 4
	pteA uint32 = 1 << 6
	pteD uint32 = 1 << 7
)

const pageMask uint32 = 0xFFFFF000

// tlbEntry caches one translated page for one access class.
//
// check holds a virtual address inside the cached page, so a hit is
// (check ^ vaddr) & 0xFFFFF000 == 0. lookup holds (paddr ^ vaddr) with
// the page offset cleared, so on a hit a single XOR with the full
// virtual address recovers the physical address including the offset.
type tlbEntry struct {
	check      uint32
	lookup     uint32
	generation uint32
}

// MMU implements Sv32 address translation with a software translation
// cache. Invalidation is a generation bump: entries whose generation no
// longer matches miss as if empty.
type MMU struct {
	tlb        [numAccessTypes]tlbEntry
	generation uint32
}

// NewMMU creates an MMU with an empty translation cache.
func NewMMU() *MMU {
	return &MMU{generation: 1}
}

// Reset discards all cached translations.
func (m *MMU) Reset() {
	m.tlb = [numAccessTypes]tlbEntry{}
	m.generation = 1
}

// Invalidate discards all cached translations. Called on satp writes and
// SFENCE.VMA.
func (m *MMU) Invalidate() {
	m.generation++
}

// Translate converts a virtual address to a physical address for the
// given access class. The bus is needed for the page walk; satp and
// mstatus are passed in because the walk depends on SUM and MXR and the
// caller may have substituted the effective privilege for MPRV.
func (m *MMU) Translate(vaddr uint32, access AccessType, priv PrivilegeLevel, bus Bus, satp, mstatus uint32) (uint32, *Trap) {
	// Bare mode: M-mode never translates, and satp mode 0 disables
	// paging for everyone else.
	if priv == PrivMachine || satp>>31 == 0 {
		return vaddr, nil
	}

	entry := &m.tlb[access]
	if entry.generation == m.generation && (entry.check^vaddr)&pageMask == 0 {
		return entry.lookup ^ vaddr, nil
	}

	paddr, trap := m.walk(vaddr, access, priv, bus, satp, mstatus)
	if trap != nil {
		return 0, trap
	}

	entry.check = vaddr
	entry.lookup = (paddr ^ vaddr) & pageMask
	entry.generation = m.generation
	return paddr, nil
}

// walk performs the two-level Sv32 table walk, updating the A/D bits of
// the leaf PTE in place.
func (m *MMU) walk(vaddr uint32, access AccessType, priv PrivilegeLevel, bus Bus, satp, mstatus uint32) (uint32, *Trap) {
	fault := func() (uint32, *Trap) {
		return 0, NewTrap(access.pageFaultCause(), vaddr)
	}

	root := (satp & 0x3FFFFF) << 12
	vpn1 := (vaddr >> 22) & 0x3FF
	vpn0 := (vaddr >> 12) & 0x3FF

	pte1Addr := root + vpn1*4
	pte1 := bus.Read32(pte1Addr)
	if pte1&pteV == 0 || (pte1&pteW != 0 && pte1&pteR == 0) {
		return fault()
	}

	if pte1&(pteR|pteX) != 0 {
		// Leaf at level 1: a 4-MiB megapage. PPN[0] must be zero or
		// the superpage is misaligned.
		if (pte1>>10)&0x3FF != 0 {
			return fault()
		}
		if !checkPTEPermissions(pte1, access, priv, mstatus) {
			return fault()
		}
		updateADBits(bus, pte1Addr, pte1, access)

		ppn1 := (pte1 >> 20) & 0xFFF
		return (ppn1 << 22) | (vaddr & 0x3FFFFF), nil
	}

	nextTable := ((pte1 >> 10) & 0x3FFFFF) << 12
	pte0Addr := nextTable + vpn0*4
	pte0 := bus.Read32(pte0Addr)
	if pte0&pteV == 0 || (pte0&pteW != 0 && pte0&pteR == 0) {
		return fault()
	}
	// Level 0 must be a leaf.
	if pte0&(pteR|pteX) == 0 {
		return fault()
	}
	if !checkPTEPermissions(pte0, access, priv, mstatus) {
		return fault()
	}
	updateADBits(bus, pte0Addr, pte0, access)

	ppn := (pte0 >> 10) & 0x3FFFFF
	return (ppn << 12) | (vaddr & 0xFFF), nil
}

// checkPTEPermissions enforces U/S accessibility (with MSTATUS.SUM),
// MSTATUS.MXR for loads, and the R/W/X bit matching the access class.
func checkPTEPermissions(pte uint32, access AccessType, priv PrivilegeLevel, mstatus uint32) bool {
	if priv == PrivSupervisor && pte&pteU != 0 && mstatus&MstatusSUM == 0 {
		return false
	}
	if priv == PrivUser && pte&pteU == 0 {
		return false
	}

	switch {
	case access.isFetch():
		return pte&pteX != 0
	case access.isStore():
		return pte&pteW != 0
	default:
		if pte&pteR != 0 {
			return true
		}
		return pte&pteX != 0 && mstatus&MstatusMXR != 0
	}
}

// updateADBits sets the accessed bit on every translation and the dirty
// bit on store translations, writing the PTE back only when it changed.
func updateADBits(bus Bus, pteAddr, pte uint32, access AccessType) {
	newPTE := pte | pteA
	if access.isStore() {
		newPTE |= pteD
	}
	if newPTE != pte {
		bus.Write32(pteAddr, newPTE)
	}
}
