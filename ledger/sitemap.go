/*
sitemap.go - Per-asset, per-site quantity bookkeeping

PURPOSE:
  Tracks how much of one asset is physically present at each construction
  site. Entries exist only while the quantity is non-zero; a site that has
  returned everything disappears from the map. Insertion order is
  irrelevant - the map is persisted as a serialized site->count column.

SEE ALSO:
  - types.go: Asset embeds a SiteAllocationMap
  - ledger.go: AllocateToSite / DeallocateFromSite mutate it
*/
package ledger

// SiteAllocationMap maps site id -> quantity of one asset at that site.
// A nil map behaves as empty for reads; writers must use Ensure first.
type SiteAllocationMap map[SiteID]int64

// Ensure returns a non-nil map, allocating if needed.
func (m SiteAllocationMap) Ensure() SiteAllocationMap {
	if m == nil {
		return make(SiteAllocationMap)
	}
	return m
}

// At returns the quantity at a site, zero if absent.
func (m SiteAllocationMap) At(site SiteID) int64 {
	return m[site]
}

// Add increases the allocation at a site, creating the entry if absent.
func (m SiteAllocationMap) Add(site SiteID, qty int64) {
	m[site] += qty
}

// Remove decreases the allocation at a site and drops the entry when it
// reaches zero. Callers validate qty <= At(site) first.
func (m SiteAllocationMap) Remove(site SiteID, qty int64) {
	rest := m[site] - qty
	if rest == 0 {
		delete(m, site)
		return
	}
	m[site] = rest
}

// Total sums allocations across all sites.
func (m SiteAllocationMap) Total() int64 {
	var total int64
	for _, q := range m {
		total += q
	}
	return total
}

// HasNegative reports whether any entry went below zero.
func (m SiteAllocationMap) HasNegative() bool {
	for _, q := range m {
		if q < 0 {
			return true
		}
	}
	return false
}

// Clone returns an independent copy. Empty and nil both clone to empty.
func (m SiteAllocationMap) Clone() SiteAllocationMap {
	cp := make(SiteAllocationMap, len(m))
	for site, q := range m {
		cp[site] = q
	}
	return cp
}
