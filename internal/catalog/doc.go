// Package catalog maintains the shared reference corpus built during the
// producer's first pass: named entities with categories, merged
// descriptions, and chapter citations.
//
// The dedup key is (category, case-folded name); collisions merge rather
// than overwrite, so repeated sightings of a character accumulate detail
// instead of losing it. The catalog persists as JSON next to the manifest
// and renders wholesale to a Markdown reference document whenever it
// changes.
package catalog
