package domain

// Pair is a configured trading pair. AssetA and AssetB are candidate exchange
// symbols, tried in order until one resolves.
type Pair struct {
	ID         string
	Name       string
	AssetA     []string
	AssetB     []string
	Allocation float64 // informational
}
