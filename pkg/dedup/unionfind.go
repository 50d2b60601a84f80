package dedup

import "sort"

// UnionFind is a disjoint-set structure over string keys. Batch merging uses
// it to collapse pairwise matches into clusters before anything touches the
// store.
type UnionFind struct {
	parent map[string]string
	rank   map[string]int
}

// NewUnionFind creates an empty disjoint-set
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

// Add registers a key as its own singleton set
func (u *UnionFind) Add(key string) {
	if _, ok := u.parent[key]; !ok {
		u.parent[key] = key
		u.rank[key] = 0
	}
}

// Find returns the representative of the set containing key, with path
// compression. Unknown keys are added as singletons.
func (u *UnionFind) Find(key string) string {
	u.Add(key)
	root := key
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[key] != root {
		key, u.parent[key] = u.parent[key], root
	}
	return root
}

// Union joins the sets containing a and b
func (u *UnionFind) Union(a, b string) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// Connected reports whether a and b are in the same set
func (u *UnionFind) Connected(a, b string) bool {
	return u.Find(a) == u.Find(b)
}

// Groups returns every set with more than zero members. Members and groups
// are sorted so cluster processing order is deterministic.
func (u *UnionFind) Groups() [][]string {
	byRoot := make(map[string][]string)
	for key := range u.parent {
		root := u.Find(key)
		byRoot[root] = append(byRoot[root], key)
	}

	groups := make([][]string, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Strings(members)
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})
	return groups
}
