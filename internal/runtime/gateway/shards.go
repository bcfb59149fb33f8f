package gateway

// ShardRange lists the shards node serves: [node*perNode,
// min((node+1)*perNode, count)). Node 0 always serves shard 0 alone.
func ShardRange(node, perNode, count int) []int {
	if node <= 0 || perNode <= 0 {
		return []int{0}
	}
	start := node * perNode
	end := min((node+1)*perNode, count)
	if start >= end {
		return []int{}
	}
	shards := make([]int, 0, end-start)
	for s := start; s < end; s++ {
		shards = append(shards, s)
	}
	return shards
}
