package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids for one node. A single generator must
// be shared per process: two nodes with the same number can collide.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for nodeID (0..1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new id.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
