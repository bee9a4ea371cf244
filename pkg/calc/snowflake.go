// 文件: pkg/calc/snowflake.go
// 计算 ID 生成器 (github.com/bwmarrin/snowflake)

package calc

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator 计算 ID 生成器
type IDGenerator interface {
	NextID() int64
}

// SnowflakeGenerator 基于雪花算法
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator nodeID: 节点ID (0-1023)
func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeGenerator{node: node}, nil
}

func (g *SnowflakeGenerator) NextID() int64 {
	return g.node.Generate().Int64()
}
