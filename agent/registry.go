package agent

import (
	"fmt"
)

// Registry 是从 ID 到 Agent 的全量映射
// 构造时要求五类智能体齐全，之后只读，可并发访问
type Registry struct {
	agents map[ID]Agent
}

// NewRegistry 以给定智能体创建注册表
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{agents: make(map[ID]Agent, len(allIDs))}
	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("nil agent")
		}
		id := a.ID()
		if !id.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownAgent, uint8(id))
		}
		if _, dup := r.agents[id]; dup {
			return nil, fmt.Errorf("agent %s registered twice", id)
		}
		r.agents[id] = a
	}
	for _, id := range allIDs {
		if _, ok := r.agents[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrAgentNotRegistered, id)
		}
	}
	return r, nil
}

// Get 返回指定智能体；仅当 id 不是已定义取值时 ok 为 false
func (r *Registry) Get(id ID) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Infos 按固定顺序返回全部智能体描述
func (r *Registry) Infos() []Info {
	out := make([]Info, 0, len(allIDs))
	for _, id := range allIDs {
		out = append(out, r.agents[id].Info())
	}
	return out
}
