package session

import (
	"encoding/json"

	"plaichat/internal/models"
	"plaichat/internal/tokens"
)

// EnabledTools returns the saved tool selection for an agent. With nothing
// saved, or unreadable data, every tool is enabled.
func (c *Context) EnabledTools(agentID string, all []models.Tool) []string {
	allIDs := make([]string, 0, len(all))
	for _, t := range all {
		allIDs = append(allIDs, t.ID)
	}

	raw, ok := c.store.Get(tokens.AgentToolsKey(agentID))
	if !ok || raw == "" {
		return allIDs
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		c.log.Warn("ignoring corrupt tool selection", "agent_id", agentID, "error", err)
		return allIDs
	}
	return ids
}

// SetEnabledTools persists the selection and notifies subscribers before
// returning.
func (c *Context) SetEnabledTools(agentID string, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	c.store.Set(tokens.AgentToolsKey(agentID), string(b))
	c.publish(Change{Kind: ToolsChanged, AgentID: agentID, Tools: ids})
}
