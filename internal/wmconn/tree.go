package wmconn

import (
	"strings"

	"github.com/i3pm/eventcore/internal/wstracker"
)

// WindowSnapshot implements wstracker.Commander: it walks the current tree
// looking for con_id and reports the live attributes C6 needs before
// hiding it. Marks of the canonical "<scope>:<app>:<project>:<con_id>"
// shape are parsed back out for the Project/App fields.
func (c *Conn) WindowSnapshot(conID int64) (wstracker.WindowAttrs, bool) {
	tree, err := c.GetTree()
	if err != nil {
		return wstracker.WindowAttrs{}, false
	}
	node, workspaceNum, found := findNodeWithWorkspace(tree, conID, 0)
	if !found {
		return wstracker.WindowAttrs{}, false
	}

	attrs := wstracker.WindowAttrs{WorkspaceNumber: workspaceNum}
	if floating, ok := node["type"].(string); ok {
		attrs.Floating = floating == "floating_con"
	}
	if class, ok := classOf(node); ok {
		attrs.Class = class
	}
	if marks, ok := node["marks"].([]interface{}); ok {
		for _, m := range marks {
			ms, ok := m.(string)
			if !ok {
				continue
			}
			parts := strings.Split(ms, ":")
			if len(parts) == 4 {
				attrs.App = parts[1]
				attrs.Project = parts[2]
			}
		}
	}
	return attrs, true
}

func classOf(node map[string]interface{}) (string, bool) {
	props, ok := node["window_properties"].(map[string]interface{})
	if !ok {
		return "", false
	}
	cls, ok := props["class"].(string)
	return cls, ok
}

// findNodeWithWorkspace recursively searches for con_id, tracking the
// nearest enclosing workspace's number.
func findNodeWithWorkspace(node map[string]interface{}, conID int64, currentWorkspace int) (map[string]interface{}, int, bool) {
	if t, _ := node["type"].(string); t == "workspace" {
		if num, ok := node["num"].(float64); ok {
			currentWorkspace = int(num)
		}
	}

	if id, ok := node["id"].(float64); ok && int64(id) == conID {
		return node, currentWorkspace, true
	}

	for _, key := range []string{"nodes", "floating_nodes"} {
		children, _ := node[key].([]interface{})
		for _, c := range children {
			cm, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			if found, ws, ok := findNodeWithWorkspace(cm, conID, currentWorkspace); ok {
				return found, ws, true
			}
		}
	}
	return nil, 0, false
}
