package record

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders the record as a mapping in column order. Identifiers are
// rendered in their string form, times as timestamps.
func (r *Record) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for i, c := range r.entity.Columns {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: c.Name}
		val := &yaml.Node{}
		v := r.values[i]
		switch sv := v.(type) {
		case time.Time:
		case fmt.Stringer:
			v = sv.String()
		}
		if err := val.Encode(v); err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", r.entity.Name, c.Name, err)
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}
