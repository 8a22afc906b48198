package state

var nodeMetaKeyBytes = []byte("node/meta")

// NodeMeta tracks the last committed receipt sequence and height so a
// restarted node continues numbering where it stopped.
type NodeMeta struct {
	Sequence uint64
	Height   uint64
}

func (m *Manager) NodeMeta() (*NodeMeta, error) {
	meta := new(NodeMeta)
	if _, err := m.KVGet(nodeMetaKeyBytes, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (m *Manager) PutNodeMeta(meta *NodeMeta) error {
	if meta == nil {
		meta = new(NodeMeta)
	}
	return m.KVPut(nodeMetaKeyBytes, meta)
}
