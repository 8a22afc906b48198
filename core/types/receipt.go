package types

// Receipt summarises a committed call: who invoked it, at which height, and
// the events it emitted. Receipts are only produced for calls whose state
// changes were committed.
type Receipt struct {
	ID        string   `json:"id"`
	Sequence  uint64   `json:"sequence"`
	Height    uint64   `json:"height"`
	Caller    string   `json:"caller"`
	Operation string   `json:"operation"`
	Events    []*Event `json:"events"`
	Timestamp int64    `json:"timestamp"`
}

// Clone returns a deep copy of the receipt.
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Events = make([]*Event, 0, len(r.Events))
	for _, evt := range r.Events {
		clone.Events = append(clone.Events, evt.Clone())
	}
	return &clone
}
