package swim

import "sort"

// Node is an addressable cluster member: a network endpoint plus an
// optional unique-per-process UID. A Node with no UID is "UID-less" — a
// half-known peer such as a user-supplied bootstrap address. Equal only
// considers the UID when both sides carry one; as map keys (compared with
// ==), however, a UID-less bootstrap entry and the fully-identified record
// it is later replaced by are distinct Nodes (see addMember).
type Node struct {
	Endpoint string
	UID      string
}

// HasUID reports whether n carries a process UID.
func (n Node) HasUID() bool {
	return n.UID != ""
}

// Equal reports whether n and other identify the same peer. When both
// sides carry a UID, the UID must match too; otherwise only the endpoint
// is compared.
func (n Node) Equal(other Node) bool {
	if n.Endpoint != other.Endpoint {
		return false
	}
	if n.HasUID() && other.HasUID() {
		return n.UID == other.UID
	}
	return true
}

// Less provides a total, deterministic order over nodes, used wherever the
// spec requires "sorted node identity" (mergeSuspicions) or a stable
// iteration order for tests.
func (n Node) Less(other Node) bool {
	if n.Endpoint != other.Endpoint {
		return n.Endpoint < other.Endpoint
	}
	return n.UID < other.UID
}

// sortNodes returns a freshly sorted copy of nodes by Node.Less.
func sortNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	copy(out, nodes)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
