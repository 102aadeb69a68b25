package lsblk

// Node is one device in a nested tree, shaped like lsblk --json output
type Node struct {
	Name       string  `json:"name"`
	FSType     *string `json:"fstype"`
	MountPoint *string `json:"mountpoint"`
	Children   []*Node `json:"children,omitempty"`
}

// BuildTree nests PKNAME/NAME/FSTYPE/MOUNTPOINT records under their parents.
// Records must list parents before children, as lsblk does. A record whose
// PKNAME matches no earlier node is kept at the top level.
func BuildTree(records []Record) []*Node {
	var roots []*Node
	for _, rec := range records {
		node := &Node{
			Name:       rec.Value("NAME"),
			FSType:     ptr(rec.Value("FSTYPE")),
			MountPoint: ptr(rec.Value("MOUNTPOINT")),
		}

		pkname := rec.Value("PKNAME")
		if pkname == "" {
			roots = append(roots, node)
			continue
		}

		if parent := find(roots, pkname); parent != nil {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// find returns the first node named name in depth-first order
func find(nodes []*Node, name string) *Node {
	for _, n := range nodes {
		if n.Name == name {
			return n
		}
		if found := find(n.Children, name); found != nil {
			return found
		}
	}
	return nil
}

// ptr creates a pointer to a string
func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
