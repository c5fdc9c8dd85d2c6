package store

// Find locates an item anywhere below root, or root itself.
func Find(root *Item, id string) (*Item, bool) {
	path := pathTo(root, id, nil)
	if path == nil {
		return nil, false
	}
	return path[len(path)-1], true
}

// FindParent returns the folder that directly contains id. The root has
// no parent.
func FindParent(root *Item, id string) (*Item, bool) {
	path := pathTo(root, id, nil)
	if len(path) < 2 {
		return nil, false
	}
	return path[len(path)-2], true
}

// pathTo walks the tree pre-order. At each folder a child is matched by id
// before the walk descends into it; the first match wins.
func pathTo(node *Item, id string, acc []*Item) []*Item {
	if node == nil {
		return nil
	}
	acc = append(acc, node)
	if node.ID == id {
		return acc
	}
	for _, child := range node.Children {
		if child.ID == id {
			return append(acc, child)
		}
		if child.IsFolder() {
			if found := pathTo(child, id, acc); found != nil {
				return found
			}
		}
	}
	return nil
}

// Walk visits every item below root in pre-order. Returning false from fn
// stops the walk.
func Walk(root *Item, fn func(item, parent *Item) bool) {
	walk(root, fn)
}

func walk(folder *Item, fn func(item, parent *Item) bool) bool {
	if folder == nil {
		return true
	}
	for _, child := range folder.Children {
		if !fn(child, folder) {
			return false
		}
		if child.IsFolder() && !walk(child, fn) {
			return false
		}
	}
	return true
}

// Flatten returns every descendant of root in pre-order, root excluded.
func Flatten(root *Item) []*Item {
	var items []*Item
	Walk(root, func(item, _ *Item) bool {
		items = append(items, item)
		return true
	})
	return items
}

// Count returns the number of items in the tree, root included.
func Count(root *Item) int {
	if root == nil {
		return 0
	}
	return 1 + len(Flatten(root))
}
