package repository

import "math/rand/v2"

// board is a treap ordered by rating DESC, then player id ASC, so an
// in-order walk yields the leaderboard. Subtree sizes give rank lookups in
// O(log n) expected time.
type board struct {
	root *node
}

type node struct {
	id     string
	rating int
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before reports whether (aRating, aID) ranks ahead of (bRating, bID).
func before(aRating int, aID string, bRating int, bID string) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, rating int) *node {
	if n == nil {
		return &node{id: id, rating: rating, prio: rand.Uint64(), size: 1}
	}
	if before(rating, id, n.rating, n.id) {
		n.left = insert(n.left, id, rating)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, rating)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, rating int) *node {
	if n == nil {
		return nil
	}
	switch {
	case rating == n.rating && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, rating)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, rating)
		}
	case before(rating, id, n.rating, n.id):
		n.left = remove(n.left, id, rating)
	default:
		n.right = remove(n.right, id, rating)
	}
	fix(n)
	return n
}

// set moves id from old to rating. Pass fresh for a player not yet indexed.
func (b *board) set(id string, old, rating int, fresh bool) {
	if !fresh {
		b.root = remove(b.root, id, old)
	}
	b.root = insert(b.root, id, rating)
}

func (b *board) len() int { return nsize(b.root) }

// rank is 1 + the number of players rated strictly higher, so ties share a rank.
func (b *board) rank(rating int) int {
	above := 0
	n := b.root
	for n != nil {
		if n.rating > rating {
			above += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return above + 1
}

// top walks the first limit entries in leaderboard order.
func (b *board) top(limit int, visit func(id string, rating int)) {
	count := 0
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil || count >= limit {
			return
		}
		walk(n.left)
		if count < limit {
			visit(n.id, n.rating)
			count++
		}
		walk(n.right)
	}
	walk(b.root)
}
