package rbtree

import "github.com/Lzww0608/ConcordKV-sub001/arena"

// The rotation / fixup / delete machinery below is the textbook CLRS
// red-black tree algorithm, translated so every "pointer" is an
// arena.Handle and the sentinel is a real allocated node rather than a nil
// check, per this package's header comment.

func (t *Tree[V]) leftRotate(x arena.Handle) {
	xn := t.n(x)
	y := xn.right
	yn := t.n(y)
	xn.right = yn.left
	if yn.left != t.nilH {
		t.n(yn.left).parent = x
	}
	yn.parent = xn.parent
	if xn.parent == t.nilH {
		t.root = y
	} else {
		pn := t.n(xn.parent)
		if x == pn.left {
			pn.left = y
		} else {
			pn.right = y
		}
	}
	yn.left = x
	xn.parent = y
}

func (t *Tree[V]) rightRotate(x arena.Handle) {
	xn := t.n(x)
	y := xn.left
	yn := t.n(y)
	xn.left = yn.right
	if yn.right != t.nilH {
		t.n(yn.right).parent = x
	}
	yn.parent = xn.parent
	if xn.parent == t.nilH {
		t.root = y
	} else {
		pn := t.n(xn.parent)
		if x == pn.right {
			pn.right = y
		} else {
			pn.left = y
		}
	}
	yn.right = x
	xn.parent = y
}

func (t *Tree[V]) insertFixup(z arena.Handle) {
	for t.n(t.n(z).parent).color == red {
		zp := t.n(z).parent
		zpp := t.n(zp).parent
		if zp == t.n(zpp).left {
			y := t.n(zpp).right
			if t.n(y).color == red {
				t.n(zp).color = black
				t.n(y).color = black
				t.n(zpp).color = red
				z = zpp
			} else {
				if z == t.n(zp).right {
					z = zp
					t.leftRotate(z)
					zp = t.n(z).parent
				}
				t.n(zp).color = black
				zpp = t.n(zp).parent
				t.n(zpp).color = red
				t.rightRotate(zpp)
			}
		} else {
			y := t.n(zpp).left
			if t.n(y).color == red {
				t.n(zp).color = black
				t.n(y).color = black
				t.n(zpp).color = red
				z = zpp
			} else {
				if z == t.n(zp).left {
					z = zp
					t.rightRotate(z)
					zp = t.n(z).parent
				}
				t.n(zp).color = black
				zpp = t.n(zp).parent
				t.n(zpp).color = red
				t.leftRotate(zpp)
			}
		}
	}
	t.n(t.root).color = black
}

func (t *Tree[V]) transplant(u, v arena.Handle) {
	un := t.n(u)
	if un.parent == t.nilH {
		t.root = v
	} else {
		pn := t.n(un.parent)
		if u == pn.left {
			pn.left = v
		} else {
			pn.right = v
		}
	}
	t.n(v).parent = un.parent
}

func (t *Tree[V]) deleteNode(z arena.Handle) {
	y := z
	yOriginalColor := t.n(y).color
	var x arena.Handle

	zn := t.n(z)
	if zn.left == t.nilH {
		x = zn.right
		t.transplant(z, zn.right)
	} else if zn.right == t.nilH {
		x = zn.left
		t.transplant(z, zn.left)
	} else {
		y = t.minimum(zn.right)
		yOriginalColor = t.n(y).color
		x = t.n(y).right
		if t.n(y).parent == z {
			t.n(x).parent = y
		} else {
			t.transplant(y, t.n(y).right)
			t.n(y).right = zn.right
			t.n(t.n(y).right).parent = y
		}
		t.transplant(z, y)
		t.n(y).left = zn.left
		t.n(t.n(y).left).parent = y
		t.n(y).color = t.n(z).color
	}

	t.nodes.Free(z)

	if yOriginalColor == black {
		t.deleteFixup(x)
	}
}

func (t *Tree[V]) deleteFixup(x arena.Handle) {
	for x != t.root && t.n(x).color == black {
		xp := t.n(x).parent
		if x == t.n(xp).left {
			w := t.n(xp).right
			if t.n(w).color == red {
				t.n(w).color = black
				t.n(xp).color = red
				t.leftRotate(xp)
				xp = t.n(x).parent
				w = t.n(xp).right
			}
			if t.n(t.n(w).left).color == black && t.n(t.n(w).right).color == black {
				t.n(w).color = red
				x = xp
			} else {
				if t.n(t.n(w).right).color == black {
					t.n(t.n(w).left).color = black
					t.n(w).color = red
					t.rightRotate(w)
					xp = t.n(x).parent
					w = t.n(xp).right
				}
				t.n(w).color = t.n(xp).color
				t.n(xp).color = black
				t.n(t.n(w).right).color = black
				t.leftRotate(xp)
				x = t.root
			}
		} else {
			w := t.n(xp).left
			if t.n(w).color == red {
				t.n(w).color = black
				t.n(xp).color = red
				t.rightRotate(xp)
				xp = t.n(x).parent
				w = t.n(xp).left
			}
			if t.n(t.n(w).right).color == black && t.n(t.n(w).left).color == black {
				t.n(w).color = red
				x = xp
			} else {
				if t.n(t.n(w).left).color == black {
					t.n(t.n(w).right).color = black
					t.n(w).color = red
					t.leftRotate(w)
					xp = t.n(x).parent
					w = t.n(xp).left
				}
				t.n(w).color = t.n(xp).color
				t.n(xp).color = black
				t.n(t.n(w).left).color = black
				t.rightRotate(xp)
				x = t.root
			}
		}
	}
	t.n(x).color = black
}
