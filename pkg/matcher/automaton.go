package matcher

// AC automaton cho Unicode (duyệt từng rune), output là keyword ID

type acNode struct {
	next map[rune]int // edges
	fail int          // failure link
	out  []int        // keyword IDs accepted at this node (own + via fail links)
}

type automaton struct {
	nodes []acNode
}

func newAutomaton() *automaton {
	return &automaton{nodes: []acNode{{next: map[rune]int{}}}}
}

// add inserts an already normalized pattern.
func (a *automaton) add(pattern string, id int) {
	cur := 0
	for _, r := range pattern {
		nxt, ok := a.nodes[cur].next[r]
		if !ok {
			nxt = len(a.nodes)
			a.nodes = append(a.nodes, acNode{next: map[rune]int{}})
			a.nodes[cur].next[r] = nxt
		}
		cur = nxt
	}
	if cur == 0 {
		return
	}
	a.nodes[cur].out = append(a.nodes[cur].out, id)
}

// build computes failure links breadth first and merges outputs.
func (a *automaton) build() {
	q := make([]int, 0, len(a.nodes))
	// mức 1: fail = 0
	for _, v := range a.nodes[0].next {
		a.nodes[v].fail = 0
		q = append(q, v)
	}
	for h := 0; h < len(q); h++ {
		u := q[h]
		for r, v := range a.nodes[u].next {
			q = append(q, v)
			f := a.nodes[u].fail
			for {
				if to, ok := a.nodes[f].next[r]; ok {
					a.nodes[v].fail = to
					break
				}
				if f == 0 {
					a.nodes[v].fail = 0
					break
				}
				f = a.nodes[f].fail
			}
			a.nodes[v].out = append(a.nodes[v].out, a.nodes[a.nodes[v].fail].out...)
		}
	}
}

// step follows goto/fail edges for r.
func (a *automaton) step(state int, r rune) int {
	for {
		if to, ok := a.nodes[state].next[r]; ok {
			return to
		}
		if state == 0 {
			return 0
		}
		state = a.nodes[state].fail
	}
}

func (a *automaton) outputs(state int) []int { return a.nodes[state].out }

func (a *automaton) size() int { return len(a.nodes) }
