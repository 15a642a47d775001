package longtake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeNode is one element of the in-memory document used by the tests.
type fakeNode struct {
	id      string
	role    string
	name    string
	text    string
	css     []string // selectors this node answers to, e.g. "button", ".quest-card"
	visible bool

	parent   *fakeNode
	children []*fakeNode
	detached bool

	staleClicks int // clicks that detach the node and re-render a copy
	clickErr    error
	shotErr     error
	onClick     func(p *fakePage)
}

// fakePage is a minimal browser page over a tree of fakeNodes.
type fakePage struct {
	mu sync.Mutex

	root    *fakeNode
	url     string
	title   string
	console []string

	navErr  error
	navHook func(p *fakePage, url string)
	shotErr error

	queries  int
	navCount int
	clicks   map[string]int
	renders  int
}

func newFakePage(children ...*fakeNode) *fakePage {
	p := &fakePage{
		root:   &fakeNode{id: "body", visible: true},
		url:    "about:blank",
		clicks: make(map[string]int),
	}
	for _, c := range children {
		p.root.append(c)
	}
	return p
}

func node(id, role, name, text string) *fakeNode {
	return &fakeNode{id: id, role: role, name: name, text: text, visible: true}
}

func (n *fakeNode) append(children ...*fakeNode) *fakeNode {
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

func (n *fakeNode) withCSS(selectors ...string) *fakeNode {
	n.css = append(n.css, selectors...)
	return n
}

func (n *fakeNode) hidden() *fakeNode {
	n.visible = false
	return n
}

func (n *fakeNode) walk(fn func(*fakeNode)) {
	for _, c := range n.children {
		fn(c)
		c.walk(fn)
	}
}

// mutate runs fn under the page lock.
func (p *fakePage) mutate(fn func(p *fakePage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// after schedules a mutation, like a server push re-rendering the page.
func (p *fakePage) after(d time.Duration, fn func(p *fakePage)) {
	time.AfterFunc(d, func() { p.mutate(fn) })
}

// add attaches a node to the body. Callers hold the lock.
func (p *fakePage) add(n *fakeNode) {
	p.root.append(n)
}

// remove detaches the node with id. Callers hold the lock.
func (p *fakePage) remove(id string) {
	n := p.find(id)
	if n == nil || n.parent == nil {
		return
	}
	parent := n.parent
	var kept []*fakeNode
	for _, c := range parent.children {
		if c != n {
			kept = append(kept, c)
		}
	}
	parent.children = kept
	n.markDetached()
}

func (n *fakeNode) markDetached() {
	n.detached = true
	for _, c := range n.children {
		c.markDetached()
	}
}

func (p *fakePage) find(id string) *fakeNode {
	var found *fakeNode
	p.root.walk(func(n *fakeNode) {
		if n.id == id && found == nil {
			found = n
		}
	})
	return found
}

func (p *fakePage) queryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

func (p *fakePage) clickCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[id]
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navCount++
	if p.navErr != nil {
		return p.navErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.url = url
	if p.navHook != nil {
		p.navHook(p, url)
	}
	return nil
}

func (p *fakePage) Query(ctx context.Context, scope Scope, m Match) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries++
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pool []*fakeNode
	switch scope.Axis {
	case AxisDescendant, AxisSibling:
		anchor, ok := scope.Anchor.(*fakeElement)
		if !ok {
			return nil, fmt.Errorf("foreign anchor %T", scope.Anchor)
		}
		if anchor.node.detached {
			return nil, fmt.Errorf("anchor %s: %w", anchor.node.id, ErrStaleElement)
		}
		if scope.Axis == AxisDescendant {
			anchor.node.walk(func(n *fakeNode) { pool = append(pool, n) })
			break
		}
		if parent := anchor.node.parent; parent != nil {
			for _, sib := range parent.children {
				if sib == anchor.node {
					continue
				}
				pool = append(pool, sib)
				sib.walk(func(n *fakeNode) { pool = append(pool, n) })
			}
		}
	default:
		p.root.walk(func(n *fakeNode) { pool = append(pool, n) })
	}

	var out []Element
	for _, n := range pool {
		if n.matches(m) {
			out = append(out, &fakeElement{page: p, node: n})
		}
	}
	return out, nil
}

func (n *fakeNode) matches(m Match) bool {
	if m.Empty() {
		return false
	}
	if m.Role != "" && n.role != m.Role {
		return false
	}
	if m.Name != "" && normalizeSpace(n.name) != normalizeSpace(m.Name) {
		return false
	}
	if m.Text != "" && normalizeSpace(n.text) != normalizeSpace(m.Text) {
		return false
	}
	if m.Contains != "" && !strings.Contains(n.text, m.Contains) {
		return false
	}
	if m.CSS != "" {
		hit := false
		for _, sel := range n.css {
			if sel == m.CSS {
				hit = true
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, ctx.Err()
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, ctx.Err()
}

func (p *fakePage) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var lines []string
	var visit func(n *fakeNode, shown bool)
	visit = func(n *fakeNode, shown bool) {
		for _, c := range n.children {
			v := shown && c.visible
			if v && c.text != "" {
				lines = append(lines, c.text)
			}
			visit(c, v)
		}
	}
	visit(p.root, true)
	return strings.Join(lines, "\n"), nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	return []byte("page:" + p.url), ctx.Err()
}

func (p *fakePage) ConsoleLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.console...)
}

// fakeElement is a handle onto a fakeNode.
type fakeElement struct {
	page *fakePage
	node *fakeNode
}

func (e *fakeElement) Handle() string { return e.node.id }

func (e *fakeElement) stale() error {
	if e.node.detached {
		return fmt.Errorf("%s: %w", e.node.id, ErrStaleElement)
	}
	return nil
}

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", err
	}
	return e.node.text, nil
}

func (e *fakeElement) Visible(ctx context.Context) (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.stale(); err != nil {
		return false, err
	}
	for n := e.node; n != nil; n = n.parent {
		if !n.visible {
			return false, nil
		}
	}
	return true, nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.stale(); err != nil {
		return err
	}
	e.page.clicks[e.node.id]++

	if e.node.staleClicks > 0 {
		// The click lands mid re-render: the node is swapped for a fresh copy.
		e.node.staleClicks--
		fresh := *e.node
		fresh.children = nil
		parent := e.node.parent
		for i, c := range parent.children {
			if c == e.node {
				parent.children[i] = &fresh
			}
		}
		e.node.markDetached()
		e.page.renders++
		return fmt.Errorf("%s: %w", e.node.id, ErrStaleElement)
	}
	if e.node.clickErr != nil {
		return e.node.clickErr
	}
	if e.node.onClick != nil {
		e.node.onClick(e.page)
	}
	return nil
}

func (e *fakeElement) Screenshot(ctx context.Context) ([]byte, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.stale(); err != nil {
		return nil, err
	}
	if e.node.shotErr != nil {
		return nil, e.node.shotErr
	}
	return []byte("element:" + e.node.id), nil
}

// fakeOpener hands out fresh fake pages.
type fakeOpener struct {
	mu      sync.Mutex
	build   func(n int) *fakePage
	opened  int
	closed  int
	failOn  map[int]bool
	pages   []*fakePage
	inUse   int
	maxUsed int
}

func (o *fakeOpener) Open(ctx context.Context) (Page, func() error, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.opened
	o.opened++
	if o.failOn[n] {
		return nil, nil, errors.New("browser context refused")
	}
	p := o.build(n)
	o.pages = append(o.pages, p)
	o.inUse++
	if o.inUse > o.maxUsed {
		o.maxUsed = o.inUse
	}
	return p, func() error {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.closed++
		o.inUse--
		return nil
	}, nil
}
