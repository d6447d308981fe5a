package scope

import (
	"net/url"
)

// Filter decides whether a discovered URL belongs to the crawl.
// Admit must not have side effects; a Chain may skip it entirely.
type Filter interface {
	Admit(u *url.URL) bool
	Name() string
}

// Chain is an ordered AND over filters. Evaluation stops at the first
// filter that rejects.
type Chain struct {
	filters []Filter
}

// NewChain returns a chain evaluating filters in order. Nil filters are
// ignored.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	c.Append(filters...)
	return c
}

// Append adds filters to the end of the chain.
func (c *Chain) Append(filters ...Filter) {
	for _, f := range filters {
		if f != nil {
			c.filters = append(c.filters, f)
		}
	}
}

// Admit reports whether every filter admits u. An empty chain admits all.
func (c *Chain) Admit(u *url.URL) bool {
	ok, _ := c.Explain(u)
	return ok
}

// Explain is Admit plus the name of the rejecting filter, if any.
func (c *Chain) Explain(u *url.URL) (bool, string) {
	if u == nil {
		return false, "nil"
	}
	for _, f := range c.filters {
		if !f.Admit(u) {
			return false, f.Name()
		}
	}
	return true, ""
}

// AdmitString parses raw and runs Admit. Unparseable URLs are rejected.
func (c *Chain) AdmitString(raw string) (bool, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return false, "parse"
	}
	return c.Explain(u)
}

// Len returns the number of filters.
func (c *Chain) Len() int {
	return len(c.filters)
}

// Names lists the filter names in evaluation order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.filters))
	for i, f := range c.filters {
		names[i] = f.Name()
	}
	return names
}

// Func adapts a function to the Filter interface.
type Func struct {
	Label string
	Fn    func(u *url.URL) bool
}

// Admit calls Fn.
func (f Func) Admit(u *url.URL) bool { return f.Fn(u) }

// Name returns Label.
func (f Func) Name() string { return f.Label }
