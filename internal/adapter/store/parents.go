package store

import (
	"encoding/json"
	"slices"

	"go.etcd.io/bbolt"
)

// parentLinks stages edits to the parent -> children index. Lists are
// copied before they change, so the live index only moves on apply.
type parentLinks struct {
	base   map[string][]string
	staged map[string][]string
}

func newParentLinks(base map[string][]string) *parentLinks {
	return &parentLinks{base: base, staged: make(map[string][]string)}
}

func (p *parentLinks) get(parent string) []string {
	if ids, ok := p.staged[parent]; ok {
		return ids
	}
	return p.base[parent]
}

func (p *parentLinks) add(parent, id string) {
	ids := p.get(parent)
	if slices.Contains(ids, id) {
		return
	}
	p.staged[parent] = append(slices.Clip(ids), id)
}

func (p *parentLinks) remove(parent, id string) {
	ids := p.get(parent)
	if !slices.Contains(ids, id) {
		return
	}
	out := make([]string, 0, len(ids)-1)
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	p.staged[parent] = out
}

// persist writes every staged list, dropping parents left without children.
func (p *parentLinks) persist(b *bbolt.Bucket) error {
	for parent, ids := range p.staged {
		if len(ids) == 0 {
			if err := b.Delete([]byte(parent)); err != nil {
				return err
			}
			continue
		}
		data, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(parent), data); err != nil {
			return err
		}
	}
	return nil
}

func (p *parentLinks) apply(children map[string][]string) {
	for parent, ids := range p.staged {
		if len(ids) == 0 {
			delete(children, parent)
			continue
		}
		children[parent] = ids
	}
}
