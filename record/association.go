/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package record

// Cardinality of an association, read near-to-far.
type Cardinality string

const (
	OneToOne  Cardinality = "one-to-one"
	OneToMany Cardinality = "one-to-many"
	ManyToOne Cardinality = "many-to-one"
)

// Association relates a near (class, field) pair to a far (class, field)
// pair. Near and far are labels, not directions: the same descriptor is
// installed on both classes, and traversal works from either end.
type Association struct {
	Name        string
	Near        *Class
	NearField   string
	Far         *Class
	FarField    string
	Cardinality Cardinality
}

// inverse returns the association as seen from the far class.
func (a *Association) inverse() *Association {
	card := a.Cardinality
	switch card {
	case OneToMany:
		card = ManyToOne
	case ManyToOne:
		card = OneToMany
	}
	return &Association{
		Name:        a.Near.name,
		Near:        a.Far,
		NearField:   a.FarField,
		Far:         a.Near,
		FarField:    a.NearField,
		Cardinality: card,
	}
}

// ToOne reports whether traversing this descriptor yields at most one record.
func (a *Association) ToOne() bool {
	return a.Cardinality == OneToOne || a.Cardinality == ManyToOne
}

// Associate declares a relationship between two classes. Each class gains
// a generated accessor named after the opposite class; the accessor
// returns a single record-or-nil for to-one relations and a (possibly
// empty, never nil) slice for to-many.
//
// The returned descriptor is the near-side view; callers wanting the
// association graph should register it there as well.
func Associate(near *Class, nearField string, far *Class, farField string, card Cardinality) (*Association, error) {
	a := &Association{
		Name:        far.name,
		Near:        near,
		NearField:   nearField,
		Far:         far,
		FarField:    farField,
		Cardinality: card,
	}
	if err := near.defineAssociation(far.name, a); err != nil {
		return nil, err
	}
	if err := far.defineAssociation(near.name, a.inverse()); err != nil {
		// Roll back the near side so a failed Associate leaves no trace.
		delete(near.assocs, far.name)
		return nil, err
	}
	return a, nil
}
