/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

// Package schema loads declarative model documents and registers them
// against a store. A document lists classes with fields and
// identifiers, plus the associations connecting them:
//
//	classes:
//	  - name: User
//	    fields:
//	      - name: ID
//	        type: int
//	      - name: Name
//	        type: string
//	        index: true
//	    identifiers: [ID]
//	  - name: Order
//	    fields:
//	      - name: ID
//	        type: int
//	      - name: UserID
//	        type: int
//	    identifiers: [ID]
//	associations:
//	  - name: Order
//	    near: User
//	    nearField: ID
//	    far: Order
//	    farField: UserID
//	    cardinality: one-to-many
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/recallkit/recallkit"
	"github.com/recallkit/recallkit/record"
)

// Model is a parsed model document.
type Model struct {
	Classes      []ClassDef       `yaml:"classes"`
	Associations []AssociationDef `yaml:"associations"`
}

// ClassDef declares one record class.
type ClassDef struct {
	Name        string     `yaml:"name"`
	Fields      []FieldDef `yaml:"fields"`
	Identifiers []string   `yaml:"identifiers"`
}

// FieldDef declares one field of a class.
type FieldDef struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Default   any    `yaml:"default"`
	Index     bool   `yaml:"index"`
	MaxBytes  int    `yaml:"maxBytes"`
	Scale     int    `yaml:"scale"`
	Precision int    `yaml:"precision"`
}

// AssociationDef declares one association between two classes.
type AssociationDef struct {
	Name        string `yaml:"name"`
	Near        string `yaml:"near"`
	NearField   string `yaml:"nearField"`
	Far         string `yaml:"far"`
	FarField    string `yaml:"farField"`
	Cardinality string `yaml:"cardinality"`
}

// Load parses a model document.
func Load(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &m, nil
}

// LoadFile parses a model document from a file.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Build materializes the declared classes without registering them
// anywhere. Classes come back in declaration order.
func (m *Model) Build() ([]*record.Class, error) {
	out := make([]*record.Class, 0, len(m.Classes))
	for _, cd := range m.Classes {
		cls := record.NewClass(cd.Name)
		for _, fd := range cd.Fields {
			f := record.Field{
				Name:      fd.Name,
				Type:      record.FieldType(fd.Type),
				Default:   fd.Default,
				Index:     fd.Index,
				MaxBytes:  fd.MaxBytes,
				Scale:     fd.Scale,
				Precision: fd.Precision,
			}
			if err := cls.DefineField(f); err != nil {
				return nil, err
			}
		}
		if len(cd.Identifiers) > 0 {
			if err := cls.Identify(cd.Identifiers...); err != nil {
				return nil, err
			}
		}
		out = append(out, cls)
	}
	return out, nil
}

// Register builds the model and registers every class and association
// with the store, in declaration order.
func (m *Model) Register(store *recallkit.Store) ([]*record.Class, error) {
	classes, err := m.Build()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*record.Class, len(classes))
	for _, cls := range classes {
		if err := store.RegisterClass(cls); err != nil {
			return nil, err
		}
		byName[cls.Name()] = cls
	}
	for _, ad := range m.Associations {
		near, ok := byName[ad.Near]
		if !ok {
			return nil, fmt.Errorf("schema: association %q names undeclared class %q", ad.Name, ad.Near)
		}
		far, ok := byName[ad.Far]
		if !ok {
			return nil, fmt.Errorf("schema: association %q names undeclared class %q", ad.Name, ad.Far)
		}
		card := record.Cardinality(ad.Cardinality)
		switch card {
		case record.OneToOne, record.OneToMany, record.ManyToOne:
		default:
			return nil, fmt.Errorf("schema: association %q has unknown cardinality %q", ad.Name, ad.Cardinality)
		}
		if _, err := store.Associate(near, ad.NearField, far, ad.FarField, card); err != nil {
			return nil, err
		}
	}
	return classes, nil
}
