// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package symbol defines the identity and signature value types shared by
// every extraction component.
//
// A MethodDescriptor is the stable identity of one declared method. All
// cycle detection, deduplication, and dependency accounting in the engine
// keys off descriptor identity, so the identity rules here are load-bearing:
// two descriptors denote the same method iff their four identity fields
// (QualifiedName, TypeName, Namespace, Project) are equal. Signature fields
// (return type, parameters) describe the method but never participate in
// identity.
package symbol

import (
	"fmt"
	"strings"
)

// Param is one (type, name) pair in a method signature. Order matters.
type Param struct {
	// Type is the declared parameter type (e.g., "string", "*Config").
	Type string `json:"type"`

	// Name is the declared parameter name. May be empty for unnamed params.
	Name string `json:"name,omitempty"`
}

// Location identifies a position in a source file.
type Location struct {
	// File is the path of the source file, relative to the project root.
	File string `json:"file"`

	// Line is the 1-based line number.
	Line int `json:"line"`

	// Column is the 1-based column number.
	Column int `json:"column,omitempty"`
}

// Key returns a stable string form of the location, usable as a map key.
func (l Location) Key() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// MethodDescriptor is the identity plus signature of a declared method,
// independent of any call site.
//
// Description:
//
//	Descriptors are value-like: components copy and share pointers to them
//	freely, and they MUST NOT be mutated after construction. Identity is
//	the 4-tuple (QualifiedName, TypeName, Namespace, Project); see Equal.
//
// Thread Safety: Immutable after construction; safe to share.
type MethodDescriptor struct {
	// QualifiedName is the declared method name (e.g., "ProcessOrder").
	QualifiedName string `json:"qualifiedName"`

	// TypeName is the name of the containing type. Empty for free functions.
	TypeName string `json:"typeName,omitempty"`

	// Namespace is the namespace/package containing the type.
	Namespace string `json:"namespace"`

	// Project is the name of the project/module that declares the method.
	Project string `json:"project"`

	// ReturnType is the declared return type. Informational only.
	ReturnType string `json:"returnType,omitempty"`

	// Params is the ordered parameter list. Informational only.
	Params []Param `json:"params,omitempty"`

	// Abstract marks a method declared on an interface or abstract type.
	// Abstract methods have no body of their own; calls through them are
	// resolved to concrete implementations before traversal descends.
	Abstract bool `json:"abstract,omitempty"`

	// SourceAvailable reports whether the method has an analyzable body.
	// External/library methods have no retrievable source and terminate
	// forward traversal.
	SourceAvailable bool `json:"sourceAvailable"`
}

// Key returns the stable identity key for the descriptor.
//
// Description:
//
//	The key is derived from the four identity fields only, so it is stable
//	for the lifetime of a traversal run and across runs against unchanged
//	input. It is the map key used by seen-sets, visited-sets, and indexes.
//
// Outputs:
//
//	string - "project:namespace.TypeName.QualifiedName" (TypeName segment
//	         omitted for free functions).
func (d *MethodDescriptor) Key() string {
	var b strings.Builder
	b.WriteString(d.Project)
	b.WriteByte(':')
	b.WriteString(d.Namespace)
	b.WriteByte('.')
	if d.TypeName != "" {
		b.WriteString(d.TypeName)
		b.WriteByte('.')
	}
	b.WriteString(d.QualifiedName)
	return b.String()
}

// Equal reports whether two descriptors denote the same declared method.
//
// Signature fields are deliberately excluded: a method is the same method
// regardless of how much signature detail a provider attached to it.
func (d *MethodDescriptor) Equal(other *MethodDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.QualifiedName == other.QualifiedName &&
		d.TypeName == other.TypeName &&
		d.Namespace == other.Namespace &&
		d.Project == other.Project
}

// Display returns a short human-readable form for logs and prompts.
func (d *MethodDescriptor) Display() string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.Type
	}
	name := d.QualifiedName
	if d.TypeName != "" {
		name = d.TypeName + "." + name
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(params, ", "))
}

// Validate checks that the descriptor carries the minimum identity fields.
//
// Outputs:
//
//	error - Non-nil if QualifiedName or Namespace is empty.
func (d *MethodDescriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("descriptor is nil")
	}
	if d.QualifiedName == "" {
		return fmt.Errorf("descriptor missing qualified name")
	}
	if d.Namespace == "" {
		return fmt.Errorf("descriptor %q missing namespace", d.QualifiedName)
	}
	return nil
}

// CallSite is one location within a method body where another method is
// invoked. Providers return call sites in source order; the builder
// preserves that order in the extracted tree.
type CallSite struct {
	// Target is the best-effort static target of the call. Nil when the
	// provider could not determine any target (dynamic dispatch through
	// values it cannot see, reflection, etc.); such sites contribute no
	// child to the tree.
	Target *MethodDescriptor `json:"target,omitempty"`

	// Expression is the call expression text as written at the site.
	// Passed verbatim to the disambiguation oracle.
	Expression string `json:"expression,omitempty"`

	// Location is where the call appears.
	Location Location `json:"location"`
}
