// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import "github.com/driftline/callscope/services/extract/symbol"

// CallTreeSchemaVersion is the version of the exchange format. Increment on
// breaking changes.
const CallTreeSchemaVersion = "1.0"

// SerializableCallNode is the JSON projection of a CallNode tree.
//
// Description:
//
//	A thin exchange format for presentation layers: field names follow the
//	wire contract (name, className, namespace, returnType, paramsInfo,
//	resolvedFrom, internalCalls) rather than Go conventions. Projection is
//	lossless for the fields it carries and deterministic: children keep
//	their source order.
type SerializableCallNode struct {
	// Name is the method's qualified name.
	Name string `json:"name"`

	// ClassName is the containing type name. Empty for free functions.
	ClassName string `json:"className,omitempty"`

	// Namespace is the namespace/package of the containing type.
	Namespace string `json:"namespace"`

	// ReturnType is the declared return type.
	ReturnType string `json:"returnType,omitempty"`

	// ParamsInfo is the ordered parameter list.
	ParamsInfo []symbol.Param `json:"paramsInfo,omitempty"`

	// ResolvedFrom names the abstract type the call was dispatched
	// through, when resolution crossed an abstraction boundary.
	ResolvedFrom string `json:"resolvedFrom,omitempty"`

	// Cycle marks a truncated terminal for a previously expanded method.
	Cycle bool `json:"cycle,omitempty"`

	// InternalCalls are the resolved callees, in source order.
	InternalCalls []SerializableCallNode `json:"internalCalls"`
}

// ToSerializable projects a CallNode tree into its exchange representation.
//
// Outputs:
//
//	SerializableCallNode - The projected tree. Zero value for a nil node.
func ToSerializable(node *CallNode) SerializableCallNode {
	if node == nil || node.Method == nil {
		return SerializableCallNode{InternalCalls: []SerializableCallNode{}}
	}

	out := SerializableCallNode{
		Name:          node.Method.QualifiedName,
		ClassName:     node.Method.TypeName,
		Namespace:     node.Method.Namespace,
		ReturnType:    node.Method.ReturnType,
		ParamsInfo:    node.Method.Params,
		ResolvedFrom:  node.ResolvedFrom,
		Cycle:         node.Cycle,
		InternalCalls: make([]SerializableCallNode, 0, len(node.Children)),
	}
	for _, child := range node.Children {
		out.InternalCalls = append(out.InternalCalls, ToSerializable(child))
	}
	return out
}

// SerializablePath is the JSON projection of one ancestor path: descriptors
// ordered from the queried method outward to its entry point.
type SerializablePath []SerializablePathStep

// SerializablePathStep is one method on an ancestor path.
type SerializablePathStep struct {
	// Name is the method's qualified name.
	Name string `json:"name"`

	// ClassName is the containing type name.
	ClassName string `json:"className,omitempty"`

	// Namespace is the namespace/package of the containing type.
	Namespace string `json:"namespace"`

	// Project is the declaring project/module.
	Project string `json:"project"`
}

// PathsToSerializable projects ancestor paths into the exchange format,
// preserving discovery order.
func PathsToSerializable(paths []AncestorPath) []SerializablePath {
	out := make([]SerializablePath, 0, len(paths))
	for _, p := range paths {
		sp := make(SerializablePath, 0, len(p))
		for _, d := range p {
			sp = append(sp, SerializablePathStep{
				Name:      d.QualifiedName,
				ClassName: d.TypeName,
				Namespace: d.Namespace,
				Project:   d.Project,
			})
		}
		out = append(out, sp)
	}
	return out
}
