// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sitter scans Go source trees with tree-sitter and produces the
// snapshot index the extraction engine reads from.
//
// Scanning is two-pass. The first pass parses every file and collects
// method declarations, interface method specs, and the raw call
// expressions inside each body. The second pass links call expressions to
// descriptors by name, now that the full symbol population is known. Call
// names that match nothing in the project stay unresolved; the engine
// renders them as absent children rather than failing.
package sitter

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	ts "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"golang.org/x/mod/modfile"

	"github.com/driftline/callscope/services/extract/index"
	"github.com/driftline/callscope/services/extract/symbol"
)

// DefaultMaxFileSize is the largest file the scanner will parse.
const DefaultMaxFileSize = 10 * 1024 * 1024

// defaultExcludes are directory names skipped during the walk.
var defaultExcludes = []string{"vendor", "testdata", "node_modules"}

// Options configures Scanner behavior.
type Options struct {
	// MaxFileSize is the largest file in bytes the scanner will parse.
	// Larger files are skipped with a warning. Default: 10MB.
	MaxFileSize int64

	// Excludes are directory names to skip in addition to the defaults
	// (vendor, testdata, node_modules) and hidden directories.
	Excludes []string

	// IncludeTests controls whether _test.go files are scanned.
	// Default: false.
	IncludeTests bool

	// Logger for scan diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Option is a functional option for configuring Scanner.
type Option func(*Options)

// WithMaxFileSize sets the maximum file size the scanner will parse.
func WithMaxFileSize(bytes int64) Option {
	return func(o *Options) {
		if bytes > 0 {
			o.MaxFileSize = bytes
		}
	}
}

// WithExcludes adds directory names to skip during the walk.
func WithExcludes(names ...string) Option {
	return func(o *Options) {
		o.Excludes = append(o.Excludes, names...)
	}
}

// WithTests includes _test.go files in the scan.
func WithTests() Option {
	return func(o *Options) {
		o.IncludeTests = true
	}
}

// WithScannerLogger sets the logger for scan diagnostics.
func WithScannerLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Scanner parses Go source trees into snapshot indexes.
//
// Thread Safety: Scanner is safe for concurrent use. Each parse creates
// its own tree-sitter parser instance.
type Scanner struct {
	options Options
}

// NewScanner creates a Scanner with the given options.
func NewScanner(opts ...Option) *Scanner {
	options := Options{
		MaxFileSize: DefaultMaxFileSize,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{options: options}
}

// rawCall is an unlinked call expression found inside a method body.
type rawCall struct {
	name       string
	expression string
	location   symbol.Location
}

// rawMethod is a parsed declaration before call-site linking.
type rawMethod struct {
	descriptor *symbol.MethodDescriptor
	calls      []rawCall
}

// scanState accumulates first-pass results across files.
type scanState struct {
	project string
	methods []*rawMethod

	// interface name -> method names it declares
	interfaceMethods map[string][]string
	// concrete type name -> set of method names declared on it
	typeMethods map[string]map[string]bool
}

// ScanProject walks a Go module rooted at dir and builds a snapshot index.
//
// Description:
//
//	Reads the module path from go.mod (falling back to the directory
//	name), parses every .go file under dir, and links call expressions
//	to descriptors by name. Interface method specs become abstract
//	descriptors; a concrete type whose method set covers an interface
//	is recorded as an implementer of each of that interface's methods.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between files.
//	dir - Module root. Must contain Go source; go.mod is optional.
//
// Outputs:
//
//	*index.SnapshotIndex - The populated index.
//	string - The project name used in descriptors.
//	error - Non-nil on I/O failure, parse failure, or cancellation.
func (s *Scanner) ScanProject(ctx context.Context, dir string) (*index.SnapshotIndex, string, error) {
	start := time.Now()

	project := moduleName(dir)
	state := &scanState{
		project:          project,
		interfaceMethods: make(map[string][]string),
		typeMethods:      make(map[string]map[string]bool),
	}

	files, err := s.listSourceFiles(dir)
	if err != nil {
		return nil, "", err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("scan canceled: %w", err)
		}
		if err := s.scanFile(ctx, dir, path, state); err != nil {
			return nil, "", fmt.Errorf("scanning %s: %w", path, err)
		}
	}

	idx, err := link(state)
	if err != nil {
		return nil, "", err
	}

	stats := idx.Stats()
	s.options.Logger.Info("project scan complete",
		slog.String("project", project),
		slog.Int("files", len(files)),
		slog.Int("methods", stats.TotalMethods),
		slog.Int("call_sites", stats.CallSites),
		slog.Duration("elapsed", time.Since(start)),
	)
	return idx, project, nil
}

// listSourceFiles returns the .go files under dir, honoring excludes.
func (s *Scanner) listSourceFiles(dir string) ([]string, error) {
	excluded := make(map[string]bool, len(defaultExcludes)+len(s.options.Excludes))
	for _, name := range defaultExcludes {
		excluded[name] = true
	}
	for _, name := range s.options.Excludes {
		excluded[name] = true
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if excluded[name] || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}
		if !s.options.IncludeTests && strings.HasSuffix(name, "_test.go") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

// scanFile parses one file and appends its declarations to state.
func (s *Scanner) scanFile(ctx context.Context, root, path string, state *scanState) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if int64(len(content)) > s.options.MaxFileSize {
		s.options.Logger.Warn("skipping oversized file",
			slog.String("file", path),
			slog.Int("size_bytes", len(content)),
		)
		return nil
	}
	if !utf8.Valid(content) {
		s.options.Logger.Warn("skipping non-UTF-8 file", slog.String("file", path))
		return nil
	}

	// New parser instance per call for thread safety.
	parser := ts.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	fileCtx := &fileContext{
		state:     state,
		content:   content,
		relPath:   rel,
		namespace: packageName(tree.RootNode(), content),
	}

	rootNode := tree.RootNode()
	for i := 0; i < int(rootNode.ChildCount()); i++ {
		child := rootNode.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "function_declaration":
			fileCtx.processFunction(child, "")
		case "method_declaration":
			fileCtx.processMethod(child)
		case "type_declaration":
			fileCtx.processTypeDeclaration(child)
		}
	}
	return nil
}

// fileContext carries per-file parse state.
type fileContext struct {
	state     *scanState
	content   []byte
	relPath   string
	namespace string
}

func (f *fileContext) text(node *ts.Node) string {
	if node == nil {
		return ""
	}
	return string(f.content[node.StartByte():node.EndByte()])
}

func (f *fileContext) location(node *ts.Node) symbol.Location {
	return symbol.Location{
		File:   f.relPath,
		Line:   int(node.StartPoint().Row) + 1,
		Column: int(node.StartPoint().Column) + 1,
	}
}

// processFunction handles function_declaration nodes and, with a receiver
// type, the shared body of method declarations.
func (f *fileContext) processFunction(node *ts.Node, receiverType string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	desc := &symbol.MethodDescriptor{
		QualifiedName:   f.text(nameNode),
		TypeName:        receiverType,
		Namespace:       f.namespace,
		Project:         f.state.project,
		ReturnType:      returnTypeText(f, node),
		Params:          f.extractParams(node.ChildByFieldName("parameters")),
		SourceAvailable: true,
	}

	method := &rawMethod{descriptor: desc}
	if body := node.ChildByFieldName("body"); body != nil {
		f.collectCalls(body, &method.calls)
	}
	f.state.methods = append(f.state.methods, method)

	if receiverType != "" {
		set := f.state.typeMethods[receiverType]
		if set == nil {
			set = make(map[string]bool)
			f.state.typeMethods[receiverType] = set
		}
		set[desc.QualifiedName] = true
	}
}

// processMethod handles method_declaration nodes.
func (f *fileContext) processMethod(node *ts.Node) {
	recv := node.ChildByFieldName("receiver")
	f.processFunction(node, receiverTypeName(f, recv))
}

// processTypeDeclaration extracts interface method specs as abstract
// descriptors.
func (f *fileContext) processTypeDeclaration(node *ts.Node) {
	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if spec == nil || spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil || typeNode.Type() != "interface_type" {
			continue
		}
		f.processInterface(f.text(nameNode), typeNode)
	}
}

// processInterface records each method spec of an interface as an abstract
// descriptor with an empty body.
func (f *fileContext) processInterface(ifaceName string, node *ts.Node) {
	var walk func(n *ts.Node)
	walk = func(n *ts.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			// Older grammars emit method_spec, newer ones method_elem.
			case "method_spec", "method_elem":
				nameNode := child.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				methodName := f.text(nameNode)
				desc := &symbol.MethodDescriptor{
					QualifiedName:   methodName,
					TypeName:        ifaceName,
					Namespace:       f.namespace,
					Project:         f.state.project,
					ReturnType:      returnTypeText(f, child),
					Params:          f.extractParams(child.ChildByFieldName("parameters")),
					Abstract:        true,
					SourceAvailable: true,
				}
				f.state.methods = append(f.state.methods, &rawMethod{descriptor: desc})
				f.state.interfaceMethods[ifaceName] = append(f.state.interfaceMethods[ifaceName], methodName)
			default:
				walk(child)
			}
		}
	}
	walk(node)
}

// extractParams builds the parameter list from a parameter_list node.
func (f *fileContext) extractParams(node *ts.Node) []symbol.Param {
	if node == nil {
		return nil
	}
	var params []symbol.Param
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || child.Type() != "parameter_declaration" && child.Type() != "variadic_parameter_declaration" {
			continue
		}
		typeText := strings.TrimSpace(f.text(child.ChildByFieldName("type")))
		if child.Type() == "variadic_parameter_declaration" {
			typeText = "..." + typeText
		}

		var names []string
		for j := 0; j < int(child.ChildCount()); j++ {
			id := child.Child(j)
			if id != nil && id.Type() == "identifier" {
				names = append(names, f.text(id))
			}
		}
		if len(names) == 0 {
			// Unnamed parameter, e.g. in interface method specs.
			params = append(params, symbol.Param{Type: typeText})
			continue
		}
		for _, name := range names {
			params = append(params, symbol.Param{Type: typeText, Name: name})
		}
	}
	return params
}

// collectCalls walks a body and records every call expression.
func (f *fileContext) collectCalls(node *ts.Node, out *[]rawCall) {
	if node == nil {
		return
	}
	if node.Type() == "call_expression" {
		if name := calleeName(f, node.ChildByFieldName("function")); name != "" {
			*out = append(*out, rawCall{
				name:       name,
				expression: compactExpression(f.text(node)),
				location:   f.location(node),
			})
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		f.collectCalls(node.Child(i), out)
	}
}

// calleeName extracts the called name from a call's function node: the bare
// identifier for plain calls, the selector field for method calls.
func calleeName(f *fileContext, node *ts.Node) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "identifier":
		return f.text(node)
	case "selector_expression":
		return f.text(node.ChildByFieldName("field"))
	case "parenthesized_expression":
		if node.ChildCount() > 0 {
			return calleeName(f, node.NamedChild(0))
		}
	}
	return ""
}

// receiverTypeName extracts the bare receiver type from a receiver
// parameter list, stripping pointers and type parameters.
func receiverTypeName(f *fileContext, recv *ts.Node) string {
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.ChildCount()); i++ {
		child := recv.Child(i)
		if child == nil || child.Type() != "parameter_declaration" {
			continue
		}
		typeText := f.text(child.ChildByFieldName("type"))
		typeText = strings.TrimPrefix(typeText, "*")
		if idx := strings.IndexByte(typeText, '['); idx >= 0 {
			typeText = typeText[:idx]
		}
		return strings.TrimSpace(typeText)
	}
	return ""
}

// returnTypeText renders a declaration's result as source text, or "" for
// no return value.
func returnTypeText(f *fileContext, node *ts.Node) string {
	return strings.TrimSpace(f.text(node.ChildByFieldName("result")))
}

// compactExpression collapses a possibly multi-line call expression into a
// single display line.
func compactExpression(expr string) string {
	fields := strings.Fields(expr)
	joined := strings.Join(fields, " ")
	if len(joined) > 120 {
		joined = joined[:117] + "..."
	}
	return joined
}

// packageName extracts the package clause identifier.
func packageName(root *ts.Node, content []byte) string {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil || child.Type() != "package_clause" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			id := child.Child(j)
			if id != nil && id.Type() == "package_identifier" {
				return string(content[id.StartByte():id.EndByte()])
			}
		}
	}
	return ""
}

// ProjectName returns the project name a scan of dir would use: the module
// path from go.mod, or the directory name when no go.mod exists.
func ProjectName(dir string) string {
	return moduleName(dir)
}

// moduleName reads the module path from go.mod, falling back to the
// directory name.
func moduleName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return filepath.Base(dir)
	}
	f, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil || f.Module == nil || f.Module.Mod.Path == "" {
		return filepath.Base(dir)
	}
	return f.Module.Mod.Path
}

// link runs the second pass: resolve call names against the collected
// population and compute interface implementations, then build the index.
func link(state *scanState) (*index.SnapshotIndex, error) {
	// Name buckets split by kind; dispatch sites prefer the abstract
	// descriptor so the resolver can fan out over implementations.
	concreteByName := make(map[string][]*symbol.MethodDescriptor)
	abstractByName := make(map[string][]*symbol.MethodDescriptor)
	for _, m := range state.methods {
		d := m.descriptor
		if d.Abstract {
			abstractByName[d.QualifiedName] = append(abstractByName[d.QualifiedName], d)
		} else {
			concreteByName[d.QualifiedName] = append(concreteByName[d.QualifiedName], d)
		}
	}

	// A concrete type implements an interface when its method set covers
	// every method the interface declares.
	implementsIface := func(typeName, ifaceName string) bool {
		declared := state.interfaceMethods[ifaceName]
		if len(declared) == 0 {
			return false
		}
		set := state.typeMethods[typeName]
		for _, name := range declared {
			if !set[name] {
				return false
			}
		}
		return true
	}

	idx := index.NewSnapshotIndex()
	records := make([]*index.MethodRecord, 0, len(state.methods))
	for _, m := range state.methods {
		d := m.descriptor
		rec := &index.MethodRecord{Descriptor: d}

		if !d.Abstract && d.TypeName != "" {
			for _, abstract := range abstractByName[d.QualifiedName] {
				if implementsIface(d.TypeName, abstract.TypeName) {
					rec.Implements = append(rec.Implements, abstract.Key())
				}
			}
		}

		for _, call := range m.calls {
			rec.CallSites = append(rec.CallSites, symbol.CallSite{
				Target:     resolveCallName(call.name, concreteByName, abstractByName),
				Expression: call.expression,
				Location:   call.location,
			})
		}
		records = append(records, rec)
	}

	if err := idx.AddBatch(records); err != nil {
		return nil, fmt.Errorf("indexing scan results: %w", err)
	}
	return idx, nil
}

// resolveCallName picks the descriptor a call name refers to. A single
// match of either kind wins; with both concrete and abstract matches the
// abstract one wins so dispatch resolution can run. Ambiguity within a
// kind is left unresolved.
func resolveCallName(name string, concrete, abstract map[string][]*symbol.MethodDescriptor) *symbol.MethodDescriptor {
	if matches := abstract[name]; len(matches) == 1 {
		return matches[0]
	} else if len(matches) > 1 {
		return nil
	}
	if matches := concrete[name]; len(matches) == 1 {
		return matches[0]
	}
	return nil
}
