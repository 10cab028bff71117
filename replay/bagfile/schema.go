// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package bagfile

import (
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ImportError describes a single parse failure reported while importing a
// schema source file. It carries enough position information to point a
// user at the offending line, mirroring protoc's own diagnostics.
type ImportError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

// Registry resolves fully qualified protobuf type names to self-contained
// descriptor sets. It accumulates every file it has successfully imported,
// so a type defined in one Import call may depend on types imported in an
// earlier call.
//
// A Registry is not safe for concurrent use; callers in this repository
// only ever touch one from the Writer's owning goroutine.
type Registry struct {
	searchPaths []string

	// files is keyed by the proto file's declared name (as reported by
	// the descriptor, not the path on disk).
	files map[string]*desc.FileDescriptor

	// typesToFile maps a fully qualified message type name to the file
	// descriptor that declares it, populated as files are imported.
	typesToFile map[string]*desc.FileDescriptor

	errs []*ImportError
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		files:       make(map[string]*desc.FileDescriptor),
		typesToFile: make(map[string]*desc.FileDescriptor),
	}
}

// AddSearchPath appends a directory root consulted, in order added, when
// resolving relative schema source paths passed to Import.
func (r *Registry) AddSearchPath(path string) {
	r.searchPaths = append(r.searchPaths, path)
}

// Import parses relativePath, resolved against the registry's search
// paths, and registers the resulting file (and everything it imports) for
// later DescriptorSet lookups.
//
// Import never returns an error value; instead it reports false and
// accumulates one or more *ImportError onto the registry, retrievable via
// Errors. A failed Import leaves previously imported files untouched.
func (r *Registry) Import(relativePath string) bool {
	before := len(r.errs)

	parser := protoparse.Parser{
		ImportPaths: r.searchPaths,
		ErrorReporter: func(errWithPos protoparse.ErrorWithPos) error {
			r.errs = append(r.errs, importErrorFrom(relativePath, errWithPos))
			return nil // keep parsing so we collect every error in the file.
		},
	}

	fds, err := parser.ParseFiles(relativePath)
	if err != nil {
		if withPos, ok := err.(protoparse.ErrorWithPos); ok {
			r.errs = append(r.errs, importErrorFrom(relativePath, withPos))
		} else {
			r.errs = append(r.errs, &ImportError{File: relativePath, Msg: err.Error()})
		}
		return false
	}

	if len(r.errs) > before {
		return false
	}

	for _, fd := range fds {
		r.registerFile(fd)
	}
	return true
}

// Errors returns every ImportError accumulated across all Import calls, in
// the order they were reported.
func (r *Registry) Errors() []*ImportError {
	return r.errs
}

// registerFile records fd and, transitively, every file fd depends on.
func (r *Registry) registerFile(fd *desc.FileDescriptor) {
	if _, seen := r.files[fd.GetName()]; seen {
		return
	}
	r.files[fd.GetName()] = fd

	for _, md := range messagesIn(fd) {
		r.typesToFile[md.GetFullyQualifiedName()] = fd
	}
	for _, dep := range fd.GetDependencies() {
		r.registerFile(dep)
	}
}

// messagesIn flattens fd's message types, including nested ones.
func messagesIn(fd *desc.FileDescriptor) []*desc.MessageDescriptor {
	var out []*desc.MessageDescriptor
	var walk func([]*desc.MessageDescriptor)
	walk = func(msgs []*desc.MessageDescriptor) {
		for _, m := range msgs {
			out = append(out, m)
			walk(m.GetNestedMessageTypes())
		}
	}
	walk(fd.GetMessageTypes())
	return out
}

// DescriptorSet returns the serialized FileDescriptorSet for typeName: the
// file that declares it, followed by every file reachable from it via
// file-level dependencies, in breadth-first order, deduplicated by file
// name. The first element is always the file defining typeName, and the
// set decodes standalone.
func (r *Registry) DescriptorSet(typeName string) ([]byte, error) {
	fd, ok := r.typesToFile[typeName]
	if !ok {
		return nil, errors.Wrapf(ErrTypeNotFound, "%q", typeName)
	}

	set := &descriptorpb.FileDescriptorSet{}
	seen := map[string]bool{fd.GetName(): true}
	queue := []*desc.FileDescriptor{fd}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		set.File = append(set.File, cur.AsFileDescriptorProto())

		for _, dep := range cur.GetDependencies() {
			if !seen[dep.GetName()] {
				seen[dep.GetName()] = true
				queue = append(queue, dep)
			}
		}
	}

	out, err := proto.Marshal(set)
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling descriptor set for %q", typeName)
	}
	return out, nil
}

func importErrorFrom(fallbackFile string, errWithPos protoparse.ErrorWithPos) *ImportError {
	ie := &ImportError{File: fallbackFile, Msg: errWithPos.Error()}

	if pos := errWithPos.GetPosition(); pos.Filename != "" {
		ie.File = pos.Filename
		ie.Line = pos.Line
		ie.Column = pos.Col
	}

	if u, ok := errWithPos.(interface{ Unwrap() error }); ok {
		if inner := u.Unwrap(); inner != nil {
			ie.Msg = inner.Error()
		}
	}

	return ie
}
