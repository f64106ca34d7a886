package executor

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	language "github.com/hanpama/splgraph/internal/language"
	schema "github.com/hanpama/splgraph/internal/schema"
)

// Path locates a value in the response: field names and list indexes.
type Path []PathElement

// PathElement is a response key (string) or a list index (int).
type PathElement any

// String renders p as users[0].name.
func (p Path) String() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		}
	}
	return b.String()
}

func (p Path) with(elem PathElement) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, elem)
}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
	plugins []Plugin
}

// Option configures an Executor.
type Option func(*Executor)

// WithPlugins registers plugins whose hooks run around every execution, in
// registration order.
func WithPlugins(plugins ...Plugin) Option {
	return func(e *Executor) { e.plugins = append(e.plugins, plugins...) }
}

func NewExecutor(runtime Runtime, schema *schema.Schema, opts ...Option) *Executor {
	e := &Executor{runtime: runtime, schema: schema}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema the executor runs against.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// Params describes a single operation to execute.
type Params struct {
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	RootValue     any
}

// Execute runs the operation selected by p and hands the result to every
// plugin's OnExecuteDone hook before returning it.
func (e *Executor) Execute(ctx context.Context, p Params) *ExecutionResult {
	hooks := e.beginExecute(p)
	result := e.execute(ctx, p)
	return finishSingle(ctx, p, hooks, result)
}

func (e *Executor) execute(ctx context.Context, p Params) *ExecutionResult {
	if p.Document == nil {
		return failed("missing query document")
	}
	operation := getOperation(p.Document, p.OperationName)
	if operation == nil {
		return failed("operation not found")
	}
	variables, err := coerceVariableValues(e.schema, operation, p.Variables)
	if err != nil {
		return failed(err.Error())
	}
	return e.executeOperation(ctx, p.Document, operation, variables, p.RootValue)
}

// executeOperation runs one operation to completion. Subscriptions call it
// once per source event with the event as rootValue.
func (e *Executor) executeOperation(
	ctx context.Context,
	document *language.QueryDocument,
	operation *language.OperationDefinition,
	variables map[string]any,
	rootValue any,
) *ExecutionResult {
	rootType, err := e.rootType(operation.Operation)
	if err != nil {
		return failed(err.Error())
	}

	state := e.newState(ctx, document, variables)
	data := state.executeSelectionSet(rootType, operation.SelectionSet, rootValue, Path{}, Path{})
	for len(state.pending) > 0 {
		state.flush(data)
	}
	return &ExecutionResult{Data: data, Errors: state.errors}
}

func (e *Executor) rootType(op language.Operation) (*schema.Type, error) {
	var t *schema.Type
	switch op {
	case language.Query:
		t = e.schema.GetQueryType()
	case language.Mutation:
		t = e.schema.GetMutationType()
	case language.Subscription:
		t = e.schema.GetSubscriptionType()
	default:
		return nil, fmt.Errorf("unsupported operation type: %s", op)
	}
	if t == nil {
		return nil, fmt.Errorf("root type not found for %s operation", op)
	}
	return t, nil
}

func failed(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}

func getOperation(document *language.QueryDocument, name string) *language.OperationDefinition {
	return document.Operations.ForName(name)
}

// executionState is the bookkeeping of a single operation run.
type executionState struct {
	context        context.Context
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any
	errors         []GraphQLError

	// pending is the async work of the depth being expanded.
	pending []pendingField
	// pruned holds rendered paths nulled by Non-Null propagation.
	pruned map[string]struct{}
}

// pendingField is an async field waiting for the next BatchResolveAsync call.
type pendingField struct {
	task   AsyncResolveTask
	path   Path
	owner  Path // nearest nullable position at or above path
	typ    *schema.TypeRef
	fields []*language.Field
}

// placeholder holds the response slot of a pending field.
type placeholder struct{}

func (e *Executor) newState(ctx context.Context, document *language.QueryDocument, variables map[string]any) *executionState {
	return &executionState{
		context:        ctx,
		runtime:        e.runtime,
		schema:         e.schema,
		document:       document,
		variableValues: variables,
		errors:         []GraphQLError{},
		pruned:         make(map[string]struct{}),
	}
}

// executeSelectionSet completes every field of selectionSet on source. owner
// is the nearest nullable position at or above path. A Non-Null field that
// ends up null makes the whole object null, except at the root where only
// that field is nulled.
func (s *executionState) executeSelectionSet(objectType *schema.Type, selectionSet language.SelectionSet, source any, path, owner Path) map[string]any {
	out := make(map[string]any)
	for _, group := range collectFields(s, objectType, selectionSet).orderedFields() {
		field := group.Fields[0]
		fieldPath := path.with(group.ResponseName)
		if field.Name == "__typename" {
			out[group.ResponseName] = objectType.Name
			continue
		}
		def := objectType.Field(field.Name)
		if def == nil {
			s.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", field.Name, objectType.Name), fieldPath)
			continue
		}

		fieldOwner := owner
		if !schema.IsNonNull(def.Type) {
			fieldOwner = fieldPath
		}
		value := s.executeField(objectType, def, group.Fields, source, fieldPath, fieldOwner)
		if isNullish(value) {
			if schema.IsNonNull(def.Type) && len(path) > 0 {
				return nil
			}
			value = nil
		}
		out[group.ResponseName] = value
	}
	return out
}

func (s *executionState) executeField(objectType *schema.Type, def *schema.Field, fields []*language.Field, source any, path, owner Path) any {
	args, ok := coerceArgumentValues(def, fields[0].Arguments, s.variableValues, s, path)
	if !ok {
		return nil
	}
	if def.Async {
		s.pending = append(s.pending, pendingField{
			task: AsyncResolveTask{
				ObjectType: objectType.Name,
				Field:      def.Name,
				Source:     source,
				Args:       args,
			},
			path:   path,
			owner:  owner,
			typ:    def.Type,
			fields: fields,
		})
		return placeholder{}
	}

	value, err := s.runtime.ResolveSync(s.context, objectType.Name, def.Name, source, args)
	if err != nil {
		s.addError(err.Error(), path)
		return nil
	}
	return s.completeValue(def.Type, fields, value, path, owner)
}

// flush resolves the pending fields with one BatchResolveAsync call and
// writes them into data. Completing them may queue the next depth.
func (s *executionState) flush(data map[string]any) {
	var batch []pendingField
	for _, pf := range s.pending {
		if !s.isPruned(pf.path) {
			batch = append(batch, pf)
		}
	}
	s.pending = nil
	if len(batch) == 0 {
		return
	}

	tasks := make([]AsyncResolveTask, len(batch))
	for i, pf := range batch {
		tasks[i] = pf.task
	}
	results := s.runtime.BatchResolveAsync(s.context, tasks)
	for i, pf := range batch {
		res := AsyncResolveResult{Error: fmt.Errorf("no result for %s.%s", pf.task.ObjectType, pf.task.Field)}
		if i < len(results) {
			res = results[i]
		}
		s.completePending(data, pf, res)
	}
}

func (s *executionState) completePending(data map[string]any, pf pendingField, res AsyncResolveResult) {
	if s.isPruned(pf.path) {
		return
	}
	var value any
	if res.Error != nil {
		s.addError(res.Error.Error(), pf.path)
	} else {
		value = s.completeValue(pf.typ, pf.fields, res.Value, pf.path, pf.owner)
	}
	if !isNullish(value) {
		writeAt(data, pf.path, value)
		return
	}
	if !schema.IsNonNull(pf.typ) {
		writeAt(data, pf.path, nil)
		return
	}

	target := pf.owner
	if len(target) == 0 {
		target = pf.path[:1]
	}
	writeAt(data, target, nil)
	s.pruned[target.String()] = struct{}{}
}

func (s *executionState) isPruned(p Path) bool {
	if len(s.pruned) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if _, ok := s.pruned[p[:i].String()]; ok {
			return true
		}
	}
	return false
}

// completeValue shapes a resolved value according to typ. It returns nil when
// the value, or a Non-Null position inside it, is null.
func (s *executionState) completeValue(typ *schema.TypeRef, fields []*language.Field, value any, path, owner Path) any {
	if schema.IsNonNull(typ) {
		if isNullish(value) {
			if !s.hasErrorAtPath(path) {
				s.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path)
			}
			return nil
		}
		return s.completeValue(schema.Unwrap(typ), fields, value, path, owner)
	}
	if isNullish(value) {
		return nil
	}
	if schema.IsList(typ) {
		return s.completeList(typ, fields, value, path, owner)
	}

	name := schema.GetNamedType(typ)
	def := s.schema.Types[name]
	if def == nil {
		s.addError(fmt.Sprintf("Unknown type: %s", name), path)
		return nil
	}
	switch def.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		out, err := s.runtime.SerializeLeafValue(s.context, name, value)
		if err != nil {
			s.addError(err.Error(), path)
			return nil
		}
		return out
	case schema.TypeKindObject:
		return s.executeSelectionSet(def, subSelections(fields), value, path, owner)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		concrete, err := s.runtime.ResolveType(s.context, name, value)
		if err != nil {
			s.addError(err.Error(), path)
			return nil
		}
		obj := s.schema.Types[concrete]
		if obj == nil || obj.Kind != schema.TypeKindObject {
			s.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", name, concrete), path)
			return nil
		}
		return s.executeSelectionSet(obj, subSelections(fields), value, path, owner)
	}
	s.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", def.Kind), path)
	return nil
}

func (s *executionState) completeList(typ *schema.TypeRef, fields []*language.Field, value any, path, owner Path) any {
	items, ok := listItems(value)
	if !ok {
		s.addError(fmt.Sprintf("Expected list value, got %T", value), path)
		return nil
	}
	inner := schema.Unwrap(typ)
	out := make([]any, len(items))
	for i, item := range items {
		itemPath := path.with(i)
		itemOwner := itemPath
		if schema.IsNonNull(inner) {
			itemOwner = owner
		}
		v := s.completeValue(inner, fields, item, itemPath, itemOwner)
		if isNullish(v) {
			if schema.IsNonNull(inner) {
				return nil
			}
			v = nil
		}
		out[i] = v
	}
	return out
}

func listItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func (s *executionState) addError(message string, path Path) {
	s.errors = append(s.errors, GraphQLError{Message: message, Path: path})
}

func (s *executionState) hasErrorAtPath(path Path) bool {
	return slices.ContainsFunc(s.errors, func(err GraphQLError) bool {
		return slices.Equal(err.Path, path)
	})
}

// writeAt stores value at path inside data. The containers along path were
// built when their selection sets ran; a missing one means the branch was
// nulled and the write is dropped.
func writeAt(data map[string]any, path Path, value any) {
	var cur any = data
	for i, elem := range path {
		last := i == len(path)-1
		switch key := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return
			}
			if last {
				m[key] = value
				return
			}
			cur = m[key]
		case int:
			l, ok := cur.([]any)
			if !ok || key >= len(l) {
				return
			}
			if last {
				l[key] = value
				return
			}
			cur = l[key]
		}
	}
}

func subSelections(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish reports nil and typed nils.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
