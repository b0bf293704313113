package standard

import "github.com/tlsnotary/notaryd/internal/parser"

// traverser threads the input buffer through body traversal so keys can be
// decoded into path segments without a package-level variable.
type traverser struct {
	input []byte
	body  BodyMap
}

// traverseBody walks a fully parsed JSON value tree and records exactly
// one BodyMap entry per reachable node, keyed by its path-stack keypath.
// The root is always recorded at the empty keypath. Duplicate object keys
// at the same level follow last-write-wins, matching standard JSON
// unmarshal semantics.
func traverseBody(root parser.JSONValue, input []byte) BodyMap {
	t := &traverser{input: input, body: make(BodyMap)}
	var path parser.Path
	t.visit(root, path)
	return t.body
}

func (t *traverser) visit(v parser.JSONValue, path parser.Path) {
	switch v.Kind {
	case parser.JSONObject:
		t.recordRootOrElement(v, path)
		for _, m := range v.Members {
			t.visitMember(m, path)
		}
	case parser.JSONArray:
		t.recordRootOrElement(v, path)
		for i, elem := range v.Elements {
			t.visit(elem, path.Push(parser.Index(i)))
		}
	default:
		t.recordRootOrElement(v, path)
	}
}

func (t *traverser) visitMember(m parser.JSONMember, parent parser.Path) {
	keyText := string(m.KeyInner.Slice(t.input))
	childPath := parent.Push(parser.Key(keyText))
	t.body[childPath.String()] = KeyValue{Key: m.KeyInner, Value: m.Value.Range}
	t.visit(m.Value, childPath)
}

// recordRootOrElement records the document root, or an array element,
// under its own keypath. Object members are recorded by visitMember as
// KeyValue entries instead, so this only ever writes a ValueEntry.
func (t *traverser) recordRootOrElement(v parser.JSONValue, path parser.Path) {
	if _, exists := t.body[path.String()]; exists {
		return
	}
	t.body[path.String()] = ValueEntry{Value: v.Range}
}

// parseBody parses the raw JSON body text and returns its flattened
// keypath map.
func parseBody(input []byte, bodyRange parser.Range) (BodyMap, error) {
	if bodyRange.Empty() {
		return make(BodyMap), nil
	}
	root, _, err := parser.ParseJSONValue(input, bodyRange.Start, false)
	if err != nil {
		return nil, err
	}
	return traverseBody(root, input), nil
}
