package cache

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphstore/internal/artifact"
)

func scalarField(key string) *artifact.Field {
	return &artifact.Field{Type: "String", KeyRaw: key}
}

func userSelection() *artifact.Selection {
	return &artifact.Selection{Fields: map[string]*artifact.Field{
		"__typename": scalarField("__typename"),
		"id":         {Type: "ID", KeyRaw: "id"},
		"name":       scalarField("name"),
	}}
}

func viewerSelection() *artifact.Selection {
	viewer := userSelection()
	viewer.Fields["friends"] = &artifact.Field{
		Type:      "User",
		KeyRaw:    "friends",
		Nullable:  true,
		List:      &artifact.ListInfo{NullableElement: true},
		Selection: userSelection(),
	}
	return &artifact.Selection{Fields: map[string]*artifact.Field{
		"viewer": {Type: "User", KeyRaw: "viewer", Selection: viewer},
	}}
}

func viewerData() map[string]any {
	return map[string]any{
		"viewer": map[string]any{
			"__typename": "User",
			"id":         "1",
			"name":       "Ada",
			"friends": []any{
				map[string]any{"__typename": "User", "id": "2", "name": "Bob"},
				nil,
			},
		},
	}
}

func nodeSelection() *artifact.Selection {
	return &artifact.Selection{Fields: map[string]*artifact.Field{
		"node": {Type: "User", KeyRaw: "node(id: $id)", Nullable: true, Selection: userSelection()},
	}}
}

// Pattern: Result comparison
func TestWriteRead_RoundTrip_Result(t *testing.T) {
	c := New(Options{})
	ids := c.Write(viewerSelection(), viewerData(), nil)

	if diff := cmp.Diff([]string{RootID, "User:1", "User:2"}, ids); diff != "" {
		t.Fatalf("touched ids mismatch (-want +got):\n%s", diff)
	}
	got := c.Read(viewerSelection(), nil)
	want := ReadResult{Data: viewerData()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

// Pattern: Record comparison
func TestWrite_Normalizes_Record(t *testing.T) {
	c := New(Options{})
	c.Write(viewerSelection(), viewerData(), nil)

	root, ok := c.Record(RootID)
	require.True(t, ok)
	if diff := cmp.Diff(Record{"viewer": Link("User:1")}, root); diff != "" {
		t.Fatalf("root record mismatch (-want +got):\n%s", diff)
	}
	user, ok := c.Record("User:1")
	require.True(t, ok)
	wantUser := Record{
		"__typename": "User",
		"id":         "1",
		"name":       "Ada",
		"friends":    LinkList{"User:2", ""},
	}
	if diff := cmp.Diff(wantUser, user); diff != "" {
		t.Fatalf("user record mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_MergesFieldsOfSameEntity(t *testing.T) {
	c := New(Options{})
	c.Write(viewerSelection(), viewerData(), nil)

	ageSel := &artifact.Selection{Fields: map[string]*artifact.Field{
		"node": {Type: "User", KeyRaw: "node(id: $id)", Selection: &artifact.Selection{Fields: map[string]*artifact.Field{
			"id":  {Type: "ID", KeyRaw: "id"},
			"age": {Type: "Int", KeyRaw: "age"},
		}}},
	}}
	c.Write(ageSel, map[string]any{"node": map[string]any{"id": "1", "age": 36}}, map[string]any{"id": "1"})

	user, _ := c.Record("User:1")
	require.Equal(t, "Ada", user["name"])
	require.Equal(t, 36, user["age"])

	// The viewer document observes the merged entity.
	got := c.Read(viewerSelection(), nil)
	require.False(t, got.Partial)
	require.Equal(t, "Ada", got.Data["viewer"].(map[string]any)["name"])
}

func TestWrite_ArgumentsSelectDistinctSlots(t *testing.T) {
	c := New(Options{})
	c.Write(nodeSelection(), map[string]any{"node": map[string]any{"__typename": "User", "id": "1", "name": "Ada"}}, map[string]any{"id": "1"})
	c.Write(nodeSelection(), map[string]any{"node": map[string]any{"__typename": "User", "id": "2", "name": "Bob"}}, map[string]any{"id": "2"})

	root, _ := c.Record(RootID)
	want := Record{
		`node(id: "1")`: Link("User:1"),
		`node(id: "2")`: Link("User:2"),
	}
	if diff := cmp.Diff(want, root); diff != "" {
		t.Fatalf("root record mismatch (-want +got):\n%s", diff)
	}

	got := c.Read(nodeSelection(), map[string]any{"id": "2"})
	require.Equal(t, "Bob", got.Data["node"].(map[string]any)["name"])
}

func TestRead_EmptyCacheIsMissNotPartial(t *testing.T) {
	c := New(Options{})
	got := c.Read(viewerSelection(), nil)
	require.Nil(t, got.Data)
	require.False(t, got.Partial)
	require.Equal(t, 1, c.Len())
}

func TestRead_MissingLeafIsPartial(t *testing.T) {
	c := New(Options{})
	c.Write(viewerSelection(), viewerData(), nil)

	sel := viewerSelection()
	sel.Fields["viewer"].Selection.Fields["email"] = scalarField("email")
	got := c.Read(sel, nil)

	require.True(t, got.Partial)
	viewer := got.Data["viewer"].(map[string]any)
	require.Equal(t, "Ada", viewer["name"])
	require.Nil(t, viewer["email"])
}

func TestRead_MissingLinkedRecordIsPartial(t *testing.T) {
	c := New(Options{})
	c.Write(viewerSelection(), viewerData(), nil)
	require.True(t, c.Evict("User:2"))

	got := c.Read(viewerSelection(), nil)
	require.True(t, got.Partial)
	friends := got.Data["viewer"].(map[string]any)["friends"].([]any)
	require.Equal(t, []any{nil, nil}, friends)
}

func TestWrite_NullLinkReadsAsNull(t *testing.T) {
	c := New(Options{})
	c.Write(nodeSelection(), map[string]any{"node": nil}, map[string]any{"id": "404"})

	got := c.Read(nodeSelection(), map[string]any{"id": "404"})
	want := ReadResult{Data: map[string]any{"node": nil}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_PathScopedIdentity(t *testing.T) {
	c := New(Options{})
	sel := &artifact.Selection{Fields: map[string]*artifact.Field{
		"settings": {Type: "Settings", KeyRaw: "settings", Selection: &artifact.Selection{Fields: map[string]*artifact.Field{
			"theme": scalarField("theme"),
		}}},
		"tags": {Type: "Tag", KeyRaw: "tags", List: &artifact.ListInfo{}, Selection: &artifact.Selection{Fields: map[string]*artifact.Field{
			"label": scalarField("label"),
		}}},
	}}
	data := map[string]any{
		"settings": map[string]any{"theme": "dark"},
		"tags":     []any{map[string]any{"label": "a"}, map[string]any{"label": "b"}},
	}
	c.Write(sel, data, nil)

	require.True(t, c.Has("_ROOT_.settings"))
	require.True(t, c.Has("_ROOT_.tags[0]"))
	require.True(t, c.Has("_ROOT_.tags[1]"))
	if diff := cmp.Diff(ReadResult{Data: data}, c.Read(sel, nil)); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func gridSelection() *artifact.Selection {
	return &artifact.Selection{Fields: map[string]*artifact.Field{
		"grid": {Type: "User", KeyRaw: "grid", List: &artifact.ListInfo{NullableElement: true}, Selection: userSelection()},
	}}
}

func gridData() map[string]any {
	return map[string]any{
		"grid": []any{
			[]any{map[string]any{"__typename": "User", "id": "1", "name": "Ada"}, nil},
			[]any{map[string]any{"__typename": "User", "id": "2", "name": "Bob"}},
		},
	}
}

// Pattern: Record comparison
func TestWrite_NestedObjectLists_Record(t *testing.T) {
	c := New(Options{})
	c.Write(gridSelection(), gridData(), nil)

	root, ok := c.Record(RootID)
	require.True(t, ok)
	want := NestedLinks{
		NestedLinks{Link("User:1"), nil},
		NestedLinks{Link("User:2")},
	}
	if diff := cmp.Diff(want, root["grid"]); diff != "" {
		t.Fatalf("grid mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ReadResult{Data: gridData()}, c.Read(gridSelection(), nil)); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_NestedObjectLists_TypedGoSlices(t *testing.T) {
	c := New(Options{})
	c.Write(gridSelection(), map[string]any{
		"grid": [][]map[string]any{{{"__typename": "User", "id": "1", "name": "Ada"}}},
	}, nil)

	want := ReadResult{Data: map[string]any{
		"grid": []any{[]any{map[string]any{"__typename": "User", "id": "1", "name": "Ada"}}},
	}}
	if diff := cmp.Diff(want, c.Read(gridSelection(), nil)); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_NestedObjectLists_PathScopedPerLevel(t *testing.T) {
	c := New(Options{})
	sel := &artifact.Selection{Fields: map[string]*artifact.Field{
		"board": {Type: "Tag", KeyRaw: "board", List: &artifact.ListInfo{}, Selection: &artifact.Selection{Fields: map[string]*artifact.Field{
			"label": scalarField("label"),
		}}},
	}}
	data := map[string]any{
		"board": []any{
			[]any{map[string]any{"label": "a"}, map[string]any{"label": "b"}},
			[]any{[]any{map[string]any{"label": "c"}}},
		},
	}
	c.Write(sel, data, nil)

	require.True(t, c.Has("_ROOT_.board[0][0]"))
	require.True(t, c.Has("_ROOT_.board[0][1]"))
	require.True(t, c.Has("_ROOT_.board[1][0][0]"))
	if diff := cmp.Diff(ReadResult{Data: data}, c.Read(sel, nil)); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_CustomKeyFields(t *testing.T) {
	c := New(Options{KeyFields: map[string][]string{"Book": {"isbn", "edition"}}})
	sel := &artifact.Selection{Fields: map[string]*artifact.Field{
		"book": {Type: "Book", KeyRaw: "book", Selection: &artifact.Selection{Fields: map[string]*artifact.Field{
			"isbn":    scalarField("isbn"),
			"edition": {Type: "Int", KeyRaw: "edition"},
			"title":   scalarField("title"),
		}}},
	}}
	c.Write(sel, map[string]any{"book": map[string]any{"isbn": "978", "edition": float64(2), "title": "Go"}}, nil)

	require.True(t, c.Has("Book:978:2"))
	rec, _ := c.Record("Book:978:2")
	require.Equal(t, "Book", rec["__typename"])
}

func paginatedSelection() *artifact.Selection {
	return &artifact.Selection{Fields: map[string]*artifact.Field{
		"feed": {
			Type:       "Post",
			KeyRaw:     "feed::paginated",
			List:       &artifact.ListInfo{},
			Selection:  &artifact.Selection{Fields: map[string]*artifact.Field{"id": {Type: "ID", KeyRaw: "id"}}},
			Directives: []artifact.Directive{{Name: "paginate"}},
			Updates:    []artifact.UpdateMode{artifact.UpdateAppend, artifact.UpdatePrepend},
		},
		"tags": {
			Type:    "String",
			KeyRaw:  "tags",
			List:    &artifact.ListInfo{},
			Updates: []artifact.UpdateMode{artifact.UpdateAppend},
		},
	}}
}

func page(ids ...string) map[string]any {
	items := make([]any, len(ids))
	for i, id := range ids {
		items[i] = map[string]any{"__typename": "Post", "id": id}
	}
	return map[string]any{"feed": items}
}

// Pattern: Record comparison
func TestWrite_PaginatedUpdates_Record(t *testing.T) {
	c := New(Options{})
	sel := paginatedSelection()

	c.Write(sel, page("2", "3"), nil)
	c.Write(sel, page("4"), nil, WithApplyUpdates(artifact.UpdateAppend))
	c.Write(sel, page("1"), nil, WithApplyUpdates(artifact.UpdatePrepend))

	root, _ := c.Record(RootID)
	want := LinkList{"Post:1", "Post:2", "Post:3", "Post:4"}
	if diff := cmp.Diff(want, root["feed::paginated"]); diff != "" {
		t.Fatalf("feed mismatch (-want +got):\n%s", diff)
	}

	c.Write(sel, page("9"), nil)
	root, _ = c.Record(RootID)
	if diff := cmp.Diff(LinkList{"Post:9"}, root["feed::paginated"]); diff != "" {
		t.Fatalf("feed after replace mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_ScalarListUpdates(t *testing.T) {
	c := New(Options{})
	sel := paginatedSelection()
	c.Write(sel, map[string]any{"tags": []any{"a"}}, nil)
	c.Write(sel, map[string]any{"tags": []any{"b", "c"}}, nil, WithApplyUpdates(artifact.UpdateAppend))
	root, _ := c.Record(RootID)
	require.Equal(t, []any{"a", "b", "c"}, root["tags"])

	// tags does not declare prepend, so the list is replaced.
	c.Write(sel, map[string]any{"tags": []any{"z"}}, nil, WithApplyUpdates(artifact.UpdatePrepend))
	root, _ = c.Record(RootID)
	require.Equal(t, []any{"z"}, root["tags"])
}

func TestWrite_UndeclaredUpdateReplaces(t *testing.T) {
	c := New(Options{})
	sel := viewerSelection()
	c.Write(sel, viewerData(), nil)
	c.Write(sel, viewerData(), nil, WithApplyUpdates(artifact.UpdateAppend))

	user, _ := c.Record("User:1")
	require.Equal(t, LinkList{"User:2", ""}, user["friends"])
}

func TestWriteRead_AbstractSelection(t *testing.T) {
	sel := &artifact.Selection{Fields: map[string]*artifact.Field{
		"node": {
			Type:     "Node",
			KeyRaw:   "node(id: $id)",
			Abstract: true,
			Selection: &artifact.Selection{
				Fields: map[string]*artifact.Field{
					"__typename": scalarField("__typename"),
					"id":         {Type: "ID", KeyRaw: "id"},
				},
				Abstract: &artifact.AbstractSelection{
					Fields: map[string]map[string]*artifact.Field{
						"User": {"name": scalarField("name")},
						"Post": {"title": scalarField("title")},
					},
					TypeMap: map[string]string{"Page": "Post"},
				},
			},
		},
	}}
	c := New(Options{})
	user := map[string]any{"node": map[string]any{"__typename": "User", "id": "1", "name": "Ada"}}
	post := map[string]any{"node": map[string]any{"__typename": "Page", "id": "7", "title": "Hello"}}
	c.Write(sel, user, map[string]any{"id": "1"})
	c.Write(sel, post, map[string]any{"id": "7"})

	require.True(t, c.Has("Page:7"))
	if diff := cmp.Diff(ReadResult{Data: user}, c.Read(sel, map[string]any{"id": "1"})); diff != "" {
		t.Fatalf("user read mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ReadResult{Data: post}, c.Read(sel, map[string]any{"id": "7"})); diff != "" {
		t.Fatalf("post read mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRead_WithParent(t *testing.T) {
	c := New(Options{})
	c.Write(viewerSelection(), viewerData(), nil)

	fragment := &artifact.Selection{Fields: map[string]*artifact.Field{
		"name":  scalarField("name"),
		"email": scalarField("email"),
	}}
	c.Write(fragment, map[string]any{"name": "Ada L.", "email": "ada@example.com"}, nil, WithParent("User:1"))

	got := c.Read(fragment, nil, WithParent("User:1"))
	want := ReadResult{Data: map[string]any{"name": "Ada L.", "email": "ada@example.com"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_ReturnsCopies(t *testing.T) {
	c := New(Options{})
	sel := paginatedSelection()
	c.Write(sel, map[string]any{"tags": []any{"a"}}, nil)

	got := c.Read(sel, nil)
	got.Data["tags"].([]any)[0] = "mutated"

	root, _ := c.Record(RootID)
	require.Equal(t, []any{"a"}, root["tags"])
}

func TestWriteOptimistic_Rollback(t *testing.T) {
	c := New(Options{})
	c.Write(viewerSelection(), viewerData(), nil)
	before := c.Snapshot()

	optimistic := viewerData()
	viewer := optimistic["viewer"].(map[string]any)
	viewer["name"] = "Grace"
	viewer["friends"] = []any{map[string]any{"__typename": "User", "id": "3", "name": "Cy"}}
	ids, rollback := c.WriteOptimistic(viewerSelection(), optimistic, nil)
	require.Contains(t, ids, "User:3")
	require.Equal(t, "Grace", c.Read(viewerSelection(), nil).Data["viewer"].(map[string]any)["name"])

	rollback()
	rollback()

	if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
		t.Fatalf("snapshot after rollback mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_JSONHydrate(t *testing.T) {
	src := New(Options{})
	src.Write(viewerSelection(), viewerData(), nil)

	raw, err := json.Marshal(src.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	dst := New(Options{})
	require.NoError(t, dst.Hydrate(snap))

	if diff := cmp.Diff(src.IDs(), dst.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ReadResult{Data: viewerData()}, dst.Read(viewerSelection(), nil)); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_NestedObjectLists(t *testing.T) {
	src := New(Options{})
	src.Write(gridSelection(), gridData(), nil)

	raw, err := json.Marshal(src.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	dst := New(Options{})
	require.NoError(t, dst.Hydrate(snap))

	if diff := cmp.Diff(ReadResult{Data: gridData()}, dst.Read(gridSelection(), nil)); diff != "" {
		t.Fatalf("ReadResult mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRecord_RejectsMalformedLinks(t *testing.T) {
	_, err := DecodeRecord(map[string]any{"viewer": map[string]any{"__link": 3.0}})
	require.Error(t, err)
	_, err = DecodeRecord(map[string]any{"friends": map[string]any{"__links": []any{true}}})
	require.Error(t, err)
	_, err = DecodeRecord(map[string]any{"grid": map[string]any{"__links": []any{[]any{"User:1", 2.0}}}})
	require.ErrorContains(t, err, "grid[0][1]")

	rec, err := DecodeRecord(map[string]any{"meta": map[string]any{"a": 1.0, "b": 2.0}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, rec["meta"])
}
