package persistor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/database/dbtest"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

func colors(objs []*model.Object) []string {
	var out []string
	for _, o := range objs {
		out = append(out, o.String("color"))
	}
	return out
}

func TestSiblingChildrenShareOneQuery(t *testing.T) {
	palette := model.NewTemplate("Palette").
		Prop("name", model.TypeString).
		RefArray("reds", "Swatch").
		RefArray("blues", "Swatch")
	swatch := model.NewTemplate("Swatch").
		Prop("color", model.TypeString).
		Prop("hex", model.TypeString).
		Ref("palette", "Palette")

	reg := model.NewRegistry()
	require.NoError(t, reg.Register(palette, swatch))
	reg.SetSchema(map[string]*model.Entry{
		"Palette": {
			Table: "palette",
			Children: map[string]*model.ChildRef{
				"reds":  {ID: "palette_id", Filter: &model.ChildFilter{Property: "color", Value: "red"}},
				"blues": {ID: "palette_id", Filter: &model.ChildFilter{Property: "color", Value: "blue"}},
			},
		},
		"Swatch": {
			Table:   "swatch",
			Parents: map[string]*model.ParentRef{"palette": {ID: "palette_id"}},
		},
	})
	require.NoError(t, reg.Prepare())

	db := dbtest.NewMemDB()
	p := persistorWith(reg, db.Client())
	ctx := context.Background()

	obj := model.NewObject(palette).Set("name", "sunset")
	obj.Append("reds",
		model.NewObject(swatch).Set("hex", "#f00"),
		model.NewObject(swatch).Set("hex", "#c00"),
	)
	obj.Append("blues", model.NewObject(swatch).Set("hex", "#00f"))
	require.NoError(t, p.Save(ctx, obj, nil))

	rows := db.Rows("swatch")
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, obj.ID, row["palette_id"])
	}

	db.ResetLog()
	loaded, err := p.FetchByID(ctx, palette, obj.ID, FetchOptions{
		Fetch: model.Cascade{"reds": model.FetchAll(), "blues": model.FetchAll()},
	})
	require.NoError(t, err)
	require.NotNil(t, loaded)

	var swatchSelects []string
	for _, s := range db.StatementsWithPrefix("SELECT") {
		if strings.Contains(s, `FROM "swatch"`) {
			swatchSelects = append(swatchSelects, s)
		}
	}
	require.Len(t, swatchSelects, 1)
	assert.Contains(t, swatchSelects[0], `"swatch"."color" IN (?, ?)`)

	assert.Equal(t, []string{"red", "red"}, colors(loaded.Refs("reds")))
	assert.Equal(t, []string{"blue"}, colors(loaded.Refs("blues")))
	assert.True(t, loaded.Persistor("reds").IsFetched)
	assert.True(t, loaded.Persistor("blues").IsFetched)
	for _, s := range append(loaded.Refs("reds"), loaded.Refs("blues")...) {
		assert.Same(t, loaded, s.Ref("palette"))
	}
}

func TestOneToOneCycleBetweenTables(t *testing.T) {
	person := model.NewTemplate("Person").
		Prop("name", model.TypeString).
		Ref("passport", "Passport")
	passport := model.NewTemplate("Passport").
		Prop("number", model.TypeString).
		Ref("holder", "Person")

	reg := model.NewRegistry()
	require.NoError(t, reg.Register(person, passport))
	reg.SetSchema(map[string]*model.Entry{
		"Person": {
			Table:   "person",
			Parents: map[string]*model.ParentRef{"passport": {ID: "passport_id"}},
		},
		"Passport": {
			Table:   "passport",
			Parents: map[string]*model.ParentRef{"holder": {ID: "holder_id"}},
		},
	})
	require.NoError(t, reg.Prepare())

	db := dbtest.NewMemDB()
	p := persistorWith(reg, db.Client())
	ctx := context.Background()

	ann := model.NewObject(person).Set("name", "Ann")
	doc := model.NewObject(passport).Set("number", "X123").Set("holder", ann)
	ann.Set("passport", doc)
	require.NoError(t, p.Save(ctx, ann, nil))

	require.Len(t, db.Rows("person"), 1)
	require.Len(t, db.Rows("passport"), 1)
	assert.Equal(t, doc.ID, db.Rows("person")[0]["passport_id"])
	assert.Equal(t, ann.ID, db.Rows("passport")[0]["holder_id"])

	loaded, err := p.FetchByID(ctx, person, ann.ID, FetchOptions{
		Fetch: model.Cascade{"passport": &model.Fetch{Cascade: model.Cascade{"holder": model.FetchAll()}}},
	})
	require.NoError(t, err)
	require.NotNil(t, loaded)

	got := loaded.Ref("passport")
	require.NotNil(t, got)
	assert.Equal(t, "X123", got.String("number"))
	assert.Same(t, loaded, got.Ref("holder"))

	// fetching from the other side closes the cycle the same way
	back, err := p.FetchByID(ctx, passport, doc.ID, FetchOptions{
		Fetch: model.Cascade{"holder": &model.Fetch{NoJoin: true, Cascade: model.Cascade{"passport": model.FetchAll()}}},
	})
	require.NoError(t, err)
	require.NotNil(t, back)
	require.NotNil(t, back.Ref("holder"))
	assert.Equal(t, "Ann", back.Ref("holder").String("name"))
	assert.Same(t, back, back.Ref("holder").Ref("passport"))
}

// gatedClient holds every SELECT on table until release is closed.
type gatedClient struct {
	database.Client
	table   string
	selects atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (c *gatedClient) Select(ctx context.Context, stmt *database.SelectStatement) ([]database.Row, error) {
	if stmt.Table == c.table {
		if c.selects.Add(1) == 1 {
			close(c.entered)
		}
		<-c.release
	}
	return c.Client.Select(ctx, stmt)
}

func TestIdenticalSelectsShareOneRoundTrip(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)

	gate := &gatedClient{
		Client:  r.db.Client(),
		table:   "orders",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := persistorWith(r.reg, gate)
	ctx := context.Background()

	var wg sync.WaitGroup
	loaded := make([]*model.Object, 2)
	errs := make([]error, 2)
	fetch := func(i int) {
		defer wg.Done()
		loaded[i], errs[i] = p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	}

	wg.Add(1)
	go fetch(0)
	<-gate.entered
	wg.Add(1)
	go fetch(1)
	// give the second fetch time to join the SELECT in flight
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	for i := range loaded {
		require.NoError(t, errs[i])
		require.NotNil(t, loaded[i])
		assert.Equal(t, 30.0, loaded[i].Number("total"))
	}
	assert.NotSame(t, loaded[0], loaded[1], "every fetch builds its own objects")
	assert.Equal(t, int32(1), gate.selects.Load())
}
