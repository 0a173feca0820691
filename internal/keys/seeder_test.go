package keys

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rana718/seedgraph/internal/fixerr"
	"github.com/Rana718/seedgraph/internal/record"
	"github.com/Rana718/seedgraph/internal/resolver"
	"github.com/Rana718/seedgraph/internal/schema"
)

type fakeStore struct {
	rows map[string][]*record.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]*record.Record)}
}

func (f *fakeStore) Find(_ context.Context, entity string, key []any) (*record.Record, error) {
	want := record.TupleKey(key)
	for _, r := range f.rows[entity] {
		if record.TupleKey(r.Key()) == want {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Query(_ context.Context, entity string) ([]*record.Record, error) {
	return append([]*record.Record(nil), f.rows[entity]...), nil
}

func (f *fakeStore) put(t *testing.T, e *schema.Entity, row map[string]any) *record.Record {
	t.Helper()
	r, err := record.FromRow(e, row)
	require.NoError(t, err)
	f.rows[e.Name] = append(f.rows[e.Name], r)
	return r
}

func (f *fakeStore) count(entity string) int { return len(f.rows[entity]) }

// harness materializes records the way the coordinator does, minus value generation.
type harness struct {
	t      *testing.T
	schema *schema.Schema
	store  *fakeStore
	seeder *Seeder
}

func newHarness(t *testing.T, s *schema.Schema, settings Settings) *harness {
	t.Helper()
	res, err := resolver.Resolve(s)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{t: t, schema: s, store: newFakeStore()}
	h.seeder, err = NewSeeder(Config{
		Schema:       s,
		Resolution:   res,
		Source:       h.store,
		Materializer: h,
		Settings:     settings,
		Seed:         42,
		Logger:       logger,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) Materialize(ctx context.Context, entity string, presets map[string]any, depth int) (*record.Record, error) {
	e, ok := h.schema.Entity(entity)
	if !ok {
		return nil, fixerr.NewSchemaError(entity, "unknown entity")
	}
	r := record.New(e)
	h.seeder.ClearKeys(r)
	for col, v := range presets {
		if err := r.Set(col, v); err != nil {
			return nil, err
		}
	}
	if err := h.seeder.AssignKeys(ctx, r, depth); err != nil {
		return nil, err
	}
	if err := r.Advance(record.Committed); err != nil {
		return nil, err
	}
	h.store.rows[entity] = append(h.store.rows[entity], r)
	return r, nil
}

func (h *harness) generate(entity string, init func(r *record.Record)) (*record.Record, error) {
	e, ok := h.schema.Entity(entity)
	require.True(h.t, ok)
	r := record.New(e)
	h.seeder.ClearKeys(r)
	if init != nil {
		init(r)
	}
	if err := h.seeder.AssignKeys(context.Background(), r, 0); err != nil {
		return nil, err
	}
	require.NoError(h.t, r.Advance(record.Committed))
	h.store.rows[entity] = append(h.store.rows[entity], r)
	return r, nil
}

func (h *harness) entity(name string) *schema.Entity {
	e, ok := h.schema.Entity(name)
	require.True(h.t, ok)
	return e
}

func salesSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	b.Entity("Region").Column("RegionId", schema.TypeInt).Column("Name", schema.TypeString).PrimaryKey("RegionId")
	b.Entity("Store").Column("StoreId", schema.TypeInt).Column("RegionId", schema.TypeInt).
		PrimaryKey("StoreId").References("Region", "RegionId")
	b.Entity("Sale").Column("SaleId", schema.TypeInt).Column("StoreId", schema.TypeInt).
		PrimaryKey("SaleId").References("Store", "StoreId")
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func withChance(chance float64) Settings {
	settings := DefaultSettings()
	settings.ExistingReferenceChance = chance
	return settings
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	bad := DefaultSettings()
	bad.ExistingReferenceChance = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultSettings()
	bad.RecursionLimit = -1
	assert.Error(t, bad.Validate())

	bad = DefaultSettings()
	bad.MaxUniqueDraws = 0
	assert.Error(t, bad.Validate())
}

func TestClearKeysSetsSentinels(t *testing.T) {
	h := newHarness(t, salesSchema(t), DefaultSettings())
	r := record.New(h.entity("Store"))
	require.NoError(t, r.Set("StoreId", 9))
	require.NoError(t, r.Set("RegionId", 3))

	h.seeder.ClearKeys(r)
	assert.Equal(t, int64(-1), r.Get("StoreId"))
	assert.Equal(t, int64(-1), r.Get("RegionId"))
}

func TestKeyOnlyEntityIssuesIncreasingKeysAboveFloor(t *testing.T) {
	h := newHarness(t, salesSchema(t), DefaultSettings())
	h.seeder.State().SetFloor("Region", "RegionId", 100)

	var last int64 = 100
	for i := 0; i < 10; i++ {
		r, err := h.generate("Region", nil)
		require.NoError(t, err)
		id := r.Get("RegionId").(int64)
		assert.Greater(t, id, last)
		last = id
	}
	assert.Equal(t, int64(110), last)
}

func TestCounterPrimedFromPersistedRowsAndOverrides(t *testing.T) {
	h := newHarness(t, salesSchema(t), DefaultSettings())
	for i := 1; i <= 50; i++ {
		h.store.put(t, h.entity("Region"), map[string]any{"RegionId": i})
	}

	override, err := h.generate("Region", func(r *record.Record) {
		require.NoError(t, r.Set("RegionId", 51))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(51), override.Get("RegionId"))

	next, err := h.generate("Region", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(52), next.Get("RegionId"))
}

func TestCounterReissuesOnCollision(t *testing.T) {
	h := newHarness(t, salesSchema(t), DefaultSettings())
	for i := 1; i <= 3; i++ {
		h.store.put(t, h.entity("Region"), map[string]any{"RegionId": i})
	}
	_, err := h.generate("Region", nil)
	require.NoError(t, err)
	h.seeder.State().Reset("Region")

	r, err := h.generate("Region", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.Get("RegionId"))
}

func TestFloatKeysPrimedFromPersistedRowsAndOverrides(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Reading").Column("ReadingId", schema.TypeFloat).Column("Value", schema.TypeInt).PrimaryKey("ReadingId")
	s, err := b.Build()
	require.NoError(t, err)
	h := newHarness(t, s, DefaultSettings())
	for i := 1; i <= 3; i++ {
		h.store.put(t, h.entity("Reading"), map[string]any{"ReadingId": float64(i)})
	}

	first, err := h.generate("Reading", nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, first.Get("ReadingId"))

	_, err = h.generate("Reading", func(r *record.Record) {
		require.NoError(t, r.Set("ReadingId", 10.5))
	})
	require.NoError(t, err)

	next, err := h.generate("Reading", nil)
	require.NoError(t, err)
	assert.Equal(t, 12.0, next.Get("ReadingId"))
}

func TestForeignKeysResolveToPersistedPrincipals(t *testing.T) {
	h := newHarness(t, salesSchema(t), DefaultSettings())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		sale, err := h.generate("Sale", nil)
		require.NoError(t, err)

		store, err := h.store.Find(ctx, "Store", []any{sale.Get("StoreId")})
		require.NoError(t, err)
		require.NotNil(t, store)

		region, err := h.store.Find(ctx, "Region", []any{store.Get("RegionId")})
		require.NoError(t, err)
		require.NotNil(t, region)
	}
	assert.GreaterOrEqual(t, h.store.count("Store"), 1)
	assert.GreaterOrEqual(t, h.store.count("Region"), 1)
}

func TestAlwaysReuseDoesNotGrowPrincipals(t *testing.T) {
	h := newHarness(t, salesSchema(t), withChance(1))
	h.store.put(t, h.entity("Region"), map[string]any{"RegionId": 1})
	h.store.put(t, h.entity("Region"), map[string]any{"RegionId": 2})

	for i := 0; i < 10; i++ {
		_, err := h.generate("Store", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, h.store.count("Region"))
	assert.Equal(t, 10, h.store.count("Store"))
}

func TestNeverReuseCreatesOnePrincipalPerRecord(t *testing.T) {
	h := newHarness(t, salesSchema(t), withChance(0))
	h.store.put(t, h.entity("Region"), map[string]any{"RegionId": 1})

	for i := 0; i < 7; i++ {
		_, err := h.generate("Store", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 8, h.store.count("Region"))
}

func TestDisallowExistingForeignKeysAlwaysMaterializes(t *testing.T) {
	settings := withChance(1)
	settings.AllowExistingForeignKeys = false
	h := newHarness(t, salesSchema(t), settings)
	h.store.put(t, h.entity("Region"), map[string]any{"RegionId": 1})

	_, err := h.generate("Store", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.count("Region"))
}

func TestRecursionLimit(t *testing.T) {
	settings := withChance(0)
	settings.RecursionLimit = 1
	h := newHarness(t, salesSchema(t), settings)

	_, err := h.generate("Sale", nil)
	require.Error(t, err)
	assert.True(t, fixerr.IsRecursionLimit(err))

	var limitErr *fixerr.RecursionLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "Region", limitErr.Entity)
	assert.Equal(t, 1, limitErr.Limit)
	assert.Equal(t, 0, h.store.count("Sale"))
}

func TestRecursionLimitFallsBackToExistingRows(t *testing.T) {
	settings := withChance(0)
	settings.RecursionLimit = 0
	h := newHarness(t, salesSchema(t), settings)
	h.store.put(t, h.entity("Region"), map[string]any{"RegionId": 4})

	store, err := h.generate("Store", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), store.Get("RegionId"))
}

func TestDepthAboveLimitFails(t *testing.T) {
	h := newHarness(t, salesSchema(t), DefaultSettings())
	r := record.New(h.entity("Region"))
	h.seeder.ClearKeys(r)

	err := h.seeder.AssignKeys(context.Background(), r, DefaultRecursionLimit+1)
	assert.True(t, fixerr.IsRecursionLimit(err))
}

func TestCallerSetForeignKeyIsKept(t *testing.T) {
	h := newHarness(t, salesSchema(t), withChance(0))

	store, err := h.generate("Store", func(r *record.Record) {
		require.NoError(t, r.Set("RegionId", 77))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), store.Get("RegionId"))
	assert.Equal(t, 0, h.store.count("Region"))
}

func TestCommittedNavigationSuppliesKey(t *testing.T) {
	h := newHarness(t, salesSchema(t), withChance(0))
	region := h.store.put(t, h.entity("Region"), map[string]any{"RegionId": 12})

	store, err := h.generate("Store", func(r *record.Record) {
		require.NoError(t, r.SetNavigation("Region", region))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), store.Get("RegionId"))
	assert.Equal(t, 1, h.store.count("Region"))
}

func TestKeySupplier(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Product").Column("Sku", schema.TypeString).PrimaryKey("Sku")
	s, err := b.Build()
	require.NoError(t, err)

	res, err := resolver.Resolve(s)
	require.NoError(t, err)
	store := newFakeStore()
	n := 0
	seeder, err := NewSeeder(Config{
		Schema:       s,
		Resolution:   res,
		Source:       store,
		Materializer: &harness{t: t, schema: s, store: store},
		Settings:     DefaultSettings(),
		Supplier: func(entity, column string) (any, bool) {
			n++
			return "SKU-" + string(rune('0'+n)), entity == "Product" && column == "Sku"
		},
	})
	require.NoError(t, err)

	e, _ := s.Entity("Product")
	r := record.New(e)
	seeder.ClearKeys(r)
	require.NoError(t, seeder.AssignKeys(context.Background(), r, 0))
	assert.Equal(t, "SKU-1", r.Get("Sku"))
}

func TestGeneratedIdentifierKeys(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Account").Column("AccountId", schema.TypeUUID).PrimaryKey("AccountId")
	b.Entity("Token").Column("Value", schema.TypeString).PrimaryKey("Value")
	s, err := b.Build()
	require.NoError(t, err)
	h := newHarness(t, s, DefaultSettings())

	account, err := h.generate("Account", nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, account.Get("AccountId"))

	token, err := h.generate("Token", nil)
	require.NoError(t, err)
	_, err = uuid.Parse(token.Get("Value").(string))
	assert.NoError(t, err)
}

func TestPartialForeignKeyPresetsPrincipal(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Warehouse").Column("Site", schema.TypeString).Column("Code", schema.TypeString).PrimaryKey("Site", "Code")
	b.Entity("Bin").Column("BinId", schema.TypeInt).Column("Site", schema.TypeString).Column("Code", schema.TypeString).
		PrimaryKey("BinId").References("Warehouse", "Site", "Code")
	s, err := b.Build()
	require.NoError(t, err)
	h := newHarness(t, s, withChance(1))
	h.store.put(t, h.entity("Warehouse"), map[string]any{"Site": "north", "Code": "W1"})

	bin, err := h.generate("Bin", func(r *record.Record) {
		require.NoError(t, r.Set("Site", "south"))
	})
	require.NoError(t, err)
	assert.Equal(t, "south", bin.Get("Site"))
	require.Equal(t, 2, h.store.count("Warehouse"))

	created := h.store.rows["Warehouse"][1]
	assert.Equal(t, "south", created.Get("Site"))
	assert.Equal(t, created.Get("Code"), bin.Get("Code"))

	reused, err := h.generate("Bin", func(r *record.Record) {
		require.NoError(t, r.Set("Site", "north"))
	})
	require.NoError(t, err)
	assert.Equal(t, "W1", reused.Get("Code"))
	assert.Equal(t, 2, h.store.count("Warehouse"))
}

func enrollmentSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	b.Entity("Student").Column("StudentId", schema.TypeInt).PrimaryKey("StudentId")
	b.Entity("Course").Column("CourseId", schema.TypeInt).PrimaryKey("CourseId")
	b.Entity("Enrollment").
		Column("StudentId", schema.TypeInt).
		Column("CourseId", schema.TypeInt).
		PrimaryKey("StudentId", "CourseId").
		References("Student", "StudentId").
		References("Course", "CourseId")
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestCompositeKeysAreDistinctAndExhaust(t *testing.T) {
	h := newHarness(t, enrollmentSchema(t), withChance(1))
	for i := 1; i <= 2; i++ {
		h.store.put(t, h.entity("Student"), map[string]any{"StudentId": i})
	}
	for i := 1; i <= 3; i++ {
		h.store.put(t, h.entity("Course"), map[string]any{"CourseId": i})
	}

	seen := make(map[string]bool)
	for i := 0; i < 6; i++ {
		r, err := h.generate("Enrollment", nil)
		require.NoError(t, err)
		key := record.TupleKey(r.Key())
		assert.False(t, seen[key], "tuple %v issued twice", r.Key())
		seen[key] = true
	}

	_, err := h.generate("Enrollment", nil)
	require.Error(t, err)
	assert.True(t, fixerr.IsUniquenessExhausted(err))
	assert.Equal(t, 2, h.store.count("Student"))
	assert.Equal(t, 3, h.store.count("Course"))
}

func TestCompositeKeysSampledBeyondDrawCap(t *testing.T) {
	settings := withChance(1)
	settings.MaxUniqueDraws = 4
	h := newHarness(t, enrollmentSchema(t), settings)
	for i := 1; i <= 3; i++ {
		h.store.put(t, h.entity("Student"), map[string]any{"StudentId": i})
		h.store.put(t, h.entity("Course"), map[string]any{"CourseId": i})
	}

	r, err := h.generate("Enrollment", nil)
	require.NoError(t, err)
	assert.NotEqual(t, int64(-1), r.Get("StudentId"))
	assert.NotEqual(t, int64(-1), r.Get("CourseId"))
}

func TestCompositeKeysMaterializeWhenNotReusing(t *testing.T) {
	h := newHarness(t, enrollmentSchema(t), withChance(0))

	for i := 0; i < 3; i++ {
		_, err := h.generate("Enrollment", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, h.store.count("Student"))
	assert.Equal(t, 3, h.store.count("Course"))
}

func TestSelfReference(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Employee").Column("EmployeeId", schema.TypeInt).NullableColumn("ManagerId", schema.TypeInt).
		PrimaryKey("EmployeeId").References("Employee", "ManagerId")
	b.Entity("Node").Column("NodeId", schema.TypeInt).Column("ParentId", schema.TypeInt).
		PrimaryKey("NodeId").References("Node", "ParentId")
	s, err := b.Build()
	require.NoError(t, err)
	h := newHarness(t, s, withChance(1))

	boss, err := h.generate("Employee", nil)
	require.NoError(t, err)
	assert.Nil(t, boss.Get("ManagerId"))

	report, err := h.generate("Employee", nil)
	require.NoError(t, err)
	assert.Equal(t, boss.Get("EmployeeId"), report.Get("ManagerId"))

	root, err := h.generate("Node", nil)
	require.NoError(t, err)
	assert.Equal(t, root.Get("NodeId"), root.Get("ParentId"))
}

func TestSelfReferenceFollowsReissuedKey(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Node").Column("NodeId", schema.TypeInt).Column("ParentId", schema.TypeInt).
		PrimaryKey("NodeId").References("Node", "ParentId")
	s, err := b.Build()
	require.NoError(t, err)
	h := newHarness(t, s, withChance(0))
	for i := 1; i <= 3; i++ {
		h.store.put(t, h.entity("Node"), map[string]any{"NodeId": i, "ParentId": i})
	}

	_, err = h.generate("Node", nil)
	require.NoError(t, err)
	h.seeder.State().Reset("Node")

	r, err := h.generate("Node", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.Get("NodeId"))
	assert.Equal(t, r.Get("NodeId"), r.Get("ParentId"))
}

func TestDeferredCycleLeavesForeignKeyEmpty(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Department").Column("DepartmentId", schema.TypeInt).NullableColumn("HeadId", schema.TypeInt).
		PrimaryKey("DepartmentId").References("Employee", "HeadId")
	b.Entity("Employee").Column("EmployeeId", schema.TypeInt).Column("DepartmentId", schema.TypeInt).
		PrimaryKey("EmployeeId").References("Department", "DepartmentId")
	s, err := b.Build()
	require.NoError(t, err)
	h := newHarness(t, s, withChance(1))

	emp, err := h.generate("Employee", nil)
	require.NoError(t, err)
	require.Equal(t, 1, h.store.count("Department"))
	assert.Nil(t, h.store.rows["Department"][0].Get("HeadId"))

	dept, err := h.generate("Department", nil)
	require.NoError(t, err)
	assert.Equal(t, emp.Get("EmployeeId"), dept.Get("HeadId"))
}

func TestUnsatisfiableCycleFailsWithSchemaError(t *testing.T) {
	b := schema.NewBuilder()
	b.Entity("Chicken").Column("ChickenId", schema.TypeInt).Column("EggId", schema.TypeInt).
		PrimaryKey("ChickenId").References("Egg", "EggId")
	b.Entity("Egg").Column("EggId", schema.TypeInt).Column("ChickenId", schema.TypeInt).
		PrimaryKey("EggId").References("Chicken", "ChickenId")
	s, err := b.Build()
	require.NoError(t, err)
	h := newHarness(t, s, withChance(0))

	_, err = h.generate("Egg", nil)
	require.Error(t, err)
	assert.True(t, fixerr.IsSchema(err))

	h.store.put(t, h.entity("Egg"), map[string]any{"EggId": 1, "ChickenId": 1})
	chicken, err := h.generate("Chicken", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chicken.Get("EggId"))
}
