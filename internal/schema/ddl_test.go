package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopDDL = `
-- regions of the chain
CREATE TABLE IF NOT EXISTS regions (
    id SERIAL PRIMARY KEY,
    name VARCHAR(100) NOT NULL
);

CREATE TABLE stores (
    id INTEGER PRIMARY KEY,
    region_id INTEGER NOT NULL REFERENCES regions(id),
    name TEXT,
    opened_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

/* composite key drawn from two principals */
CREATE TABLE store_managers (
    store_id INTEGER NOT NULL,
    manager_id UUID NOT NULL,
    since DATE,
    CONSTRAINT pk_store_managers PRIMARY KEY (store_id, manager_id),
    CONSTRAINT fk_sm_store FOREIGN KEY (store_id) REFERENCES stores (id),
    FOREIGN KEY (manager_id) REFERENCES managers(id)
);

CREATE TABLE managers (
    id UUID PRIMARY KEY,
    email VARCHAR(255) UNIQUE,
    salary DECIMAL(10, 2)
);

CREATE INDEX idx_stores_region ON stores(region_id);
`

func TestParseDDL(t *testing.T) {
	entities, err := ParseDDL(shopDDL)
	require.NoError(t, err)
	require.Len(t, entities, 4)

	byName := make(map[string]*Entity)
	for _, e := range entities {
		byName[e.Name] = e
	}

	regions := byName["regions"]
	require.NotNil(t, regions)
	assert.Equal(t, []string{"id"}, regions.PrimaryKey)
	require.Len(t, regions.Columns, 2)
	assert.Equal(t, TypeInt, regions.Columns[0].Type)
	assert.False(t, regions.Columns[0].Nullable)
	assert.False(t, regions.Columns[1].Nullable)

	stores := byName["stores"]
	require.Len(t, stores.ForeignKeys, 1)
	assert.Equal(t, "regions", stores.ForeignKeys[0].Principal)
	assert.Equal(t, []ColumnMapping{{Dependent: "region_id", Principal: "id"}}, stores.ForeignKeys[0].Columns)
	assert.Equal(t, TypeTime, stores.Columns[3].Type)
	assert.True(t, stores.Columns[2].Nullable)

	sm := byName["store_managers"]
	assert.Equal(t, []string{"store_id", "manager_id"}, sm.PrimaryKey)
	require.Len(t, sm.ForeignKeys, 2)
	assert.Equal(t, "fk_sm_store", sm.ForeignKeys[0].Name)
	assert.Equal(t, "managers", sm.ForeignKeys[1].Principal)

	managers := byName["managers"]
	assert.Equal(t, TypeUUID, managers.Columns[0].Type)
	assert.Equal(t, TypeFloat, managers.Columns[2].Type)
}

func TestParseDDLNavigationNames(t *testing.T) {
	entities, err := ParseDDL(`
CREATE TABLE transfers (
    id INTEGER PRIMARY KEY,
    from_store_id INTEGER REFERENCES stores(id),
    to_store_id INTEGER REFERENCES stores(id),
    unique_code TEXT
);`)
	require.NoError(t, err)
	require.Len(t, entities, 1)

	e := entities[0]
	require.Len(t, e.Columns, 4)
	require.Len(t, e.ForeignKeys, 2)
	assert.Equal(t, "stores_from_store", e.ForeignKeys[0].Navigation)
	assert.Equal(t, "stores_to_store", e.ForeignKeys[1].Navigation)
}

func TestLoadDDLFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_shop.sql"), []byte(shopDDL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	files, err := SchemaFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	s, err := LoadDDLFiles(files)
	require.NoError(t, err)
	assert.Equal(t, []string{"managers", "regions", "store_managers", "stores"}, s.Names())

	sm, ok := s.Entity("store_managers")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, sm.ForeignKeys[1].PrincipalColumns())
}

func TestLoadDDLFilesUnknownPrincipal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orphans.sql")
	require.NoError(t, os.WriteFile(path, []byte(`CREATE TABLE orphans (id INT PRIMARY KEY, parent_id INT REFERENCES parents(id));`), 0o644))

	_, err := LoadDDLFiles([]string{path})
	require.Error(t, err)
}
