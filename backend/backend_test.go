package backend

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
)

type fakeBackend struct {
	calls      []string
	rowCount   int64
	tableExist bool
}

func (f *fakeBackend) ExecuteSQL(ctx context.Context, sql string) ([]Batch, error) { return nil, nil }
func (f *fakeBackend) CreateTableAs(ctx context.Context, schema, name, sql string) error {
	f.calls = append(f.calls, "create_table:"+name)
	return nil
}
func (f *fakeBackend) CreateViewAs(ctx context.Context, schema, name, sql string) error {
	f.calls = append(f.calls, "create_view:"+name)
	return nil
}
func (f *fakeBackend) DropTableIfExists(ctx context.Context, schema, name string) error {
	f.calls = append(f.calls, "drop_table:"+name)
	return nil
}
func (f *fakeBackend) DropViewIfExists(ctx context.Context, schema, name string) error {
	f.calls = append(f.calls, "drop_view:"+name)
	return nil
}
func (f *fakeBackend) GetRowCount(ctx context.Context, schema, name string) (int64, error) {
	return f.rowCount, nil
}
func (f *fakeBackend) GetPreview(ctx context.Context, schema, name string, limit int) (Batch, error) {
	return Batch{Columns: []string{"x"}, Rows: []Row{{"x": 1}}}, nil
}
func (f *fakeBackend) TableExists(ctx context.Context, schema, name string) (bool, error) {
	return f.tableExist, nil
}
func (f *fakeBackend) EnsureSchema(ctx context.Context, schema string) error { return nil }
func (f *fakeBackend) DeletePartitions(ctx context.Context, schema, name string, p Partition) error {
	f.calls = append(f.calls, "delete_partitions:"+name)
	return nil
}
func (f *fakeBackend) InsertIntoFromQuery(ctx context.Context, schema, name, sql string) error {
	f.calls = append(f.calls, "insert:"+name)
	return nil
}
func (f *fakeBackend) Dialect() Dialect           { return DialectSQLite }
func (f *fakeBackend) Capabilities() Capabilities { return Capabilities{} }
func (f *fakeBackend) Close() error               { return nil }

func TestExecuteModelTableDropsThenCreates(t *testing.T) {
	f := &fakeBackend{rowCount: 42}
	res, err := ExecuteModel(context.Background(), f, "analytics", "revenue", "SELECT 1", MaterializationTable, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), res.RowCount)
	assert.Equal(t, []string{"drop_table:revenue", "create_table:revenue"}, f.calls)
	assert.Zero(t, res.Preview)
}

func TestExecuteModelViewUsesViewOperations(t *testing.T) {
	f := &fakeBackend{}
	_, err := ExecuteModel(context.Background(), f, "analytics", "v", "SELECT 1", MaterializationView, false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"drop_view:v", "create_view:v"}, f.calls)
}

func TestExecuteModelWithPreview(t *testing.T) {
	f := &fakeBackend{}
	res, err := ExecuteModel(context.Background(), f, "analytics", "t", "SELECT 1", MaterializationTable, true)
	assert.NoError(t, err)
	assert.NotZero(t, res.Preview)
	assert.Equal(t, 1, len(res.Preview.Rows))
}

func TestExecuteModelIncrementalFullRefreshWhenTableMissing(t *testing.T) {
	f := &fakeBackend{tableExist: false}
	_, err := ExecuteModelIncremental(context.Background(), f, "analytics", "t", "SELECT 1", MaterializationTable, Partition{}, false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"drop_table:t", "create_table:t"}, f.calls)
}

func TestExecuteModelIncrementalDeletesThenInserts(t *testing.T) {
	f := &fakeBackend{tableExist: true}
	p := Partition{Column: "dt", Values: []string{"2024-01-15"}}
	_, err := ExecuteModelIncremental(context.Background(), f, "analytics", "t", "SELECT 1", MaterializationTable, p, false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"delete_partitions:t", "insert:t"}, f.calls)
}

func TestExecuteModelIncrementalFallsBackToFullRefreshForViews(t *testing.T) {
	f := &fakeBackend{}
	_, err := ExecuteModelIncremental(context.Background(), f, "analytics", "v", "SELECT 1", MaterializationView, Partition{}, false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"drop_view:v", "create_view:v"}, f.calls)
}
