package persistence

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockSource creates a Source on the postgres dialector with a mocked SQL connection
func newMockSource(t *testing.T, schema string) (*Source, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewSource(gormDB, schema), mock
}

func newMySQLSource(t *testing.T, schema string) *Source {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      mockDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewSource(gormDB, schema)
}

func TestSource_Render(t *testing.T) {
	t.Run("postgres qualifies tables with the schema", func(t *testing.T) {
		src, _ := newMockSource(t, "SAPHANADB")
		got := src.Render(`SELECT m."KDAUF" FROM {t:NSDM_V_MSEG} m JOIN {t:VBAK} v ON v."VBELN" = m."KDAUF"`)
		assert.Equal(t, `SELECT m."KDAUF" FROM "SAPHANADB"."NSDM_V_MSEG" m JOIN "SAPHANADB"."VBAK" v ON v."VBELN" = m."KDAUF"`, got)
	})

	t.Run("empty schema leaves tables unqualified", func(t *testing.T) {
		src, _ := newMockSource(t, "")
		assert.Equal(t, `SELECT * FROM "OBJK"`, src.Render(`SELECT * FROM {t:OBJK}`))
	})

	t.Run("mysql uses backticks", func(t *testing.T) {
		src := newMySQLSource(t, "SAPHANADB")
		got := src.Render(`SELECT o."SERNR" FROM {t:OBJK} o`)
		assert.Equal(t, "SELECT o.`SERNR` FROM `SAPHANADB`.`OBJK` o", got)
	})
}

func TestSource_BoundSets(t *testing.T) {
	t.Run("postgres binds one array", func(t *testing.T) {
		src, _ := newMockSource(t, "")
		assert.Equal(t, `o."SERNR" = ANY(?)`, src.AnyOf(`o."SERNR"`))
		assert.Equal(t, pq.Array([]string{"A", "B"}), src.Set([]string{"A", "B"}))
	})

	t.Run("other dialects expand a list", func(t *testing.T) {
		src := newMySQLSource(t, "")
		assert.Equal(t, `o."SERNR" IN ?`, src.AnyOf(`o."SERNR"`))
		assert.Equal(t, []string{"A", "B"}, src.Set([]string{"A", "B"}))
	})
}

func TestParseDate(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input sql.NullString
		want  *time.Time
	}{
		{name: "compact", input: sql.NullString{String: "20240102", Valid: true}, want: &day},
		{name: "iso", input: sql.NullString{String: "2024-01-02", Valid: true}, want: &day},
		{name: "timestamp", input: sql.NullString{String: "2024-01-02T00:00:00Z", Valid: true}, want: &day},
		{name: "timestamp without zone", input: sql.NullString{String: "2024-01-02 00:00:00", Valid: true}, want: &day},
		{name: "null", input: sql.NullString{}},
		{name: "blank", input: sql.NullString{String: " ", Valid: true}},
		{name: "initial date", input: sql.NullString{String: "00000000", Valid: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseDate(sql.NullString{String: "yesterday", Valid: true})
		assert.Error(t, err)
	})
}
