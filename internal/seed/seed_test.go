package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cuebook/internal/database"
	"cuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
users:
  - id: 1
    name: Owner
    role: owner
    telegram_chat_id: 777
  - id: 2
    name: Alice
    role: player
clubs:
  - id: 1
    owner_id: 1
    name: Cue Corner
    active: true
    rates:
      pool: 120000
      snooker: 200000
    tables:
      - {id: 1, name: P1, type: pool, sort_order: 1}
      - {id: 2, name: S1, type: snooker, sort_order: 2}
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndApply(t *testing.T) {
	f, err := Load(writeSeed(t, sample))
	require.NoError(t, err)

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "seed.db"), 0, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	summary, err := f.Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, Summary{Users: 2, Clubs: 1, Tables: 2, Rates: 2}, summary)

	// a second run only updates
	_, err = f.Apply(ctx, db)
	require.NoError(t, err)

	tables, err := db.ListTables(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, models.TableAvailable, tables[0].Status)

	rate, err := db.GetRate(ctx, 1, models.TableTypeSnooker)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), rate.PricePerHour)

	owner, err := db.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(777), owner.TelegramChatID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{"unknown role", File{Users: []User{{ID: 1, Role: "admin"}}}},
		{"owner not seeded", File{Clubs: []Club{{ID: 1, OwnerID: 9}}}},
		{"bad rate type", File{
			Users: []User{{ID: 1, Role: models.RoleOwner}},
			Clubs: []Club{{ID: 1, OwnerID: 1, Rates: map[string]int64{"darts": 10}}},
		}},
		{"zero price", File{
			Users: []User{{ID: 1, Role: models.RoleOwner}},
			Clubs: []Club{{ID: 1, OwnerID: 1, Rates: map[string]int64{"pool": 0}}},
		}},
		{"duplicate table", File{
			Users: []User{{ID: 1, Role: models.RoleOwner}},
			Clubs: []Club{{ID: 1, OwnerID: 1, Tables: []Table{{ID: 1, Type: "pool"}, {ID: 1, Type: "pool"}}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.file.Validate())
		})
	}
}
