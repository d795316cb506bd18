package seed

import (
	"context"
	"os"
	"testing"
	"unicode/utf8"

	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestDemoCommunities(t *testing.T) {
	demo := DemoCommunities()
	require.NotEmpty(t, demo)

	ids := map[string]bool{}
	for _, c := range demo {
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
		assert.Contains(t, Categories, c.Category)
		assert.True(t, c.IsActive)
		assert.GreaterOrEqual(t, utf8.RuneCountInString(c.Name), 3)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Name), 50)
		assert.GreaterOrEqual(t, utf8.RuneCountInString(c.Description), 10)
	}
	assert.Equal(t, "demo-eu-nao-fui-com-a-sua-cara", demo[4].ID)
	assert.Equal(t, "Bem-vindo à comunidade Rock Nacional!", demo[2].WelcomeMessage)
}

func TestSeedTestIsRepeatable(t *testing.T) {
	db := newTestDB(t)
	s := NewSeeder(db)
	ctx := context.Background()

	require.NoError(t, s.SeedTest(ctx))
	require.NoError(t, s.SeedTest(ctx))

	assert.Equal(t, int64(3), count(t, db, &models.Profile{}))
	assert.Equal(t, int64(3), count(t, db, &models.Friendship{}))
	assert.Equal(t, int64(len(DemoCommunities())), count(t, db, &models.Community{}))

	var alice models.Profile
	require.NoError(t, db.Where("username = ?", "alice").First(&alice).Error)
	require.NotNil(t, alice.PasswordHash)
}

func TestSeedDev(t *testing.T) {
	db := newTestDB(t)
	s := NewSeeder(db)
	ctx := context.Background()

	result, err := s.SeedDev(ctx, Options{Profiles: 6, Communities: 4, Friendships: 5, Posts: 10, Messages: 8})
	require.NoError(t, err)

	assert.Equal(t, 6, result.Profiles)
	assert.Equal(t, int64(6), count(t, db, &models.Profile{}))
	assert.Equal(t, int64(result.Communities), count(t, db, &models.Community{}))
	assert.Equal(t, int64(result.Friendships), count(t, db, &models.Friendship{}))
	assert.LessOrEqual(t, result.Friendships, 5)
	assert.Equal(t, int64(10), count(t, db, &models.Post{}))
	assert.Equal(t, int64(result.Messages), count(t, db, &models.Message{}))

	var pending int64
	require.NoError(t, db.Model(&models.Friendship{}).Where("status = ?", models.FriendshipPending).Count(&pending).Error)
	assert.Equal(t, pending, count(t, db, &models.Notification{}), "each pending request notifies the addressee")

	require.NoError(t, s.Clean(ctx))
	assert.Zero(t, count(t, db, &models.Profile{}))
	assert.Zero(t, count(t, db, &models.Community{}))
}

func TestCommunityName(t *testing.T) {
	assert.Equal(t, "Comunidade x", communityName("x"))
	long := "abcdefghij abcdefghij abcdefghij abcdefghij abcdefghij abc"
	assert.Equal(t, 50, utf8.RuneCountInString(communityName(long)))
}
