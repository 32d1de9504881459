package organizations_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/mirror"
	"github.com/hugh/chimeo/internal/organizations"
	"github.com/hugh/chimeo/internal/storage"
	"github.com/hugh/chimeo/internal/testutil"
	"github.com/hugh/chimeo/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDirectory(t *testing.T, db *gorm.DB) (*organizations.Directory, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory("https://cdn.test")
	return organizations.NewDirectory(db, organizations.NewMemoryCache(time.Minute), store, mirror.Noop{}, util.DiscardLogger()), store
}

func names(orgs []models.Organization) []string {
	out := make([]string, len(orgs))
	for i, o := range orgs {
		out[i] = o.Name
	}
	return out
}

func TestDirectory_SearchRanking(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir, _ := newDirectory(t, db)
	ctx := testutil.TestContext(t)

	testutil.CreateTestOrg(t, db, "Allied Velocity Supplies")
	testutil.CreateTestOrg(t, db, "Velocity Physical Therapy")
	testutil.CreateTestOrg(t, db, "Grace Chapel")
	unverified := testutil.CreateTestOrg(t, db, "Velocity Hidden")
	require.NoError(t, db.Model(unverified).Update("verified", false).Error)

	other := testutil.CreateTestOrg(t, db, "Harbor Dental")
	require.NoError(t, db.Model(other).Update("city", "Velocityville").Error)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"prefix before substring before other field", "velocity", []string{
			"Velocity Physical Therapy", "Allied Velocity Supplies", "Harbor Dental",
		}},
		{"case insensitive", "VELOCITY PHY", []string{"Velocity Physical Therapy"}},
		{"empty query lists all verified alphabetically", "", []string{
			"Allied Velocity Supplies", "Grace Chapel", "Harbor Dental", "Velocity Physical Therapy",
		}},
		{"matches type", "business", []string{
			"Allied Velocity Supplies", "Grace Chapel", "Harbor Dental", "Velocity Physical Therapy",
		}},
		{"matches zip", "62701", []string{
			"Allied Velocity Supplies", "Grace Chapel", "Harbor Dental", "Velocity Physical Therapy",
		}},
		{"no match", "zzz", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dir.Search(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestDirectory_ClaimPlaceholderAdmin(t *testing.T) {
	ts := testutil.NewTestContext(t)
	dir, _ := newDirectory(t, ts.DB)
	ctx := testutil.TestContext(t)

	ts.Org.AdminIDs["Office@SmallChurch.org"] = true
	require.NoError(t, ts.DB.Save(ts.Org).Error)
	other := testutil.CreateTestOrg(t, ts.DB, "Other Org")

	owner := testutil.CreateTestUser(t, ts.DB)
	ownerID := auth.Identity{UserID: owner.ID, Email: "office@smallchurch.org"}

	ok, err := dir.IsAdmin(ctx, ownerID, ts.Org.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, err := dir.ClaimPlaceholderAdmin(ctx, "office@smallchurch.org", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ts.Org.ID}, claimed)

	ok, err = dir.IsAdmin(ctx, ownerID, ts.Org.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.IsAdmin(ctx, ownerID, other.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	var org models.Organization
	require.NoError(t, ts.DB.First(&org, "id = ?", ts.Org.ID).Error)
	assert.Equal(t, map[string]bool{ts.Admin.ID.String(): true, owner.ID.String(): true}, org.AdminIDs)

	var reloaded models.User
	require.NoError(t, ts.DB.First(&reloaded, "id = ?", owner.ID).Error)
	assert.True(t, reloaded.IsOrganizationAdmin)
	assert.Equal(t, []string{ts.Org.ID}, reloaded.OrganizationIDs)

	t.Run("nothing left to claim", func(t *testing.T) {
		claimed, err := dir.ClaimPlaceholderAdmin(ctx, "office@smallchurch.org", owner.ID)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

func TestDirectory_IsAdmin(t *testing.T) {
	ts := testutil.NewTestContext(t)
	dir, _ := newDirectory(t, ts.DB)
	ctx := testutil.TestContext(t)

	outsider := testutil.CreateTestUser(t, ts.DB)
	ts.Org.AdminIDs["placeholder@velocity.com"] = true
	require.NoError(t, ts.DB.Save(ts.Org).Error)

	tests := []struct {
		name string
		id   auth.Identity
		want bool
	}{
		{"admin by user id", auth.Identity{UserID: ts.Admin.ID, Email: ts.Admin.Email}, true},
		{"placeholder email alone is not admin", auth.Identity{UserID: uuid.New(), Email: "Placeholder@Velocity.com"}, false},
		{"not an admin", auth.Identity{UserID: outsider.ID, Email: outsider.Email}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dir.IsAdmin(ctx, tt.id, ts.Org.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing organization", func(t *testing.T) {
		_, err := dir.IsAdmin(ctx, auth.Identity{UserID: ts.Admin.ID}, "nope")
		assert.ErrorIs(t, err, organizations.ErrOrganizationNotFound)
	})
}

func TestDirectory_Update(t *testing.T) {
	ts := testutil.NewTestContext(t)
	dir, _ := newDirectory(t, ts.DB)

	// Prime the cache so the update must invalidate it.
	_, err := dir.List(testutil.TestContext(t))
	require.NoError(t, err)

	name := "Renamed Org"
	org, err := dir.Update(testutil.ContextFor(t, ts.Admin), ts.Org.ID, organizations.UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Org", org.Name)

	orgs, err := dir.List(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Renamed Org"}, names(orgs))

	t.Run("non admin forbidden", func(t *testing.T) {
		outsider := testutil.CreateTestUser(t, ts.DB)
		_, err := dir.Update(testutil.ContextFor(t, outsider), ts.Org.ID, organizations.UpdateInput{Name: &name})
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("platform admin allowed", func(t *testing.T) {
		admin := testutil.CreateTestPlatformAdmin(t, ts.DB)
		_, err := dir.Update(testutil.ContextFor(t, admin), ts.Org.ID, organizations.UpdateInput{Name: &name})
		assert.NoError(t, err)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := dir.Update(testutil.TestContext(t), ts.Org.ID, organizations.UpdateInput{Name: &name})
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	})

	t.Run("empty name", func(t *testing.T) {
		empty := " "
		_, err := dir.Update(testutil.ContextFor(t, ts.Admin), ts.Org.ID, organizations.UpdateInput{Name: &empty})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestDirectory_Groups(t *testing.T) {
	ts := testutil.NewTestContext(t)
	dir, _ := newDirectory(t, ts.DB)
	ctx := testutil.ContextFor(t, ts.Admin)

	youth, err := dir.CreateGroup(ctx, ts.Org.ID, "Youth", "Youth ministry")
	require.NoError(t, err)
	_, err = dir.CreateGroup(ctx, ts.Org.ID, "Adults", "")
	require.NoError(t, err)

	groups, err := dir.ListGroups(ctx, ts.Org.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Adults", groups[0].Name)

	inactive := false
	updated, err := dir.UpdateGroup(ctx, ts.Org.ID, youth.ID, organizations.GroupUpdate{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	t.Run("group of another organization", func(t *testing.T) {
		otherOrg := testutil.CreateTestOrg(t, ts.DB, "Other", ts.Admin)
		_, err := dir.GetGroup(ctx, otherOrg.ID, youth.ID)
		assert.ErrorIs(t, err, organizations.ErrGroupNotFound)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := dir.CreateGroup(ctx, ts.Org.ID, "  ", "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestDirectory_Logo(t *testing.T) {
	ts := testutil.NewTestContext(t)
	dir, store := newDirectory(t, ts.DB)
	ctx := testutil.ContextFor(t, ts.Admin)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	org, err := dir.UploadLogo(ctx, ts.Org.ID, png)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/organizations/"+ts.Org.ID+"/logo.png", org.LogoURL)

	_, ok := store.Get(storage.LogoKey(ts.Org.ID, ".png"))
	assert.True(t, ok)

	require.NoError(t, dir.DeleteLogo(ctx, ts.Org.ID))
	_, ok = store.Get(storage.LogoKey(ts.Org.ID, ".png"))
	assert.False(t, ok)

	reloaded, err := dir.Get(ctx, ts.Org.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.LogoURL)

	_, err = dir.UploadLogo(ctx, ts.Org.ID, []byte("not an image"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
