package catalog_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/castellan-io/castellan/pkg/catalog"
	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/event"
	graphmemory "github.com/castellan-io/castellan/pkg/graph/memory"
	"github.com/castellan-io/castellan/pkg/query"
	"github.com/castellan-io/castellan/pkg/storage"
	storagememory "github.com/castellan-io/castellan/pkg/storage/memory"
)

const adminKey = "admin"

type CatalogSuite struct {
	suite.Suite

	ctx     context.Context
	now     time.Time
	blobs   *storagememory.Service
	catalog *catalog.Catalog
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.blobs = storagememory.NewService("mem")

	provider := storage.NewProvider()
	s.Require().NoError(provider.Register(s.blobs))

	store := graphmemory.NewStore()
	s.catalog = catalog.New(store, provider, nil, adminKey,
		catalog.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(s.catalog.Init(s.ctx))
}

func (s *CatalogSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *CatalogSuite) createUser(key string) *domain.User {
	user, err := s.catalog.CreateUser(s.ctx, domain.CreateUserRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: key},
	})
	s.Require().NoError(err)
	return user
}

func (s *CatalogSuite) createCollection(key, createdBy string) *domain.Collection {
	collection, err := s.catalog.CreateCollection(s.ctx, domain.CreateCollectionRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: key},
	}, createdBy)
	s.Require().NoError(err)
	return collection
}

func (s *CatalogSuite) createFile(key, createdBy, content string) *domain.File {
	file, err := s.catalog.CreateFile(s.ctx, domain.CreateFileRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: key},
	}, createdBy, strings.NewReader(content))
	s.Require().NoError(err)
	return file
}

func (s *CatalogSuite) TestInitIsIdempotent() {
	s.Require().NoError(s.catalog.Init(s.ctx))

	admin, err := s.catalog.GetUser(s.ctx, adminKey)
	s.Require().NoError(err)
	s.Equal(adminKey, admin.Key)
}

func (s *CatalogSuite) TestResetWipesEverything() {
	s.createUser("alice")
	s.createFile("report", "alice", "q1 numbers")

	s.Require().NoError(s.catalog.Reset(s.ctx))

	_, err := s.catalog.GetUser(s.ctx, "alice")
	s.True(domain.IsCode(err, domain.CodeNotFound))

	admin, err := s.catalog.GetUser(s.ctx, adminKey)
	s.Require().NoError(err)
	s.Equal(adminKey, admin.Key)
}

func (s *CatalogSuite) TestUserLifecycle() {
	user, err := s.catalog.CreateUser(s.ctx, domain.CreateUserRequest{
		CreateEntityRequest: domain.CreateEntityRequest{
			Key:  "alice",
			Name: "Alice",
			Metadata: map[string]any{
				"department": "finance",
				"clearance":  int64(3),
			},
		},
	})
	s.Require().NoError(err)
	s.Equal("Alice", user.Name)
	s.Equal("finance", user.Metadata["department"])
	s.Equal(int64(3), user.Metadata["clearance"])
	s.Equal(s.now, user.CreatedAt)

	_, err = s.catalog.CreateUser(s.ctx, domain.CreateUserRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "alice"},
	})
	s.True(domain.IsCode(err, domain.CodeAlreadyExists))

	ok, err := s.catalog.IsValidUserKey(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.catalog.IsValidUserKey(s.ctx, "nobody")
	s.Require().NoError(err)
	s.False(ok)

	s.advance(time.Hour)
	name := "Alice Smith"
	updated, err := s.catalog.UpdateUser(s.ctx, "alice", domain.UpdateUserRequest{
		UpdateEntityRequest: domain.UpdateEntityRequest{
			Name:     &name,
			Metadata: map[string]any{"clearance": nil, "office": "berlin"},
		},
	})
	s.Require().NoError(err)
	s.Equal("Alice Smith", updated.Name)
	s.Equal("finance", updated.Metadata["department"])
	s.Equal("berlin", updated.Metadata["office"])
	s.NotContains(updated.Metadata, "clearance")
	s.Equal(s.now, updated.ModifiedAt)

	s.Require().NoError(s.catalog.DeleteUser(s.ctx, "alice"))
	_, err = s.catalog.GetUser(s.ctx, "alice")
	s.True(domain.IsCode(err, domain.CodeNotFound))
}

func (s *CatalogSuite) TestAdminIsProtectedAndHidden() {
	s.createUser("alice")

	err := s.catalog.DeleteUser(s.ctx, adminKey)
	s.True(domain.IsCode(err, domain.CodeForbidden))

	users, err := s.catalog.GetAllUsers(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 1)
	s.Equal("alice", users[0].Key)
}

func (s *CatalogSuite) TestIdentityKeysAreReserved() {
	_, err := s.catalog.CreateUser(s.ctx, domain.CreateUserRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "identity:sneaky"},
	})
	s.True(domain.IsCode(err, domain.CodeInvalidArgument))

	s.createUser("alice")
	_, err = s.catalog.GetGroup(s.ctx, domain.IdentityGroupKey("alice"))
	s.True(domain.IsCode(err, domain.CodeNotFound))

	groups, err := s.catalog.GetAllGroups(s.ctx)
	s.Require().NoError(err)
	s.Empty(groups)
}

func (s *CatalogSuite) TestGroupMembership() {
	s.createUser("alice")
	s.createUser("bob")
	group, err := s.catalog.CreateGroup(s.ctx, domain.CreateGroupRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "staff", Name: "Staff"},
	}, "alice")
	s.Require().NoError(err)
	s.Equal("alice", group.CreatedBy)

	s.Require().NoError(s.catalog.AddUserToGroup(s.ctx, "staff", "bob"))

	groups, err := s.catalog.GetGroupsForUser(s.ctx, "bob")
	s.Require().NoError(err)
	s.Require().Len(groups, 1)
	s.Equal("staff", groups[0].Key)

	members, err := s.catalog.GetUsersForGroup(s.ctx, "staff")
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Equal("bob", members[0].Key)
}

func (s *CatalogSuite) TestAccessFlowsDownTheHierarchy() {
	s.createUser("alice")
	s.createUser("bob")
	_, err := s.catalog.CreateGroup(s.ctx, domain.CreateGroupRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "finance"},
	}, adminKey)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.AddUserToGroup(s.ctx, "finance", "bob"))

	s.createCollection("root", adminKey)
	s.createCollection("reports", adminKey)
	s.Require().NoError(s.catalog.AddChildToCollection(s.ctx, "root", "reports"))

	file := s.createFile("budget", adminKey, "totals")
	s.Require().NoError(s.catalog.AddFileToCollection(s.ctx, "reports",
		domain.AddFileToCollectionRequest{FileKey: file.Key}))

	s.Require().NoError(s.catalog.AddGroupToCollection(s.ctx, "root",
		domain.AddGroupToCollectionRequest{GroupKey: "finance", AccessLevel: domain.AccessLevelReadOnly}))

	ok, err := s.catalog.UserCanAccessCollection(s.ctx, "bob", "reports", domain.ReadOnlyOrHigher)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.catalog.UserCanAccessFile(s.ctx, "bob", "budget", domain.ReadOnlyOrHigher)
	s.Require().NoError(err)
	s.True(ok)

	// READ_ONLY does not satisfy a write requirement.
	ok, err = s.catalog.UserCanAccessFile(s.ctx, "bob", "budget", domain.ReadWriteOrHigher)
	s.Require().NoError(err)
	s.False(ok)

	// Alice has no grant anywhere near the file.
	ok, err = s.catalog.UserCanAccessFile(s.ctx, "alice", "budget", domain.ReadOnlyOrHigher)
	s.Require().NoError(err)
	s.False(ok)

	// The creator holds CO_OWNER through the identity collection.
	s.createFile("memo", "alice", "draft")
	ok, err = s.catalog.UserCanAccessFile(s.ctx, "alice", "memo", domain.CoOwnerOnly)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *CatalogSuite) TestDirectUserGrantOnFile() {
	s.createUser("alice")
	s.createUser("bob")
	s.createFile("notes", "alice", "draft")

	s.Require().NoError(s.catalog.AddUserToFile(s.ctx, "notes",
		domain.AddUserToFileRequest{UserKey: "bob", AccessLevel: domain.AccessLevelReadWrite}))

	ok, err := s.catalog.UserCanAccessFile(s.ctx, "bob", "notes", domain.ReadWriteOrHigher)
	s.Require().NoError(err)
	s.True(ok)

	keys, err := s.catalog.UserCanAccessFiles(s.ctx, "bob", []string{"notes", "missing"}, domain.ReadOnlyOrHigher)
	s.Require().NoError(err)
	s.Equal([]string{"notes"}, keys)
}

func (s *CatalogSuite) TestAdminBypassesAccessChecks() {
	s.createUser("alice")
	s.createFile("private", "alice", "secret")

	keys, err := s.catalog.UserCanAccessFiles(s.ctx, adminKey, []string{"private"}, domain.CoOwnerOnly)
	s.Require().NoError(err)
	s.Equal([]string{"private"}, keys)
}

func (s *CatalogSuite) TestInvalidAccessLevelRejectedBeforeStoreWork() {
	s.createUser("alice")
	s.createFile("doc", "alice", "x")

	err := s.catalog.AddUserToFile(s.ctx, "doc",
		domain.AddUserToFileRequest{UserKey: "alice", AccessLevel: "ROOT"})
	s.True(domain.IsCode(err, domain.CodeInvalidAccessLevel))

	_, err = s.catalog.UserCanAccessFile(s.ctx, "alice", "doc", []string{"read_only"})
	s.True(domain.IsCode(err, domain.CodeInvalidAccessLevel))
}

func (s *CatalogSuite) TestCollectionHierarchyRejectsCycles() {
	s.createUser("alice")
	s.createCollection("a", "alice")
	s.createCollection("b", "alice")
	s.createCollection("c", "alice")
	s.Require().NoError(s.catalog.AddChildToCollection(s.ctx, "a", "b"))
	s.Require().NoError(s.catalog.AddChildToCollection(s.ctx, "b", "c"))

	err := s.catalog.AddChildToCollection(s.ctx, "c", "a")
	s.True(domain.IsCode(err, domain.CodeCycleDetected))

	err = s.catalog.AddChildToCollection(s.ctx, "a", "a")
	s.True(domain.IsCode(err, domain.CodeCycleDetected))

	// A diamond is not a cycle.
	s.createCollection("d", "alice")
	s.Require().NoError(s.catalog.AddChildToCollection(s.ctx, "a", "d"))
	s.Require().NoError(s.catalog.AddChildToCollection(s.ctx, "b", "d"))
}

func (s *CatalogSuite) TestCollectionItems() {
	s.createUser("alice")
	s.createCollection("parent", "alice")
	s.createCollection("child", "alice")
	s.Require().NoError(s.catalog.AddChildToCollection(s.ctx, "parent", "child"))
	s.createFile("doc", "alice", "x")
	s.Require().NoError(s.catalog.AddFileToCollection(s.ctx, "parent",
		domain.AddFileToCollectionRequest{FileKey: "doc"}))

	items, err := s.catalog.GetItemsForCollection(s.ctx, "parent")
	s.Require().NoError(err)
	s.Require().Len(items.ChildCollections, 1)
	s.Equal("child", items.ChildCollections[0].Key)
	s.Require().Len(items.Files, 1)
	s.Equal("doc", items.Files[0].Key)

	s.Require().NoError(s.catalog.RemoveFileFromCollection(s.ctx, "parent", "doc"))
	files, err := s.catalog.GetFilesForCollection(s.ctx, "parent")
	s.Require().NoError(err)
	s.Empty(files)

	// The file itself survives removal from the collection.
	_, err = s.catalog.GetFile(s.ctx, "doc")
	s.Require().NoError(err)
}

func (s *CatalogSuite) TestIdentityCollectionsAreHidden() {
	s.createUser("alice")
	s.createFile("doc", "alice", "x")
	s.createCollection("visible", "alice")
	s.Require().NoError(s.catalog.AddFileToCollection(s.ctx, "visible",
		domain.AddFileToCollectionRequest{FileKey: "doc"}))

	collections, err := s.catalog.GetAllCollections(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(collections, 1)
	s.Equal("visible", collections[0].Key)

	containers, err := s.catalog.GetCollectionsForFile(s.ctx, "doc")
	s.Require().NoError(err)
	s.Require().Len(containers, 1)
	s.Equal("visible", containers[0].Key)

	err = s.catalog.DeleteCollection(s.ctx, domain.IdentityCollectionKey("doc"))
	s.True(domain.IsCode(err, domain.CodeForbidden))
}

func (s *CatalogSuite) TestFileVersioning() {
	s.createUser("alice")
	file := s.createFile("doc", "alice", "v1")
	s.Equal(int64(1), file.VersionCount)
	s.Equal(1, s.blobs.Len())

	s.advance(time.Minute)
	file, err := s.catalog.AddVersionToFile(s.ctx, "doc", "alice", "", strings.NewReader("v2"))
	s.Require().NoError(err)
	s.Equal(int64(2), file.VersionCount)
	s.Equal(2, s.blobs.Len())

	versions, err := s.catalog.GetFileVersions(s.ctx, "doc")
	s.Require().NoError(err)
	s.Require().Len(versions, 2)
	s.True(versions[0].CreatedAt.Before(versions[1].CreatedAt))

	latest, err := s.catalog.GetLatestVersionForFile(s.ctx, "doc")
	s.Require().NoError(err)
	s.Equal(versions[1].StorageID, latest.StorageID)

	content, err := s.catalog.OpenFileContent(s.ctx, "doc")
	s.Require().NoError(err)
	defer content.Close()
	data, err := io.ReadAll(content)
	s.Require().NoError(err)
	s.Equal("v2", string(data))
}

func (s *CatalogSuite) TestDeleteFileRemovesBlobsAndAnchors() {
	s.createUser("alice")
	s.createFile("doc", "alice", "v1")
	_, err := s.catalog.AddVersionToFile(s.ctx, "doc", "alice", "", strings.NewReader("v2"))
	s.Require().NoError(err)
	s.Equal(2, s.blobs.Len())

	s.Require().NoError(s.catalog.DeleteFile(s.ctx, "doc"))
	s.Equal(0, s.blobs.Len())

	_, err = s.catalog.GetFile(s.ctx, "doc")
	s.True(domain.IsCode(err, domain.CodeNotFound))

	err = s.catalog.DeleteFile(s.ctx, "doc")
	s.True(domain.IsCode(err, domain.CodeNotFound))
}

func (s *CatalogSuite) TestCopyFile() {
	s.createUser("alice")
	s.createFile("orig", "alice", "payload")

	copied, err := s.catalog.CopyFile(s.ctx, "orig", domain.CopyFileRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "dup"},
	}, "alice")
	s.Require().NoError(err)
	s.Equal(int64(1), copied.VersionCount)

	content, err := s.catalog.OpenFileContent(s.ctx, "dup")
	s.Require().NoError(err)
	defer content.Close()
	data, err := io.ReadAll(content)
	s.Require().NoError(err)
	s.Equal("payload", string(data))

	origLatest, err := s.catalog.GetLatestVersionForFile(s.ctx, "orig")
	s.Require().NoError(err)
	dupLatest, err := s.catalog.GetLatestVersionForFile(s.ctx, "dup")
	s.Require().NoError(err)
	s.NotEqual(origLatest.StorageID, dupLatest.StorageID)
}

func (s *CatalogSuite) TestRetentionGatesDeletion() {
	s.createUser("alice")
	s.createFile("doc", "alice", "x")
	_, err := s.catalog.CreateRetentionPolicy(s.ctx, domain.CreateRetentionPolicyRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "hold-1h"},
		Seconds:             3600,
	}, adminKey)
	s.Require().NoError(err)

	s.Require().NoError(s.catalog.AddRetentionPolicyToFile(s.ctx, "doc",
		domain.AddRetentionPolicyToFileRequest{RetentionPolicyKey: "hold-1h"}))

	err = s.catalog.DeleteFile(s.ctx, "doc")
	s.True(domain.IsCode(err, domain.CodeRetentionActive))
	s.Equal(1, s.blobs.Len())

	apps, err := s.catalog.GetRetentionPolicyApplicationsForFile(s.ctx, "doc")
	s.Require().NoError(err)
	s.Require().Len(apps, 1)
	s.Equal(apps[0].AppliedAt.Add(time.Hour), apps[0].ExpiresAt)

	s.advance(time.Hour)
	s.Require().NoError(s.catalog.DeleteFile(s.ctx, "doc"))
	s.Equal(0, s.blobs.Len())
}

func (s *CatalogSuite) TestRetentionExtensionReprotectsFile() {
	s.createUser("alice")
	s.createFile("doc", "alice", "x")
	_, err := s.catalog.CreateRetentionPolicy(s.ctx, domain.CreateRetentionPolicyRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "hold"},
		Seconds:             3600,
	}, adminKey)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.AddRetentionPolicyToFile(s.ctx, "doc",
		domain.AddRetentionPolicyToFileRequest{RetentionPolicyKey: "hold"}))

	s.advance(2 * time.Hour)

	// Extending the policy re-covers every existing application.
	day := domain.RetentionPeriodDay
	_, err = s.catalog.UpdateRetentionPolicy(s.ctx, "hold", domain.UpdateRetentionPolicyRequest{Seconds: &day})
	s.Require().NoError(err)

	err = s.catalog.DeleteFile(s.ctx, "doc")
	s.True(domain.IsCode(err, domain.CodeRetentionActive))
}

func (s *CatalogSuite) TestRetentionPeriodCannotShrink() {
	_, err := s.catalog.CreateRetentionPolicy(s.ctx, domain.CreateRetentionPolicyRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "hold"},
		Seconds:             3600,
	}, adminKey)
	s.Require().NoError(err)

	shorter := uint64(60)
	_, err = s.catalog.UpdateRetentionPolicy(s.ctx, "hold", domain.UpdateRetentionPolicyRequest{Seconds: &shorter})
	s.True(domain.IsCode(err, domain.CodeRetentionPeriodCannotDecrease))

	_, err = s.catalog.CreateRetentionPolicy(s.ctx, domain.CreateRetentionPolicyRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "zero"},
	}, adminKey)
	s.True(domain.IsCode(err, domain.CodeInvalidArgument))
}

func (s *CatalogSuite) TestClassifications() {
	s.createUser("alice")
	s.createFile("doc", "alice", "x")
	_, err := s.catalog.CreateClassification(s.ctx, domain.CreateClassificationRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "confidential", Name: "Confidential"},
	}, adminKey)
	s.Require().NoError(err)

	s.Require().NoError(s.catalog.AddClassificationToFile(s.ctx, "doc",
		domain.AddClassificationToFileRequest{ClassificationKey: "confidential"}))

	tags, err := s.catalog.GetClassificationsForFile(s.ctx, "doc")
	s.Require().NoError(err)
	s.Require().Len(tags, 1)
	s.Equal("confidential", tags[0].Key)
}

func (s *CatalogSuite) TestFindWithCompoundQuery() {
	s.createUser("alice")
	for key, dept := range map[string]string{"a": "finance", "b": "finance", "c": "legal"} {
		_, err := s.catalog.CreateFile(s.ctx, domain.CreateFileRequest{
			CreateEntityRequest: domain.CreateEntityRequest{
				Key:      key,
				Metadata: map[string]any{"department": dept, "pages": int64(10)},
			},
		}, "alice", strings.NewReader("x"))
		s.Require().NoError(err)
	}

	files, err := s.catalog.FindFiles(s.ctx, []query.Clause{
		{Prop: "department", Op: "=", Value: "finance"},
		{Bool: "AND"},
		{Prop: "pages", Op: ">=", Value: int64(5)},
	})
	s.Require().NoError(err)
	s.Len(files, 2)

	// Reserved property names address the entity fields, not metadata.
	files, err = s.catalog.FindFiles(s.ctx, []query.Clause{
		{Prop: "key", Op: "=", Value: "c"},
	})
	s.Require().NoError(err)
	s.Require().Len(files, 1)
	s.Equal("c", files[0].Key)

	files, err = s.catalog.FindFiles(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(files)
}

func (s *CatalogSuite) TestFindUsersExcludesAdmin() {
	s.createUser("alice")

	users, err := s.catalog.FindUsers(s.ctx, []query.Clause{
		{Prop: "key", Op: "STARTS WITH", Value: "a"},
	})
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.Equal("alice", users[0].Key)
}

// collectingSink records delivered events for assertions.
type collectingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collectingSink) Name() string { return "collect" }

func (c *collectingSink) Deliver(ctx context.Context, e domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collectingSink) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.events))
	for _, e := range c.events {
		names = append(names, e.Name)
	}
	return names
}

func TestMutationEventsAreDispatched(t *testing.T) {
	ctx := context.Background()
	sink := &collectingSink{}
	dispatcher := event.NewDispatcher(sink)

	provider := storage.NewProvider()
	require.NoError(t, provider.Register(storagememory.NewService("mem")))

	c := catalog.New(graphmemory.NewStore(), provider, dispatcher, adminKey)
	require.NoError(t, c.Init(ctx))

	_, err := c.CreateUser(ctx, domain.CreateUserRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "alice"},
	})
	require.NoError(t, err)
	_, err = c.CreateFile(ctx, domain.CreateFileRequest{
		CreateEntityRequest: domain.CreateEntityRequest{Key: "doc"},
	}, "alice", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = c.AddVersionToFile(ctx, "doc", "alice", "", strings.NewReader("y"))
	require.NoError(t, err)

	dispatcher.Close()

	// Init emits the admin's UserCreated first.
	require.Equal(t, []string{
		domain.EventUserCreated,
		domain.EventUserCreated,
		domain.EventFileCreated,
		domain.EventNewVersionOfFileCreated,
	}, sink.names())
}
