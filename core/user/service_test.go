package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/workdesk/core"
	"github.com/trezcool/workdesk/core/user"
	"github.com/trezcool/workdesk/services/email"
	"github.com/trezcool/workdesk/storage/database/inmem"
	"github.com/trezcool/workdesk/testutil"
)

func setup(t *testing.T) (user.Service, user.Repository, *emailsvc.ConsoleService) {
	conf := core.NewTestConfig()
	repo := inmemdb.NewUserRepository(inmemdb.Open(nil))
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	return user.NewService(repo, mailSvc, conf), repo, mailSvc
}

func TestNewUser_Validate(t *testing.T) {
	validate := testutil.NewValidator()

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
		wantTag   string
	}{
		{name: "valid", nu: user.NewUser{Email: "s@x.com", Password: "secret123"}},
		{name: "email required", nu: user.NewUser{Password: "secret123"}, wantField: "email", wantTag: "required"},
		{name: "bad email", nu: user.NewUser{Email: "sx.com", Password: "secret123"}, wantField: "email", wantTag: "email"},
		{name: "password required", nu: user.NewUser{Email: "s@x.com"}, wantField: "password", wantTag: "required"},
		{name: "too short", nu: user.NewUser{Email: "s@x.com", Password: "s3cr3t"}, wantField: "password", wantTag: "pwdminlen"},
		{name: "whitespace", nu: user.NewUser{Email: "s@x.com", Password: "secret 123"}, wantField: "password", wantTag: "pwdnospace"},
		{name: "all numeric", nu: user.NewUser{Email: "s@x.com", Password: "1234567890"}, wantField: "password", wantTag: "pwdnotallnum"},
		{name: "like the email", nu: user.NewUser{Email: "jonathan@x.com", Password: "jonathan1"}, wantField: "password", wantTag: "pwdtoosim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "%T", err)
			require.Len(t, vErrs, 1)
			assert.Equal(t, tt.wantField, vErrs[0].Field())
			assert.Equal(t, tt.wantTag, vErrs[0].Tag())
		})
	}
}

func TestService_Create(t *testing.T) {
	svc, _, mailSvc := setup(t)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{Email: " New@Test.cd", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "new@test.cd", usr.Email)
	assert.True(t, usr.IsStaff())
	assert.NoError(t, usr.CheckPassword("secret123"))

	sent := mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "new@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "new@test.cd")

	err = svc.CheckUniqueness(ctx, "new@test.cd")
	assert.True(t, core.IsValidationError(err))
	assert.NoError(t, svc.CheckUniqueness(ctx, "new@test.cd", usr.ID))
	assert.NoError(t, svc.CheckUniqueness(ctx, "other@test.cd"))
}

func TestService_lookups(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := svc.FirstAdmin(ctx)
	assert.Equal(t, user.ErrNotFound, err)

	second := testutil.CreateUser(t, repo, "second@test.cd", "", user.RoleAdmin, now)
	first := testutil.CreateUser(t, repo, "first@test.cd", "", user.RoleAdmin, now.Add(-time.Hour))
	bruno := testutil.CreateUser(t, repo, "bruno@test.cd", "", user.RoleStaff)
	alice := testutil.CreateUser(t, repo, "alice@test.cd", "", user.RoleStaff)

	admin, err := svc.FirstAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, admin.ID)
	assert.NotEqual(t, second.ID, admin.ID)

	staff, err := svc.QueryStaff(ctx, user.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []user.User{alice, bruno}, staff)

	staff, err = svc.QueryStaff(ctx, user.QueryFilter{Role: user.RoleAdmin, Search: "BRU"})
	require.NoError(t, err)
	assert.Equal(t, []user.User{bruno}, staff)

	_, err = svc.QueryStaff(ctx, user.QueryFilter{}, core.DBOrdering{Field: "password_hash"})
	assert.True(t, core.IsValidationError(err))

	got, err := svc.GetByEmail(ctx, " ALICE@test.cd ")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = svc.GetByID(ctx, "")
	assert.Equal(t, user.ErrNotFound, err)
}
