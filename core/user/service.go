package user

import (
	"context"
	"fmt"
	"net/mail"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/workdesk/core"
)

var (
	// errors
	ErrNotFound    = core.ErrNotFound
	ErrEmailExists = errors.New("a user with this email already exists")

	welcomeTmpl = template.Must(template.New("welcome").Parse(
		"Hello,\n\nAn account has been created for you on {{.AppName}}.\n" +
			"Sign in at {{.URL}} with {{.Email}} and the password given to you by your administrator.\n"))
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists if a user other than excludedIDs has email.
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on the set QueryFilter fields.
		QueryUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		// Create provisions a staff user and sends them a welcome email.
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		QueryStaff(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		// FirstAdmin returns the earliest admin, the staff's contact.
		FirstAdmin(ctx context.Context) (User, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedIDs...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	usr := User{
		Email:     core.CleanString(nu.Email, true /* lower */),
		Role:      RoleStaff,
		CreatedAt: time.Now().UTC(),
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

func (svc *service) sendWelcomeMail(usr User) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:       []mail.Address{{Address: usr.Email}},
		Subject:  "Your account is ready",
		Template: welcomeTmpl,
		TemplateData: map[string]string{
			"AppName": svc.conf.AppName,
			"URL":     svc.conf.FrontendBaseURL,
			"Email":   usr.Email,
		},
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) QueryStaff(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error) {
	filter.Clean()
	filter.Role = RoleStaff
	for _, ord := range orderings {
		if !Orderable[ord.Field] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: fmt.Sprintf("cannot order by %q", ord.Field)})
		}
	}
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "email", Ascending: true}}
	}
	return svc.repo.QueryUsers(ctx, filter, orderings...)
}

func (svc *service) FirstAdmin(ctx context.Context) (User, error) {
	admins, err := svc.repo.QueryUsers(ctx, QueryFilter{Role: RoleAdmin}, core.DBOrdering{Field: "created_at", Ascending: true})
	if err != nil {
		return User{}, errors.Wrap(err, "querying admins")
	}
	if len(admins) == 0 {
		return User{}, ErrNotFound
	}
	return admins[0], nil
}
