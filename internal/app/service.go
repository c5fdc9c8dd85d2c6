package app

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/zap"

	"docuflex/internal/ai"
	"docuflex/internal/authpw"
	"docuflex/internal/blob"
	"docuflex/internal/config"
	"docuflex/internal/email"
	"docuflex/internal/export"
	"docuflex/internal/extract"
	"docuflex/internal/history"
	"docuflex/internal/importer"
	"docuflex/internal/logging"
	"docuflex/internal/rbac"
	"docuflex/internal/search"
	"docuflex/internal/session"
	"docuflex/internal/store"
)

const (
	maxItemNameLength = 255
	linkScheme        = "docuflex://items/"
	systemAuthor      = "DocuFlex"
)

var noSlash = regexp.MustCompile(`^[^/]+$`)

// Deps are the collaborators of a Service. Tree, Users and Session are
// required; every other field falls back to a local or disabled
// implementation when nil.
type Deps struct {
	Tree       *store.Tree
	Users      *store.UserRegistry
	Session    *session.State
	Auth       *authpw.Service
	Extractor  *extract.Extractor
	Downloader importer.Downloader
	Import     importer.Options
	Search     *search.Service
	AI         *ai.Searcher
	Video      *ai.VideoGenerator
	Blob       blob.Store
	Export     *export.Service
	Email      *email.Service
	History    *history.Recorder
}

// Service is the single entry point for every user-facing operation. It
// resolves the session user and enforces item permissions before touching
// the tree.
type Service struct {
	cfg       config.Config
	tree      *store.Tree
	users     *store.UserRegistry
	session   *session.State
	auth      *authpw.Service
	extractor *extract.Extractor
	importer  *importer.Importer
	search    *search.Service
	ai        *ai.Searcher
	video     *ai.VideoGenerator
	blob      blob.Store
	export    *export.Service
	email     *email.Service
	history   *history.Recorder
	logger    *zap.Logger
	now       func() time.Time

	settingsMu sync.RWMutex
	appName    string
}

func New(cfg config.Config, deps Deps, logger *zap.Logger) *Service {
	logger = logging.OrNop(logger).Named("app")
	s := &Service{
		cfg:       cfg,
		tree:      deps.Tree,
		users:     deps.Users,
		session:   deps.Session,
		auth:      deps.Auth,
		extractor: deps.Extractor,
		search:    deps.Search,
		ai:        deps.AI,
		video:     deps.Video,
		blob:      deps.Blob,
		export:    deps.Export,
		email:     deps.Email,
		history:   deps.History,
		logger:    logger,
		now:       time.Now,
		appName:   cfg.AppName,
	}
	if s.appName == "" {
		s.appName = "DocuFlex"
	}
	if s.auth == nil {
		s.auth = authpw.NewService(deps.Users)
	}
	if s.extractor == nil {
		s.extractor = extract.New()
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewMemory(), logger)
	}
	if s.blob == nil {
		s.blob = blob.NewInline()
	}
	if s.export == nil {
		s.export = export.NewService(export.Config{AppName: s.appName, ChromePath: cfg.ChromePath, PandocPath: cfg.PandocPath}, logger)
	}
	if s.email == nil {
		s.email = email.NewService(email.Config{}, logger)
	}
	downloader := deps.Downloader
	if downloader == nil {
		downloader = importer.SimulatedDownloader{
			MinLatency:  cfg.ImportMinLatency,
			MaxLatency:  cfg.ImportMaxLatency,
			SuccessRate: cfg.ImportSuccessRate,
		}
	}
	opts := deps.Import
	if opts.Stagger == 0 {
		opts.Stagger = cfg.ImportStagger
	}
	s.importer = importer.New(downloader, s, opts, logger.Named("import"))
	return s
}

// invalid converts ozzo validation failures into a VALIDATION_ERROR.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		return validationError(errs.Error(), errs)
	}
	return validationError(err.Error(), nil)
}

func itemNameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("name is required"),
		validation.RuneLength(1, maxItemNameLength),
		validation.Match(noSlash).Error("name cannot contain slashes"),
	}
}

func (s *Service) AppName() string {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.appName
}

func (s *Service) CurrentUser() store.User {
	return s.session.CurrentUser()
}

func (s *Service) Users() []store.User {
	return s.users.List()
}

// Login signs in by email or name and makes the user current.
func (s *Service) Login(login, password string) (store.User, error) {
	user, err := s.auth.SignIn(authpw.SignInRequest{Login: login, Password: password})
	if err != nil {
		s.logger.Info("sign-in rejected", zap.String("login", login))
		return store.User{}, mapError(err)
	}
	s.becomeUser(user)
	s.logger.Info("signed in", logging.UserID(user.ID))
	return user, nil
}

// SwitchUser makes another registered user current without a password.
// Used by the demo user picker.
func (s *Service) SwitchUser(id string) (store.User, error) {
	user, ok := s.users.Get(id)
	if !ok {
		return store.User{}, notFound("User")
	}
	s.becomeUser(user)
	return user, nil
}

// becomeUser swaps the session user and drops the active item back to the
// root when the new user cannot read it.
func (s *Service) becomeUser(user store.User) {
	s.session.SwitchUser(user)
	active, ok := s.tree.Find(s.session.ActiveID())
	if !ok || !rbac.CanRead(user, active) {
		s.session.SetActive(store.RootID)
	}
}

type ProfileInput struct {
	Name  string
	Email string
}

func (s *Service) UpdateProfile(in ProfileInput) (store.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required),
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
	); err != nil {
		return store.User{}, invalid(err)
	}
	current := s.session.CurrentUser()
	updated, err := s.users.Update(current.ID, store.UserPatch{Name: &in.Name, Email: &in.Email})
	if err != nil {
		return store.User{}, mapError(err)
	}
	s.session.RefreshUser(updated)
	return updated, nil
}

func (s *Service) ChangePassword(current, next, confirm string) error {
	user := s.session.CurrentUser()
	updated, err := s.auth.ChangePassword(authpw.ChangePasswordRequest{
		UserID:          user.ID,
		CurrentPassword: current,
		NewPassword:     next,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return mapError(err)
	}
	s.session.RefreshUser(updated)
	s.logger.Info("password changed", logging.UserID(user.ID))
	return nil
}

type UserInput struct {
	Name       string
	Email      string
	Role       string
	Department string
}

func (in *UserInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Department = strings.TrimSpace(in.Department)
	return invalid(validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required),
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Department, validation.Required),
	))
}

func (s *Service) requireAdmin() error {
	user := s.session.CurrentUser()
	if !rbac.Can(user, nil, rbac.ActionAdmin) {
		s.logger.Warn("admin action denied", logging.UserID(user.ID))
		return forbidden("Only administrators can change settings")
	}
	return nil
}

// AddUser registers a user with the default password.
func (s *Service) AddUser(in UserInput) (store.User, error) {
	if err := s.requireAdmin(); err != nil {
		return store.User{}, err
	}
	if err := in.validate(); err != nil {
		return store.User{}, err
	}
	user, err := s.users.Add(store.NewUser{
		Name:       in.Name,
		Email:      in.Email,
		Role:       rbac.Normalize(in.Role),
		Department: in.Department,
	})
	if err != nil {
		return store.User{}, mapError(err)
	}
	s.logger.Info("user added", logging.UserID(user.ID))
	return user, nil
}

func (s *Service) UpdateUser(id string, in UserInput) (store.User, error) {
	if err := s.requireAdmin(); err != nil {
		return store.User{}, err
	}
	if err := in.validate(); err != nil {
		return store.User{}, err
	}
	role := rbac.Normalize(in.Role)
	updated, err := s.users.Update(id, store.UserPatch{
		Name:       &in.Name,
		Email:      &in.Email,
		Role:       &role,
		Department: &in.Department,
	})
	if err != nil {
		return store.User{}, mapError(err)
	}
	if s.session.RefreshUser(updated) {
		// A demoted current user may have lost access to the active item.
		s.becomeUser(updated)
	}
	return updated, nil
}

func (s *Service) SetAppName(name string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, validation.Required.Error("app name is required"), validation.RuneLength(1, 64)); err != nil {
		return invalid(err)
	}
	s.settingsMu.Lock()
	s.appName = name
	s.settingsMu.Unlock()
	return nil
}

// SetLogLevel changes the process log level (debug, info, warn, error).
func (s *Service) SetLogLevel(level string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	if !logging.SetLevel(strings.ToLower(strings.TrimSpace(level))) {
		return validationError("log level must be debug, info, warn or error", nil)
	}
	s.logger.Info("log level changed", zap.String("level", level))
	return nil
}
