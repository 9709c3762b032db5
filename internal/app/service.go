package app

import (
	"context"
	"strings"
	"time"

	"conductor/api/internal/auth"
	"conductor/api/internal/book"
	"conductor/api/internal/config"
	"conductor/api/internal/perm"
	"conductor/api/internal/search"
	"conductor/api/internal/store"
	"conductor/api/internal/util"
)

const (
	projectIDLength = 10
	threadIDLength  = 14
	messageIDLength = 15
	sectionIDLength = 16

	recentProjectsLimit = 3
	notifyWindow        = 15 * time.Minute
)

type Session struct {
	Token        string
	RefreshToken string
	UserUUID     string
	UserName     string
	Roles        []perm.Role
	JTI          string
	ExpiresAt    time.Time
}

var validProjectStatuses = map[string]struct{}{
	"open":      {},
	"available": {},
	"completed": {},
}

var validVisibilities = map[string]struct{}{
	"public":  {},
	"private": {},
}

// Flag groups are a closed set; anything else is rejected up front.
var validFlagGroups = map[string]struct{}{
	"libretexts":  {},
	"campusadmin": {},
	"liaison":     {},
	"lead":        {},
}

var validThreadKinds = map[string]struct{}{
	"project":    {},
	"a11y":       {},
	"peerreview": {},
}

type dataStore interface {
	GetUserByUUID(context.Context, string) (store.User, error)
	UserRoles(context.Context, string) ([]store.UserRole, error)
	UserEmailsByUUIDs(context.Context, []string) ([]string, error)
	ListAdminEmails(context.Context, string) ([]string, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	UpdateProjectFields(context.Context, string, map[string]any) (bool, error)
	DeleteProjectCascade(context.Context, string) error
	AddCollaborator(context.Context, string, string) (bool, error)
	RemoveCollaborator(context.Context, string, string) (bool, error)
	AddAlert(context.Context, string, string) (bool, error)
	RemoveAlert(context.Context, string, string) (bool, error)
	ReplaceProjectTags(context.Context, string, []string) error
	ListUserProjects(context.Context, string) ([]store.Project, error)
	ListRecentProjects(context.Context, string, int) ([]store.Project, error)
	ListAvailableProjects(context.Context, string) ([]store.Project, error)
	ListCompletedProjects(context.Context, string) ([]store.Project, error)
	ListFlaggedProjects(context.Context, string, bool, []string) ([]store.Project, error)
	ListAddableCollaborators(context.Context, string) ([]store.UserSummary, error)
	ListOrgTags(context.Context, string) ([]store.Tag, error)
	InsertThread(context.Context, store.Thread) error
	GetThread(context.Context, string) (store.Thread, error)
	DeleteThreadCascade(context.Context, string) error
	ListThreads(context.Context, string, string) ([]store.Thread, error)
	SetThreadNotifSent(context.Context, string, time.Time) error
	InsertMessage(context.Context, store.Message) error
	GetMessage(context.Context, string) (store.Message, error)
	DeleteMessage(context.Context, string) error
	ListMessages(context.Context, string) ([]store.Message, error)
	InsertA11YSection(context.Context, store.A11YSection) error
	ListA11YSections(context.Context, string) ([]store.A11YSection, error)
	UpdateA11YSectionItem(context.Context, string, string, string, bool) (bool, error)
	ReplaceA11YSections(context.Context, string, []store.A11YSection) error
	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions; Redis when configured, Postgres
// otherwise.
type refreshStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type tagResolver interface {
	Resolve(ctx context.Context, titles []string) ([]string, error)
}

type mailer interface {
	IsConfigured() bool
	SendNewMessageNotification(to []string, authorName, projectTitle, threadTitle, body string) error
	SendProjectFlaggedNotification(to []string, projectTitle, description string) error
	SendAddedAsMemberNotification(to, projectTitle string) error
	SendProjectCompletedAlert(to []string, projectTitle string) error
	SendPublishingRequestNotification(to []string, projectTitle, ownerName string) error
}

type searchIndex interface {
	Search(query search.Query) search.Response
	IndexProject(record search.ProjectRecord)
	DeleteProject(projectID string)
}

type tocFetcher interface {
	FetchTOC(ctx context.Context, library, coverID string) (book.TOC, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	tags     tagResolver
	mail     mailer
	search   searchIndex
	toc      tocFetcher
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, resolver tagResolver) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		tags:     resolver,
		now:      time.Now,
	}
}

// SetSessionStore swaps refresh session storage, e.g. for Redis.
func (s *Service) SetSessionStore(sessions refreshStore) {
	s.sessions = sessions
}

// SetMailer enables notification emails.
func (s *Service) SetMailer(m mailer) {
	s.mail = m
}

// SetSearch enables search indexing.
func (s *Service) SetSearch(index searchIndex) {
	s.search = index
}

// SetTOCFetcher enables table-of-contents imports.
func (s *Service) SetTOCFetcher(fetcher tocFetcher) {
	s.toc = fetcher
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// ----- sessions -----

func (s *Service) IssueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.UUID,
		Name: displayName(user),
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.UUID, refreshExpires); err != nil {
		return Session{}, err
	}

	roles, err := s.store.UserRoles(ctx, user.UUID)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserUUID:     user.UUID,
		UserName:     displayName(user),
		Roles:        permRoles(roles),
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The session store may hold a partial user record; reload from Postgres.
	full, err := s.store.GetUserByUUID(ctx, user.UUID)
	if err != nil {
		return Session{}, err
	}
	return s.IssueSession(ctx, full)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	roles, err := s.store.UserRoles(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserUUID:  claims.Sub,
		UserName:  claims.Name,
		Roles:     permRoles(roles),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) caller(session Session) perm.Caller {
	return perm.Caller{UUID: session.UserUUID, Roles: session.Roles}
}

func permRoles(roles []store.UserRole) []perm.Role {
	out := make([]perm.Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, perm.Role{Org: role.Org, Role: role.Role})
	}
	return out
}

func displayName(user store.User) string {
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func summaryPayload(summary *store.UserSummary) any {
	if summary == nil {
		return nil
	}
	return map[string]any{
		"uuid":      summary.UUID,
		"firstName": summary.FirstName,
		"lastName":  summary.LastName,
		"avatar":    summary.Avatar,
	}
}
