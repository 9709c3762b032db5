package store

import "time"

type User struct {
	UUID         string
	Email        string
	FirstName    string
	LastName     string
	Avatar       string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary is the public author/owner projection embedded in API responses.
type UserSummary struct {
	UUID      string
	FirstName string
	LastName  string
	Avatar    string
}

type UserRole struct {
	UUID string
	Org  string
	Role string
}

type Project struct {
	ProjectID       string
	OrgID           string
	Title           string
	Status          string
	Visibility      string
	CurrentProgress int
	PeerProgress    int
	A11YProgress    int
	Classification  string
	Owner           string
	Liaison         *string
	Flag            *string
	FlagDescrip     string
	LibreLibrary    string
	LibreCoverID    string
	LibreShelf      string
	LibreCampus     string
	Author          string
	AuthorEmail     string
	License         string
	ResourceURL     string
	ProjectURL      string
	AdaptURL        string
	Notes           string
	RDMPReqRemix    bool
	RDMPCurrentStep string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Loaded by joins on read paths; nil/empty on bare rows.
	OwnerInfo     *UserSummary
	LiaisonInfo   *UserSummary
	Collaborators []string
	Tags          []string
	LibreAlerts   []string
}

type Tag struct {
	TagID string
	OrgID string
	Title string
}

type Thread struct {
	ThreadID      string
	ProjectID     string
	Kind          string
	Title         string
	CreatedBy     string
	LastNotifSent *time.Time
	CreatedAt     time.Time

	// Loaded by the thread listing join.
	LastMessage *Message
}

type Message struct {
	MessageID string
	ThreadID  string
	Body      string
	Author    string
	CreatedAt time.Time

	AuthorInfo *UserSummary
}

// A11YSection is one section of a project's accessibility review matrix.
// Items maps checklist item names to their pass state.
type A11YSection struct {
	SectionID string
	ProjectID string
	Position  int
	Title     string
	Items     map[string]bool
}

type RefreshSession struct {
	TokenHash string
	UserUUID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}
