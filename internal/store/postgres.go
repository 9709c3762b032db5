package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ----- users -----

func (s *PostgresStore) GetUserByUUID(ctx context.Context, uuid string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT uuid, email, first_name, last_name, avatar, password_hash, created_at, updated_at
		FROM users
		WHERE uuid=$1
	`, uuid).Scan(&user.UUID, &user.Email, &user.FirstName, &user.LastName, &user.Avatar, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT uuid, email, first_name, last_name, avatar, password_hash, created_at, updated_at
		FROM users
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.UUID, &user.Email, &user.FirstName, &user.LastName, &user.Avatar, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uuid, email, first_name, last_name, avatar, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.UUID, user.Email, user.FirstName, user.LastName, user.Avatar, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UserRoles(ctx context.Context, uuid string) ([]UserRole, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_uuid, org, role FROM user_roles WHERE user_uuid=$1`, uuid)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	roles := make([]UserRole, 0)
	for rows.Next() {
		var role UserRole
		if err := rows.Scan(&role.UUID, &role.Org, &role.Role); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}
	return roles, nil
}

func (s *PostgresStore) UserSummariesByUUIDs(ctx context.Context, uuids []string) (map[string]UserSummary, error) {
	summaries := make(map[string]UserSummary)
	if len(uuids) == 0 {
		return summaries, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, first_name, last_name, avatar
		FROM users
		WHERE uuid = ANY($1)
	`, uuids)
	if err != nil {
		return nil, fmt.Errorf("list user summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item UserSummary
		if err := rows.Scan(&item.UUID, &item.FirstName, &item.LastName, &item.Avatar); err != nil {
			return nil, fmt.Errorf("scan user summary: %w", err)
		}
		summaries[item.UUID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user summaries: %w", err)
	}
	return summaries, nil
}

func (s *PostgresStore) UserEmailsByUUIDs(ctx context.Context, uuids []string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT email FROM users WHERE uuid = ANY($1)`, uuids)
	if err != nil {
		return nil, fmt.Errorf("list user emails: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0, len(uuids))
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan user email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user emails: %w", err)
	}
	return emails, nil
}

// ListAdminEmails returns the emails of the org's campus admins and
// superadmins.
func (s *PostgresStore) ListAdminEmails(ctx context.Context, org string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.email
		FROM user_roles ur
		JOIN users u ON u.uuid = ur.user_uuid
		WHERE ur.org=$1 AND ur.role IN ('campusadmin', 'superadmin')
	`, org)
	if err != nil {
		return nil, fmt.Errorf("list admin emails: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan admin email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin emails: %w", err)
	}
	return emails, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userUUID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_uuid, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_uuid=EXCLUDED.user_uuid, expires_at=EXCLUDED.expires_at
	`, tokenHash, userUUID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.uuid, u.email, u.first_name, u.last_name, u.avatar
		FROM refresh_sessions rs
		JOIN users u ON u.uuid = rs.user_uuid
		WHERE rs.token_hash = $1 AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.UUID, &user.Email, &user.FirstName, &user.LastName, &user.Avatar)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ----- projects -----

const projectColumns = `
	p.project_id, p.org_id, p.title, p.status, p.visibility,
	p.current_progress, p.peer_progress, p.a11y_progress, p.classification,
	p.owner, p.liaison, p.flag, p.flag_descrip,
	p.libre_library, p.libre_cover_id, p.libre_shelf, p.libre_campus,
	p.author, p.author_email, p.license, p.resource_url, p.project_url, p.adapt_url,
	p.notes, p.rdmp_req_remix, p.rdmp_current_step, p.created_at, p.updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var item Project
	err := row.Scan(
		&item.ProjectID, &item.OrgID, &item.Title, &item.Status, &item.Visibility,
		&item.CurrentProgress, &item.PeerProgress, &item.A11YProgress, &item.Classification,
		&item.Owner, &item.Liaison, &item.Flag, &item.FlagDescrip,
		&item.LibreLibrary, &item.LibreCoverID, &item.LibreShelf, &item.LibreCampus,
		&item.Author, &item.AuthorEmail, &item.License, &item.ResourceURL, &item.ProjectURL, &item.AdaptURL,
		&item.Notes, &item.RDMPReqRemix, &item.RDMPCurrentStep, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (
			project_id, org_id, title, status, visibility,
			current_progress, peer_progress, a11y_progress, classification,
			owner, liaison, flag, flag_descrip,
			libre_library, libre_cover_id, libre_shelf, libre_campus,
			author, author_email, license, resource_url, project_url, adapt_url,
			notes, rdmp_req_remix, rdmp_current_step
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
	`,
		item.ProjectID, item.OrgID, item.Title, item.Status, item.Visibility,
		item.CurrentProgress, item.PeerProgress, item.A11YProgress, item.Classification,
		item.Owner, item.Liaison, item.Flag, item.FlagDescrip,
		item.LibreLibrary, item.LibreCoverID, item.LibreShelf, item.LibreCampus,
		item.Author, item.AuthorEmail, item.License, item.ResourceURL, item.ProjectURL, item.AdaptURL,
		item.Notes, item.RDMPReqRemix, item.RDMPCurrentStep,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject loads a project row plus its collaborator, tag and alert sets
// and the owner/liaison profile projections.
func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	item, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE p.project_id=$1`, projectID))
	if err != nil {
		return Project{}, err
	}

	item.Collaborators, err = s.projectMembers(ctx, "project_collaborators", projectID)
	if err != nil {
		return Project{}, err
	}
	item.LibreAlerts, err = s.projectMembers(ctx, "project_alerts", projectID)
	if err != nil {
		return Project{}, err
	}
	item.Tags, err = s.projectTagTitles(ctx, projectID)
	if err != nil {
		return Project{}, err
	}

	lookups := []string{item.Owner}
	if item.Liaison != nil {
		lookups = append(lookups, *item.Liaison)
	}
	summaries, err := s.UserSummariesByUUIDs(ctx, lookups)
	if err != nil {
		return Project{}, err
	}
	if owner, ok := summaries[item.Owner]; ok {
		item.OwnerInfo = &owner
	}
	if item.Liaison != nil {
		if liaison, ok := summaries[*item.Liaison]; ok {
			item.LiaisonInfo = &liaison
		}
	}
	return item, nil
}

func (s *PostgresStore) projectMembers(ctx context.Context, table, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT user_uuid FROM %s WHERE project_id=$1 ORDER BY user_uuid`, table), projectID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		members = append(members, uuid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return members, nil
}

func (s *PostgresStore) projectTagTitles(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.title
		FROM project_tags pt
		JOIN tags t ON t.tag_id = pt.tag_id
		WHERE pt.project_id=$1
		ORDER BY pt.position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tags: %w", err)
	}
	defer rows.Close()

	titles := make([]string, 0)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan project tag: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project tags: %w", err)
	}
	return titles, nil
}

// UpdateProjectFields applies only the provided columns. Returns false when
// no row matched. An empty field map is a no-op.
func (s *PostgresStore) UpdateProjectFields(ctx context.Context, projectID string, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return true, nil
	}
	columns := make([]string, 0, len(fields))
	for column := range fields {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	set := ""
	args := make([]any, 0, len(fields)+1)
	for i, column := range columns {
		if i > 0 {
			set += ", "
		}
		set += fmt.Sprintf("%s=$%d", column, i+1)
		args = append(args, fields[column])
	}
	set += ", updated_at=NOW()"
	args = append(args, projectID)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE projects SET %s WHERE project_id=$%d`, set, len(args)), args...)
	if err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update project result: %w", err)
	}
	return affected > 0, nil
}

// DeleteProjectCascade removes a project and everything hanging off it in a
// single transaction: messages, threads, review sections, collaborator and
// alert sets, and tag links.
func (s *PostgresStore) DeleteProjectCascade(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`DELETE FROM messages WHERE thread_id IN (SELECT thread_id FROM threads WHERE project_id=$1)`,
		`DELETE FROM threads WHERE project_id=$1`,
		`DELETE FROM a11y_sections WHERE project_id=$1`,
		`DELETE FROM project_collaborators WHERE project_id=$1`,
		`DELETE FROM project_alerts WHERE project_id=$1`,
		`DELETE FROM project_tags WHERE project_id=$1`,
	}
	for _, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement, projectID); err != nil {
			return fmt.Errorf("cascade delete project: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE project_id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// AddCollaborator reports false when the user was already on the project.
func (s *PostgresStore) AddCollaborator(ctx context.Context, projectID, userUUID string) (bool, error) {
	return s.addSetMember(ctx, "project_collaborators", projectID, userUUID)
}

func (s *PostgresStore) RemoveCollaborator(ctx context.Context, projectID, userUUID string) (bool, error) {
	return s.removeSetMember(ctx, "project_collaborators", projectID, userUUID)
}

func (s *PostgresStore) AddAlert(ctx context.Context, projectID, userUUID string) (bool, error) {
	return s.addSetMember(ctx, "project_alerts", projectID, userUUID)
}

func (s *PostgresStore) RemoveAlert(ctx context.Context, projectID, userUUID string) (bool, error) {
	return s.removeSetMember(ctx, "project_alerts", projectID, userUUID)
}

func (s *PostgresStore) addSetMember(ctx context.Context, table, projectID, userUUID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (project_id, user_uuid)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, table), projectID, userUUID)
	if err != nil {
		return false, fmt.Errorf("add to %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add to %s result: %w", table, err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) removeSetMember(ctx context.Context, table, projectID, userUUID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE project_id=$1 AND user_uuid=$2`, table), projectID, userUUID)
	if err != nil {
		return false, fmt.Errorf("remove from %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove from %s result: %w", table, err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ReplaceProjectTags(ctx context.Context, projectID string, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tags: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_tags WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("clear project tags: %w", err)
	}
	for position, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_tags (project_id, tag_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, projectID, tagID, position); err != nil {
			return fmt.Errorf("link project tag: %w", err)
		}
	}
	return tx.Commit()
}

// ----- project listings -----

func (s *PostgresStore) listProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// ListUserProjects returns every project the user owns or collaborates on.
func (s *PostgresStore) ListUserProjects(ctx context.Context, userUUID string) ([]Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.owner=$1
			OR EXISTS(SELECT 1 FROM project_collaborators pc WHERE pc.project_id=p.project_id AND pc.user_uuid=$1)
		ORDER BY p.updated_at DESC
	`, userUUID)
}

func (s *PostgresStore) ListRecentProjects(ctx context.Context, userUUID string, limit int) ([]Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.status <> 'completed'
			AND (p.owner=$1
				OR EXISTS(SELECT 1 FROM project_collaborators pc WHERE pc.project_id=p.project_id AND pc.user_uuid=$1))
		ORDER BY p.updated_at DESC
		LIMIT $2
	`, userUUID, limit)
}

func (s *PostgresStore) ListAvailableProjects(ctx context.Context, orgID string) ([]Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.org_id=$1 AND p.status='available'
		ORDER BY p.title
	`, orgID)
}

func (s *PostgresStore) ListCompletedProjects(ctx context.Context, orgID string) ([]Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.org_id=$1 AND p.status='completed' AND p.visibility='public'
		ORDER BY p.title
	`, orgID)
}

// ListFlaggedProjects returns flagged projects addressed to the user in any
// of their capacities. campusAdminOrgs may be empty.
func (s *PostgresStore) ListFlaggedProjects(ctx context.Context, userUUID string, isLibreAdmin bool, campusAdminOrgs []string) ([]Project, error) {
	if campusAdminOrgs == nil {
		campusAdminOrgs = []string{}
	}
	return s.listProjects(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.flag IS NOT NULL AND (
			(p.flag='liaison' AND p.liaison=$1)
			OR (p.flag='lead' AND p.owner=$1)
			OR (p.flag='libretexts' AND $2)
			OR (p.flag='campusadmin' AND p.org_id = ANY($3))
		)
		ORDER BY p.updated_at DESC
	`, userUUID, isLibreAdmin, campusAdminOrgs)
}

// ListAddableCollaborators returns users who are neither the owner nor an
// existing collaborator of the project.
func (s *PostgresStore) ListAddableCollaborators(ctx context.Context, projectID string) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.uuid, u.first_name, u.last_name, u.avatar
		FROM users u
		WHERE u.uuid <> (SELECT owner FROM projects WHERE project_id=$1)
			AND NOT EXISTS(SELECT 1 FROM project_collaborators pc WHERE pc.project_id=$1 AND pc.user_uuid=u.uuid)
		ORDER BY u.first_name, u.last_name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list addable collaborators: %w", err)
	}
	defer rows.Close()

	items := make([]UserSummary, 0)
	for rows.Next() {
		var item UserSummary
		if err := rows.Scan(&item.UUID, &item.FirstName, &item.LastName, &item.Avatar); err != nil {
			return nil, fmt.Errorf("scan addable collaborator: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addable collaborators: %w", err)
	}
	return items, nil
}

// ----- tags -----

func (s *PostgresStore) TagsByTitles(ctx context.Context, orgID string, titles []string) ([]Tag, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag_id, org_id, title
		FROM tags
		WHERE org_id=$1 AND title = ANY($2)
	`, orgID, titles)
	if err != nil {
		return nil, fmt.Errorf("lookup tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0, len(titles))
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.TagID, &tag.OrgID, &tag.Title); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// InsertTags bulk-inserts new tags. Identifier collisions are skipped rather
// than surfaced so a lost insert race does not fail the caller.
func (s *PostgresStore) InsertTags(ctx context.Context, tags []Tag) error {
	if len(tags) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tags: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tags (tag_id, org_id, title)
			VALUES ($1, $2, $3)
			ON CONFLICT (tag_id) DO NOTHING
		`, tag.TagID, tag.OrgID, tag.Title); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListOrgTags(ctx context.Context, orgID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag_id, org_id, title
		FROM tags
		WHERE org_id=$1
		ORDER BY title
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list org tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.TagID, &tag.OrgID, &tag.Title); err != nil {
			return nil, fmt.Errorf("scan org tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate org tags: %w", err)
	}
	return tags, nil
}

// ----- threads -----

func (s *PostgresStore) InsertThread(ctx context.Context, item Thread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (thread_id, project_id, kind, title, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ThreadID, item.ProjectID, item.Kind, item.Title, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var item Thread
	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id, project_id, kind, title, created_by, last_notif_sent, created_at
		FROM threads
		WHERE thread_id=$1
	`, threadID).Scan(&item.ThreadID, &item.ProjectID, &item.Kind, &item.Title, &item.CreatedBy, &item.LastNotifSent, &item.CreatedAt)
	if err != nil {
		return Thread{}, err
	}
	return item, nil
}

// DeleteThreadCascade removes the thread and its messages together.
func (s *PostgresStore) DeleteThreadCascade(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete thread: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id=$1`, threadID); err != nil {
		return fmt.Errorf("delete thread messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE thread_id=$1`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete thread result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// ListThreads returns the project's threads of the given kind, most recent
// activity first. Threads without messages sort last.
func (s *PostgresStore) ListThreads(ctx context.Context, projectID, kind string) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.thread_id, t.project_id, t.kind, t.title, t.created_by, t.last_notif_sent, t.created_at,
			lm.message_id, lm.body, lm.author, lm.created_at
		FROM threads t
		LEFT JOIN LATERAL (
			SELECT message_id, body, author, created_at
			FROM messages m
			WHERE m.thread_id = t.thread_id
			ORDER BY m.created_at DESC
			LIMIT 1
		) lm ON TRUE
		WHERE t.project_id=$1 AND t.kind=$2
		ORDER BY lm.created_at DESC NULLS LAST, t.created_at DESC
	`, projectID, kind)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	items := make([]Thread, 0)
	authorUUIDs := make([]string, 0)
	for rows.Next() {
		var item Thread
		var messageID, body, author sql.NullString
		var messageAt sql.NullTime
		if err := rows.Scan(
			&item.ThreadID, &item.ProjectID, &item.Kind, &item.Title, &item.CreatedBy, &item.LastNotifSent, &item.CreatedAt,
			&messageID, &body, &author, &messageAt,
		); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		if messageID.Valid {
			item.LastMessage = &Message{
				MessageID: messageID.String,
				ThreadID:  item.ThreadID,
				Body:      body.String,
				Author:    author.String,
				CreatedAt: messageAt.Time,
			}
			authorUUIDs = append(authorUUIDs, author.String)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	summaries, err := s.UserSummariesByUUIDs(ctx, authorUUIDs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].LastMessage == nil {
			continue
		}
		if summary, ok := summaries[items[i].LastMessage.Author]; ok {
			items[i].LastMessage.AuthorInfo = &summary
		}
	}
	return items, nil
}

func (s *PostgresStore) SetThreadNotifSent(ctx context.Context, threadID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE threads SET last_notif_sent=$2 WHERE thread_id=$1`, threadID, at)
	if err != nil {
		return fmt.Errorf("set thread notif sent: %w", err)
	}
	return nil
}

// ----- messages -----

func (s *PostgresStore) InsertMessage(ctx context.Context, item Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, thread_id, body, author)
		VALUES ($1, $2, $3, $4)
	`, item.MessageID, item.ThreadID, item.Body, item.Author)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var item Message
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id, thread_id, body, author, created_at
		FROM messages
		WHERE message_id=$1
	`, messageID).Scan(&item.MessageID, &item.ThreadID, &item.Body, &item.Author, &item.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMessages returns a thread's messages oldest first with author
// projections attached.
func (s *PostgresStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.message_id, m.thread_id, m.body, m.author, m.created_at,
			u.uuid, u.first_name, u.last_name, u.avatar
		FROM messages m
		LEFT JOIN users u ON u.uuid = m.author
		WHERE m.thread_id=$1
		ORDER BY m.created_at ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		var uuid, firstName, lastName, avatar sql.NullString
		if err := rows.Scan(&item.MessageID, &item.ThreadID, &item.Body, &item.Author, &item.CreatedAt,
			&uuid, &firstName, &lastName, &avatar); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if uuid.Valid {
			item.AuthorInfo = &UserSummary{
				UUID:      uuid.String,
				FirstName: firstName.String,
				LastName:  lastName.String,
				Avatar:    avatar.String,
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// ----- accessibility review -----

func (s *PostgresStore) InsertA11YSection(ctx context.Context, item A11YSection) error {
	payload, err := json.Marshal(item.Items)
	if err != nil {
		return fmt.Errorf("encode section items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO a11y_sections (section_id, project_id, position, section_title, items)
		VALUES ($1, $2,
			COALESCE((SELECT MAX(position)+1 FROM a11y_sections WHERE project_id=$2), 0),
			$3, $4)
	`, item.SectionID, item.ProjectID, item.Title, payload)
	if err != nil {
		return fmt.Errorf("insert review section: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListA11YSections(ctx context.Context, projectID string) ([]A11YSection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, project_id, position, section_title, items
		FROM a11y_sections
		WHERE project_id=$1
		ORDER BY position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list review sections: %w", err)
	}
	defer rows.Close()

	items := make([]A11YSection, 0)
	for rows.Next() {
		var item A11YSection
		var payload []byte
		if err := rows.Scan(&item.SectionID, &item.ProjectID, &item.Position, &item.Title, &payload); err != nil {
			return nil, fmt.Errorf("scan review section: %w", err)
		}
		if err := json.Unmarshal(payload, &item.Items); err != nil {
			return nil, fmt.Errorf("decode section items: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review sections: %w", err)
	}
	return items, nil
}

// UpdateA11YSectionItem sets one checklist item on a section. Returns false
// when the section does not belong to the project or does not exist.
func (s *PostgresStore) UpdateA11YSectionItem(ctx context.Context, projectID, sectionID, itemName string, value bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE a11y_sections
		SET items = jsonb_set(items, ARRAY[$3], to_jsonb($4::boolean), TRUE)
		WHERE section_id=$1 AND project_id=$2
	`, sectionID, projectID, itemName, value)
	if err != nil {
		return false, fmt.Errorf("update review item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update review item result: %w", err)
	}
	return affected > 0, nil
}

// ReplaceA11YSections swaps a project's review matrix for the given list in
// one transaction, preserving list order as position.
func (s *PostgresStore) ReplaceA11YSections(ctx context.Context, projectID string, sections []A11YSection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace sections: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM a11y_sections WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("clear review sections: %w", err)
	}
	for position, section := range sections {
		payload, err := json.Marshal(section.Items)
		if err != nil {
			return fmt.Errorf("encode section items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO a11y_sections (section_id, project_id, position, section_title, items)
			VALUES ($1, $2, $3, $4, $5)
		`, section.SectionID, projectID, position, section.Title, payload); err != nil {
			return fmt.Errorf("insert review section: %w", err)
		}
	}
	return tx.Commit()
}
