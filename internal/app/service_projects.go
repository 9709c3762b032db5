package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"conductor/api/internal/perm"
	"conductor/api/internal/search"
	"conductor/api/internal/store"
	"conductor/api/internal/util"
)

type CreateProjectInput struct {
	Title          string   `json:"title"`
	Visibility     string   `json:"visibility"`
	Status         string   `json:"status"`
	Classification string   `json:"classification"`
	Tags           []string `json:"tags"`
}

// UpdateProjectInput carries only the fields the caller sent; nil means
// "leave unchanged". A non-nil empty Tags slice clears the tag list.
type UpdateProjectInput struct {
	Title           *string   `json:"title"`
	Status          *string   `json:"status"`
	Visibility      *string   `json:"visibility"`
	CurrentProgress *int      `json:"currentProgress"`
	PeerProgress    *int      `json:"peerProgress"`
	A11YProgress    *int      `json:"a11yProgress"`
	Classification  *string   `json:"classification"`
	LibreLibrary    *string   `json:"libreLibrary"`
	LibreCoverID    *string   `json:"libreCoverID"`
	LibreShelf      *string   `json:"libreShelf"`
	LibreCampus     *string   `json:"libreCampus"`
	Author          *string   `json:"author"`
	AuthorEmail     *string   `json:"authorEmail"`
	License         *string   `json:"license"`
	ResourceURL     *string   `json:"resourceURL"`
	ProjectURL      *string   `json:"projectURL"`
	AdaptURL        *string   `json:"adaptURL"`
	Notes           *string   `json:"notes"`
	RDMPReqRemix    *bool     `json:"rdmpReqRemix"`
	RDMPCurrentStep *string   `json:"rdmpCurrentStep"`
	Tags            *[]string `json:"tags"`
}

func projectSnapshot(project store.Project) perm.Snapshot {
	return perm.Snapshot{
		Visibility:    project.Visibility,
		Status:        project.Status,
		Owner:         perm.RawOwner(project.Owner),
		Collaborators: project.Collaborators,
	}
}

func (s *Service) searchRecord(project store.Project) search.ProjectRecord {
	return search.ProjectRecord{
		ProjectID:      project.ProjectID,
		OrgID:          project.OrgID,
		Title:          project.Title,
		Author:         project.Author,
		Classification: project.Classification,
		Status:         project.Status,
		Visibility:     project.Visibility,
		Tags:           project.Tags,
	}
}

func (s *Service) CreateProject(ctx context.Context, session Session, input CreateProjectInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 250 {
		return nil, errValidation("title must be between 1 and 250 characters")
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = "private"
	}
	if _, ok := validVisibilities[visibility]; !ok {
		return nil, errValidation("invalid visibility")
	}
	status := input.Status
	if status == "" {
		status = "open"
	}
	if _, ok := validProjectStatuses[status]; !ok {
		return nil, errValidation("invalid status")
	}

	project := store.Project{
		ProjectID:      util.NewBase62(projectIDLength),
		OrgID:          s.cfg.OrgID,
		Title:          title,
		Status:         status,
		Visibility:     visibility,
		Classification: input.Classification,
		Owner:          session.UserUUID,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, err
	}

	if len(input.Tags) > 0 {
		tagIDs, err := s.tags.Resolve(ctx, input.Tags)
		if err != nil {
			return nil, err
		}
		if err := s.store.ReplaceProjectTags(ctx, project.ProjectID, tagIDs); err != nil {
			return nil, err
		}
		project.Tags = input.Tags
	}

	if s.search != nil {
		s.search.IndexProject(s.searchRecord(project))
	}

	return map[string]any{
		"err":       false,
		"msg":       "Project successfully created.",
		"projectID": project.ProjectID,
	}, nil
}

// GetProject returns the full project view. Projects the caller cannot see
// report NOT_FOUND rather than FORBIDDEN so private projects do not leak
// their existence.
func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !perm.CanViewGeneral(projectSnapshot(project), s.caller(session)) {
		return nil, errNotFound("Project not found.")
	}
	return map[string]any{
		"err":     false,
		"project": projectPayload(project),
	}, nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID string, input UpdateProjectInput) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !perm.CanActAsMember(projectSnapshot(project), s.caller(session)) {
		return nil, errForbidden()
	}

	fields := make(map[string]any)
	completedNow := false

	if input.Title != nil && *input.Title != project.Title {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > 250 {
			return nil, errValidation("title must be between 1 and 250 characters")
		}
		fields["title"] = title
	}
	if input.Status != nil && *input.Status != project.Status {
		if _, ok := validProjectStatuses[*input.Status]; !ok {
			return nil, errValidation("invalid status")
		}
		fields["status"] = *input.Status
		if *input.Status == "completed" && project.Status != "completed" {
			completedNow = true
		}
	}
	if input.Visibility != nil && *input.Visibility != project.Visibility {
		if _, ok := validVisibilities[*input.Visibility]; !ok {
			return nil, errValidation("invalid visibility")
		}
		fields["visibility"] = *input.Visibility
	}
	if input.CurrentProgress != nil && *input.CurrentProgress != project.CurrentProgress {
		if err := validateProgress(*input.CurrentProgress); err != nil {
			return nil, err
		}
		fields["current_progress"] = *input.CurrentProgress
	}
	if input.PeerProgress != nil && *input.PeerProgress != project.PeerProgress {
		if err := validateProgress(*input.PeerProgress); err != nil {
			return nil, err
		}
		fields["peer_progress"] = *input.PeerProgress
	}
	if input.A11YProgress != nil && *input.A11YProgress != project.A11YProgress {
		if err := validateProgress(*input.A11YProgress); err != nil {
			return nil, err
		}
		fields["a11y_progress"] = *input.A11YProgress
	}
	setStringField(fields, "classification", input.Classification, project.Classification)
	setStringField(fields, "libre_library", input.LibreLibrary, project.LibreLibrary)
	setStringField(fields, "libre_cover_id", input.LibreCoverID, project.LibreCoverID)
	setStringField(fields, "libre_shelf", input.LibreShelf, project.LibreShelf)
	setStringField(fields, "libre_campus", input.LibreCampus, project.LibreCampus)
	setStringField(fields, "author", input.Author, project.Author)
	setStringField(fields, "author_email", input.AuthorEmail, project.AuthorEmail)
	setStringField(fields, "license", input.License, project.License)
	setStringField(fields, "resource_url", input.ResourceURL, project.ResourceURL)
	setStringField(fields, "project_url", input.ProjectURL, project.ProjectURL)
	setStringField(fields, "adapt_url", input.AdaptURL, project.AdaptURL)
	setStringField(fields, "notes", input.Notes, project.Notes)
	setStringField(fields, "rdmp_current_step", input.RDMPCurrentStep, project.RDMPCurrentStep)
	if input.RDMPReqRemix != nil && *input.RDMPReqRemix != project.RDMPReqRemix {
		fields["rdmp_req_remix"] = *input.RDMPReqRemix
	}

	if input.Tags != nil {
		tagIDs, err := s.tags.Resolve(ctx, *input.Tags)
		if err != nil {
			return nil, err
		}
		if err := s.store.ReplaceProjectTags(ctx, projectID, tagIDs); err != nil {
			return nil, err
		}
	}

	if len(fields) == 0 && input.Tags == nil {
		return map[string]any{
			"err": false,
			"msg": "No changes to save.",
		}, nil
	}

	if len(fields) > 0 {
		matched, err := s.store.UpdateProjectFields(ctx, projectID, fields)
		if err != nil {
			return nil, err
		}
		if !matched {
			return nil, errUpdateFailed("Failed to update project.")
		}
	}

	if completedNow {
		s.notifyProjectCompleted(ctx, project)
	}

	if s.search != nil {
		updated, err := s.store.GetProject(ctx, projectID)
		if err == nil {
			s.search.IndexProject(s.searchRecord(updated))
		}
	}

	return map[string]any{
		"err": false,
		"msg": "Successfully updated project.",
	}, nil
}

// DeleteProject removes a project and all dependent records. Owner only.
func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if session.UserUUID == "" || project.Owner != session.UserUUID {
		return nil, errForbidden()
	}
	if err := s.store.DeleteProjectCascade(ctx, projectID); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	return map[string]any{
		"err": false,
		"msg": "Successfully deleted project.",
	}, nil
}

// CompleteProject marks a project completed. Owner only.
func (s *Service) CompleteProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if session.UserUUID == "" || project.Owner != session.UserUUID {
		return nil, errForbidden()
	}
	if project.Status != "completed" {
		matched, err := s.store.UpdateProjectFields(ctx, projectID, map[string]any{"status": "completed"})
		if err != nil {
			return nil, err
		}
		if !matched {
			return nil, errUpdateFailed("Failed to update project.")
		}
		s.notifyProjectCompleted(ctx, project)
	}
	return map[string]any{
		"err": false,
		"msg": "Successfully marked project as completed.",
	}, nil
}

func (s *Service) notifyProjectCompleted(ctx context.Context, project store.Project) {
	if !s.SMTPConfigured() || len(project.LibreAlerts) == 0 {
		return
	}
	emails, err := s.store.UserEmailsByUUIDs(ctx, project.LibreAlerts)
	if err != nil || len(emails) == 0 {
		if err != nil {
			log.Printf("projects: load alert emails for %s: %v", project.ProjectID, err)
		}
		return
	}
	if err := s.mail.SendProjectCompletedAlert(emails, project.Title); err != nil {
		log.Printf("projects: completed alert for %s: %v", project.ProjectID, err)
	}
}

// FlagProject raises a flag addressed to one of the closed set of groups.
func (s *Service) FlagProject(ctx context.Context, session Session, projectID, flagGroup, flagDescrip string) (map[string]any, error) {
	if _, ok := validFlagGroups[flagGroup]; !ok {
		return nil, errValidation("invalid flag group")
	}
	if len(flagDescrip) > 2000 {
		return nil, errValidation("flag description must be 2000 characters or fewer")
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !perm.CanActAsMember(projectSnapshot(project), s.caller(session)) {
		return nil, errForbidden()
	}
	if flagGroup == "liaison" && project.Liaison == nil {
		return nil, errValidation("project has no liaison to flag")
	}

	matched, err := s.store.UpdateProjectFields(ctx, projectID, map[string]any{
		"flag":         flagGroup,
		"flag_descrip": flagDescrip,
	})
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, errUpdateFailed("Failed to flag project.")
	}

	s.notifyProjectFlagged(ctx, project, flagGroup, flagDescrip)

	return map[string]any{
		"err": false,
		"msg": "Successfully flagged project.",
	}, nil
}

func (s *Service) notifyProjectFlagged(ctx context.Context, project store.Project, flagGroup, flagDescrip string) {
	if !s.SMTPConfigured() {
		return
	}
	var recipients []string
	var err error
	switch flagGroup {
	case "libretexts":
		recipients, err = s.store.ListAdminEmails(ctx, perm.SuperAdminOrg)
	case "campusadmin":
		recipients, err = s.store.ListAdminEmails(ctx, project.OrgID)
	case "liaison":
		if project.Liaison != nil {
			recipients, err = s.store.UserEmailsByUUIDs(ctx, []string{*project.Liaison})
		}
	case "lead":
		recipients, err = s.store.UserEmailsByUUIDs(ctx, []string{project.Owner})
	}
	if err != nil {
		log.Printf("projects: load flag recipients for %s: %v", project.ProjectID, err)
		return
	}
	if len(recipients) == 0 {
		return
	}
	if err := s.mail.SendProjectFlaggedNotification(recipients, project.Title, flagDescrip); err != nil {
		log.Printf("projects: flag notification for %s: %v", project.ProjectID, err)
	}
}

// ClearProjectFlag removes an active flag.
func (s *Service) ClearProjectFlag(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !perm.CanActAsMember(projectSnapshot(project), s.caller(session)) {
		return nil, errForbidden()
	}
	matched, err := s.store.UpdateProjectFields(ctx, projectID, map[string]any{
		"flag":         nil,
		"flag_descrip": "",
	})
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, errUpdateFailed("Failed to clear project flag.")
	}
	return map[string]any{
		"err": false,
		"msg": "Successfully cleared project flag.",
	}, nil
}

// SetAlert opts the caller in or out of completion alerts for a project.
// Team members only.
func (s *Service) SetAlert(ctx context.Context, session Session, projectID string, enabled bool) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !perm.CanActAsMember(projectSnapshot(project), s.caller(session)) {
		return nil, errForbidden()
	}
	if enabled {
		_, err = s.store.AddAlert(ctx, projectID, session.UserUUID)
	} else {
		_, err = s.store.RemoveAlert(ctx, projectID, session.UserUUID)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"err": false,
		"msg": "Successfully updated project alerts.",
	}, nil
}

// AddCollaborator adds a user to a project's team. Owner only; owners
// cannot add themselves.
func (s *Service) AddCollaborator(ctx context.Context, session Session, projectID, userUUID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if session.UserUUID == "" || project.Owner != session.UserUUID {
		return nil, errForbidden()
	}
	if userUUID == session.UserUUID {
		return nil, errValidation("you are already the project owner")
	}

	user, err := s.store.GetUserByUUID(ctx, userUUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("User not found.")
		}
		return nil, err
	}

	if _, err := s.store.AddCollaborator(ctx, projectID, userUUID); err != nil {
		return nil, err
	}

	if s.SMTPConfigured() {
		if err := s.mail.SendAddedAsMemberNotification(user.Email, project.Title); err != nil {
			log.Printf("projects: added-as-member notification for %s: %v", projectID, err)
		}
	}

	return map[string]any{
		"err": false,
		"msg": "Successfully added collaborator.",
	}, nil
}

// RemoveCollaborator removes a user from a project's team. Owner only.
func (s *Service) RemoveCollaborator(ctx context.Context, session Session, projectID, userUUID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if session.UserUUID == "" || project.Owner != session.UserUUID {
		return nil, errForbidden()
	}
	modified, err := s.store.RemoveCollaborator(ctx, projectID, userUUID)
	if err != nil {
		return nil, err
	}
	if !modified {
		return nil, errUpdateFailed("Failed to remove collaborator.")
	}
	return map[string]any{
		"err": false,
		"msg": "Successfully removed collaborator.",
	}, nil
}

// GetAddableCollaborators lists users who could join the project's team.
func (s *Service) GetAddableCollaborators(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !perm.CanActAsMember(projectSnapshot(project), s.caller(session)) {
		return nil, errForbidden()
	}
	users, err := s.store.ListAddableCollaborators(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(users))
	for i := range users {
		items = append(items, summaryPayload(&users[i]))
	}
	return map[string]any{
		"err":   false,
		"users": items,
	}, nil
}

// RequestPublishing asks the platform team to publish a completed text.
func (s *Service) RequestPublishing(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !perm.CanActAsMember(projectSnapshot(project), s.caller(session)) {
		return nil, errForbidden()
	}
	if project.LibreLibrary == "" || project.LibreCoverID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "MISSING_BOOK_LINK", "Project does not have an associated library text.", nil)
	}

	if s.SMTPConfigured() {
		recipients, err := s.store.ListAdminEmails(ctx, perm.SuperAdminOrg)
		if err != nil {
			log.Printf("projects: load publishing recipients for %s: %v", projectID, err)
		} else if len(recipients) > 0 {
			ownerName := ""
			if project.OwnerInfo != nil {
				ownerName = strings.TrimSpace(project.OwnerInfo.FirstName + " " + project.OwnerInfo.LastName)
			}
			if err := s.mail.SendPublishingRequestNotification(recipients, project.Title, ownerName); err != nil {
				log.Printf("projects: publishing request notification for %s: %v", projectID, err)
			}
		}
	}

	return map[string]any{
		"err": false,
		"msg": "Successfully requested publishing.",
	}, nil
}

// ----- listings -----

func (s *Service) GetUserProjects(ctx context.Context, session Session) (map[string]any, error) {
	projects, err := s.store.ListUserProjects(ctx, session.UserUUID)
	if err != nil {
		return nil, err
	}
	return projectListPayload(projects), nil
}

func (s *Service) GetRecentProjects(ctx context.Context, session Session) (map[string]any, error) {
	projects, err := s.store.ListRecentProjects(ctx, session.UserUUID, recentProjectsLimit)
	if err != nil {
		return nil, err
	}
	return projectListPayload(projects), nil
}

func (s *Service) GetAvailableProjects(ctx context.Context) (map[string]any, error) {
	projects, err := s.store.ListAvailableProjects(ctx, s.cfg.OrgID)
	if err != nil {
		return nil, err
	}
	return projectListPayload(projects), nil
}

func (s *Service) GetCompletedProjects(ctx context.Context) (map[string]any, error) {
	projects, err := s.store.ListCompletedProjects(ctx, s.cfg.OrgID)
	if err != nil {
		return nil, err
	}
	return projectListPayload(projects), nil
}

// GetUserFlaggedProjects returns flagged projects addressed to the caller in
// any of their capacities.
func (s *Service) GetUserFlaggedProjects(ctx context.Context, session Session) (map[string]any, error) {
	caller := s.caller(session)
	isLibreAdmin := perm.IsCampusAdmin(caller, perm.SuperAdminOrg)
	var campusOrgs []string
	for _, role := range session.Roles {
		if role.Role == perm.RoleCampusAdmin || role.Role == perm.RoleSuperAdmin {
			campusOrgs = append(campusOrgs, role.Org)
		}
	}
	projects, err := s.store.ListFlaggedProjects(ctx, session.UserUUID, isLibreAdmin, campusOrgs)
	if err != nil {
		return nil, err
	}
	return projectListPayload(projects), nil
}

// SearchProjects queries the search backend. Only generally visible
// projects are indexed, so no per-result permission filtering is needed.
func (s *Service) SearchProjects(text string, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not available.", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	response := s.search.Search(search.Query{
		Text:   text,
		OrgID:  s.cfg.OrgID,
		Limit:  limit,
		Offset: offset,
	})
	return map[string]any{
		"err":     false,
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}, nil
}

func (s *Service) GetOrgTags(ctx context.Context) (map[string]any, error) {
	orgTags, err := s.store.ListOrgTags(ctx, s.cfg.OrgID)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(orgTags))
	for _, tag := range orgTags {
		items = append(items, map[string]any{
			"tagID": tag.TagID,
			"title": tag.Title,
		})
	}
	return map[string]any{
		"err":  false,
		"tags": items,
	}, nil
}

// ----- payload helpers -----

func projectListPayload(projects []store.Project) map[string]any {
	items := make([]any, 0, len(projects))
	for _, project := range projects {
		items = append(items, projectPayload(project))
	}
	return map[string]any{
		"err":      false,
		"projects": items,
	}
}

func projectPayload(project store.Project) map[string]any {
	payload := map[string]any{
		"projectID":       project.ProjectID,
		"orgID":           project.OrgID,
		"title":           project.Title,
		"status":          project.Status,
		"visibility":      project.Visibility,
		"currentProgress": project.CurrentProgress,
		"peerProgress":    project.PeerProgress,
		"a11yProgress":    project.A11YProgress,
		"classification":  project.Classification,
		"owner":           project.Owner,
		"flagDescrip":     project.FlagDescrip,
		"libreLibrary":    project.LibreLibrary,
		"libreCoverID":    project.LibreCoverID,
		"libreShelf":      project.LibreShelf,
		"libreCampus":     project.LibreCampus,
		"author":          project.Author,
		"authorEmail":     project.AuthorEmail,
		"license":         project.License,
		"resourceURL":     project.ResourceURL,
		"projectURL":      project.ProjectURL,
		"adaptURL":        project.AdaptURL,
		"notes":           project.Notes,
		"rdmpReqRemix":    project.RDMPReqRemix,
		"rdmpCurrentStep": project.RDMPCurrentStep,
		"createdAt":       project.CreatedAt.Format(time.RFC3339),
		"updatedAt":       project.UpdatedAt.Format(time.RFC3339),
	}
	if project.Flag != nil {
		payload["flag"] = *project.Flag
	}
	if project.Liaison != nil {
		payload["liaison"] = *project.Liaison
	}
	if project.OwnerInfo != nil {
		payload["owner"] = summaryPayload(project.OwnerInfo)
	}
	if project.LiaisonInfo != nil {
		payload["liaison"] = summaryPayload(project.LiaisonInfo)
	}
	if project.Collaborators != nil {
		payload["collaborators"] = project.Collaborators
	}
	if project.Tags != nil {
		payload["tags"] = project.Tags
	}
	if project.LibreAlerts != nil {
		payload["libreAlerts"] = project.LibreAlerts
	}
	return payload
}

func setStringField(fields map[string]any, column string, input *string, current string) {
	if input != nil && *input != current {
		fields[column] = *input
	}
}

func validateProgress(value int) error {
	if value < 0 || value > 100 {
		return errValidation(fmt.Sprintf("progress must be between 0 and 100, got %d", value))
	}
	return nil
}
