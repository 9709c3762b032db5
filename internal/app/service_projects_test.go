package app

import (
	"context"
	"errors"
	"testing"

	"conductor/api/internal/store"
)

func privateProject(owner string) store.Project {
	return store.Project{
		ProjectID:  "abcdef1234",
		OrgID:      "libretexts",
		Title:      "Intro to Chemistry",
		Status:     "open",
		Visibility: "private",
		Owner:      owner,
	}
}

func TestGetProjectHidesPrivateProjects(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.GetProject(context.Background(), memberSession("stranger"), "abcdef1234")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND for non-member on private project, got %v", err)
	}

	if _, err := svc.GetProject(context.Background(), memberSession("owner-1"), "abcdef1234"); err != nil {
		t.Fatalf("owner should see own project: %v", err)
	}
}

func TestUpdateProjectForbiddenForNonMember(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
	}
	svc := newTestService(fs)

	title := "New Title"
	_, err := svc.UpdateProject(context.Background(), memberSession("stranger"), "abcdef1234", UpdateProjectInput{Title: &title})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN on mutation, got %v", err)
	}
}

func TestUpdateProjectSkipsUnchangedFields(t *testing.T) {
	updates := 0
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		updateProjectFieldsFn: func(_ context.Context, _ string, fields map[string]any) (bool, error) {
			updates++
			return true, nil
		},
	}
	svc := newTestService(fs)

	// Same values as the stored project: no write should happen.
	title := "Intro to Chemistry"
	status := "open"
	payload, err := svc.UpdateProject(context.Background(), memberSession("owner-1"), "abcdef1234", UpdateProjectInput{
		Title:  &title,
		Status: &status,
	})
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if updates != 0 {
		t.Errorf("expected no field update for unchanged values, got %d", updates)
	}
	if payload["err"] != false {
		t.Error("expected success payload")
	}
	if payload["msg"] != "No changes to save." {
		t.Errorf("expected no-changes message, got %v", payload["msg"])
	}
}

func TestUpdateProjectZeroRowsIsUpdateFailed(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		updateProjectFieldsFn: func(context.Context, string, map[string]any) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	title := "Advanced Chemistry"
	_, err := svc.UpdateProject(context.Background(), memberSession("owner-1"), "abcdef1234", UpdateProjectInput{Title: &title})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UPDATE_FAILED" {
		t.Fatalf("expected UPDATE_FAILED for a zero-row write, got %v", err)
	}
}

func TestUpdateProjectOnlyWritesChangedFields(t *testing.T) {
	var captured map[string]any
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		updateProjectFieldsFn: func(_ context.Context, _ string, fields map[string]any) (bool, error) {
			captured = fields
			return true, nil
		},
	}
	svc := newTestService(fs)

	title := "Advanced Chemistry"
	status := "open"
	if _, err := svc.UpdateProject(context.Background(), memberSession("owner-1"), "abcdef1234", UpdateProjectInput{
		Title:  &title,
		Status: &status,
	}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if len(captured) != 1 {
		t.Fatalf("expected exactly one changed field, got %v", captured)
	}
	if captured["title"] != "Advanced Chemistry" {
		t.Errorf("unexpected fields %v", captured)
	}
}

func TestUpdateProjectCompletionSendsAlert(t *testing.T) {
	project := privateProject("owner-1")
	project.LibreAlerts = []string{"watcher-1", "watcher-2"}
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		userEmailsFn: func(_ context.Context, uuids []string) ([]string, error) {
			if len(uuids) != 2 {
				t.Errorf("expected 2 alert uuids, got %v", uuids)
			}
			return []string{"a@example.com", "b@example.com"}, nil
		},
	}
	svc := newTestService(fs)
	mailer := &fakeMailer{}
	svc.SetMailer(mailer)

	status := "completed"
	if _, err := svc.UpdateProject(context.Background(), memberSession("owner-1"), "abcdef1234", UpdateProjectInput{Status: &status}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if len(mailer.completedCalls) != 1 {
		t.Fatalf("expected one completion alert, got %d", len(mailer.completedCalls))
	}
}

func TestUpdateProjectCompletedAlreadyNoAlert(t *testing.T) {
	project := privateProject("owner-1")
	project.Status = "completed"
	project.LibreAlerts = []string{"watcher-1"}
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
	}
	svc := newTestService(fs)
	mailer := &fakeMailer{}
	svc.SetMailer(mailer)

	notes := "wrapping up"
	if _, err := svc.UpdateProject(context.Background(), memberSession("owner-1"), "abcdef1234", UpdateProjectInput{Notes: &notes}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if len(mailer.completedCalls) != 0 {
		t.Error("expected no completion alert for an already-completed project")
	}
}

func TestDeleteProjectOwnerOnly(t *testing.T) {
	deleted := false
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			project := privateProject("owner-1")
			project.Collaborators = []string{"collab-1"}
			return project, nil
		},
		deleteProjectFn: func(context.Context, string) error {
			deleted = true
			return nil
		},
	}
	svc := newTestService(fs)
	index := &fakeSearch{}
	svc.SetSearch(index)

	// Collaborators are members but may not delete.
	_, err := svc.DeleteProject(context.Background(), memberSession("collab-1"), "abcdef1234")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for collaborator, got %v", err)
	}
	if deleted {
		t.Fatal("delete must not run for a collaborator")
	}

	if _, err := svc.DeleteProject(context.Background(), memberSession("owner-1"), "abcdef1234"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected cascade delete to run")
	}
	if len(index.deleted) != 1 || index.deleted[0] != "abcdef1234" {
		t.Errorf("expected search removal for abcdef1234, got %v", index.deleted)
	}
}

func TestFlagProjectRejectsUnknownGroup(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.FlagProject(context.Background(), memberSession("u1"), "abcdef1234", "management", "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for unknown group, got %v", err)
	}
}

func TestFlagProjectLiaisonRequiresLiaison(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.FlagProject(context.Background(), memberSession("owner-1"), "abcdef1234", "liaison", "please advise")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR without a liaison, got %v", err)
	}
}

func TestFlagProjectNotifiesGroup(t *testing.T) {
	var captured map[string]any
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		updateProjectFieldsFn: func(_ context.Context, _ string, fields map[string]any) (bool, error) {
			captured = fields
			return true, nil
		},
		listAdminEmailsFn: func(_ context.Context, org string) ([]string, error) {
			if org != "libretexts" {
				t.Errorf("expected libretexts admin lookup, got %q", org)
			}
			return []string{"admin@libretexts.org"}, nil
		},
	}
	svc := newTestService(fs)
	mailer := &fakeMailer{}
	svc.SetMailer(mailer)

	if _, err := svc.FlagProject(context.Background(), memberSession("owner-1"), "abcdef1234", "libretexts", "needs review"); err != nil {
		t.Fatalf("FlagProject: %v", err)
	}
	if captured["flag"] != "libretexts" || captured["flag_descrip"] != "needs review" {
		t.Errorf("unexpected flag fields %v", captured)
	}
	if len(mailer.flaggedCalls) != 1 {
		t.Fatalf("expected one flag notification, got %d", len(mailer.flaggedCalls))
	}
}

func TestAddCollaboratorRules(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		getUserByUUIDFn: func(_ context.Context, uuid string) (store.User, error) {
			if uuid == "new-user" {
				return store.User{UUID: uuid, Email: "new@example.com"}, nil
			}
			return store.User{}, errors.New("not found")
		},
	}
	svc := newTestService(fs)
	mailer := &fakeMailer{}
	svc.SetMailer(mailer)

	t.Run("non-owner forbidden", func(t *testing.T) {
		_, err := svc.AddCollaborator(context.Background(), memberSession("someone"), "abcdef1234", "new-user")
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
			t.Fatalf("expected FORBIDDEN, got %v", err)
		}
	})

	t.Run("owner cannot add self", func(t *testing.T) {
		_, err := svc.AddCollaborator(context.Background(), memberSession("owner-1"), "abcdef1234", "owner-1")
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
			t.Fatalf("expected VALIDATION_ERROR, got %v", err)
		}
	})

	t.Run("success notifies new member", func(t *testing.T) {
		if _, err := svc.AddCollaborator(context.Background(), memberSession("owner-1"), "abcdef1234", "new-user"); err != nil {
			t.Fatalf("AddCollaborator: %v", err)
		}
		if len(mailer.addedCalls) != 1 || mailer.addedCalls[0] != "new@example.com" {
			t.Errorf("expected notification to new@example.com, got %v", mailer.addedCalls)
		}
	})
}

func TestSetAlertMemberOnly(t *testing.T) {
	added := false
	project := privateProject("owner-1")
	project.Visibility = "public"
	project.Collaborators = []string{"collab-1"}
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return project, nil
		},
		addAlertFn: func(context.Context, string, string) (bool, error) {
			added = true
			return true, nil
		},
	}
	svc := newTestService(fs)

	// Public projects are viewable by anyone, but alerts stay member-only.
	_, err := svc.SetAlert(context.Background(), memberSession("stranger"), "abcdef1234", true)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for non-member, got %v", err)
	}
	if added {
		t.Fatal("alert must not be set for a non-member")
	}

	if _, err := svc.SetAlert(context.Background(), memberSession("collab-1"), "abcdef1234", true); err != nil {
		t.Fatalf("SetAlert: %v", err)
	}
	if !added {
		t.Fatal("expected alert to be set for a collaborator")
	}
}

func TestRemoveCollaboratorReportsUnmodified(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		removeCollaboratorFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.RemoveCollaborator(context.Background(), memberSession("owner-1"), "abcdef1234", "not-a-member")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UPDATE_FAILED" {
		t.Fatalf("expected UPDATE_FAILED when nothing was removed, got %v", err)
	}
}

func TestSuperAdminActsAsMemberEverywhere(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
	}
	svc := newTestService(fs)

	session := adminSession("sa-1", "libretexts", "superadmin")
	notes := "checking in"
	if _, err := svc.UpdateProject(context.Background(), session, "abcdef1234", UpdateProjectInput{Notes: &notes}); err != nil {
		t.Fatalf("superadmin update: %v", err)
	}
}

func TestGetUserFlaggedProjectsCapacities(t *testing.T) {
	var gotLibre bool
	var gotOrgs []string
	fs := &fakeStore{
		listFlaggedFn: func(_ context.Context, uuid string, isLibreAdmin bool, orgs []string) ([]store.Project, error) {
			gotLibre = isLibreAdmin
			gotOrgs = orgs
			return nil, nil
		},
	}
	svc := newTestService(fs)

	session := adminSession("ca-1", "calearninglab", "campusadmin")
	if _, err := svc.GetUserFlaggedProjects(context.Background(), session); err != nil {
		t.Fatalf("GetUserFlaggedProjects: %v", err)
	}
	if gotLibre {
		t.Error("campus admin of another org is not a platform admin")
	}
	if len(gotOrgs) != 1 || gotOrgs[0] != "calearninglab" {
		t.Errorf("expected campus admin org list, got %v", gotOrgs)
	}
}
