package app

import (
	"context"
	"errors"
	"testing"

	"conductor/api/internal/book"
	"conductor/api/internal/store"
)

func linkedProject() store.Project {
	project := privateProject("owner-1")
	project.LibreLibrary = "chem"
	project.LibreCoverID = "142"
	return project
}

func TestAddReviewSectionDefaults(t *testing.T) {
	var created store.A11YSection
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		insertA11YSectionFn: func(_ context.Context, section store.A11YSection) error {
			created = section
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.AddReviewSection(context.Background(), memberSession("owner-1"), "abcdef1234", AddSectionInput{Title: "1.1: Matter"}); err != nil {
		t.Fatalf("AddReviewSection: %v", err)
	}
	if len(created.SectionID) != sectionIDLength {
		t.Errorf("expected %d character section id, got %q", sectionIDLength, created.SectionID)
	}
	if len(created.Items) != len(a11yItemNames) {
		t.Fatalf("expected %d checklist items, got %d", len(a11yItemNames), len(created.Items))
	}
	for name, value := range created.Items {
		if value {
			t.Errorf("item %s must start false", name)
		}
	}
}

func TestUpdateReviewItemValidation(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateReviewItem(context.Background(), memberSession("owner-1"), "abcdef1234", "sec1234567890abc", "notAnItem", true)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for unknown item, got %v", err)
	}
}

func TestUpdateReviewItemNoMatch(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
		updateA11YItemFn: func(context.Context, string, string, string, bool) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateReviewItem(context.Background(), memberSession("owner-1"), "abcdef1234", "sec1234567890abc", "imgAltText", true)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UPDATE_FAILED" {
		t.Fatalf("expected UPDATE_FAILED when nothing matched, got %v", err)
	}
}

func TestImportSectionsRequiresBookLink(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return privateProject("owner-1"), nil
		},
	}
	svc := newTestService(fs)
	svc.SetTOCFetcher(&fakeTOC{})

	_, err := svc.ImportSectionsFromTOC(context.Background(), memberSession("owner-1"), "abcdef1234", ImportSectionsInput{})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "MISSING_BOOK_LINK" {
		t.Fatalf("expected MISSING_BOOK_LINK, got %v", err)
	}
}

func TestImportSectionsEmptyTOC(t *testing.T) {
	replaced := false
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return linkedProject(), nil
		},
		replaceA11YSectionsFn: func(context.Context, string, []store.A11YSection) error {
			replaced = true
			return nil
		},
	}
	svc := newTestService(fs)
	svc.SetTOCFetcher(&fakeTOC{})

	payload, err := svc.ImportSectionsFromTOC(context.Background(), memberSession("owner-1"), "abcdef1234", ImportSectionsInput{})
	if err != nil {
		t.Fatalf("ImportSectionsFromTOC: %v", err)
	}
	if payload["msg"] != "No pages found to import." {
		t.Errorf("unexpected message %v", payload["msg"])
	}
	if replaced {
		t.Error("empty import must not rewrite sections")
	}
}

func TestImportSectionsMergePreservesMatches(t *testing.T) {
	existing := []store.A11YSection{
		{SectionID: "keep123456789abc", ProjectID: "abcdef1234", Title: "1.1: Matter", Items: func() map[string]bool {
			items := newA11YItems()
			items["imgAltText"] = true
			return items
		}()},
		{SectionID: "drop123456789abc", ProjectID: "abcdef1234", Title: "Old Section", Items: newA11YItems()},
	}
	var replaced []store.A11YSection
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return linkedProject(), nil
		},
		listA11YSectionsFn: func(context.Context, string) ([]store.A11YSection, error) {
			return existing, nil
		},
		replaceA11YSectionsFn: func(_ context.Context, _ string, sections []store.A11YSection) error {
			replaced = sections
			return nil
		},
	}
	svc := newTestService(fs)
	svc.SetTOCFetcher(&fakeTOC{
		fetchFn: func(context.Context, string, string) (book.TOC, error) {
			return book.TOC{Chapters: []book.Chapter{
				{Title: "1: Basics", Pages: []book.Page{
					{Title: "1.1: Matter"},
					{Title: "1.2: Energy"},
				}},
			}}, nil
		},
	})

	if _, err := svc.ImportSectionsFromTOC(context.Background(), memberSession("owner-1"), "abcdef1234", ImportSectionsInput{Merge: true}); err != nil {
		t.Fatalf("ImportSectionsFromTOC: %v", err)
	}
	if len(replaced) != 3 {
		t.Fatalf("expected 3 sections (chapter + 2 pages), got %d", len(replaced))
	}

	var matter *store.A11YSection
	for i := range replaced {
		if replaced[i].Title == "1.1: Matter" {
			matter = &replaced[i]
		}
		if replaced[i].Title == "Old Section" {
			t.Error("unmatched old section must not survive the import")
		}
	}
	if matter == nil {
		t.Fatal("expected the matter section in the import")
	}
	if matter.SectionID != "keep123456789abc" {
		t.Errorf("matching section must keep its identity, got %q", matter.SectionID)
	}
	if !matter.Items["imgAltText"] {
		t.Error("matching section must keep its checklist state")
	}
}

func TestImportSectionsMergeConsumesMatchOnce(t *testing.T) {
	existing := []store.A11YSection{
		{SectionID: "only123456789abc", ProjectID: "abcdef1234", Title: "Repeated", Items: newA11YItems()},
	}
	var replaced []store.A11YSection
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return linkedProject(), nil
		},
		listA11YSectionsFn: func(context.Context, string) ([]store.A11YSection, error) {
			return existing, nil
		},
		replaceA11YSectionsFn: func(_ context.Context, _ string, sections []store.A11YSection) error {
			replaced = sections
			return nil
		},
	}
	svc := newTestService(fs)
	svc.SetTOCFetcher(&fakeTOC{
		fetchFn: func(context.Context, string, string) (book.TOC, error) {
			return book.TOC{Chapters: []book.Chapter{
				{Title: "Repeated"},
				{Title: "Repeated"},
			}}, nil
		},
	})

	if _, err := svc.ImportSectionsFromTOC(context.Background(), memberSession("owner-1"), "abcdef1234", ImportSectionsInput{Merge: true}); err != nil {
		t.Fatalf("ImportSectionsFromTOC: %v", err)
	}
	if len(replaced) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(replaced))
	}
	reused := 0
	for _, section := range replaced {
		if section.SectionID == "only123456789abc" {
			reused++
		}
	}
	if reused != 1 {
		t.Errorf("existing section id must be consumed exactly once, reused %d times", reused)
	}
}

func TestImportSectionsFetchFailure(t *testing.T) {
	fs := &fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return linkedProject(), nil
		},
	}
	svc := newTestService(fs)
	svc.SetTOCFetcher(&fakeTOC{
		fetchFn: func(context.Context, string, string) (book.TOC, error) {
			return book.TOC{}, errors.New("upstream down")
		},
	})

	_, err := svc.ImportSectionsFromTOC(context.Background(), memberSession("owner-1"), "abcdef1234", ImportSectionsInput{})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "TOC_FETCH_FAILED" {
		t.Fatalf("expected TOC_FETCH_FAILED, got %v", err)
	}
}
