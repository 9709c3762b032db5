package app

import (
	"context"
	"net/http"
	"strings"

	"conductor/api/internal/book"
	"conductor/api/internal/store"
	"conductor/api/internal/util"
)

// a11yItemNames is the fixed review checklist. Every section carries all of
// these, each starting false.
var a11yItemNames = []string{
	"navKeyboard",
	"navScroll",
	"navZoom",
	"imgAltText",
	"imgDecorative",
	"linkNoneEmpty",
	"linkSuspicious",
	"contrastSmall",
	"contrastLarge",
	"textSize",
	"textLineHeight",
	"headingOutline",
	"headingNoneEmpty",
	"formFieldLabels",
	"formNavigation",
	"tableHeaders",
	"tableTextSize",
	"listOlUl",
	"docLinkFile",
	"docAccess",
	"multimediaCaptions",
	"multimediaNavigation",
	"divSection",
	"senseNavigation",
}

var a11yItemSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(a11yItemNames))
	for _, name := range a11yItemNames {
		set[name] = struct{}{}
	}
	return set
}()

func newA11YItems() map[string]bool {
	items := make(map[string]bool, len(a11yItemNames))
	for _, name := range a11yItemNames {
		items[name] = false
	}
	return items
}

type AddSectionInput struct {
	Title string `json:"title"`
}

type ImportSectionsInput struct {
	Merge bool `json:"merge"`
}

// AddReviewSection appends a section to a project's accessibility review.
func (s *Service) AddReviewSection(ctx context.Context, session Session, projectID string, input AddSectionInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 150 {
		return nil, errValidation("section title must be between 1 and 150 characters")
	}
	if _, err := s.memberProject(ctx, session, projectID); err != nil {
		return nil, err
	}

	section := store.A11YSection{
		SectionID: util.NewBase62(sectionIDLength),
		ProjectID: projectID,
		Title:     title,
		Items:     newA11YItems(),
	}
	if err := s.store.InsertA11YSection(ctx, section); err != nil {
		return nil, err
	}

	return map[string]any{
		"err":       false,
		"msg":       "Successfully added review section.",
		"sectionID": section.SectionID,
	}, nil
}

// GetReviewSections returns a project's review sections in order.
func (s *Service) GetReviewSections(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if _, err := s.memberProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	sections, err := s.store.ListA11YSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(sections))
	for _, section := range sections {
		items = append(items, sectionPayload(section))
	}
	return map[string]any{
		"err":      false,
		"sections": items,
	}, nil
}

// UpdateReviewItem toggles a single checklist item on one section.
func (s *Service) UpdateReviewItem(ctx context.Context, session Session, projectID, sectionID, itemName string, value bool) (map[string]any, error) {
	if _, ok := a11yItemSet[itemName]; !ok {
		return nil, errValidation("unrecognized checklist item")
	}
	if _, err := s.memberProject(ctx, session, projectID); err != nil {
		return nil, err
	}

	modified, err := s.store.UpdateA11YSectionItem(ctx, projectID, sectionID, itemName, value)
	if err != nil {
		return nil, err
	}
	if !modified {
		return nil, errUpdateFailed("Failed to update review item.")
	}

	return map[string]any{
		"err": false,
		"msg": "Successfully updated review item.",
	}, nil
}

// ImportSectionsFromTOC rebuilds the review section list from the project's
// linked library text. With merge set, sections whose titles match an
// existing section keep that section's checklist state; each existing
// section is consumed at most once.
func (s *Service) ImportSectionsFromTOC(ctx context.Context, session Session, projectID string, input ImportSectionsInput) (map[string]any, error) {
	project, err := s.memberProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	if project.LibreLibrary == "" || project.LibreCoverID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "MISSING_BOOK_LINK", "Project does not have an associated library text.", nil)
	}
	if s.toc == nil {
		return nil, domainError(http.StatusServiceUnavailable, "TOC_UNAVAILABLE", "Table of contents import is not available.", nil)
	}

	toc, err := s.toc.FetchTOC(ctx, project.LibreLibrary, project.LibreCoverID)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "TOC_FETCH_FAILED", "Failed to retrieve the text's table of contents.", nil)
	}

	titles := book.FlattenTitles(toc)
	if len(titles) == 0 {
		return map[string]any{
			"err": false,
			"msg": "No pages found to import.",
		}, nil
	}

	var existing []store.A11YSection
	if input.Merge {
		existing, err = s.store.ListA11YSections(ctx, projectID)
		if err != nil {
			return nil, err
		}
	}

	consumed := make([]bool, len(existing))
	sections := make([]store.A11YSection, 0, len(titles))
	for _, title := range titles {
		section := store.A11YSection{
			SectionID: util.NewBase62(sectionIDLength),
			ProjectID: projectID,
			Title:     title,
			Items:     newA11YItems(),
		}
		for i := range existing {
			if consumed[i] || existing[i].Title != title {
				continue
			}
			consumed[i] = true
			section.SectionID = existing[i].SectionID
			section.Items = existing[i].Items
			break
		}
		sections = append(sections, section)
	}

	if err := s.store.ReplaceA11YSections(ctx, projectID, sections); err != nil {
		return nil, err
	}

	return map[string]any{
		"err":      false,
		"msg":      "Successfully imported sections.",
		"imported": len(sections),
	}, nil
}

func sectionPayload(section store.A11YSection) map[string]any {
	return map[string]any{
		"sectionID": section.SectionID,
		"projectID": section.ProjectID,
		"title":     section.Title,
		"items":     section.Items,
	}
}
