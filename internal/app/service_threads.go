package app

import (
	"context"
	"log"
	"strings"
	"time"

	"conductor/api/internal/perm"
	"conductor/api/internal/store"
	"conductor/api/internal/util"
)

type CreateThreadInput struct {
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

type PostMessageInput struct {
	Body string `json:"body"`
}

// memberProject loads a project and checks team membership. Used by the
// thread and review operations, which are member-only.
func (s *Service) memberProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if !perm.CanActAsMember(projectSnapshot(project), s.caller(session)) {
		return store.Project{}, errForbidden()
	}
	return project, nil
}

func (s *Service) CreateThread(ctx context.Context, session Session, projectID string, input CreateThreadInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 100 {
		return nil, errValidation("thread title must be between 1 and 100 characters")
	}
	kind := input.Kind
	if kind == "" {
		kind = "project"
	}
	if _, ok := validThreadKinds[kind]; !ok {
		return nil, errValidation("invalid thread kind")
	}

	if _, err := s.memberProject(ctx, session, projectID); err != nil {
		return nil, err
	}

	thread := store.Thread{
		ThreadID:  util.NewBase62(threadIDLength),
		ProjectID: projectID,
		Kind:      kind,
		Title:     title,
		CreatedBy: session.UserUUID,
	}
	if err := s.store.InsertThread(ctx, thread); err != nil {
		return nil, err
	}

	return map[string]any{
		"err":      false,
		"msg":      "Successfully created thread.",
		"threadID": thread.ThreadID,
	}, nil
}

// DeleteThread removes a thread and its messages. Any team member of the
// parent project may delete.
func (s *Service) DeleteThread(ctx context.Context, session Session, threadID string) (map[string]any, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if _, err := s.memberProject(ctx, session, thread.ProjectID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteThreadCascade(ctx, threadID); err != nil {
		return nil, err
	}
	return map[string]any{
		"err": false,
		"msg": "Successfully deleted thread.",
	}, nil
}

func (s *Service) GetProjectThreads(ctx context.Context, session Session, projectID, kind string) (map[string]any, error) {
	if kind == "" {
		kind = "project"
	}
	if _, ok := validThreadKinds[kind]; !ok {
		return nil, errValidation("invalid thread kind")
	}
	if _, err := s.memberProject(ctx, session, projectID); err != nil {
		return nil, err
	}

	threads, err := s.store.ListThreads(ctx, projectID, kind)
	if err != nil {
		return nil, err
	}

	items := make([]any, 0, len(threads))
	for _, thread := range threads {
		item := map[string]any{
			"threadID":  thread.ThreadID,
			"projectID": thread.ProjectID,
			"kind":      thread.Kind,
			"title":     thread.Title,
			"createdBy": thread.CreatedBy,
			"createdAt": thread.CreatedAt.Format(time.RFC3339),
		}
		if thread.LastMessage != nil {
			item["lastMessage"] = messagePayload(*thread.LastMessage)
		}
		items = append(items, item)
	}

	return map[string]any{
		"err":     false,
		"threads": items,
	}, nil
}

// PostMessage appends a message to a thread and notifies the project team.
// Notification failures never fail the request; the message is already
// persisted by then. At most one notification email is sent per thread per
// 15 minute window.
func (s *Service) PostMessage(ctx context.Context, session Session, threadID string, input PostMessageInput) (map[string]any, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" || len(body) > 2000 {
		return nil, errValidation("message body must be between 1 and 2000 characters")
	}

	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	project, err := s.memberProject(ctx, session, thread.ProjectID)
	if err != nil {
		return nil, err
	}

	message := store.Message{
		MessageID: util.NewBase62(messageIDLength),
		ThreadID:  threadID,
		Body:      body,
		Author:    session.UserUUID,
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}

	s.notifyNewMessage(ctx, session, project, thread, body)

	return map[string]any{
		"err":       false,
		"msg":       "Successfully posted message.",
		"messageID": message.MessageID,
	}, nil
}

func (s *Service) notifyNewMessage(ctx context.Context, session Session, project store.Project, thread store.Thread, body string) {
	if !s.SMTPConfigured() {
		return
	}
	now := s.now()
	if thread.LastNotifSent != nil && now.Sub(*thread.LastNotifSent) < notifyWindow {
		return
	}

	recipientSet := make(map[string]struct{})
	for _, uuid := range project.Collaborators {
		recipientSet[uuid] = struct{}{}
	}
	recipientSet[project.Owner] = struct{}{}
	if project.Liaison != nil {
		recipientSet[*project.Liaison] = struct{}{}
	}
	delete(recipientSet, session.UserUUID)
	if len(recipientSet) == 0 {
		return
	}

	uuids := make([]string, 0, len(recipientSet))
	for uuid := range recipientSet {
		uuids = append(uuids, uuid)
	}
	emails, err := s.store.UserEmailsByUUIDs(ctx, uuids)
	if err != nil {
		log.Printf("threads: load message recipients for %s: %v", thread.ThreadID, err)
		return
	}
	if len(emails) == 0 {
		return
	}

	if err := s.mail.SendNewMessageNotification(emails, session.UserName, project.Title, thread.Title, body); err != nil {
		log.Printf("threads: message notification for %s: %v", thread.ThreadID, err)
		return
	}
	if err := s.store.SetThreadNotifSent(ctx, thread.ThreadID, now); err != nil {
		log.Printf("threads: record notification time for %s: %v", thread.ThreadID, err)
	}
}

// DeleteMessage removes a single message. Only the author or a super admin
// may delete; project membership is not checked.
func (s *Service) DeleteMessage(ctx context.Context, session Session, messageID string) (map[string]any, error) {
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Author != session.UserUUID && !perm.IsSuperAdmin(s.caller(session)) {
		return nil, errForbidden()
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return nil, err
	}
	return map[string]any{
		"err": false,
		"msg": "Successfully deleted message.",
	}, nil
}

// GetThreadMessages lists a thread's messages oldest first.
func (s *Service) GetThreadMessages(ctx context.Context, session Session, threadID string) (map[string]any, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if _, err := s.memberProject(ctx, session, thread.ProjectID); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	items := make([]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, messagePayload(message))
	}
	return map[string]any{
		"err":      false,
		"messages": items,
	}, nil
}

func messagePayload(message store.Message) map[string]any {
	payload := map[string]any{
		"messageID": message.MessageID,
		"threadID":  message.ThreadID,
		"body":      message.Body,
		"author":    message.Author,
		"createdAt": message.CreatedAt.Format(time.RFC3339),
	}
	if message.AuthorInfo != nil {
		payload["author"] = summaryPayload(message.AuthorInfo)
	}
	return payload
}
