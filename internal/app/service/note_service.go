package service

import (
	"context"
	"strings"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

const maxNoteLen = 1000

// NoteService guarda notas internas de staff sobre un subject.
type NoteService struct {
	notes    NoteRepo
	activity *ActivityService
	now      func() time.Time
}

func NewNoteService(notes NoteRepo, activity *ActivityService, now func() time.Time) *NoteService {
	if now == nil {
		now = time.Now
	}
	return &NoteService{notes: notes, activity: activity, now: now}
}

func (s *NoteService) Add(ctx context.Context, subjectID, authorID int64, text string) (domain.StaffNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.StaffNote{}, domain.Validation(domain.CodeInvalidArgument, "la nota está vacía")
	}
	if len([]rune(text)) > maxNoteLen {
		return domain.StaffNote{}, domain.Validation(domain.CodeNoteTooLong, "la nota no puede superar %d caracteres", maxNoteLen)
	}
	n := domain.StaffNote{SubjectID: subjectID, Note: text, AuthorID: authorID, CreatedAt: s.now().UTC()}
	id, err := s.notes.Insert(ctx, n)
	if err != nil {
		err = storageErr(err)
		s.activity.Failed(ctx, authorID, ActNote, &subjectID, err)
		return n, err
	}
	n.ID = id
	return n, s.activity.Log(ctx, authorID, ActNote, &subjectID, "")
}

func (s *NoteService) List(ctx context.Context, subjectID int64, limit int) ([]domain.StaffNote, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	ns, err := s.notes.ListBySubject(ctx, subjectID, limit)
	return ns, storageErr(err)
}
