// Package storage holds all in-memory session state. Sessions live for the
// lifetime of the process; uploaded photo files are the only on-disk state.
package storage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framefold/groupshot/internal/models"
	"github.com/framefold/groupshot/internal/orchestrator"
	"github.com/framefold/groupshot/internal/prompt"
)

// Session is one live studio session: its uploaded photos, the subjects
// detected in them, and the orchestrator that owns its generation batches.
// Photo and subject mutation happens under the session mutex; the
// orchestrator synchronizes its own state.
type Session struct {
	ID        string
	CreatedAt time.Time
	Orch      *orchestrator.Orchestrator

	mu     sync.Mutex
	photos []*models.SourcePhoto
}

func NewSession(orch *orchestrator.Orchestrator) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Orch:      orch,
	}
}

// AddPhoto registers an uploaded photo in analysis-pending state and returns
// it. The caller has already written the file at photo.StoredPath.
func (s *Session) AddPhoto(photo *models.SourcePhoto) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = append(s.photos, photo)
}

func (s *Session) Photo(photoID string) (*models.SourcePhoto, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.photos {
		if p.ID == photoID {
			return p, true
		}
	}
	return nil, false
}

// RemovePhoto drops a photo, its subjects and its stored file.
func (s *Session) RemovePhoto(photoID string) error {
	s.mu.Lock()
	var removed *models.SourcePhoto
	for i, p := range s.photos {
		if p.ID == photoID {
			removed = p
			s.photos = append(s.photos[:i], s.photos[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if removed == nil {
		return fmt.Errorf("unknown photo %s", photoID)
	}
	if removed.StoredPath != "" {
		if err := os.Remove(removed.StoredPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stored photo: %w", err)
		}
	}
	return nil
}

// FinishAnalysis settles a photo's pending analysis with the subjects the
// model found. A photo with zero detected subjects gets one blank editable
// entry so the user can fill it in by hand.
func (s *Session) FinishAnalysis(photoID string, subjects []*models.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.photoLocked(photoID)
	if p == nil {
		return
	}
	if len(subjects) == 0 {
		subjects = []*models.Subject{{
			ID:      uuid.NewString(),
			PhotoID: photoID,
			Pending: true,
		}}
	}
	p.Subjects = subjects
	p.AnalysisPending = false
	p.AnalysisError = ""
}

// FailAnalysis settles a photo's pending analysis with an error. When
// manualEntry is set the photo stays usable: it gets one blank subject entry
// the user can fill in by hand, with the error text surfaced next to it.
func (s *Session) FailAnalysis(photoID string, msg string, manualEntry bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.photoLocked(photoID)
	if p == nil {
		return
	}
	p.AnalysisPending = false
	p.AnalysisError = msg
	if manualEntry && len(p.Subjects) == 0 {
		p.Subjects = []*models.Subject{{
			ID:      uuid.NewString(),
			PhotoID: photoID,
			Pending: true,
		}}
	}
}

func (s *Session) photoLocked(photoID string) *models.SourcePhoto {
	for _, p := range s.photos {
		if p.ID == photoID {
			return p
		}
	}
	return nil
}

// UpdateSubject edits a subject's name and description and clears its
// pending flag.
func (s *Session) UpdateSubject(subjectID, name, description string) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.photos {
		for _, sub := range p.Subjects {
			if sub.ID == subjectID {
				sub.Name = name
				sub.Description = description
				sub.Pending = false
				return sub, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown subject %s", subjectID)
}

// AddSubject appends a manual subject to a photo.
func (s *Session) AddSubject(photoID, name, description string) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.photoLocked(photoID)
	if p == nil {
		return nil, fmt.Errorf("unknown photo %s", photoID)
	}
	sub := &models.Subject{
		ID:          uuid.NewString(),
		PhotoID:     photoID,
		Name:        name,
		Description: description,
	}
	p.Subjects = append(p.Subjects, sub)
	return sub, nil
}

func (s *Session) DeleteSubject(subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.photos {
		for i, sub := range p.Subjects {
			if sub.ID == subjectID {
				p.Subjects = append(p.Subjects[:i], p.Subjects[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("unknown subject %s", subjectID)
}

// GenerationInput flattens the session's photos into the reference image
// list and subject manifest a batch needs. Subjects still pending analysis
// or left blank are skipped; a photo is included as a reference only when it
// contributed at least one subject.
func (s *Session) GenerationInput() ([]models.EncodedImage, []prompt.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs []models.EncodedImage
	var subjects []prompt.Subject
	for _, p := range s.photos {
		idx := -1
		for _, sub := range p.Subjects {
			if sub.Pending || (sub.Name == "" && sub.Description == "") {
				continue
			}
			if idx == -1 {
				refs = append(refs, p.Encoded)
				idx = len(refs) - 1
			}
			subjects = append(subjects, prompt.Subject{
				Name:        sub.Name,
				Description: sub.Description,
				PhotoIndex:  idx,
			})
		}
	}
	return refs, subjects
}

// View snapshots the session for serialization to the UI.
func (s *Session) View() *models.StudioSession {
	s.mu.Lock()
	photos := make([]*models.SourcePhoto, 0, len(s.photos))
	for _, p := range s.photos {
		pc := *p
		pc.Subjects = make([]*models.Subject, 0, len(p.Subjects))
		for _, sub := range p.Subjects {
			sc := *sub
			pc.Subjects = append(pc.Subjects, &sc)
		}
		photos = append(photos, &pc)
	}
	s.mu.Unlock()

	return &models.StudioSession{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Photos:    photos,
		Batches:   s.Orch.Snapshot(),
		Busy:      s.Orch.Busy(),
	}
}

type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

func (s *SessionStore) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore) Set(sessionID string, session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session
}

func (s *SessionStore) GetAll() map[string]*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*Session, len(s.sessions))
	for k, v := range s.sessions {
		result[k] = v
	}
	return result
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
