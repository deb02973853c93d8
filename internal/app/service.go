package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"inkwell/api/internal/config"
	"inkwell/api/internal/editset"
	"inkwell/api/internal/engine"
	"inkwell/api/internal/export"
	"inkwell/api/internal/files"
	"inkwell/api/internal/overlay"
	"inkwell/api/internal/revision"
	"inkwell/api/internal/search"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
	"inkwell/api/internal/textservice"
	"inkwell/api/internal/util"
)

type dataStore interface {
	UpsertDraft(context.Context, store.Draft) (store.Draft, error)
	GetDraft(context.Context, string) (store.Draft, error)
	ListDrafts(context.Context) ([]store.Draft, error)
	DeleteDraft(context.Context, string) error
	InsertAttachment(context.Context, store.Attachment) (store.Attachment, error)
	GetAttachment(context.Context, string) (store.Attachment, error)
	Ping(ctx context.Context) error
}

type autosaveStore interface {
	Save(context.Context, string, session.Snapshot) error
	Load(context.Context, string) (session.Snapshot, error)
	Delete(context.Context, string) error
	Ping(context.Context) error
}

type revisionStore interface {
	Commit(string, revision.Content, string) (revision.Revision, error)
	History(string, int) ([]revision.Revision, error)
	Get(string, string) (revision.Content, error)
	Remove(string) error
}

type searchService interface {
	Search(search.Query) search.Response
	IndexDraft(search.DraftRecord)
	DeleteDraft(string)
}

type fileStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// editorSession pairs a reconciliation controller with the metadata the
// HTTP surface needs. Sessions live in memory; the autosave store keeps a
// recoverable snapshot of their content.
type editorSession struct {
	ID        string
	Title     string
	DraftID   string
	CreatedAt time.Time
	ctl       *engine.Controller
}

// SessionView is the wire shape of an editor session: annotated markup
// plus the pending edit sets and the busy streams.
type SessionView struct {
	ID               string                `json:"id"`
	Title            string                `json:"title"`
	DraftID          string                `json:"draftId,omitempty"`
	Markup           string                `json:"markup"`
	Version          int                   `json:"version"`
	StyleSuggestions []editset.PendingEdit `json:"styleSuggestions"`
	GrammarErrors    []editset.PendingEdit `json:"grammarErrors"`
	Busy             []string              `json:"busy"`
}

type Service struct {
	cfg       config.Config
	store     dataStore
	revisions revisionStore
	search    searchService
	text      textservice.Service
	autosave  autosaveStore
	files     fileStore

	mu       sync.Mutex
	sessions map[string]*editorSession
}

func New(cfg config.Config, dataStore *store.PostgresStore, revisions *revision.Service, searchSvc *search.Service, text textservice.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		revisions: revisions,
		search:    searchSvc,
		text:      text,
		sessions:  make(map[string]*editorSession),
	}
}

// AttachAutosave enables redis snapshot persistence for live sessions.
func (s *Service) AttachAutosave(st *session.Store) {
	if st != nil {
		s.autosave = st
	}
}

// AttachFileStore enables minio-backed attachment uploads.
func (s *Service) AttachFileStore(st *files.Store) {
	if st != nil {
		s.files = st
	}
}

var errSessionNotFound = domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")

func (s *Service) session(id string) (*editorSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return sess, nil
}

func (s *Service) view(sess *editorSession) SessionView {
	edits := sess.ctl.Edits()
	busy := make([]string, 0, 4)
	for op := range sess.ctl.Flags() {
		busy = append(busy, string(op))
	}
	s.mu.Lock()
	title, draftID := sess.Title, sess.DraftID
	s.mu.Unlock()
	return SessionView{
		ID:               sess.ID,
		Title:            title,
		DraftID:          draftID,
		Markup:           sess.ctl.Rendered(),
		Version:          sess.ctl.Version(),
		StyleSuggestions: edits.StyleSuggestions(),
		GrammarErrors:    edits.GrammarErrors(),
		Busy:             busy,
	}
}

func (s *Service) newController(sessionID string) *engine.Controller {
	return engine.New(engine.Options{
		Service:         s.text,
		DebounceDelay:   s.cfg.DebounceDelay,
		GrammarMinChars: s.cfg.GrammarMinChars,
		SuggestMinChars: s.cfg.SuggestMinChars,
		OnChange:        func() { s.snapshotSession(sessionID) },
	})
}

// snapshotSession pushes the session's current content to the autosave
// store. Fire-and-forget: a failed snapshot must never stall the editor.
func (s *Service) snapshotSession(sessionID string) {
	if s.autosave == nil {
		return
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	title := sess.Title
	s.mu.Unlock()
	snap := session.Snapshot{
		Title:   title,
		Markup:  sess.ctl.Markup(),
		SavedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.autosave.Save(ctx, sessionID, snap); err != nil {
			log.Printf("app: autosave for session %s failed: %v", sessionID, err)
		}
	}()
}

// OpenSession starts an editor session, empty, from a saved draft, or
// resumed from an autosave snapshot left by a previous process.
func (s *Service) OpenSession(ctx context.Context, draftID, resumeID string) (SessionView, error) {
	sessionID := util.NewID("sess")
	title := "Untitled"
	markup := ""

	switch {
	case resumeID != "":
		if s.autosave == nil {
			return SessionView{}, domainError(http.StatusServiceUnavailable, "AUTOSAVE_UNAVAILABLE", "Session recovery is not configured")
		}
		snap, err := s.autosave.Load(ctx, resumeID)
		if err != nil {
			return SessionView{}, err
		}
		sessionID = resumeID
		title = snap.Title
		markup = snap.Markup
	case draftID != "":
		draft, err := s.store.GetDraft(ctx, draftID)
		if err != nil {
			return SessionView{}, err
		}
		title = draft.Title
		markup = draft.Markup
	}

	sess := &editorSession{
		ID:        sessionID,
		Title:     title,
		DraftID:   draftID,
		CreatedAt: time.Now().UTC(),
		ctl:       s.newController(sessionID),
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	if markup != "" {
		sess.ctl.SetDocument(markup)
	}
	return s.view(sess), nil
}

func (s *Service) GetSession(id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(sess), nil
}

// UpdateDocument is the user-content-change path.
func (s *Service) UpdateDocument(id, title, markup string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if title != "" {
		s.mu.Lock()
		sess.Title = title
		s.mu.Unlock()
	}
	sess.ctl.SetDocument(markup)
	return s.view(sess), nil
}

func (s *Service) Suggest(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.ctl.Suggest(ctx)
	return s.view(sess), nil
}

func (s *Service) CheckGrammar(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	sess.ctl.CheckGrammarNow(ctx)
	return s.view(sess), nil
}

func (s *Service) ResolveEdit(id, editID string, accept bool) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if _, err := sess.ctl.Resolve(editID, accept); err != nil {
		return SessionView{}, err
	}
	return s.view(sess), nil
}

func (s *Service) CaptureSelection(id, text string, start, end int) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	return sess.ctl.CaptureSelection(text, start, end)
}

// Rewrite sends the captured selection through the text service. The
// rewritten text is returned alongside the refreshed view.
func (s *Service) Rewrite(ctx context.Context, id, instruction string) (string, SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return "", SessionView{}, err
	}
	text, err := sess.ctl.RewriteSelection(ctx, instruction)
	if err != nil {
		return "", SessionView{}, err
	}
	return text, s.view(sess), nil
}

// Generate replaces the session's document from a prompt, optionally with
// previously uploaded attachments as context.
func (s *Service) Generate(ctx context.Context, id, prompt string, attachmentIDs []string) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	if strings.TrimSpace(prompt) == "" {
		return SessionView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "prompt is required")
	}

	attached, err := s.loadAttachments(ctx, attachmentIDs)
	if err != nil {
		return SessionView{}, err
	}

	sess.ctl.Generate(ctx, prompt, attached)
	return s.view(sess), nil
}

func (s *Service) loadAttachments(ctx context.Context, ids []string) ([]textservice.AttachedFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage is not configured")
	}
	attached := make([]textservice.AttachedFile, 0, len(ids))
	for _, attachmentID := range ids {
		meta, err := s.store.GetAttachment(ctx, attachmentID)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", attachmentID, err)
		}
		data, err := s.files.Get(ctx, meta.ObjectKey)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", attachmentID, err)
		}
		attached = append(attached, textservice.AttachedFile{
			Name:     meta.Name,
			MimeType: meta.MimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return attached, nil
}

// SaveDraft persists the session's base content as a draft row, writes a
// revision commit, and queues it for search indexing.
func (s *Service) SaveDraft(ctx context.Context, id string) (store.Draft, error) {
	sess, err := s.session(id)
	if err != nil {
		return store.Draft{}, err
	}

	markup := sess.ctl.Markup()
	plain := sess.ctl.PlainText()

	s.mu.Lock()
	if sess.DraftID == "" {
		sess.DraftID = util.NewID("draft")
	}
	draftID := sess.DraftID
	title := sess.Title
	s.mu.Unlock()

	draft, err := s.store.UpsertDraft(ctx, store.Draft{
		ID:        draftID,
		Title:     title,
		Markup:    markup,
		PlainText: plain,
	})
	if err != nil {
		return store.Draft{}, fmt.Errorf("save draft: %w", err)
	}

	if _, err := s.revisions.Commit(draftID, revision.Content{Title: title, Markup: markup}, "Save from session "+id); err != nil {
		log.Printf("app: revision commit for draft %s failed: %v", draftID, err)
	}

	s.search.IndexDraft(search.DraftRecord{ID: draftID, Title: title, Body: plain})
	return draft, nil
}

// CloseSession tears the session down and discards its autosave snapshot.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return errSessionNotFound
	}

	sess.ctl.Close()
	if s.autosave != nil {
		if err := s.autosave.Delete(ctx, id); err != nil {
			log.Printf("app: dropping autosave for session %s failed: %v", id, err)
		}
	}
	return nil
}

func (s *Service) ListDrafts(ctx context.Context) ([]store.Draft, error) {
	return s.store.ListDrafts(ctx)
}

func (s *Service) GetDraft(ctx context.Context, id string) (store.Draft, error) {
	return s.store.GetDraft(ctx, id)
}

func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	if err := s.store.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.search.DeleteDraft(id)
	if err := s.revisions.Remove(id); err != nil {
		log.Printf("app: removing revisions for draft %s failed: %v", id, err)
	}
	return nil
}

func (s *Service) DraftRevisions(ctx context.Context, id string, limit int) ([]revision.Revision, error) {
	if _, err := s.store.GetDraft(ctx, id); err != nil {
		return nil, err
	}
	return s.revisions.History(id, limit)
}

func (s *Service) DraftRevision(ctx context.Context, id, hash string) (revision.Content, error) {
	if _, err := s.store.GetDraft(ctx, id); err != nil {
		return revision.Content{}, err
	}
	return s.revisions.Get(id, hash)
}

func (s *Service) Search(q string, limit, offset int) search.Response {
	return s.search.Search(search.Query{Text: q, Limit: limit, Offset: offset})
}

// ExportDraft renders a saved draft as a standalone HTML page or a PDF.
func (s *Service) ExportDraft(ctx context.Context, id string, format export.Format) (*export.Result, error) {
	draft, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	return export.Export(export.Request{
		Title:     draft.Title,
		Markup:    overlay.Strip(draft.Markup),
		UpdatedAt: draft.UpdatedAt,
		Format:    format,
	})
}

// UploadAttachment stores the decoded payload in object storage and its
// metadata in postgres.
func (s *Service) UploadAttachment(ctx context.Context, name, mimeType, dataB64 string) (store.Attachment, error) {
	if s.files == nil {
		return store.Attachment{}, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage is not configured")
	}
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return store.Attachment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "data must be base64")
	}
	if name == "" {
		return store.Attachment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	attachmentID := util.NewID("att")
	objectKey := attachmentID + "/" + name
	if err := s.files.Put(ctx, objectKey, mimeType, data); err != nil {
		return store.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	return s.store.InsertAttachment(ctx, store.Attachment{
		ID:        attachmentID,
		Name:      name,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		ObjectKey: objectKey,
	})
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingAutosave reports redis health; nil when autosave is not configured.
func (s *Service) PingAutosave(ctx context.Context) error {
	if s.autosave == nil {
		return nil
	}
	return s.autosave.Ping(ctx)
}
