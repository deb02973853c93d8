package app

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"inkwell/api/internal/config"
	"inkwell/api/internal/revision"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
	"inkwell/api/internal/textservice"
)

// fakeStore is an in-memory dataStore.
type fakeStore struct {
	mu          sync.Mutex
	drafts      map[string]store.Draft
	draftOrder  []string
	attachments map[string]store.Attachment
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		drafts:      make(map[string]store.Draft),
		attachments: make(map[string]store.Attachment),
	}
}

func (f *fakeStore) UpsertDraft(_ context.Context, d store.Draft) (store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := f.drafts[d.ID]; ok {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
		f.draftOrder = append(f.draftOrder, d.ID)
	}
	d.UpdatedAt = now
	f.drafts[d.ID] = d
	return d, nil
}

func (f *fakeStore) GetDraft(_ context.Context, id string) (store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return store.Draft{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListDrafts(_ context.Context) ([]store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Draft, 0, len(f.draftOrder))
	for _, id := range f.draftOrder {
		out = append(out, f.drafts[id])
	}
	return out, nil
}

func (f *fakeStore) DeleteDraft(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.drafts[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.drafts, id)
	for i, existing := range f.draftOrder {
		if existing == id {
			f.draftOrder = append(f.draftOrder[:i], f.draftOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) InsertAttachment(_ context.Context, a store.Attachment) (store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.CreatedAt = time.Now().UTC()
	f.attachments[a.ID] = a
	return a, nil
}

func (f *fakeStore) GetAttachment(_ context.Context, id string) (store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[id]
	if !ok {
		return store.Attachment{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// fakeRevisions records commits per draft.
type fakeRevisions struct {
	mu      sync.Mutex
	commits map[string][]revision.Content
	removed []string
}

func newFakeRevisions() *fakeRevisions {
	return &fakeRevisions{commits: make(map[string][]revision.Content)}
}

func (f *fakeRevisions) Commit(draftID string, content revision.Content, _ string) (revision.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[draftID] = append(f.commits[draftID], content)
	return revision.Revision{Hash: "hash", When: time.Now()}, nil
}

func (f *fakeRevisions) History(draftID string, limit int) ([]revision.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]revision.Revision, 0)
	for range f.commits[draftID] {
		out = append(out, revision.Revision{Hash: "hash", When: time.Now()})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRevisions) Get(draftID, _ string) (revision.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.commits[draftID]
	if len(history) == 0 {
		return revision.Content{}, errors.New("no commits")
	}
	return history[len(history)-1], nil
}

func (f *fakeRevisions) Remove(draftID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.commits, draftID)
	f.removed = append(f.removed, draftID)
	return nil
}

// fakeSearch records indexed drafts and answers substring queries.
type fakeSearch struct {
	mu      sync.Mutex
	indexed map[string]search.DraftRecord
	deleted []string
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{indexed: make(map[string]search.DraftRecord)}
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]search.Result, 0)
	for _, rec := range f.indexed {
		if strings.Contains(strings.ToLower(rec.Title+" "+rec.Body), strings.ToLower(q.Text)) {
			results = append(results, search.Result{ID: rec.ID, Title: rec.Title})
		}
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeSearch) IndexDraft(rec search.DraftRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[rec.ID] = rec
}

func (f *fakeSearch) DeleteDraft(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, id)
	f.deleted = append(f.deleted, id)
}

// fakeFiles is an in-memory object store.
type fakeFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: make(map[string][]byte)}
}

func (f *fakeFiles) Put(_ context.Context, key, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeFiles) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

// scriptedText returns canned text service responses and records inputs.
type scriptedText struct {
	mu          sync.Mutex
	draft       string
	draftErr    error
	rewritten   string
	rewriteErr  error
	suggestions []textservice.StyleSuggestion
	issues      []textservice.GrammarIssue
	seenFiles   [][]textservice.AttachedFile
}

func (s *scriptedText) GenerateDraft(_ context.Context, _ string, files []textservice.AttachedFile) (string, error) {
	s.mu.Lock()
	s.seenFiles = append(s.seenFiles, files)
	s.mu.Unlock()
	return s.draft, s.draftErr
}

func (s *scriptedText) RewriteSpan(context.Context, string, string) (string, error) {
	return s.rewritten, s.rewriteErr
}

func (s *scriptedText) SuggestStyle(context.Context, string) ([]textservice.StyleSuggestion, error) {
	return s.suggestions, nil
}

func (s *scriptedText) CheckGrammar(context.Context, string) ([]textservice.GrammarIssue, error) {
	return s.issues, nil
}

func newTestService(text textservice.Service) (*Service, *fakeStore, *fakeRevisions, *fakeSearch) {
	fs := newFakeStore()
	fr := newFakeRevisions()
	fq := newFakeSearch()
	svc := &Service{
		cfg: config.Config{
			// A debounce that never fires inside a test run.
			DebounceDelay:   time.Hour,
			GrammarMinChars: 10,
			SuggestMinChars: 50,
		},
		store:     fs,
		revisions: fr,
		search:    fq,
		text:      text,
		sessions:  make(map[string]*editorSession),
	}
	return svc, fs, fr, fq
}

func TestSessionLifecycle(t *testing.T) {
	text := &scriptedText{
		issues: []textservice.GrammarIssue{
			{ErrorText: "Teh", Correction: "The", Explanation: "Misspelling"},
		},
	}
	svc, _, _, _ := newTestService(text)
	ctx := context.Background()

	view, err := svc.OpenSession(ctx, "", "")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if view.Title != "Untitled" || view.Markup != "" {
		t.Fatalf("unexpected initial view: %+v", view)
	}

	view, err = svc.UpdateDocument(view.ID, "Essay", "<p>Teh cat sat on the mat.</p>")
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if view.Title != "Essay" {
		t.Errorf("title = %q", view.Title)
	}

	view, err = svc.CheckGrammar(ctx, view.ID)
	if err != nil {
		t.Fatalf("CheckGrammar: %v", err)
	}
	if len(view.GrammarErrors) != 1 {
		t.Fatalf("expected 1 grammar error, got %d", len(view.GrammarErrors))
	}
	if !strings.Contains(view.Markup, "ink-grammar") {
		t.Errorf("annotated markup missing overlay: %q", view.Markup)
	}

	view, err = svc.ResolveEdit(view.ID, view.GrammarErrors[0].ID, true)
	if err != nil {
		t.Fatalf("ResolveEdit: %v", err)
	}
	if !strings.Contains(view.Markup, "The cat sat") {
		t.Errorf("correction not applied: %q", view.Markup)
	}
	if len(view.GrammarErrors) != 0 {
		t.Errorf("resolved edit still pending")
	}

	if err := svc.CloseSession(ctx, view.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if _, err := svc.GetSession(view.ID); err == nil {
		t.Fatal("expected error for closed session")
	}
}

func TestOpenSessionFromDraft(t *testing.T) {
	svc, fs, _, _ := newTestService(&scriptedText{})
	ctx := context.Background()

	fs.UpsertDraft(ctx, store.Draft{ID: "draft_1", Title: "Kept title", Markup: "<p>Saved words.</p>"})

	view, err := svc.OpenSession(ctx, "draft_1", "")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if view.Title != "Kept title" {
		t.Errorf("title = %q", view.Title)
	}
	if view.Markup != "<p>Saved words.</p>" {
		t.Errorf("markup = %q", view.Markup)
	}
	if view.DraftID != "draft_1" {
		t.Errorf("draftId = %q", view.DraftID)
	}
}

func TestOpenSessionUnknownDraft(t *testing.T) {
	svc, _, _, _ := newTestService(&scriptedText{})
	if _, err := svc.OpenSession(context.Background(), "nope", ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestSaveDraftCommitsAndIndexes(t *testing.T) {
	svc, fs, fr, fq := newTestService(&scriptedText{})
	ctx := context.Background()

	view, _ := svc.OpenSession(ctx, "", "")
	svc.UpdateDocument(view.ID, "Essay", "<p>Words worth keeping.</p>")

	draft, err := svc.SaveDraft(ctx, view.ID)
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if draft.Title != "Essay" || !strings.Contains(draft.Markup, "Words worth keeping") {
		t.Errorf("unexpected draft: %+v", draft)
	}
	if draft.PlainText != "Words worth keeping." {
		t.Errorf("plain text = %q", draft.PlainText)
	}
	if len(fr.commits[draft.ID]) != 1 {
		t.Errorf("expected 1 revision commit, got %d", len(fr.commits[draft.ID]))
	}
	if _, ok := fq.indexed[draft.ID]; !ok {
		t.Error("draft not indexed for search")
	}

	// Saving again reuses the draft id and adds a commit.
	svc.UpdateDocument(view.ID, "", "<p>Second pass.</p>")
	again, err := svc.SaveDraft(ctx, view.ID)
	if err != nil {
		t.Fatalf("second SaveDraft: %v", err)
	}
	if again.ID != draft.ID {
		t.Errorf("draft id changed on re-save: %q vs %q", again.ID, draft.ID)
	}
	if len(fr.commits[draft.ID]) != 2 {
		t.Errorf("expected 2 revision commits, got %d", len(fr.commits[draft.ID]))
	}
	if len(fs.drafts) != 1 {
		t.Errorf("expected a single draft row, got %d", len(fs.drafts))
	}
}

func TestDeleteDraftCleansUp(t *testing.T) {
	svc, _, fr, fq := newTestService(&scriptedText{})
	ctx := context.Background()

	view, _ := svc.OpenSession(ctx, "", "")
	svc.UpdateDocument(view.ID, "Doomed", "<p>Bye.</p>")
	draft, _ := svc.SaveDraft(ctx, view.ID)

	if err := svc.DeleteDraft(ctx, draft.ID); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
	if _, err := svc.GetDraft(ctx, draft.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("draft still present: %v", err)
	}
	if len(fq.deleted) != 1 || fq.deleted[0] != draft.ID {
		t.Errorf("search deletion not propagated: %v", fq.deleted)
	}
	if len(fr.removed) != 1 {
		t.Errorf("revisions not removed: %v", fr.removed)
	}
}

func TestGenerateWithAttachments(t *testing.T) {
	text := &scriptedText{draft: "A fresh draft."}
	svc, fs, _, _ := newTestService(text)
	ff := newFakeFiles()
	svc.files = ff
	ctx := context.Background()

	payload := []byte("attachment bytes")
	ff.Put(ctx, "att_1/notes.txt", "text/plain", payload)
	fs.InsertAttachment(ctx, store.Attachment{
		ID: "att_1", Name: "notes.txt", MimeType: "text/plain",
		Size: int64(len(payload)), ObjectKey: "att_1/notes.txt",
	})

	view, _ := svc.OpenSession(ctx, "", "")
	view, err := svc.Generate(ctx, view.ID, "Write about cats", []string{"att_1"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if view.Markup != "<p>A fresh draft.</p>" {
		t.Errorf("markup = %q", view.Markup)
	}

	if len(text.seenFiles) != 1 || len(text.seenFiles[0]) != 1 {
		t.Fatalf("attachments not passed through: %+v", text.seenFiles)
	}
	got := text.seenFiles[0][0]
	if got.Name != "notes.txt" || got.Data != base64.StdEncoding.EncodeToString(payload) {
		t.Errorf("unexpected attached file: %+v", got)
	}
}

func TestGenerateAttachmentsWithoutFileStore(t *testing.T) {
	svc, _, _, _ := newTestService(&scriptedText{draft: "x"})
	view, _ := svc.OpenSession(context.Background(), "", "")

	_, err := svc.Generate(context.Background(), view.ID, "prompt", []string{"att_1"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "ATTACHMENTS_UNAVAILABLE" {
		t.Fatalf("expected ATTACHMENTS_UNAVAILABLE, got %v", err)
	}
}

func TestUploadAttachment(t *testing.T) {
	svc, fs, _, _ := newTestService(&scriptedText{})
	svc.files = newFakeFiles()

	data := base64.StdEncoding.EncodeToString([]byte("hello"))
	attachment, err := svc.UploadAttachment(context.Background(), "hello.txt", "text/plain", data)
	if err != nil {
		t.Fatalf("UploadAttachment: %v", err)
	}
	if attachment.Size != 5 {
		t.Errorf("size = %d", attachment.Size)
	}
	if _, ok := fs.attachments[attachment.ID]; !ok {
		t.Error("metadata row missing")
	}

	if _, err := svc.UploadAttachment(context.Background(), "bad.txt", "", "not-base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestRewriteThroughService(t *testing.T) {
	text := &scriptedText{rewritten: "gleaming"}
	svc, _, _, _ := newTestService(text)
	ctx := context.Background()

	view, _ := svc.OpenSession(ctx, "", "")
	svc.UpdateDocument(view.ID, "", "<p>The old house stood.</p>")

	if err := svc.CaptureSelection(view.ID, "old", 4, 7); err != nil {
		t.Fatalf("CaptureSelection: %v", err)
	}
	rewritten, view, err := svc.Rewrite(ctx, view.ID, "make it shine")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if rewritten != "gleaming" {
		t.Errorf("rewritten = %q", rewritten)
	}
	if !strings.Contains(view.Markup, "gleaming house") {
		t.Errorf("splice not applied: %q", view.Markup)
	}
}
