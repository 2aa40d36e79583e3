package chat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/embed"
	appErrors "docchat/internal/errors"
	"docchat/internal/index"
	"docchat/internal/llm"
	"docchat/internal/loader"
	"docchat/internal/session"
)

// fakeClient answers scripted replies keyed on the system/user prompt.
type fakeClient struct {
	calls []string
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	prompt := messages[0].Content
	switch {
	case strings.Contains(prompt, "yes or no"):
		f.calls = append(f.calls, "classify")
		return "no", nil
	case strings.Contains(prompt, "descriptive title"):
		f.calls = append(f.calls, "title")
		return "Docchat Basics", nil
	case strings.Contains(prompt, "standalone question"):
		f.calls = append(f.calls, "contextualize")
		return messages[len(messages)-1].Content, nil
	default:
		f.calls = append(f.calls, "answer")
		return "the answer", nil
	}
}

func (f *fakeClient) ChatWithImage(ctx context.Context, prompt, imagePath string) (string, error) {
	return "", nil
}

func (f *fakeClient) count(kind string) int {
	n := 0
	for _, c := range f.calls {
		if c == kind {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*Service, *session.Store, *fakeClient) {
	t.Helper()

	root := t.TempDir()
	filesDir := filepath.Join(root, "files")

	engine, err := index.NewEngine(index.Config{
		FilesDir:  filesDir,
		IndexDir:  filepath.Join(root, "index"),
		ChunkSize: 200,
		Overlap:   20,
	}, loader.NewRegistry(nil), embed.NewStaticEmbedder(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	csv := "name,role\nalice,engineer\n"
	require.NoError(t, os.WriteFile(filepath.Join(filesDir, "people.csv"), []byte(csv), 0o644))
	_, err = engine.Reconcile(context.Background())
	require.NoError(t, err)

	sessions, err := session.NewStore(filepath.Join(root, "sessions"), nil)
	require.NoError(t, err)

	client := &fakeClient{}
	svc := NewService(engine, sessions, client, RetrievalConfig{Strategy: "mmr"}, nil)
	return svc, sessions, client
}

func TestAnswer_EmptyQueryRejected(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	sess, err := sessions.Create()
	require.NoError(t, err)

	_, err = svc.Answer(context.Background(), sess.ID, "   ")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCodeEmptyQuery, appErr.Code)
}

func TestAnswer_EmptySessionIDRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Answer(context.Background(), "", "what is docchat")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCodeEmptySessionID, appErr.Code)
}

func TestAnswer_UnknownSessionRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Answer(context.Background(), "no-such-session", "hello")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCodeSessionNotFound, appErr.Code)
}

func TestAnswer_RecordsExchange(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	sess, err := sessions.Create()
	require.NoError(t, err)

	resp, err := svc.Answer(context.Background(), sess.ID, "who is alice")
	require.NoError(t, err)

	assert.Equal(t, "the answer", resp.Answer)

	loaded, err := sessions.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded.History, 2)
	assert.Equal(t, session.TypeHuman, loaded.History[0].Type)
	assert.Equal(t, "who is alice", loaded.History[0].Content)
	assert.Equal(t, session.TypeSystem, loaded.History[1].Type)
	assert.Equal(t, "the answer", loaded.History[1].Content)
}

func TestAnswer_TitleGeneratedExactlyOnce(t *testing.T) {
	svc, sessions, client := newTestService(t)
	sess, err := sessions.Create()
	require.NoError(t, err)

	// When: the first exchange completes
	first, err := svc.Answer(context.Background(), sess.ID, "who is alice")
	require.NoError(t, err)

	// Then: a title is generated and stored
	require.NotNil(t, first.Title)
	assert.Equal(t, "Docchat Basics", *first.Title)

	// When: a second exchange completes
	second, err := svc.Answer(context.Background(), sess.ID, "and bob?")
	require.NoError(t, err)

	// Then: no new title is produced
	assert.Nil(t, second.Title)
	assert.Equal(t, 1, client.count("title"))

	loaded, err := sessions.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Docchat Basics", loaded.Title)
}

func TestAnswer_ContextualizeOnlyWithHistory(t *testing.T) {
	svc, sessions, client := newTestService(t)
	sess, err := sessions.Create()
	require.NoError(t, err)

	// When: the first exchange runs against an empty history
	_, err = svc.Answer(context.Background(), sess.ID, "who is alice")
	require.NoError(t, err)

	// Then: no contextualize call was made
	assert.Equal(t, 0, client.count("contextualize"))

	// When: a follow-up runs with history present
	_, err = svc.Answer(context.Background(), sess.ID, "what does she do")
	require.NoError(t, err)

	// Then: the follow-up was reformulated first
	assert.Equal(t, 1, client.count("contextualize"))
}
