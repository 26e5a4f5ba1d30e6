package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragserver/internal/models"
	"ragserver/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Conversation{}, &models.Message{}))

	return store.New(db)
}

// fakeRAG records queries and returns a canned response or error.
type fakeRAG struct {
	response   string
	err        error
	calls      int
	gotQuery   string
	gotHistory []HistoryEntry
	gotParams  QueryParams
}

func (f *fakeRAG) Query(query string, history []HistoryEntry, params QueryParams) (string, error) {
	f.calls++
	f.gotQuery = query
	f.gotHistory = history
	f.gotParams = params
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newChatService(st *store.Store, rag *fakeRAG) *ChatService {
	return NewChatService(st, rag, DefaultQueryParams(), DefaultHistoryWindow)
}

func TestChatNewConversation(t *testing.T) {
	st := newTestStore(t)
	rag := &fakeRAG{response: "Hi there!"}
	svc := newChatService(st, rag)

	result, err := svc.Chat(nil, "Hello", nil)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.ConversationID)
	assert.NotEqual(t, uuid.Nil, result.UserMessageID)
	assert.NotEqual(t, uuid.Nil, result.AIMessageID)
	assert.Equal(t, "Hi there!", result.AIMessage)
	assert.Empty(t, result.Sources)

	count, err := st.MessageCount(result.ConversationID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// First turn has no prior context
	assert.Equal(t, 1, rag.calls)
	assert.Equal(t, "Hello", rag.gotQuery)
	assert.Empty(t, rag.gotHistory)

	conv, err := st.GetConversation(result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "Hello", *conv.Title)
}

func TestChatEmptyMessageRejectedBeforeAnyWrite(t *testing.T) {
	st := newTestStore(t)
	rag := &fakeRAG{response: "unused"}
	svc := newChatService(st, rag)

	for _, msg := range []string{"", "   ", "\n\t "} {
		_, err := svc.Chat(nil, msg, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}

	// Nothing was persisted and the RAG server was never contacted
	var convCount int64
	require.NoError(t, st.DB().Model(&models.Conversation{}).Count(&convCount).Error)
	assert.Zero(t, convCount)
	assert.Zero(t, rag.calls)
}

func TestChatUnknownConversation(t *testing.T) {
	st := newTestStore(t)
	svc := newChatService(st, &fakeRAG{response: "unused"})

	missing := uuid.New()
	_, err := svc.Chat(&missing, "Hello", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChatRAGFailureKeepsUserTurn(t *testing.T) {
	st := newTestStore(t)
	conv, err := st.CreateConversation(nil, nil)
	require.NoError(t, err)

	svc := newChatService(st, &fakeRAG{err: errors.New("connection refused")})

	_, err = svc.Chat(&conv.ID, "Does this survive?", nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	// Exactly the user turn was persisted, never an AI turn
	count, err := st.MessageCount(conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	messages, err := st.ListMessages(conv.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.SenderUser, messages[0].Sender)
	assert.Equal(t, "Does this survive?", messages[0].Content)

	// Title generation never ran
	got, err := st.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Title)
}

func TestChatHistoryExcludesCurrentTurn(t *testing.T) {
	st := newTestStore(t)
	conv, err := st.CreateConversation(nil, nil)
	require.NoError(t, err)

	_, err = st.CreateMessage(conv.ID, models.SenderUser, "first question", nil)
	require.NoError(t, err)
	_, err = st.CreateMessage(conv.ID, models.SenderAI, "first answer", nil)
	require.NoError(t, err)

	rag := &fakeRAG{response: "second answer"}
	svc := newChatService(st, rag)

	_, err = svc.Chat(&conv.ID, "second question", nil)
	require.NoError(t, err)

	// The in-flight user message is already persisted but must not appear
	// in the forwarded history; the query travels separately.
	require.Len(t, rag.gotHistory, 2)
	assert.Equal(t, HistoryEntry{Role: "user", Content: "first question"}, rag.gotHistory[0])
	assert.Equal(t, HistoryEntry{Role: "assistant", Content: "first answer"}, rag.gotHistory[1])
}

func TestChatHistoryWindowBound(t *testing.T) {
	st := newTestStore(t)
	conv, err := st.CreateConversation(nil, nil)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderAI
		}
		_, err := st.CreateMessage(conv.ID, sender, fmt.Sprintf("turn %d", i), nil)
		require.NoError(t, err)
	}

	rag := &fakeRAG{response: "bounded"}
	svc := newChatService(st, rag)

	_, err = svc.Chat(&conv.ID, "the 26th message", nil)
	require.NoError(t, err)

	require.Len(t, rag.gotHistory, DefaultHistoryWindow)
	// Chronological, ending with the newest prior message
	assert.Equal(t, "turn 15", rag.gotHistory[0].Content)
	assert.Equal(t, "turn 24", rag.gotHistory[len(rag.gotHistory)-1].Content)
}

func TestChatAutoTitleTruncatesLongMessage(t *testing.T) {
	st := newTestStore(t)
	svc := newChatService(st, &fakeRAG{response: "ok"})

	long := strings.Repeat("0123456789", 8) // 80 chars
	result, err := svc.Chat(nil, long, nil)
	require.NoError(t, err)

	conv, err := st.GetConversation(result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.Title)
	assert.Equal(t, long[:50]+"...", *conv.Title)
}

func TestChatAutoTitleKeepsMultibyteMessageIntact(t *testing.T) {
	st := newTestStore(t)
	svc := newChatService(st, &fakeRAG{response: "ok"})

	// 30 characters, 60 bytes; short enough to become the title whole
	message := strings.Repeat("ğ", 30)
	result, err := svc.Chat(nil, message, nil)
	require.NoError(t, err)

	conv, err := st.GetConversation(result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.Title)
	assert.Equal(t, message, *conv.Title)
}

func TestChatDoesNotOverwriteExistingTitle(t *testing.T) {
	st := newTestStore(t)
	svc := newChatService(st, &fakeRAG{response: "ok"})

	result, err := svc.Chat(nil, "original topic", nil)
	require.NoError(t, err)

	_, err = svc.Chat(&result.ConversationID, "a completely different topic", nil)
	require.NoError(t, err)

	conv, err := st.GetConversation(result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "original topic", *conv.Title)
}

func TestChatTagsNewConversationWithCaller(t *testing.T) {
	st := newTestStore(t)
	svc := newChatService(st, &fakeRAG{response: "ok"})

	caller := "alice"
	result, err := svc.Chat(nil, "Hello", &caller)
	require.NoError(t, err)

	conv, err := st.GetConversation(result.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.UserID)
	assert.Equal(t, "alice", *conv.UserID)
}

func TestChatForwardsConfiguredParams(t *testing.T) {
	st := newTestStore(t)
	rag := &fakeRAG{response: "ok"}
	params := QueryParams{Mode: "local", ResponseType: "Single Paragraph", TopK: 5,
		MaxTokenTextUnit: 1000, MaxTokenGlobal: 1000, MaxTokenLocal: 1000}
	svc := NewChatService(st, rag, params, 4)

	_, err := svc.Chat(nil, "Hello", nil)
	require.NoError(t, err)
	assert.Equal(t, params, rag.gotParams)
}
