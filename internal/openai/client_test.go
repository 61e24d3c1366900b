package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tractionhq/coachd/internal/domain"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func newTestClient(api EmbeddingAPI, cfg Config) *Client {
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 10000
	}
	c := NewClientWithAPI(api, cfg)
	c.retryBase = time.Millisecond
	return c
}

func makeVector(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestClient(mockAPI, Config{})

	ctx := context.Background()
	text := "Rocks are the three to seven most important things to get done this quarter."
	expected := makeVector(1536, 0.25)

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return([][]float32{expected}, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, 1536)
	assert.Equal(t, expected, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient("")

	ctx := context.Background()
	embedding, err := client.GenerateEmbedding(ctx, "   \n\t ")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestClient(mockAPI, Config{})

	ctx := context.Background()
	text := "Test text"

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return([][]float32{makeVector(512, 0.1)}, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrWrongDimensions, err)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbeddings_PreservesOrder(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestClient(mockAPI, Config{EmbeddingDimensions: 3})

	ctx := context.Background()
	texts := []string{"first", "second", "third"}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(vectors, nil)

	out, err := client.GenerateEmbeddings(ctx, texts)

	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range texts {
		assert.Equal(t, vectors[i], out[i], "output %d should match input %d", i, i)
	}
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbeddings_SplitsOversizedInput(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestClient(mockAPI, Config{EmbeddingDimensions: 2, MaxBatchItems: 2})

	ctx := context.Background()
	texts := []string{"a1", "a2", "a3", "a4", "a5"}

	mockAPI.On("CreateEmbeddings", ctx, []string{"a1", "a2"}).Return([][]float32{{1, 1}, {2, 2}}, nil)
	mockAPI.On("CreateEmbeddings", ctx, []string{"a3", "a4"}).Return([][]float32{{3, 3}, {4, 4}}, nil)
	mockAPI.On("CreateEmbeddings", ctx, []string{"a5"}).Return([][]float32{{5, 5}}, nil)

	out, err := client.GenerateEmbeddings(ctx, texts)

	require.NoError(t, err)
	require.Len(t, out, 5)
	for i := range texts {
		assert.Equal(t, float32(i+1), out[i][0])
	}
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_TruncatesDeterministically(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestClient(mockAPI, Config{EmbeddingDimensions: 2})

	ctx := context.Background()
	long := strings.Repeat("traction ", 10000)
	truncated := truncateText(strings.TrimSpace(long))
	require.Less(t, len([]rune(truncated)), len([]rune(long)))

	mockAPI.On("CreateEmbeddings", ctx, []string{truncated}).Return([][]float32{{1, 2}}, nil).Times(2)

	first, err := client.GenerateEmbedding(ctx, long)
	require.NoError(t, err)
	second, err := client.GenerateEmbedding(ctx, long)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_RetriesThenUnavailable(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestClient(mockAPI, Config{EmbeddingDimensions: 2})

	ctx := context.Background()
	transient := errors.New("connection reset by peer")

	mockAPI.On("CreateEmbeddings", ctx, []string{"query"}).Return(nil, transient).Times(maxAttempts)

	embedding, err := client.GenerateEmbedding(ctx, "query")

	assert.Nil(t, embedding)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_RecoverOnRetry(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newTestClient(mockAPI, Config{EmbeddingDimensions: 2})

	ctx := context.Background()

	mockAPI.On("CreateEmbeddings", ctx, []string{"query"}).Return(nil, fmt.Errorf("i/o timeout")).Once()
	mockAPI.On("CreateEmbeddings", ctx, []string{"query"}).Return([][]float32{{1, 2}}, nil).Once()

	embedding, err := client.GenerateEmbedding(ctx, "query")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, embedding)
	mockAPI.AssertExpectations(t)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key")

	assert.NotNil(t, client)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewClientFromEnv_WithAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	client, err := NewClientFromEnv()

	assert.NotNil(t, client)
	assert.NoError(t, err)
}
