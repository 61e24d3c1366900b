package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/service"
)

type MockContextBuilder struct {
	mock.Mock
}

func (m *MockContextBuilder) BuildContext(ctx context.Context, userQuery string) (*service.ContextResult, error) {
	args := m.Called(ctx, userQuery)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ContextResult), args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, opts service.SearchOptions) ([]*service.SearchResult, error) {
	args := m.Called(ctx, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*service.SearchResult), args.Error(1)
}

func TestContextHandler_BuildContext_Success(t *testing.T) {
	builder := new(MockContextBuilder)
	handler := NewContextHandler(builder, nil)

	builder.On("BuildContext", mock.Anything, "what are our rocks this quarter").Return(&service.ContextResult{
		Text:    "## Knowledge Base\n[Traction > Rocks]\nRocks are 90-day priorities.",
		Sources: []string{"knowledge", "semantic"},
	}, nil)

	body := strings.NewReader(`{"query":"what are our rocks this quarter"}`)
	req := httptest.NewRequest(http.MethodPost, "/context", body)
	w := httptest.NewRecorder()

	handler.BuildContext(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data ContextResponse `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Contains(t, resp.Data.Text, "Knowledge Base")
	assert.Equal(t, []string{"knowledge", "semantic"}, resp.Data.Sources)
	builder.AssertExpectations(t)
}

func TestContextHandler_BuildContext_EmptyQuery(t *testing.T) {
	builder := new(MockContextBuilder)
	handler := NewContextHandler(builder, nil)

	builder.On("BuildContext", mock.Anything, "").Return(nil,
		domain.NewDomainError(domain.ErrCodeValidation, "query is required"))

	req := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader(`{"query":""}`))
	w := httptest.NewRecorder()

	handler.BuildContext(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	builder.AssertExpectations(t)
}

func TestContextHandler_BuildContext_InvalidJSON(t *testing.T) {
	handler := NewContextHandler(new(MockContextBuilder), nil)

	req := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	handler.BuildContext(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContextHandler_Search_Success(t *testing.T) {
	searcher := new(MockSearcher)
	handler := NewContextHandler(nil, searcher)

	expected := []*service.SearchResult{
		{
			ID:      "chunk-1",
			Source:  domain.SourceKnowledge,
			Title:   "Traction > Scorecard",
			Content: "A scorecard holds the numbers that matter.",
			Score:   0.0325,
		},
		{
			ID:      "chunk-2",
			Source:  domain.SourceTranscript,
			Title:   "Weekly L10",
			Content: "We reviewed the scorecard on Tuesday.",
			Score:   0.0161,
		},
	}
	searcher.On("Search", mock.Anything, "scorecard", service.SearchOptions{Limit: 5}).Return(expected, nil)

	body := strings.NewReader(`{"query":"scorecard","limit":5}`)
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SearchResponse `json:"data"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	require.Len(t, resp.Data.Results, 2)
	assert.Equal(t, "chunk-1", resp.Data.Results[0].ID)
	assert.Equal(t, "knowledge", resp.Data.Results[0].Source)
	assert.Equal(t, "transcript", resp.Data.Results[1].Source)
	searcher.AssertExpectations(t)
}

func TestContextHandler_Search_SourceFilter(t *testing.T) {
	searcher := new(MockSearcher)
	handler := NewContextHandler(nil, searcher)

	searcher.On("Search", mock.Anything, "vision", service.SearchOptions{
		Source: domain.SourceTranscript,
	}).Return([]*service.SearchResult{}, nil)

	body := strings.NewReader(`{"query":"vision","source":"transcript"}`)
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	searcher.AssertExpectations(t)
}

func TestContextHandler_Search_StoreUnavailable(t *testing.T) {
	searcher := new(MockSearcher)
	handler := NewContextHandler(nil, searcher)

	searcher.On("Search", mock.Anything, "vision", mock.Anything).Return(nil,
		domain.NewDomainError(domain.ErrCodeUnavailable, "search store unavailable"))

	body := strings.NewReader(`{"query":"vision"}`)
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	searcher.AssertExpectations(t)
}
