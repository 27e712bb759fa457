package hrana

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest_ContentLengthMatchesBody(t *testing.T) {
	body, err := EncodeMsg(NewExecutePipeline("SELECT 1", true))
	require.NoError(t, err)

	raw := BuildRequest("test.localhost", body)

	req, parsedBody, err := ParseRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, PipelinePath, req.URL.Path)
	assert.Equal(t, "test.localhost", req.Host)
	assert.Equal(t, int64(len(body)), req.ContentLength)
	assert.Equal(t, body, parsedBody)
}

func TestBuildRequest_Deterministic(t *testing.T) {
	bodyA, err := EncodeMsg(NewExecutePipeline("SELECT 1", true))
	require.NoError(t, err)
	bodyB, err := EncodeMsg(NewExecutePipeline("SELECT 1", true))
	require.NoError(t, err)

	assert.Equal(t, BuildRequest("test.localhost", bodyA), BuildRequest("test.localhost", bodyB))
}

func TestParseRequest_Empty(t *testing.T) {
	_, _, err := ParseRequest(nil)
	assert.Error(t, err)
}

func TestParseRequest_Garbage(t *testing.T) {
	_, _, err := ParseRequest([]byte("FUZZ FUZZ FUZZ"))
	assert.Error(t, err)
}

func TestParseRequest_TruncatedBody(t *testing.T) {
	raw := []byte("POST /v2/pipeline HTTP/1.1\r\nHost: test.localhost\r\nContent-Length: 50\r\n\r\nshort")
	_, _, err := ParseRequest(raw)
	assert.Error(t, err)
}

func TestFormatResponse_Roundtrip(t *testing.T) {
	body, err := EncodeMsg(PipelineResp{Results: []StreamResult{ErrResult("boom")}})
	require.NoError(t, err)

	raw := FormatResponse(400, "application/json", body)

	resp, parsedBody, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, body, parsedBody)

	var decoded PipelineResp
	require.NoError(t, DecodeMsg(parsedBody, &decoded))
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "error", decoded.Results[0].Type)
	assert.Equal(t, "boom", decoded.Results[0].Error.Message)
}

func TestParseResponse_Garbage(t *testing.T) {
	_, _, err := ParseResponse([]byte("not a response at all"))
	assert.Error(t, err)
}
