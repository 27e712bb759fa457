// Package hrana holds the pipeline wire types, their JSON codec, and the
// HTTP/1.1 framing the simulator and server exchange.
package hrana

// Stmt is a single SQL statement in a pipeline request.
type Stmt struct {
	SQL      string `json:"sql"`
	WantRows bool   `json:"want_rows"`
}

// StreamRequest is one operation inside a pipeline. Only "execute" is used.
type StreamRequest struct {
	Type string `json:"type"`
	Stmt Stmt   `json:"stmt"`
}

// PipelineReq is the body of a POST /v2/pipeline request: one or more
// statement executions batched into a single round trip.
type PipelineReq struct {
	Baton    *string         `json:"baton"`
	Requests []StreamRequest `json:"requests"`
}

// Col describes one result column.
type Col struct {
	Name string `json:"name"`
}

// Value is a single cell, carried as text.
type Value struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// StmtResult is the outcome of one executed statement.
type StmtResult struct {
	Cols             []Col     `json:"cols"`
	Rows             [][]Value `json:"rows"`
	AffectedRowCount int64     `json:"affected_row_count"`
}

// Error carries a per-statement failure inside an otherwise successful
// pipeline response.
type Error struct {
	Message string `json:"message"`
}

// StreamResult wraps either a statement result or a statement error.
type StreamResult struct {
	Type     string      `json:"type"` // "ok" or "error"
	Response *StmtResult `json:"response,omitempty"`
	Error    *Error      `json:"error,omitempty"`
}

// PipelineResp is the body of a pipeline response.
type PipelineResp struct {
	Results []StreamResult `json:"results"`
}

// NewExecutePipeline builds a pipeline executing a single statement.
func NewExecutePipeline(sql string, wantRows bool) PipelineReq {
	return PipelineReq{
		Requests: []StreamRequest{{
			Type: "execute",
			Stmt: Stmt{SQL: sql, WantRows: wantRows},
		}},
	}
}

// OkResult wraps a statement result for a response.
func OkResult(res *StmtResult) StreamResult {
	return StreamResult{Type: "ok", Response: res}
}

// ErrResult wraps a statement error for a response.
func ErrResult(msg string) StreamResult {
	return StreamResult{Type: "error", Error: &Error{Message: msg}}
}
