// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Lectern tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/assistant"
	"github.com/starford/lectern/internal/lectureservice"
)

const formatURI = "lectern://lecture-format"

// Server wraps the MCP server with Lectern tools.
type Server struct {
	mcp       *server.MCPServer
	svc       *lectureservice.Service
	assistant *assistant.Facade
	http      *resty.Client
}

// New creates a new MCP server with all Lectern tools registered.
func New(svc *lectureservice.Service, ast *assistant.Facade) *Server {
	s := &Server{svc: svc, assistant: ast, http: newDownloader()}

	s.mcp = server.NewMCPServer(
		"Lectern",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_lectures",
		mcp.WithDescription("List lectures newest first, optionally filtered by title."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive title filter")),
	), s.listLectures)

	s.mcp.AddTool(mcp.NewTool("read_lecture",
		mcp.WithDescription("Read a lecture with its transcription, summary and related topics."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Lecture ID")),
	), s.readLecture)

	s.mcp.AddTool(mcp.NewTool("update_transcription",
		mcp.WithDescription("Replace the transcription of a lecture. "+
			"Content MUST follow the Lectern transcription format. Read it first via "+
			"the get_lecture_format tool or the "+formatURI+" resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Lecture ID")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown transcription, optionally with summary/topics frontmatter")),
	), s.updateTranscription)

	s.mcp.AddTool(mcp.NewTool("transcribe_lecture",
		mcp.WithDescription("Start a transcription job for a lecture. Poll get_job for progress."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Lecture ID")),
	), s.transcribeLecture)

	s.mcp.AddTool(mcp.NewTool("summarize_lecture",
		mcp.WithDescription("Start a summary job. The lecture must already have a transcription."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Lecture ID")),
	), s.summarizeLecture)

	s.mcp.AddTool(mcp.NewTool("get_job",
		mcp.WithDescription("Get the status and progress of a transcription or summary job."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Job ID")),
	), s.getJob)

	s.mcp.AddTool(mcp.NewTool("ask_assistant",
		mcp.WithDescription("Ask the study assistant a question. Requires a configured API key."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Question for the assistant")),
	), s.askAssistant)

	s.mcp.AddTool(mcp.NewTool("import_recording",
		mcp.WithDescription("Add a lecture from an audio file given as a base64 data: URI or an http(s) URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:audio/...;base64,... or https://...")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Lecture title")),
		mcp.WithNumber("duration_seconds", mcp.Description("Length of the recording in seconds")),
	), s.importRecording)

	s.mcp.AddTool(mcp.NewTool("get_lecture_format",
		mcp.WithDescription("Returns the Lectern transcription format. "+
			"Call this before writing transcriptions to ensure correct structure."),
	), s.getLectureFormat)

	// Resource: transcription format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Lecture Format Contract",
			mcp.WithResourceDescription("Markdown structure of lecture transcriptions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLectureFormatResource,
	)

	return s
}

// ServeStdio serves the MCP protocol on stdin/stdout until ctx is done or
// stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

// errorResult turns a domain error into a tool error the model can act on.
func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrMissingCredential):
		return mcp.NewToolResultError("assistant API key is not set")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listLectures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.ListLectures(ctx, req.GetString("query", ""))), nil
}

func (s *Server) readLecture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.svc.GetLecture(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(l), nil
}

func (s *Server) updateTranscription(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.ImportTranscription(ctx, id, content, ""); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) transcribeLecture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.svc.Transcribe(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(job), nil
}

func (s *Server) summarizeLecture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.svc.Summarize(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(job), nil
}

func (s *Server) getJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.svc.Job(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(job), nil
}

func (s *Server) askAssistant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.assistant.Query(ctx, prompt)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(resp.Text), nil
}

func (s *Server) getLectureFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LectureFormatContract), nil
}

func (s *Server) readLectureFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     LectureFormatContract,
		},
	}, nil
}
