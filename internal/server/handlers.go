package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/roach88/flyter/internal/ir"
)

// anonymous is the caller recorded for unauthenticated reads.
const anonymous ir.Identity = "anonymous"

// writeRequest is the body of POST /v1/flyts and POST /v1/flyts/{id}/replies.
// Content is sent either as text or base64; not both.
type writeRequest struct {
	Recipient     string  `json:"recipient,omitempty"`
	Content       *string `json:"content,omitempty"`
	ContentBase64 *string `json:"content_base64,omitempty"`
	Nickname      *string `json:"nickname,omitempty"`
}

func (r writeRequest) content() ([]byte, error) {
	switch {
	case r.Content != nil && r.ContentBase64 != nil:
		return nil, fmt.Errorf("set content or content_base64, not both")
	case r.ContentBase64 != nil:
		b, err := base64.StdEncoding.DecodeString(*r.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("content_base64: %w", err)
		}
		return b, nil
	case r.Content != nil:
		return []byte(*r.Content), nil
	}
	return []byte{}, nil
}

type tipRequest struct {
	Amount int64 `json:"amount"`
}

// messageView is the JSON form of a stored message.
type messageView struct {
	ID ir.MessageID `json:"id"`
	ir.Message
	Digest string `json:"digest"`
}

type idResponse struct {
	ID    ir.MessageID `json:"id"`
	Count ir.MessageID `json:"count"`
}

type statsResponse struct {
	ID ir.MessageID `json:"id"`
	ir.Stats
}

type countResponse struct {
	Count  ir.MessageID `json:"count"`
	NextID ir.MessageID `json:"next_id"`
}

func (s *Server) handlePost(ctx *fasthttp.RequestCtx) {
	caller, ok := s.requireCaller(ctx)
	if !ok {
		return
	}
	var req writeRequest
	if !decodeBody(ctx, &req) {
		return
	}
	if req.Recipient == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "recipient is required")
		return
	}
	content, ok := s.readContent(ctx, req)
	if !ok {
		return
	}

	s.submitWrite(ctx, ir.Call{
		Op:        ir.OpPost,
		Caller:    caller,
		Recipient: ir.Identity(req.Recipient),
		Content:   content,
		Nickname:  req.Nickname,
	})
}

func (s *Server) handleReply(ctx *fasthttp.RequestCtx) {
	caller, ok := s.requireCaller(ctx)
	if !ok {
		return
	}
	target, ok := pathID(ctx)
	if !ok {
		return
	}
	var req writeRequest
	if !decodeBody(ctx, &req) {
		return
	}
	if req.Recipient != "" {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "a reply goes to the original sender; recipient must be empty")
		return
	}
	content, ok := s.readContent(ctx, req)
	if !ok {
		return
	}

	s.submitWrite(ctx, ir.Call{
		Op:       ir.OpReply,
		Caller:   caller,
		Target:   target,
		Content:  content,
		Nickname: req.Nickname,
	})
}

func (s *Server) handleGet(ctx *fasthttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	res, err := s.submit(ir.Call{Op: ir.OpGet, Caller: readerOf(ctx), Target: id})
	if err != nil {
		writeCallError(ctx, err)
		return
	}

	digest, err := ir.MessageDigest(*res.Message)
	if err != nil {
		writeCallError(ctx, err)
		return
	}
	etag := strconv.Quote(digest)
	if string(ctx.Request.Header.Peek("If-None-Match")) == etag {
		ctx.SetStatusCode(fasthttp.StatusNotModified)
		return
	}
	ctx.Response.Header.Set("ETag", etag)
	writeJSON(ctx, fasthttp.StatusOK, messageView{ID: id, Message: *res.Message, Digest: digest})
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	res, err := s.submit(ir.Call{Op: ir.OpStats, Caller: readerOf(ctx), Target: id})
	if err != nil {
		writeCallError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, statsResponse{ID: id, Stats: *res.Stats})
}

func (s *Server) handleLike(ctx *fasthttp.RequestCtx) {
	caller, ok := s.requireCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	res, err := s.submit(ir.Call{Op: ir.OpLike, Caller: caller, Target: id})
	if err != nil {
		writeCallError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, statsResponse{ID: id, Stats: *res.Stats})
}

func (s *Server) handleTip(ctx *fasthttp.RequestCtx) {
	caller, ok := s.requireCaller(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req tipRequest
	if !decodeBody(ctx, &req) {
		return
	}
	res, err := s.submit(ir.Call{Op: ir.OpTip, Caller: caller, Target: id, Amount: req.Amount})
	if err != nil {
		writeCallError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, statsResponse{ID: id, Stats: *res.Stats})
}

func (s *Server) handleCount(ctx *fasthttp.RequestCtx) {
	res, err := s.submit(ir.Call{Op: ir.OpCount, Caller: readerOf(ctx)})
	if err != nil {
		writeCallError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, countResponse{Count: res.Count, NextID: res.Count + 1})
}

func (s *Server) handleHealthz(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "version": ir.Version})
}

func (s *Server) submitWrite(ctx *fasthttp.RequestCtx, call ir.Call) {
	res, err := s.submit(call)
	if err != nil {
		writeCallError(ctx, err)
		return
	}
	ctx.Response.Header.Set("Location", fmt.Sprintf("/v1/flyts/%d", res.ID))
	writeJSON(ctx, fasthttp.StatusCreated, idResponse{ID: res.ID, Count: res.Count})
}

// submit runs call on the host, bounded by the request timeout.
func (s *Server) submit(call ir.Call) (ir.Result, error) {
	c, cancel := context.WithTimeout(s.baseCtx, s.callTimeout)
	defer cancel()
	return s.host.Submit(c, call)
}

func (s *Server) requireCaller(ctx *fasthttp.RequestCtx) (ir.Identity, bool) {
	caller, ok := callerOf(ctx)
	if !ok {
		writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized", "X-User-ID is required")
	}
	return caller, ok
}

func (s *Server) readContent(ctx *fasthttp.RequestCtx, req writeRequest) ([]byte, bool) {
	content, err := req.content()
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request", err.Error())
		return nil, false
	}
	if int64(len(content)) > s.cfg.MaxContentBytes {
		writeError(ctx, fasthttp.StatusRequestEntityTooLarge, "too_large",
			fmt.Sprintf("content is %d bytes, limit is %d", len(content), s.cfg.MaxContentBytes))
		return nil, false
	}
	return content, true
}

func readerOf(ctx *fasthttp.RequestCtx) ir.Identity {
	if caller, ok := callerOf(ctx); ok {
		return caller
	}
	return anonymous
}

func pathID(ctx *fasthttp.RequestCtx) (ir.MessageID, bool) {
	raw, _ := ctx.UserValue("id").(string)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request", fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return ir.MessageID(n), true
}

func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "invalid JSON: "+err.Error())
		return false
	}
	return true
}
