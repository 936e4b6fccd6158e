package controllers

import "github.com/datallboy/nntpgate/internal/domain"

// -- REQUEST (POST /) --
type PostPayload struct {
	From       *string `json:"from"`
	Newsgroups *string `json:"newsgroups"`
	Subject    *string `json:"subject"`
	Body       *string `json:"body"`
	ReplyTo    *string `json:"reply_to"`
}

// -- RESPONSES --
type SuccessResponse struct {
	Status  string `json:"status"`
	Action  string `json:"action"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type RecentResponse struct {
	Status string                 `json:"status"`
	Posts  []*domain.JournalEntry `json:"posts"`
}

// -- READ RESPONSES (GET /articles, GET /article/:id) --
type IndexResponse struct {
	Status string `json:"status"`
	*domain.OverviewPage
}

type ArticleResponse struct {
	Status  string              `json:"status"`
	Article *domain.ArticleView `json:"article"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func successResponse(res *domain.PostResult) SuccessResponse {
	r := SuccessResponse{Status: "success", Action: res.Action}
	if res.Action == domain.ActionReply {
		r.ReplyTo = res.ReplyTo
	}
	return r
}

func errorResponse(msg string) ErrorResponse {
	return ErrorResponse{Status: "error", Message: msg}
}
