package tui

import (
	"github.com/AbbuRehan-SD/news-summarizer/internal/news"
)

// pageLoadedMsg carries the result of a page request. Results for a request
// older than the latest one are dropped.
type pageLoadedMsg struct {
	seq      int
	articles []news.Article
}

type errMsg struct {
	err error
}
