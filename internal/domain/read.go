package domain

// Group is the result of selecting a newsgroup. Low and High are the
// article number watermarks the server reported.
type Group struct {
	Name  string
	Count int64
	Low   int64
	High  int64
}

// Empty reports whether the group holds no articles.
func (g Group) Empty() bool { return g.Count == 0 || g.High < g.Low }

// Overview is one OVER line. Subject and From are still RFC 2047 encoded
// when they come off the wire.
type Overview struct {
	Number     int64  `json:"number"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	Date       string `json:"date"`
	MessageID  string `json:"message_id"`
	References string `json:"references,omitempty"`
	Bytes      int64  `json:"bytes"`
	Lines      int64  `json:"lines"`
}

// OverviewPage is one page of a group index, newest article first.
type OverviewPage struct {
	Group      string     `json:"group"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
	Articles   []Overview `json:"articles"`
}

// Attachment describes a non-text MIME part of an article.
type Attachment struct {
	Index       int    `json:"index"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// AttachmentData is a decoded attachment ready to be served.
type AttachmentData struct {
	Attachment
	Data []byte
}

// ReplyTarget carries what a follow-up post needs: the Message-ID to put in
// reply_to and a "Re: " subject.
type ReplyTarget struct {
	ReplyTo string `json:"reply_to"`
	Subject string `json:"subject"`
}

// ArticleView is a fetched article with decoded headers and text body.
type ArticleView struct {
	ID          string       `json:"id"`
	MessageID   string       `json:"message_id"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	Date        string       `json:"date"`
	Newsgroups  string       `json:"newsgroups,omitempty"`
	References  string       `json:"references,omitempty"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
	Reply       ReplyTarget  `json:"reply"`
}
