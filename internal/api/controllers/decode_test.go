package controllers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/nntpgate/internal/domain"
)

func TestDecodePostRequest(t *testing.T) {
	req, err := DecodePostRequest(strings.NewReader(`{"from":"a@b.com","newsgroups":"alt.test,misc.test","subject":"hi","body":"x\ny"}`), 1024)
	require.NoError(t, err)

	assert.Equal(t, domain.PostRequest{
		From:       "a@b.com",
		Newsgroups: "alt.test,misc.test",
		Subject:    "hi",
		Body:       "x\ny",
	}, req)
	assert.Equal(t, domain.ActionNewPost, req.Action())
}

func TestDecodeEmptyReplyToIsNewPost(t *testing.T) {
	req, err := DecodePostRequest(strings.NewReader(`{"from":"a","newsgroups":"g","subject":"s","body":"b","reply_to":""}`), 1024)
	require.NoError(t, err)
	assert.False(t, req.IsReply())
}

func TestDecodeBodyMayContainLineBreaks(t *testing.T) {
	req, err := DecodePostRequest(strings.NewReader(`{"from":"a","newsgroups":"g","subject":"s","body":"one\r\ntwo\r\n"}`), 1024)
	require.NoError(t, err)
	assert.Equal(t, "one\r\ntwo\r\n", req.Body)
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]string{
		"empty":         ``,
		"missing from":  `{"newsgroups":"g","subject":"s","body":"b"}`,
		"empty body":    `{"from":"a","newsgroups":"g","subject":"s","body":""}`,
		"bool body":     `{"from":"a","newsgroups":"g","subject":"s","body":true}`,
		"cr newsgroups": `{"from":"a","newsgroups":"g\r","subject":"s","body":"b"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePostRequest(strings.NewReader(body), 1024)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestDecodeSizeLimit(t *testing.T) {
	body := `{"from":"a","newsgroups":"g","subject":"s","body":"` + strings.Repeat("b", 100) + `"}`

	_, err := DecodePostRequest(strings.NewReader(body), int64(len(body)))
	assert.NoError(t, err)

	_, err = DecodePostRequest(strings.NewReader(body), int64(len(body)-1))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecodeReportsFirstBrokenHeaderInWireOrder(t *testing.T) {
	body := `{"from":"a\r\nX: 1","newsgroups":"g\n","subject":"s\r","body":"b","reply_to":"<1@x>\n"}`

	for i := 0; i < 20; i++ {
		_, err := DecodePostRequest(strings.NewReader(body), 1024)
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
		assert.Contains(t, err.Error(), "From must be a single line")
	}
}
