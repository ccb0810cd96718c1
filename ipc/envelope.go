// Package ipc holds the response envelope shared by the TCP and HTTP
// servers. Both transports build their response by calling Envelope with
// the Code and JSON text a
// parser.Parser.Execute call returned; the transports differ only in how
// they frame and deliver that text on the wire.
package ipc

import (
	"strconv"
	"strings"

	"github.com/cfsbhawkins/gstd-1.x/errors"
)

// Envelope renders `{"code": <int>, "description": "<code-text>",
// "response": <payload-or-null>}`. response is already-rendered JSON text
// (from a Node's Read/ToString) or "" for no payload, in which case the
// response member is JSON null.
func Envelope(code errors.Code, response string) string {
	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(`"code":`)
	b.WriteString(strconv.Itoa(int(code)))
	b.WriteString(`,"description":`)
	b.WriteString(strconv.Quote(code.Description()))
	b.WriteString(`,"response":`)
	if response == "" {
		b.WriteString("null")
	} else {
		b.WriteString(response)
	}
	b.WriteByte('}')
	return b.String()
}
