package web

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/core"
)

// sessionView is the data rendered by sessionPage.
type sessionView struct {
	ID          string
	Records     []core.Record
	Accept      accept.Config
	IsUploading bool
}

var statusClass = map[core.Status]string{
	core.StatusPending:     "pending",
	core.StatusUploading:   "uploading",
	core.StatusInterrupted: "interrupted",
	core.StatusCompleted:   "completed",
	core.StatusError:       "error",
	core.StatusCancelled:   "cancelled",
}

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}
table{border-collapse:collapse;width:100%}td,th{padding:.4rem .6rem;border-bottom:1px solid #e5e7eb;text-align:left}
.completed{color:#15803d}.error{color:#b91c1c}.interrupted{color:#b45309}.cancelled{color:#6b7280}.uploading{color:#1d4ed8}
progress{width:8rem}.hint{color:#6b7280;font-size:.875rem}`

// pageScript refreshes the page on every session event.
const pageScript = `(function(){
var p=location.protocol==="https:"?"wss:":"ws:";
var ws=new WebSocket(p+"//"+location.host+"/api/sessions/"+document.body.dataset.session+"/events");
ws.onmessage=function(){clearTimeout(window.__r);window.__r=setTimeout(function(){location.reload()},250)};
})();`

// sessionPage lists the records of a session with their progress.
func sessionPage(v sessionView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>Uploads</title><style>")
		b.WriteString(pageStyle)
		fmt.Fprintf(&b, "</style></head><body data-session=\"%s\">", templ.EscapeString(v.ID))

		b.WriteString("<h1>Uploads</h1>")
		fmt.Fprintf(&b, "<p class=\"hint\">Accepted: %s. Up to %s per file",
			templ.EscapeString(strings.Join(accept.Extensions(v.Accept.Accept), ", ")),
			templ.EscapeString(accept.FormatSize(v.Accept.MaxFileSize)))
		if v.Accept.MaxFiles > 0 {
			fmt.Fprintf(&b, ", %d files max", v.Accept.MaxFiles)
		}
		b.WriteString(".</p>")

		if len(v.Records) == 0 {
			b.WriteString("<p>No files yet.</p>")
		} else {
			b.WriteString("<table><thead><tr><th></th><th>File</th><th>Size</th><th>Status</th><th>Progress</th><th>Details</th></tr></thead><tbody>")
			for _, rec := range v.Records {
				writeRecordRow(&b, rec)
			}
			b.WriteString("</tbody></table>")
		}
		if v.IsUploading {
			b.WriteString("<p class=\"hint\">Uploading…</p>")
		}

		fmt.Fprintf(&b, "<script>%s</script></body></html>", pageScript)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeRecordRow(b *strings.Builder, rec core.Record) {
	fmt.Fprintf(b, "<tr id=\"file-%s\"><td>%s</td><td>%s</td><td>%s</td><td class=\"%s\">%s</td>",
		templ.EscapeString(rec.ID),
		templ.EscapeString(accept.IconFor(rec.File.Name)),
		templ.EscapeString(rec.File.Name),
		templ.EscapeString(accept.FormatSize(rec.File.Size)),
		statusClass[rec.Status],
		templ.EscapeString(string(rec.Status)),
	)
	fmt.Fprintf(b, "<td><progress max=\"100\" value=\"%.0f\"></progress></td><td>", rec.Progress)
	switch {
	case rec.Result != nil && rec.Result.URL != "":
		fmt.Fprintf(b, "<a href=\"%s\">%s</a>",
			templ.EscapeString(string(templ.URL(rec.Result.URL))),
			templ.EscapeString(rec.Result.URL))
	case len(rec.Errors) > 0:
		msgs := make([]string, len(rec.Errors))
		for i, e := range rec.Errors {
			msgs[i] = core.MessageFor(e)
		}
		b.WriteString(templ.EscapeString(strings.Join(msgs, "; ")))
	}
	b.WriteString("</td></tr>")
}

// errorPage renders a user message for non-API requests.
func errorPage(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>Error</title><style>")
		b.WriteString(pageStyle)
		b.WriteString("</style></head><body>")
		fmt.Fprintf(&b, "<h1 class=\"error\">%s</h1>", templ.EscapeString(msg.Message))
		if msg.Action != "" {
			fmt.Fprintf(&b, "<p>%s</p>", templ.EscapeString(msg.Action))
		}
		fmt.Fprintf(&b, "<p class=\"hint\">Code: %s</p></body></html>", templ.EscapeString(msg.Code))
		_, err := io.WriteString(w, b.String())
		return err
	})
}
