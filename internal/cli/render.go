package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"backoffice/portal/internal/session/domain"
	"backoffice/portal/internal/session/service"
)

// formatStage returns a colored label for stage.
func formatStage(stage domain.Stage) string {
	switch stage {
	case domain.StageOTPVerified:
		return text.FgGreen.Sprint("Signed in")
	case domain.StageCredentialsVerified:
		return text.FgYellow.Sprint("Verification code pending")
	default:
		return text.FgHiBlack.Sprint("Signed out")
	}
}

// formatDuration renders d rounded to seconds, or "now" when it has elapsed.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	return d.Round(time.Second).String()
}

// RenderView writes a table describing v.
func RenderView(w io.Writer, v service.View) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"Realm", string(v.Realm)})
	t.AppendRow(table.Row{"Status", formatStage(v.Stage)})
	if v.PrincipalID != "" {
		t.AppendRow(table.Row{"Principal", v.PrincipalID})
	}
	if v.Phone != "" {
		t.AppendRow(table.Row{"Phone", v.Phone})
	}
	if v.Profile != nil {
		t.AppendRow(table.Row{"Role", v.Profile.Role})
	}
	if v.Destination != "" {
		t.AppendRow(table.Row{"Destination", text.Bold.Sprint(string(v.Destination))})
	}
	if ch := v.Challenge; ch != nil {
		if ch.Expired {
			t.AppendRow(table.Row{"Code", text.FgRed.Sprint("expired")})
		} else {
			t.AppendRow(table.Row{"Code expires in", formatDuration(ch.ExpiresIn)})
		}
		t.AppendRow(table.Row{"Attempts left", ch.AttemptsRemaining})
		t.AppendRow(table.Row{"Resend", formatDuration(ch.ResendIn)})
	}
	t.Render()
}

// printf writes a formatted line; write errors on the terminal are not actionable.
func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
