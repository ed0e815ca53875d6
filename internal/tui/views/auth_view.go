package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/skip2/go-qrcode"
)

// AuthView shows the pairing QR code, or a message while there is none.
type AuthView struct {
	*tview.TextView
	code string
}

func NewAuthView(theme *Theme) *AuthView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true).
		SetTitle(" Link device ").
		SetTitleColor(theme.Title).
		SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	return &AuthView{TextView: tv}
}

// ShowQR renders code unless it is already on screen. It reports whether
// the view changed.
func (av *AuthView) ShowQR(code string) bool {
	if code == av.code {
		return false
	}
	av.code = code
	av.Clear()
	_, _ = fmt.Fprintf(av, "\nOpen WhatsApp > Linked devices > Link a device and scan:\n\n%s\n[::d]Waiting for the scan. The code rotates on its own.[::-]", renderQR(code))
	return true
}

func (av *AuthView) ShowMessage(msg string) {
	av.code = ""
	av.Clear()
	_, _ = fmt.Fprintf(av, "\n\n%s", msg)
}

// renderQR draws code with half blocks so each text row holds two module
// rows.
func renderQR(code string) string {
	qr, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		return "(cannot render QR code: " + tview.Escape(err.Error()) + ")"
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bottom := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
