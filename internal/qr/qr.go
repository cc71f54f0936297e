// Package qr turns WhatsApp pairing payloads into something a human can scan.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels for DataURL.
const DefaultSize = 300

// Encoder converts a pairing payload into a displayable image reference.
type Encoder func(code string) (string, error)

// DataURL encodes code as a PNG and returns it as a data URL suitable for an
// <img src>.
func DataURL(code string) (string, error) {
	if code == "" {
		return "", errors.New("empty QR payload")
	}
	png, err := qrcode.Encode(code, qrcode.Medium, DefaultSize)
	if err != nil {
		return "", fmt.Errorf("encode QR: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Render draws code with Unicode half-block characters, two bitmap rows per
// terminal line.
func Render(code string) (string, error) {
	q, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode QR: %w", err)
	}
	bitmap := q.Bitmap()
	rows := len(bitmap)

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
