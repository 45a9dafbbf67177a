// Package label builds traceability labels and drives the label printer.
//
// A Label is created once per cycle from its payload string and carries
// every rendering of it: the ZPL command sent to the printer, the QR code
// behind the archived PNG, and the payload the operator must scan back.
// Nothing re-derives the payload after NewLabel, so the printed code, the
// saved image and the scan expectation cannot diverge.
package label

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/ironsheep/balance-station/internal/imaging"
	"github.com/ironsheep/balance-station/internal/reading"
)

// zplTemplate is the TSC/Zebra label layout: 400x300 dots, a model 2 QR
// code at (180,60) with magnification 2 and low error correction.
const zplTemplate = "^XA\n^MD20\n^PW400\n^LL300\n^FO180,60^BQN,2,2\n^FDLA,%s^FS\n^PQ1,0,1,Y\n^XZ\n"

// Payload formats the label payload:
//
//	{serial}{part};{angle1};{weight1};{angle2};{weight2}
//
// Angles carry two decimals, weights three; missing values are "N/A".
func Payload(serial, part string, set reading.Set) string {
	return fmt.Sprintf("%s%s;%s;%s;%s;%s",
		serial, part,
		reading.AngleLeft.Format(set.Value(reading.AngleLeft)),
		reading.WeightLeft.Format(set.Value(reading.WeightLeft)),
		reading.AngleRight.Format(set.Value(reading.AngleRight)),
		reading.WeightRight.Format(set.Value(reading.WeightRight)),
	)
}

// ZPL returns the print command for payload.
func ZPL(payload string) string {
	return fmt.Sprintf(zplTemplate, payload)
}

// Label is the single source of every rendering of one payload.
type Label struct {
	Payload string
	ZPL     string
	QR      *qrcode.QRCode
}

// NewLabel encodes payload. It fails only if the payload does not fit in a
// QR code.
func NewLabel(payload string) (*Label, error) {
	qr, err := qrcode.New(payload, qrcode.Low)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR payload: %w", err)
	}
	return &Label{Payload: payload, ZPL: ZPL(payload), QR: qr}, nil
}

// Image renders the QR code at 8 pixels per module with the payload printed
// underneath.
func (l *Label) Image() image.Image {
	code := l.QR.Image(-8)
	cb := code.Bounds()

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, l.Payload).Ceil()
	width := max(cb.Dx(), textWidth+16)
	height := cb.Dy() + 24

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	offset := image.Pt((width-cb.Dx())/2, 0)
	draw.Draw(img, cb.Add(offset), code, cb.Min, draw.Src)

	imaging.DrawCaption(img, (width-textWidth)/2, cb.Dy()+14, l.Payload, color.White)
	return img
}
