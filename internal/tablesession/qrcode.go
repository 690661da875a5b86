package tablesession

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/gosimple/slug"
)

const defaultQRSize = 512

// TableURL is the address printed on the table card.
func TableURL(baseURL string, table int) string {
	return fmt.Sprintf("%s/mesa/%d", strings.TrimRight(baseURL, "/"), table)
}

// QRFilename names the PNG download, e.g. "comanda-mesa-5.png".
func QRFilename(restaurant string, table int) string {
	return slug.Make(fmt.Sprintf("%s mesa %d", restaurant, table)) + ".png"
}

// QRCodePNG renders content as a square PNG QR code of size pixels.
func QRCodePNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
