package tablesession

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRCodePNG(t *testing.T) {
	raw, err := QRCodePNG(TableURL("https://comanda.example.com/", 5), 256)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

func TestTableURLAndFilename(t *testing.T) {
	assert.Equal(t, "https://comanda.example.com/mesa/12", TableURL("https://comanda.example.com/", 12))
	assert.Equal(t, "cozinha-da-vo-mesa-3.png", QRFilename("Cozinha da Vó", 3))
}
