package planner

import (
	"image"
	"image/color"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/imaging"
)

func ptr[T any](v T) *T { return &v }

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	data, err := imaging.EncodePNG(img)
	require.NoError(t, err)
	return data
}

// serveClient exposes client through Handler and returns an HTTPClient
// pointed at it.
func serveClient(t *testing.T, client Client, limits Limits) (*HTTPClient, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	server := httptest.NewServer(Handler(logger, client, limits))
	t.Cleanup(server.Close)
	return NewHTTPClient(server.URL, 5*time.Second, logger), server
}

func planRequest(t *testing.T) schemas.PlanRequest {
	t.Helper()
	return schemas.PlanRequest{
		RequestID:  "req-1",
		Goal:       "Create event",
		Image:      testPNG(t, 64, 36),
		ImageSize:  schemas.ImageSize{W: 1920, H: 1080},
		AppContext: &schemas.AppContext{AppName: "Calendar"},
		Grid:       &schemas.MarkerGridSpec{Columns: 16, Rows: 10},
	}
}
